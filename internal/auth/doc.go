// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package auth provides the authentication core for authgate.
//
// # Domain Types
//
// User is the credential record: email, argon2id password hash, and the
// currently issued session and reset tokens (stored hashed). Users should be
// created through NewUser, which validates the email and password hash.
// Direct struct initialization bypasses validation and may create invalid
// state.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - registration, credential verification, login, logout
//   - SessionManager - session token issuance, resolution, and destruction
//   - PasswordResetService - one-time reset token flow
//
// Services are created with New* constructors that validate dependencies.
// Storage is injected through the UserRepository and SessionStore interfaces;
// implementations live in the memory and postgres subpackages.
package auth
