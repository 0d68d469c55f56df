// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package gate decides, per request, whether authentication is required and
// which identity a request carries.
//
// A Strategy pairs the exempt-path check with credential extraction. Two
// implementations exist: BasicStrategy reads an RFC 7617 Authorization
// header, SessionStrategy reads a session cookie. Both report failures as
// auth.ErrUnauthenticated so the transport layer treats them uniformly;
// the oops codes on the wrapped errors keep the causes distinguishable for
// logging and tests.
package gate
