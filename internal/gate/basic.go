// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package gate

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// basicPrefix is the scheme marker in an Authorization header.
const basicPrefix = "Basic "

// BasicStrategy authenticates requests from an RFC 7617 Basic Authorization
// header: "Basic " + base64(email + ":" + password).
type BasicStrategy struct {
	verifier CredentialVerifier
	exempt   *PathMatcher
}

// NewBasicStrategy creates a BasicStrategy.
// Returns an error if the verifier is nil.
func NewBasicStrategy(verifier CredentialVerifier, exempt *PathMatcher) (*BasicStrategy, error) {
	if verifier == nil {
		return nil, oops.Errorf("credential verifier is required")
	}
	return &BasicStrategy{verifier: verifier, exempt: exempt}, nil
}

// Name identifies the strategy in logs and metrics.
func (s *BasicStrategy) Name() string { return "basic" }

// RequiresAuth reports whether the path needs authentication.
func (s *BasicStrategy) RequiresAuth(path string) bool {
	return s.exempt.RequiresAuth(path)
}

// ExtractIdentity parses the Authorization header and verifies the embedded
// credentials. Every malformed step collapses to auth.ErrUnauthenticated;
// decode failures are never surfaced as fatal errors.
func (s *BasicStrategy) ExtractIdentity(r *http.Request) (*auth.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, oops.Code("GATE_NO_AUTH_HEADER").
			Wrapf(auth.ErrUnauthenticated, "missing authorization header")
	}

	payload, ok := strings.CutPrefix(header, basicPrefix)
	if !ok {
		return nil, oops.Code("GATE_NOT_BASIC").
			Wrapf(auth.ErrUnauthenticated, "authorization header is not basic")
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, oops.Code("GATE_BAD_BASE64").
			Wrapf(auth.ErrUnauthenticated, "authorization payload is not valid base64")
	}
	if !utf8.Valid(decoded) {
		return nil, oops.Code("GATE_BAD_ENCODING").
			Wrapf(auth.ErrUnauthenticated, "authorization payload is not valid utf-8")
	}

	email, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return nil, oops.Code("GATE_NO_SEPARATOR").
			Wrapf(auth.ErrUnauthenticated, "credentials are missing the ':' separator")
	}

	user, err := s.verifier.VerifyCredentials(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return nil, err
		}
		return nil, oops.Code("GATE_VERIFY_FAILED").
			With("operation", "verify credentials").
			Wrap(err)
	}
	return user, nil
}

// Compile-time interface check.
var _ Strategy = (*BasicStrategy)(nil)
