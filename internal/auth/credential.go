// Package auth verifies the single shared credential a session presents in
// its authenticate request.
package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrInvalidCredential is returned by Authenticator.Verify when the
// presented username/password pair does not match.
var ErrInvalidCredential = errors.New("auth: invalid credential")

// Authenticator verifies a session's presented username/password.
type Authenticator interface {
	Verify(username, password string) error
}

// StaticAuthenticator checks every session against one configured
// username/password pair. Comparisons run in constant time so a failed
// attempt does not leak how many leading bytes matched.
type StaticAuthenticator struct {
	username []byte
	password []byte
}

// NewStaticAuthenticator builds an Authenticator around a single shared
// credential.
func NewStaticAuthenticator(username, password string) *StaticAuthenticator {
	return &StaticAuthenticator{username: []byte(username), password: []byte(password)}
}

// Verify reports whether username and password match the configured
// credential. Both fields are compared even when the first already fails,
// so timing does not distinguish a bad username from a bad password.
func (a *StaticAuthenticator) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare(a.username, []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare(a.password, []byte(password)) == 1
	if userOK && passOK {
		return nil
	}
	return ErrInvalidCredential
}
