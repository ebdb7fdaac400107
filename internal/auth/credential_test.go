package auth

import "testing"

func TestStaticAuthenticatorAcceptsConfiguredCredential(t *testing.T) {
	a := NewStaticAuthenticator("worker", "s3cret")
	if err := a.Verify("worker", "s3cret"); err != nil {
		t.Fatalf("expected valid credential to be accepted, got %v", err)
	}
}

func TestStaticAuthenticatorRejectsMismatches(t *testing.T) {
	a := NewStaticAuthenticator("worker", "s3cret")
	cases := []struct {
		name, user, pass string
	}{
		{"wrong password", "worker", "nope"},
		{"wrong username", "intruder", "s3cret"},
		{"both wrong", "intruder", "nope"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := a.Verify(tc.user, tc.pass); err != ErrInvalidCredential {
				t.Fatalf("expected ErrInvalidCredential, got %v", err)
			}
		})
	}
}
