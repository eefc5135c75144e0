package clientcrypto

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"testing"
)

func TestRand_LengthUniq(t *testing.T) {
	t.Parallel()
	const n = 48
	a, err := Rand(n)
	if err != nil {
		t.Fatalf("Rand: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := Rand(n)
	if bytes.Equal(a, b) {
		t.Fatalf("Rand produced equal slices")
	}
}

func TestDeriveKey_DeterministicAndSaltDependent(t *testing.T) {
	t.Parallel()
	pw := []byte("secret-pass")
	s1 := []byte("salt-1")
	s2 := []byte("salt-2")
	k1 := DeriveKey(pw, s1)
	if len(k1) != KeyLen {
		t.Fatalf("key len=%d", len(k1))
	}
	if subtle.ConstantTimeCompare(k1, DeriveKey(pw, s1)) != 1 {
		t.Fatalf("DeriveKey not deterministic")
	}
	if subtle.ConstantTimeCompare(k1, DeriveKey(pw, s2)) != 0 {
		t.Fatalf("DeriveKey must change with salt")
	}
	if subtle.ConstantTimeCompare(k1, DeriveKey([]byte("other"), s1)) != 0 {
		t.Fatalf("DeriveKey must change with passphrase")
	}
}

func TestSealOpen(t *testing.T) {
	t.Parallel()
	key := DeriveKey([]byte("pw"), []byte("salt"))
	origin := []byte("https://lms.example/api")

	sealed, err := Seal(key, []byte("tok1"), origin)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("tok1")) {
		t.Fatalf("plaintext leaked into sealed blob")
	}

	out, err := Open(key, sealed, origin)
	if err != nil || string(out) != "tok1" {
		t.Fatalf("Open: %q %v", out, err)
	}

	if _, err := Open(key, sealed, []byte("https://evil.example/api")); err == nil {
		t.Fatalf("Open with other origin must fail")
	}
	if _, err := Open(DeriveKey([]byte("pw2"), []byte("salt")), sealed, origin); err == nil {
		t.Fatalf("Open with wrong key must fail")
	}
	if _, err := Open(key, []byte{1, 2, 3}, origin); !errors.Is(err, ErrSealedTooShort) {
		t.Fatalf("want ErrSealedTooShort, got %v", err)
	}
}
