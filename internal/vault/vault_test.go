// vault_test.go -- unit tests for AES-256-GCM token sealing.
package vault

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestNew_EmptySecretRejected(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v, err := New("test-secret")
	if err != nil {
		t.Fatal(err)
	}

	plaintexts := []string{
		"ya29.a0AfB_byDummyAccessToken",
		"1//0gDummyRefreshToken-with_symbols~!@#$%^&*()",
		"",
		"short",
		strings.Repeat("long-token-", 200),
		"유니코드 토큰 값",
	}

	for _, pt := range plaintexts {
		blob, err := v.Encrypt(pt)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", pt, err)
		}
		got, err := v.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", pt, err)
		}
		if got != pt {
			t.Errorf("round trip: expected %q, got %q", pt, got)
		}
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	v, _ := New("test-secret")

	a, err := v.Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	b, err := v.Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestDecrypt_WrongSecretFails(t *testing.T) {
	v1, _ := New("secret-one")
	v2, _ := New("secret-two")

	blob, err := v1.Encrypt("access-token")
	if err != nil {
		t.Fatal(err)
	}

	_, err = v2.Decrypt(blob)
	if !errors.Is(err, ErrDecryption) {
		t.Errorf("expected ErrDecryption, got %v", err)
	}
}

func TestDecrypt_TamperedBlobFails(t *testing.T) {
	v, _ := New("test-secret")

	blob, err := v.Encrypt("access-token")
	if err != nil {
		t.Fatal(err)
	}

	raw, _ := base64.StdEncoding.DecodeString(blob)
	raw[len(raw)-1] ^= 0x01 // flip one ciphertext bit
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := v.Decrypt(tampered); !errors.Is(err, ErrDecryption) {
		t.Errorf("expected ErrDecryption for tampered blob, got %v", err)
	}
}

func TestDecrypt_MalformedBlobs(t *testing.T) {
	v, _ := New("test-secret")

	cases := []struct {
		name string
		blob string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"empty", ""},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"nonce plus tag only", base64.StdEncoding.EncodeToString(make([]byte, 27))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Decrypt(tc.blob); !errors.Is(err, ErrDecryption) {
				t.Errorf("expected ErrDecryption, got %v", err)
			}
		})
	}
}
