package revcrypto

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/ProtonMail/gopenpgp/v2/constants"
	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

func TestVerifyBlockIntegrityAccepts(t *testing.T) {
	data := []byte("ciphertext bytes")
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if err := VerifyBlockIntegrity(data, hash); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyBlockIntegrityRejectsMismatch(t *testing.T) {
	data := []byte("ciphertext bytes")
	err := VerifyBlockIntegrity(data, "0000000000000000000000000000000000000000000000000000000000000000")
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if _, ok := err.(interface{ Error() string }); !ok {
		t.Fatalf("expected an error value, got %T", err)
	}
}

func TestDecryptBlockRoundTrip(t *testing.T) {
	sessionKey, err := crypto.GenerateSessionKey(constants.AES256)
	if err != nil {
		t.Fatalf("generate session key: %v", err)
	}
	plaintext := []byte("hello revision block")
	ciphertext, err := sessionKey.Encrypt(crypto.NewPlainMessage(plaintext))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	keys := NewForTesting(sessionKey, nil)
	got, err := DecryptBlock(ciphertext, keys)
	if err != nil {
		t.Fatalf("decrypt block: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestDecryptBlockRejectsWrongKey(t *testing.T) {
	sessionKey, _ := crypto.GenerateSessionKey(constants.AES256)
	otherKey, _ := crypto.GenerateSessionKey(constants.AES256)
	ciphertext, err := sessionKey.Encrypt(crypto.NewPlainMessage([]byte("data")))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	keys := NewForTesting(otherKey, nil)
	if _, err := DecryptBlock(ciphertext, keys); err == nil {
		t.Fatal("expected decryption error with mismatched session key")
	}
}

func TestVerifyManifestRejectsMissingSignature(t *testing.T) {
	sessionKey, _ := crypto.GenerateSessionKey(constants.AES256)
	keys := NewForTesting(sessionKey, nil)
	err := VerifyManifest([]byte("digest"), "", keys)
	if err == nil {
		t.Fatal("expected a missing-signature integrity error")
	}
}

func TestVerifyManifestAcceptsValidSignature(t *testing.T) {
	signerKey, err := crypto.GenerateKey("signer", "signer@example.com", "x25519", 0)
	if err != nil {
		t.Fatalf("generate signer key: %v", err)
	}
	ring, err := crypto.NewKeyRing(signerKey)
	if err != nil {
		t.Fatalf("build keyring: %v", err)
	}

	sessionKey, _ := crypto.GenerateSessionKey(constants.AES256)
	digest := []byte("content-key-packet-bytes")
	sig, err := ring.SignDetached(crypto.NewPlainMessage(digest))
	if err != nil {
		t.Fatalf("sign detached: %v", err)
	}
	armored, err := sig.GetArmored()
	if err != nil {
		t.Fatalf("armor signature: %v", err)
	}

	keys := NewForTesting(sessionKey, ring)
	if err := VerifyManifest(digest, armored, keys); err != nil {
		t.Fatalf("expected valid manifest signature to verify, got %v", err)
	}
}

func TestVerifyManifestRejectsTamperedDigest(t *testing.T) {
	signerKey, err := crypto.GenerateKey("signer", "signer@example.com", "x25519", 0)
	if err != nil {
		t.Fatalf("generate signer key: %v", err)
	}
	ring, err := crypto.NewKeyRing(signerKey)
	if err != nil {
		t.Fatalf("build keyring: %v", err)
	}

	sessionKey, _ := crypto.GenerateSessionKey(constants.AES256)
	sig, err := ring.SignDetached(crypto.NewPlainMessage([]byte("original")))
	if err != nil {
		t.Fatalf("sign detached: %v", err)
	}
	armored, err := sig.GetArmored()
	if err != nil {
		t.Fatalf("armor signature: %v", err)
	}

	keys := NewForTesting(sessionKey, ring)
	if err := VerifyManifest([]byte("tampered"), armored, keys); err == nil {
		t.Fatal("expected signature verification to fail against a tampered digest")
	}
}
