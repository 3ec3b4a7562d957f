// Package revcrypto implements the crypto service (C3): unlocking a
// revision's content session key, verifying block hashes, decrypting
// block and thumbnail ciphertext, and verifying the revision manifest
// signature. It is built on github.com/ProtonMail/gopenpgp/v2/crypto, the
// same library the vendored Proton Drive bridge client in the reference
// pack uses for key unwrapping and session-key decryption.
package revcrypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"golang.org/x/crypto/hkdf"

	"github.com/kraklabs/drivedl/pkg/direrrors"
	"github.com/kraklabs/drivedl/pkg/protonapi"
)

// RevisionKeys holds the unlocked key material needed to process every
// block and thumbnail of a single revision: the content session key for
// symmetric decryption, and a keyring for signature verification.
type RevisionKeys struct {
	sessionKey   *crypto.SessionKey
	verifyRing   *crypto.KeyRing
	correlation  []byte
}

// DeriveRevisionKeys unlocks a node's private key with the account's
// keyring, then unwraps the revision's content key packet to obtain the
// session key used to decrypt every block. accountKeys supplies both the
// passphrase-unwrapping key and the signature-verification keyring.
func DeriveRevisionKeys(nodeKeys protonapi.NodeKeysDTO, accountKeys []protonapi.AccountKeyDTO, contentKeyPacket []byte) (RevisionKeys, error) {
	if len(accountKeys) == 0 {
		return RevisionKeys{}, direrrors.New(direrrors.Validation, "no account keys supplied")
	}

	accountRing, err := buildKeyRing(accountKeys)
	if err != nil {
		return RevisionKeys{}, direrrors.Wrap(direrrors.Decryption, "build account keyring", err)
	}

	passphrase := []byte(nodeKeys.Passphrase)
	if strings.Contains(nodeKeys.Passphrase, "BEGIN PGP MESSAGE") {
		msg, err := crypto.NewPGPMessageFromArmored(nodeKeys.Passphrase)
		if err != nil {
			return RevisionKeys{}, direrrors.Wrap(direrrors.Decryption, "parse armored node passphrase", err)
		}
		plain, err := accountRing.Decrypt(msg, nil, 0)
		if err != nil {
			return RevisionKeys{}, direrrors.Wrap(direrrors.Decryption, "unwrap node passphrase", err)
		}
		passphrase = plain.GetBinary()
	}

	nodeKey, err := crypto.NewKeyFromArmored(nodeKeys.ArmoredKey)
	if err != nil {
		return RevisionKeys{}, direrrors.Wrap(direrrors.Decryption, "parse node key", err)
	}
	unlockedNodeKey, err := nodeKey.Unlock(passphrase)
	if err != nil {
		return RevisionKeys{}, direrrors.Wrap(direrrors.Decryption, "unlock node key", err)
	}
	nodeRing, err := crypto.NewKeyRing(unlockedNodeKey)
	if err != nil {
		return RevisionKeys{}, direrrors.Wrap(direrrors.Decryption, "build node keyring", err)
	}

	sessionKey, err := nodeRing.DecryptSessionKey(contentKeyPacket)
	if err != nil {
		return RevisionKeys{}, direrrors.Wrap(direrrors.Decryption, "unwrap content session key", err)
	}

	return RevisionKeys{
		sessionKey:  sessionKey,
		verifyRing:  accountRing,
		correlation: deriveCorrelationTag(sessionKey.Key),
	}, nil
}

func buildKeyRing(keys []protonapi.AccountKeyDTO) (*crypto.KeyRing, error) {
	ring, err := crypto.NewKeyRing(nil)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		key, err := crypto.NewKeyFromArmored(k.ArmoredKey)
		if err != nil {
			return nil, fmt.Errorf("parse account key %s: %w", k.Fingerprint, err)
		}
		if err := ring.AddKey(key); err != nil {
			return nil, fmt.Errorf("add account key %s: %w", k.Fingerprint, err)
		}
	}
	return ring, nil
}

// NewForTesting builds a RevisionKeys directly from an already-unlocked
// session key and verification keyring, bypassing the node/account unlock
// chain in DeriveRevisionKeys. Exported for other packages' tests that need
// a working RevisionKeys without standing up armored key fixtures.
func NewForTesting(sessionKey *crypto.SessionKey, verifyRing *crypto.KeyRing) RevisionKeys {
	return RevisionKeys{
		sessionKey:  sessionKey,
		verifyRing:  verifyRing,
		correlation: deriveCorrelationTag(sessionKey.Key),
	}
}

// deriveCorrelationTag folds the raw session key through HKDF-SHA256 to
// produce a short, non-reversible tag safe to attach to telemetry and logs,
// so key material itself is never logged.
func deriveCorrelationTag(sessionKey []byte) []byte {
	reader := hkdf.New(sha256.New, sessionKey, []byte("drivedl-correlation-salt"), []byte("revision-correlation-tag-v1"))
	tag := make([]byte, 8)
	if _, err := io.ReadFull(reader, tag); err != nil {
		return nil
	}
	return tag
}

// CorrelationTag returns a short hex tag derived from the revision's
// session key, safe to use as a log/telemetry field without exposing key
// material.
func (k RevisionKeys) CorrelationTag() string {
	return hex.EncodeToString(k.correlation)
}

// VerifyBlockIntegrity checks ciphertext's SHA-256 digest against the
// expected hex-encoded hash in constant time, returning a
// *direrrors.IntegrityError on mismatch.
func VerifyBlockIntegrity(ciphertext []byte, expectedHash string) error {
	sum := sha256.Sum256(ciphertext)
	actual := hex.EncodeToString(sum[:])
	want := strings.ToLower(strings.TrimSpace(expectedHash))
	if subtle.ConstantTimeCompare([]byte(actual), []byte(want)) != 1 {
		return &direrrors.IntegrityError{
			Message:  "block hash mismatch",
			Expected: want,
			Actual:   actual,
		}
	}
	return nil
}

// DecryptBlock decrypts one block's ciphertext data packet using the
// revision's content session key.
func DecryptBlock(ciphertext []byte, keys RevisionKeys) ([]byte, error) {
	plain, err := keys.sessionKey.Decrypt(ciphertext)
	if err != nil {
		return nil, &direrrors.DecryptionError{Message: "decrypt block", Cause: err}
	}
	return plain.GetBinary(), nil
}

// DecryptThumbnail decrypts a thumbnail's ciphertext using the same content
// session key as the revision's blocks.
func DecryptThumbnail(ciphertext []byte, keys RevisionKeys) ([]byte, error) {
	plain, err := keys.sessionKey.Decrypt(ciphertext)
	if err != nil {
		return nil, &direrrors.DecryptionError{Message: "decrypt thumbnail", Cause: err}
	}
	return plain.GetBinary(), nil
}

// VerifyManifest verifies the detached armored signature over the
// revision's plaintext digest against the account's verification keyring.
// A failure here is always fatal: the manifest check runs once, after
// every block has already been individually hash-verified and decrypted.
func VerifyManifest(plaintextDigest []byte, armoredSignature string, keys RevisionKeys) error {
	if armoredSignature == "" {
		return &direrrors.IntegrityError{Message: "revision carries no manifest signature"}
	}
	sig, err := crypto.NewPGPSignatureFromArmored(armoredSignature)
	if err != nil {
		return direrrors.Wrap(direrrors.Integrity, "parse manifest signature", err)
	}
	message := crypto.NewPlainMessage(plaintextDigest)
	if err := keys.verifyRing.VerifyDetached(message, sig, crypto.GetUnixTime()); err != nil {
		return direrrors.Wrap(direrrors.Integrity, "manifest signature verification failed", err)
	}
	return nil
}
