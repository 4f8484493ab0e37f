// Package signing implements optional ed25519 publisher signing over a
// published package's tarball digest, backing the signature half of
// `publish -y`. It adapts the teacher's certificate/trust-chain model
// down to a flatter publisher-signs-a-digest model: spec.md's integrity
// guarantees already run on a single trusted digest per package (the
// registry index entry, or the first-fetch digest for git/workspace
// sources), so a signature chain of intermediate certificates has
// nothing extra to attest to here.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pesde-pm/pesde/internal/pkgid"
)

// KeyID stably identifies a public key, the sha256 hex fingerprint of
// its raw bytes.
type KeyID string

// Fingerprint computes the KeyID of a public key.
func Fingerprint(pub ed25519.PublicKey) KeyID {
	sum := sha256.Sum256(pub)
	return KeyID(hex.EncodeToString(sum[:]))
}

// Descriptor is the canonical content a publisher signs: enough to bind
// a signature to one exact package artifact without re-attesting
// anything the content store's own digest check already covers.
type Descriptor struct {
	Name    pkgid.Name
	Version pkgid.Version
	Target  pkgid.TargetKind
	Digest  string
}

func descriptorBytes(d Descriptor) ([]byte, error) {
	type canon struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Target  string `json:"target"`
		Digest  string `json:"digest"`
	}

	return json.Marshal(canon{
		Name:    string(d.Name),
		Version: d.Version.String(),
		Target:  string(d.Target),
		Digest:  d.Digest,
	})
}

// Bundle is a detached signature over a Descriptor.
type Bundle struct {
	Algorithm string `json:"algorithm"`
	KeyID     KeyID  `json:"key_id"`
	Signature []byte `json:"signature"`
}

// Sign produces a Bundle for d using priv.
func Sign(d Descriptor, priv ed25519.PrivateKey) (Bundle, error) {
	b, err := descriptorBytes(d)
	if err != nil {
		return Bundle{}, err
	}

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return Bundle{}, fmt.Errorf("signing key has no ed25519 public half")
	}

	return Bundle{
		Algorithm: "ed25519",
		KeyID:     Fingerprint(pub),
		Signature: ed25519.Sign(priv, b),
	}, nil
}

// Verify checks bundle against d and pub, rejecting algorithm or key-id
// mismatches before touching the cryptographic check.
func Verify(d Descriptor, pub ed25519.PublicKey, bundle Bundle) error {
	if bundle.Algorithm != "ed25519" {
		return fmt.Errorf("unsupported signature algorithm %q", bundle.Algorithm)
	}

	if bundle.KeyID != Fingerprint(pub) {
		return fmt.Errorf("signature key id %q does not match verifying key", bundle.KeyID)
	}

	b, err := descriptorBytes(d)
	if err != nil {
		return err
	}

	if !ed25519.Verify(pub, b, bundle.Signature) {
		return fmt.Errorf("signature invalid for %s@%s[%s]", d.Name, d.Version, d.Target)
	}

	return nil
}

// GenerateKeypair creates a new ed25519 key pair for a publisher.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}
