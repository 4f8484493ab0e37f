package signing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pesde-pm/pesde/internal/pkgid"
)

func testDescriptor(t *testing.T) Descriptor {
	t.Helper()

	v, err := pkgid.ParseVersion("1.0.0")
	if err != nil {
		t.Fatalf("ParseVersion: %v", err)
	}

	return Descriptor{
		Name:    pkgid.Name("scope/hello"),
		Version: v,
		Target:  pkgid.TargetLune,
		Digest:  "sha256:deadbeef",
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	d := testDescriptor(t)

	bundle, err := Sign(d, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := Verify(d, pub, bundle); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedDescriptor(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	d := testDescriptor(t)

	bundle, err := Sign(d, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tampered := d
	tampered.Digest = "sha256:00000000"

	if err := Verify(tampered, pub, bundle); err == nil {
		t.Fatal("expected Verify to reject a tampered descriptor")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	otherPub, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	d := testDescriptor(t)

	bundle, err := Sign(d, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := Verify(d, otherPub, bundle); err == nil {
		t.Fatal("expected Verify to reject a mismatched key")
	}
}

func TestFingerprintIsStableAndDistinct(t *testing.T) {
	pub1, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	pub2, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	if Fingerprint(pub1) != Fingerprint(pub1) {
		t.Fatal("Fingerprint is not stable for the same key")
	}

	if Fingerprint(pub1) == Fingerprint(pub2) {
		t.Fatal("Fingerprint collided for two distinct keys")
	}
}

func TestKeyStoreLoadOrGeneratePersists(t *testing.T) {
	dir := t.TempDir()

	ks, err := NewKeyStore(dir)
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}

	priv1, err := ks.LoadOrGenerate("https://registry.example/index")
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}

	priv2, err := ks.LoadOrGenerate("https://registry.example/index")
	if err != nil {
		t.Fatalf("LoadOrGenerate (second call): %v", err)
	}

	if !priv1.Equal(priv2) {
		t.Fatal("LoadOrGenerate returned a different key on the second call")
	}
}

func TestKeyStoreDistinctLabelsGetDistinctKeys(t *testing.T) {
	dir := t.TempDir()

	ks, err := NewKeyStore(dir)
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}

	privA, err := ks.LoadOrGenerate("https://a.example/index")
	if err != nil {
		t.Fatalf("LoadOrGenerate a: %v", err)
	}

	privB, err := ks.LoadOrGenerate("https://b.example/index")
	if err != nil {
		t.Fatalf("LoadOrGenerate b: %v", err)
	}

	if privA.Equal(privB) {
		t.Fatal("expected distinct labels to get distinct keys")
	}
}

func TestKeyStoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()

	ks, err := NewKeyStore(dir)
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}

	if err := writeCorruptKeyFile(dir, "bad-label"); err != nil {
		t.Fatalf("writeCorruptKeyFile: %v", err)
	}

	if _, _, err := ks.Load("bad-label"); err == nil {
		t.Fatal("expected Load to reject a corrupt key file")
	}
}

func writeCorruptKeyFile(dir, label string) error {
	return os.WriteFile(filepath.Join(dir, label+".key"), []byte("not-hex!!"), 0o600)
}
