package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	digest "github.com/opencontainers/go-digest"

	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/signing"
)

// PublishCommand signs the digest of a package artifact the caller has
// already built (--file), the signature half of `publish -y` — actually
// uploading to a registry is the HTTP registry backend, an external
// collaborator spec.md leaves out of scope.
type PublishCommand struct {
	*BaseCommand
}

func (c *PublishCommand) Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	file := fs.String("file", "", "path to the built package tarball")
	indexURL := fs.String("index", "", "index URL whose signing key to use")
	sign := fs.Bool("y", false, "sign the artifact with this index's key")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *file == "" {
		return fmt.Errorf("%s", c.Usage())
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	digester := digest.Canonical.Digester()

	if _, err := io.Copy(digester.Hash(), f); err != nil {
		return err
	}

	got := digester.Digest().String()

	name, err := pkgid.ParseName(p.Manifest.Name)
	if err != nil {
		return fmt.Errorf("publish: manifest name: %w", err)
	}

	version, err := pkgid.ParseVersion(p.Manifest.Version)
	if err != nil {
		return fmt.Errorf("publish: manifest version: %w", err)
	}

	desc := signing.Descriptor{
		Name:    name,
		Version: version,
		Target:  p.Manifest.Target.Kind,
		Digest:  got,
	}

	fmt.Printf("%s@%s[%s] digest=%s\n", desc.Name, desc.Version, desc.Target, desc.Digest)

	if !*sign {
		return nil
	}

	if *indexURL == "" {
		return fmt.Errorf("publish -y requires --index to select a signing key")
	}

	priv, err := p.KeyStore().LoadOrGenerate(*indexURL)
	if err != nil {
		return err
	}

	bundle, err := signing.Sign(desc, priv)
	if err != nil {
		return err
	}

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("publish: signing key has no ed25519 public half")
	}

	fmt.Printf("signed with key %s (public key hex %s)\n", bundle.KeyID, hex.EncodeToString(pub))

	return nil
}
