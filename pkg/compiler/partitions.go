package compiler

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tdx-vm/sdk/pkg/image"
)

// partitionTypeMnemonic maps a partition's mountpoint to the stable
// mnemonic name the assembler resolves to a concrete GPT type UUID.
func partitionTypeMnemonic(p image.Partition) string {
	if p.Type != "" {
		return p.Type
	}
	switch p.Mountpoint {
	case "/":
		return "root"
	case "/home":
		return "home"
	case "/srv":
		return "srv"
	case "/var":
		return "var"
	case "/tmp":
		return "tmp"
	case "/boot":
		return "xbootldr"
	case "/boot/efi":
		return "esp"
	case "":
		if p.Format == "swap" {
			return "swap"
		}
		return "linux-generic"
	default:
		return "linux-generic"
	}
}

// encryptionFor returns the EncryptionConfig that names partition p (by
// Label or Mountpoint, "root" and "/" both matching the root partition),
// or nil if p isn't encrypted.
func encryptionFor(r *image.Resolved, p image.Partition) *image.EncryptionConfig {
	for i, enc := range r.Encryption {
		for _, name := range enc.Partitions {
			if name == p.Label || (p.Mountpoint == "/" && (name == "root" || name == "/")) {
				return &r.Encryption[i]
			}
		}
	}
	return nil
}

// encryptDirective renders an EncryptionConfig's delivery method into
// mkosi.repart's Encrypt= value (and, for key-file delivery, the
// EncryptionKeyFile= path to pair with it). Passphrase and KeyFile are
// mutually exclusive; with neither set, TPM2 is implied by default,
// matching the original SDK's tpm-by-default key source.
func encryptDirective(enc image.EncryptionConfig) (string, string, error) {
	if enc.Passphrase != "" && enc.KeyFile != "" {
		return "", "", errors.New("compiler: encryption passphrase and key file are mutually exclusive")
	}

	switch {
	case enc.KeyFile != "":
		if enc.TPM2 {
			return "key-file+tpm2", enc.KeyFile, nil
		}
		return "key-file", enc.KeyFile, nil
	case enc.Passphrase != "":
		if enc.TPM2 {
			return "password+tpm2", "", nil
		}
		return "password", "", nil
	default:
		return "tpm2", "", nil
	}
}

func writePartitions(r *image.Resolved, outDir string) error {
	for i, p := range r.Partitions {
		var b fmtBuilder
		b.line("[Partition]")
		b.linef("Type=%s", partitionTypeMnemonic(p))
		if p.Format != "" {
			b.linef("Format=%s", p.Format)
		}
		if p.SizeMinMB > 0 {
			b.linef("SizeMinBytes=%dM", p.SizeMinMB)
		}
		if p.SizeMaxMB > 0 {
			b.linef("SizeMaxBytes=%dM", p.SizeMaxMB)
		}
		if p.Mountpoint != "" && p.Mountpoint != "/" {
			b.linef("MountPoint=%s", p.Mountpoint)
		}
		if p.ReadOnly {
			b.line("ReadOnly=yes")
		}
		if enc := encryptionFor(r, p); enc != nil {
			method, keyFile, err := encryptDirective(*enc)
			if err != nil {
				return err
			}
			b.linef("Encrypt=%s", method)
			if keyFile != "" {
				b.linef("EncryptionKeyFile=%s", keyFile)
			}
		}

		label := p.Label
		if label == "" {
			label = partitionTypeMnemonic(p)
		}
		name := fmt.Sprintf("%02d-%s.conf", i, label)
		path := filepath.Join(outDir, "mkosi.repart", name)
		if err := writeFileMode(path, b.String(), 0o644); err != nil {
			return err
		}
	}
	return nil
}
