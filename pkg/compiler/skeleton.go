package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tdx-vm/sdk/pkg/fetch"
	"github.com/tdx-vm/sdk/pkg/image"
)

func writeRepositories(r *image.Resolved, outDir string) error {
	for i, repo := range r.Repositories {
		var b fmtBuilder
		b.linef("Types: %s", "deb")
		b.linef("URIs: %s", repo.URI)
		suite := repo.Name
		if suite == "" {
			suite = "stable"
		}
		b.linef("Suites: %s", suite)
		if len(repo.Components) > 0 {
			components := ""
			for j, c := range repo.Components {
				if j > 0 {
					components += " "
				}
				components += c
			}
			b.linef("Components: %s", components)
		}
		if repo.Key != "" {
			keyPath := filepath.Join("/etc/apt/keyrings", fmt.Sprintf("tdx-repo-%02d.asc", i))
			b.linef("Signed-By: %s", keyPath)

			if err := writeKeyFile(repo.Key, filepath.Join(outDir, "mkosi.skeleton", keyPath)); err != nil {
				return err
			}
		}

		name := fmt.Sprintf("tdx-repo-%02d.sources", i)
		path := filepath.Join(outDir, "mkosi.skeleton", "etc", "apt", "sources.list.d", name)
		if err := writeFileMode(path, b.String(), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// writeKeyFile copies or embeds repo.Key as the keyring at dest. Key is
// treated as a literal armored key if it looks like one, otherwise as a
// local filesystem path to copy.
func writeKeyFile(key, dest string) error {
	if len(key) > 0 && key[0] == '-' {
		return writeFileMode(dest, key, 0o644)
	}
	contents, err := os.ReadFile(key)
	if err != nil {
		return errors.Wrapf(err, "compiler: read repository key %s", key)
	}
	return writeFileMode(dest, string(contents), 0o644)
}

func writeSkeleton(r *image.Resolved, outDir string) error {
	skelRoot := filepath.Join(outDir, "mkosi.skeleton")
	for _, s := range r.Skeleton {
		dest := filepath.Join(skelRoot, s.Dest)
		info, err := os.Stat(s.Src)
		if err != nil {
			return errors.Wrapf(err, "compiler: stat skeleton source %s", s.Src)
		}
		if info.IsDir() {
			if err := os.MkdirAll(dest, info.Mode().Perm()); err != nil {
				return errors.Wrapf(err, "compiler: create skeleton dir %s", dest)
			}
			if err := fetch.CopyTree(context.Background(), s.Src, dest); err != nil {
				return errors.Wrapf(err, "compiler: copy skeleton tree %s", s.Src)
			}
			continue
		}
		contents, err := os.ReadFile(s.Src)
		if err != nil {
			return errors.Wrapf(err, "compiler: read skeleton source %s", s.Src)
		}
		if err := writeFileMode(dest, string(contents), info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}
