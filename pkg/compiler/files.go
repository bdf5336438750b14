package compiler

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tdx-vm/sdk/pkg/image"
)

func writeFiles(r *image.Resolved, outDir string) error {
	for _, f := range r.Files {
		content := f.Content
		if f.Src != "" {
			c, err := os.ReadFile(f.Src)
			if err != nil {
				return errors.Wrapf(err, "compiler: read file source %s", f.Src)
			}
			content = c
		}
		mode := os.FileMode(f.Mode)
		if mode == 0 {
			mode = 0o644
		}
		path := filepath.Join(outDir, "mkosi.extra", f.Path)
		if err := writeFileMode(path, string(content), mode); err != nil {
			return err
		}
	}
	return nil
}

func writeTemplates(r *image.Resolved, outDir string) error {
	for _, t := range r.Templates {
		content := t.Content
		if t.Src != "" {
			c, err := os.ReadFile(t.Src)
			if err != nil {
				return errors.Wrapf(err, "compiler: read template source %s", t.Src)
			}
			content = c
		}
		rendered, err := renderTemplate(string(content), t.Vars, t.Lenient)
		if err != nil {
			return errors.Wrapf(err, "compiler: render template %s", t.Path)
		}
		mode := os.FileMode(t.Mode)
		if mode == 0 {
			mode = 0o644
		}
		path := filepath.Join(outDir, "mkosi.extra", t.Path)
		if err := writeFileMode(path, rendered, mode); err != nil {
			return err
		}
	}
	return nil
}
