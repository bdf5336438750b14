package compiler

import (
	"path/filepath"

	"github.com/tdx-vm/sdk/pkg/image"
)

func writeServiceUnits(r *image.Resolved, outDir string) error {
	for _, svc := range r.Services {
		path := filepath.Join(outDir, "mkosi.extra", "etc", "systemd", "system", svc.Name+".service")
		if err := writeFileMode(path, svc.ToUnitFile(), 0o644); err != nil {
			return err
		}
	}
	return nil
}
