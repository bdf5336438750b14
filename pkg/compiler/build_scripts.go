package compiler

import (
	"fmt"
	"path/filepath"

	"github.com/tdx-vm/sdk/pkg/image"
)

func writeBuildScripts(r *image.Resolved, outDir string) error {
	for i, artifact := range r.Builds {
		script, err := artifact.Script()
		if err != nil {
			return err
		}
		body := "#!/bin/bash\nset -euo pipefail\n\n" + script + "\n"
		name := fmt.Sprintf("%02d-%s.sh", i, artifact.Name)
		path := filepath.Join(outDir, "mkosi.build.d", name)
		if err := writeFileMode(path, body, 0o755); err != nil {
			return err
		}
	}
	return nil
}
