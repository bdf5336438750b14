package compiler

import (
	"path/filepath"

	"github.com/tdx-vm/sdk/pkg/image"
)

// DeliveryMethod names how secret material reaches the running
// instance, as the flag passed to receive-secrets.sh by the single
// tdx-secrets.service unit. writeSecrets always uses DeliverySSH:
// Resolved has no delivery-method field, so DeliveryVsock and
// DeliveryScript are never selected, and no fetch script path can be
// supplied for DeliveryScript.
type DeliveryMethod int

const (
	// DeliverySSH fetches secrets from an operator-reachable endpoint
	// over SSH at boot.
	DeliverySSH DeliveryMethod = iota
	// DeliveryVsock fetches secrets from the TDX host over a vsock
	// channel.
	DeliveryVsock
	// DeliveryScript runs a caller-supplied fetch script.
	DeliveryScript
)

func (d DeliveryMethod) flag() string {
	switch d {
	case DeliverySSH:
		return "--ssh"
	case DeliveryVsock:
		return "--vsock"
	case DeliveryScript:
		return "--script"
	default:
		return "--ssh"
	}
}

func writeSecrets(r *image.Resolved, outDir string) error {
	if len(r.Secrets) == 0 {
		return nil
	}

	var manifest fmtBuilder
	for _, s := range r.Secrets {
		owner := s.Owner
		if owner == "" {
			owner = "root"
		}
		mode := s.Mode
		if mode == 0 {
			mode = 0o400
		}
		manifest.linef("%s\t%s\t%s\t%04o", s.Name, s.Destination, owner, mode)
	}
	manifestPath := filepath.Join(outDir, "mkosi.extra", "usr", "local", "lib", "tdx", "secrets.manifest")
	if err := writeFileMode(manifestPath, manifest.String(), 0o600); err != nil {
		return err
	}

	var script fmtBuilder
	script.line("#!/bin/bash")
	script.line("set -euo pipefail")
	script.WriteByte('\n')
	script.line(`MANIFEST=/usr/local/lib/tdx/secrets.manifest`)
	script.line(`METHOD="${1:---ssh}"`)
	script.line(`while IFS=$'\t' read -r name dest owner mode; do`)
	script.line(`  mkdir -p "$(dirname "$dest")"`)
	script.line(`  tdx-secret-client "$METHOD" --name "$name" --out "$dest"`)
	script.line(`  chown "$owner" "$dest"`)
	script.line(`  chmod "$mode" "$dest"`)
	script.line(`done < "$MANIFEST"`)
	scriptPath := filepath.Join(outDir, "mkosi.extra", "usr", "local", "lib", "tdx", "receive-secrets.sh")
	if err := writeFileMode(scriptPath, script.String(), 0o755); err != nil {
		return err
	}

	method := DeliverySSH

	var unit fmtBuilder
	unit.line("[Unit]")
	unit.line("Description=tdx secret delivery")
	unit.line("DefaultDependencies=no")
	unit.line("Before=secrets-ready.target")
	unit.WriteByte('\n')
	unit.line("[Service]")
	unit.line("Type=oneshot")
	unit.linef("ExecStart=/usr/local/lib/tdx/receive-secrets.sh %s", method.flag())
	unit.line("RemainAfterExit=yes")
	unit.WriteByte('\n')
	unit.line("[Install]")
	unit.line("WantedBy=secrets-ready.target")
	unitPath := filepath.Join(outDir, "mkosi.extra", "etc", "systemd", "system", "tdx-secrets.service")
	if err := writeFileMode(unitPath, unit.String(), 0o644); err != nil {
		return err
	}

	var target fmtBuilder
	target.line("[Unit]")
	target.line("Description=tdx secrets ready")
	targetPath := filepath.Join(outDir, "mkosi.extra", "etc", "systemd", "system", "secrets-ready.target")
	return writeFileMode(targetPath, target.String(), 0o644)
}
