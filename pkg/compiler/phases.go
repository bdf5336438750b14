package compiler

import (
	"fmt"
	"path/filepath"

	"github.com/tdx-vm/sdk/pkg/image"
)

// lifecyclePhases are the six assembler-executed phases that get an
// mkosi.<phase> script, in the fixed execution order the assembler runs
// them. "build" has no script here (build artifacts go to
// mkosi.build.d), and "boot" is handled separately by writeBootPhase
// since it is not an assembler phase.
var lifecyclePhases = []string{
	image.PhaseSync,
	image.PhasePrepare,
	image.PhasePostInst,
	image.PhaseFinalize,
	image.PhasePostOutput,
	image.PhaseClean,
}

func writePhaseScripts(r *image.Resolved, outDir string) error {
	byPhase := make(map[string][]image.RunCommand)
	for _, rc := range r.RunCommands {
		if rc.Phase == image.PhaseBoot {
			continue
		}
		byPhase[rc.Phase] = append(byPhase[rc.Phase], rc)
	}

	needsPostinst := len(r.Services) > 0 || len(r.Users) > 0 || len(r.Secrets) > 0

	for _, phase := range lifecyclePhases {
		commands := byPhase[phase]
		if len(commands) == 0 && !(phase == image.PhasePostInst && needsPostinst) {
			continue
		}

		var b fmtBuilder
		b.line("#!/bin/bash")
		b.line("set -euo pipefail")
		b.WriteByte('\n')

		if phase == image.PhasePostInst {
			writePostinstPreamble(&b, r)
		}

		for _, rc := range commands {
			writeRunCommand(&b, rc)
		}

		path := filepath.Join(outDir, "mkosi."+phase)
		if err := writeFileMode(path, b.String(), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// writePostinstPreamble renders the fixed ordering: users, then
// per-service user+enable, then secrets mkdir, then set-default.
func writePostinstPreamble(b *fmtBuilder, r *image.Resolved) {
	for _, u := range r.Users {
		for _, line := range userSetupCommands(u) {
			b.line(line)
		}
	}
	for _, svc := range r.Services {
		for _, line := range svc.SetupCommands() {
			b.line(line)
		}
	}
	for _, s := range r.Secrets {
		b.linef("mkdir -p %s", filepath.Dir(s.Destination))
	}
	target := r.DefaultTarget
	if target == "" {
		target = "multi-user.target"
	}
	b.linef("systemctl set-default %s", target)
	b.WriteByte('\n')
}

// writeRunCommand emits a RunCommand's literal Command text if set,
// otherwise invokes its Script path with bash. Command takes precedence
// when both are set.
func writeRunCommand(b *fmtBuilder, rc image.RunCommand) {
	switch {
	case rc.Command != "":
		b.line(rc.Command)
	case rc.Script != "":
		b.linef("bash %s", rc.Script)
	}
}

func userSetupCommands(u image.UserEntry) []string {
	args := "useradd"
	if u.System {
		args += " -r"
	}
	if u.Shell != "" {
		args += fmt.Sprintf(" -s %s", u.Shell)
	}
	if u.Home != "" {
		args += fmt.Sprintf(" -d %s", u.Home)
	}
	if u.CreateHome {
		args += " -m"
	} else {
		args += " -M"
	}
	if u.UID > 0 {
		args += fmt.Sprintf(" -u %d", u.UID)
	}
	for _, g := range u.Groups {
		args += fmt.Sprintf(" -G %s", g)
	}
	args += " " + u.Name
	return []string{fmt.Sprintf("id -u %s >/dev/null 2>&1 || %s", u.Name, args)}
}

func writeBootPhase(r *image.Resolved, outDir string) error {
	var commands []image.RunCommand
	for _, rc := range r.RunCommands {
		if rc.Phase == image.PhaseBoot && (rc.Command != "" || rc.Script != "") {
			commands = append(commands, rc)
		}
	}
	if len(commands) == 0 {
		return nil
	}

	var body fmtBuilder
	body.line("#!/bin/bash")
	body.line("set -euo pipefail")
	body.WriteByte('\n')
	for _, rc := range commands {
		writeRunCommand(&body, rc)
	}

	scriptPath := filepath.Join(outDir, "mkosi.extra", "usr", "local", "lib", "tdx", "on-boot.sh")
	if err := writeFileMode(scriptPath, body.String(), 0o755); err != nil {
		return err
	}

	var unit fmtBuilder
	unit.line("[Unit]")
	unit.line("Description=tdx one-shot boot initialization")
	unit.line("DefaultDependencies=no")
	unit.line("ConditionPathExists=/usr/local/lib/tdx/on-boot.sh")
	unit.line("Before=sysinit.target")
	unit.WriteByte('\n')
	unit.line("[Service]")
	unit.line("Type=oneshot")
	unit.line("ExecStart=/usr/local/lib/tdx/on-boot.sh")
	unit.line("RemainAfterExit=yes")
	unit.WriteByte('\n')
	unit.line("[Install]")
	unit.line("WantedBy=sysinit.target")

	unitPath := filepath.Join(outDir, "mkosi.extra", "etc", "systemd", "system", "tdx-boot-init.service")
	return writeFileMode(unitPath, unit.String(), 0o644)
}
