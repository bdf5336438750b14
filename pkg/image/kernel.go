package image

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// tdxKconfigDefaults are the baseline kernel config options required for
// a TDX guest kernel: TDX guest support, vsock for host communication,
// EFI boot, and a conservative hardening posture.
var tdxKconfigDefaults = map[string]string{
	"CONFIG_INTEL_TDX_GUEST":      "y",
	"CONFIG_X86_MCE":              "y",
	"CONFIG_VSOCK":                "y",
	"CONFIG_VIRTIO_VSOCKETS":      "y",
	"CONFIG_EFI":                  "y",
	"CONFIG_EFI_STUB":             "y",
	"CONFIG_EFIVAR_FS":            "y",
	"CONFIG_STACKPROTECTOR_STRONG": "y",
	"CONFIG_FORTIFY_SOURCE":       "y",
	"CONFIG_RANDOMIZE_BASE":       "y",
	"CONFIG_SECURITY":             "y",
	"CONFIG_SECURITY_SELINUX":     "n",
	"CONFIG_MODULES":              "n",
	"CONFIG_DEVTMPFS":             "y",
	"CONFIG_DEVTMPFS_MOUNT":       "y",
	"CONFIG_BLK_DEV_SD":           "y",
	"CONFIG_VIRTIO_BLK":           "y",
	"CONFIG_EXT4_FS":              "y",
	"CONFIG_9P_FS":                "n",
}

const defaultCmdline = "console=hvc0 root=/dev/vda2 ro quiet"

// Kernel describes the kernel a profile is built against: either a
// named config baseline (currently only "tdx") with optional overlay
// entries, or a fully custom config map.
type Kernel struct {
	Baseline    string
	Config      map[string]string
	ExtraConfig map[string]string
	Cmdline     string
}

// TDXKernel returns the default TDX guest kernel configuration, with
// extra merged in on top of the baseline.
func TDXKernel(extra map[string]string) Kernel {
	merged := make(map[string]string, len(tdxKconfigDefaults)+len(extra))
	for k, v := range tdxKconfigDefaults {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return Kernel{Baseline: "tdx", Config: merged, Cmdline: defaultCmdline}
}

var kconfigLineRE = regexp.MustCompile(`^(CONFIG_[A-Za-z0-9_]+)=`)

// ToKconfig renders the kernel's configuration as a .config file. If
// baseConfigFile is non-empty, entries already present in it are
// overlaid in place (preserving unrelated lines and ordering) and any
// config key not mentioned in baseConfigFile is appended sorted at the
// end; otherwise the whole file is sorted key=value lines.
func (k Kernel) ToKconfig(baseConfigFile string) string {
	if baseConfigFile == "" {
		return k.sortedLines()
	}

	remaining := make(map[string]string, len(k.Config))
	for key, val := range k.Config {
		remaining[key] = val
	}

	lines := strings.Split(baseConfigFile, "\n")
	for i, line := range lines {
		m := kconfigLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := m[1]
		if val, ok := remaining[key]; ok {
			lines[i] = renderKconfigLine(key, val)
			delete(remaining, key)
		}
	}

	out := strings.Join(lines, "\n")
	if len(remaining) > 0 {
		keys := make([]string, 0, len(remaining))
		for key := range remaining {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var extra []string
		for _, key := range keys {
			extra = append(extra, renderKconfigLine(key, remaining[key]))
		}
		out = strings.TrimRight(out, "\n") + "\n" + strings.Join(extra, "\n") + "\n"
	}
	return out
}

func (k Kernel) sortedLines() string {
	keys := make([]string, 0, len(k.Config))
	for key := range k.Config {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		b.WriteString(renderKconfigLine(key, k.Config[key]))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderKconfigLine(key, val string) string {
	if val == "n" {
		return fmt.Sprintf("# %s is not set", key)
	}
	return fmt.Sprintf("%s=%s", key, val)
}

// EffectiveCmdline returns the kernel command line, falling back to the
// TDX default if none was set.
func (k Kernel) EffectiveCmdline() string {
	if k.Cmdline != "" {
		return k.Cmdline
	}
	return defaultCmdline
}
