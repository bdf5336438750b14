package image

import (
	"fmt"
	"sort"
	"strings"
)

// Service describes a systemd unit to install and enable in the image.
// ExtraUnit is an escape hatch for directives this type doesn't model
// directly: keys are section names ("Unit", "Service", "Install") and
// values are raw "Key=Value" lines appended after the generated ones.
type Service struct {
	Name             string
	ExecStart        string
	After            []string
	Requires         []string
	Wants            []string
	Restart          string
	User             string
	Group            string
	WorkingDirectory string
	ExtraUnit        map[string][]string
}

// ToUnitFile renders the service as a systemd unit file.
func (s Service) ToUnitFile() string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", s.Name)
	for _, a := range s.After {
		fmt.Fprintf(&b, "After=%s\n", a)
	}
	for _, r := range s.Requires {
		fmt.Fprintf(&b, "Requires=%s\n", r)
	}
	for _, w := range s.Wants {
		fmt.Fprintf(&b, "Wants=%s\n", w)
	}
	for _, extra := range s.ExtraUnit["Unit"] {
		b.WriteString(extra)
		b.WriteByte('\n')
	}

	b.WriteString("\n[Service]\n")
	fmt.Fprintf(&b, "ExecStart=%s\n", s.ExecStart)
	restart := s.Restart
	if restart == "" {
		restart = "on-failure"
	}
	fmt.Fprintf(&b, "Restart=%s\n", restart)
	if s.User != "" {
		fmt.Fprintf(&b, "User=%s\n", s.User)
	}
	if s.Group != "" {
		fmt.Fprintf(&b, "Group=%s\n", s.Group)
	}
	if s.WorkingDirectory != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", s.WorkingDirectory)
	}
	for _, extra := range s.ExtraUnit["Service"] {
		b.WriteString(extra)
		b.WriteByte('\n')
	}

	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")
	for _, extra := range s.ExtraUnit["Install"] {
		b.WriteString(extra)
		b.WriteByte('\n')
	}

	return b.String()
}

// SetupCommands returns the shell lines needed to create the service's
// user (if it runs as one distinct from root) and enable the unit. They
// are idempotent: safe to run against an already-provisioned image.
func (s Service) SetupCommands() []string {
	var cmds []string
	if s.User != "" && s.User != "root" {
		cmds = append(cmds, fmt.Sprintf(
			"id -u %s >/dev/null 2>&1 || useradd -r -s /usr/sbin/nologin %s",
			shellWord(s.User), shellWord(s.User)))
	}
	cmds = append(cmds, fmt.Sprintf("systemctl enable %s.service", shellWord(s.Name)))
	return cmds
}

func shellWord(s string) string {
	return s
}

// SortedServiceNames lists a resolved image's service names in sorted
// order, regardless of the slice's insertion order from profile merges.
func SortedServiceNames(services []Service) []string {
	names := make([]string, len(services))
	for i, svc := range services {
		names[i] = svc.Name
	}
	sort.Strings(names)
	return names
}
