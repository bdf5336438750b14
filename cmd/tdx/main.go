// Command tdx is a convenience wrapper around a definition program: it
// runs the definition file as `go run`, passing through the verb and
// flags, and propagates the subprocess's exit code. This reproduces
// dynamic loading of a definition file using Go's own build system
// instead of a plugin/dlopen mechanism.
package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tdx-vm/sdk/internal/config"
)

var (
	verbose bool
	cfg     *config.Config
)

func main() {
	root := &cobra.Command{
		Use:           "tdx",
		Short:         "Build confidential-computing guest VM images",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "accepted for compatibility; no command prints extra output")
	cobra.OnInitialize(initConfig)

	root.AddCommand(
		newBuildCmd(),
		newMeasureCmd(),
		newInspectCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tdx:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TDX")
	viper.AutomaticEnv()

	loaded, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "tdx: warning: config load failed:", err)
		loaded = &config.Config{Assembler: "mkosi"}
	}
	cfg = loaded
}

// runDefinition execs `go run defFile verb args...` and propagates its
// exit code, the way the teacher's build command streams a child
// process's output straight through to the operator.
func runDefinition(defFile, verb string, args []string) error {
	goArgs := append([]string{"run", defFile, verb}, args...)
	cmd := exec.Command("go", goArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Env = append(os.Environ(), "TDX_ASSEMBLER="+cfg.Assembler)

	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		os.Exit(exitErr.ExitCode())
	}
	return err
}

func newBuildCmd() *cobra.Command {
	var profile, emitMkosi, mkosiOverride string
	cmd := &cobra.Command{
		Use:   "build <deffile>",
		Short: "Resolve, compile, and assemble a definition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []string
			if profile != "" {
				extra = append(extra, "--profile", profile)
			}
			if emitMkosi != "" {
				extra = append(extra, "--emit-mkosi", emitMkosi)
			}
			if mkosiOverride != "" {
				extra = append(extra, "--mkosi-override", mkosiOverride)
			}
			return runDefinition(args[0], "build", extra)
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile overlay to resolve")
	cmd.Flags().StringVar(&emitMkosi, "emit-mkosi", "", "write the assembler tree here and exit without invoking the assembler")
	cmd.Flags().StringVar(&mkosiOverride, "mkosi-override", "", "directory whose mkosi.conf is appended to the generated one")
	return cmd
}

func newMeasureCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "measure <deffile>",
		Short: "Reserved; prints a placeholder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []string
			if profile != "" {
				extra = append(extra, "--profile", profile)
			}
			return runDefinition(args[0], "measure", extra)
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile overlay to resolve")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "inspect <deffile>",
		Short: "Print the resolved image's scalars and list counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []string
			if profile != "" {
				extra = append(extra, "--profile", profile)
			}
			return runDefinition(args[0], "inspect", extra)
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile overlay to resolve")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tdx CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("tdx version dev")
			return nil
		},
	}
}
