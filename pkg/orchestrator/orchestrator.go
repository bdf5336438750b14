package orchestrator

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tdx-vm/sdk/pkg/compiler"
	"github.com/tdx-vm/sdk/pkg/image"
)

// Options configure how Main dispatches a verb once flags are parsed.
// Assembler is the path/name of the mkosi binary; it is normally
// supplied by internal/config via cmd/tdx, but defaults to "mkosi" when
// Main is called directly from a definition program's own main().
type Options struct {
	Assembler string
}

// Main is the Orchestrator: it parses os.Args[1:] for the verbs
// build/measure/inspect, resolves img against the requested profile,
// compiles the result, and for build without --emit-mkosi invokes the
// external assembler. It calls os.Exit itself, matching spec.md §6's
// exit-code contract (0 success, 1 load/parse error, assembler's own
// code passed through).
func Main(img *image.Image) {
	MainWithOptions(img, Options{Assembler: "mkosi"})
}

// MainWithOptions is Main with an explicit Options, used by cmd/tdx's
// subprocess wrapper to inject the configured assembler path.
func MainWithOptions(img *image.Image, opts Options) {
	if opts.Assembler == "" {
		opts.Assembler = "mkosi"
	}

	var profile, emitMkosi, mkosiOverride string

	root := &cobra.Command{Use: "definition", SilenceUsage: true}
	root.PersistentFlags().StringVar(&profile, "profile", "", "profile overlay to resolve")

	buildCmd := &cobra.Command{
		Use: "build",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(img, opts, profile, emitMkosi, mkosiOverride)
		},
	}
	buildCmd.Flags().StringVar(&emitMkosi, "emit-mkosi", "", "write the assembler tree here and exit without invoking the assembler")
	buildCmd.Flags().StringVar(&mkosiOverride, "mkosi-override", "", "directory whose mkosi.conf is appended to the generated one")

	measureCmd := &cobra.Command{
		Use: "measure",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("measure: not implemented (reserved verb, stub per design)")
			return nil
		},
	}

	inspectCmd := &cobra.Command{
		Use: "inspect",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(img, profile)
		},
	}

	root.AddCommand(buildCmd, measureCmd, inspectCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var af *AssemblerFailedError
		if errors.As(err, &af) {
			os.Exit(af.ExitCode)
		}
		os.Exit(1)
	}
}

func runBuild(img *image.Image, opts Options, profile, emitMkosi, mkosiOverride string) error {
	r, err := img.Resolve(profile)
	if err != nil {
		return errors.Wrap(err, "resolve")
	}

	outDir := emitMkosi
	terminateAfterCompile := outDir != ""
	if outDir == "" {
		tmp := filepath.Join(os.TempDir(), "tdx-build-"+uuid.NewString())
		if err := os.MkdirAll(tmp, 0o755); err != nil {
			return errors.Wrap(err, "create build directory")
		}
		outDir = tmp
	}

	if err := compiler.Compile(r, outDir); err != nil {
		return errors.Wrap(err, "compile")
	}

	if mkosiOverride != "" {
		if err := appendMkosiOverride(outDir, mkosiOverride); err != nil {
			return err
		}
	}

	if terminateAfterCompile {
		fmt.Println(outDir)
		return nil
	}

	cmd := exec.Command(opts.Assembler, "--directory", outDir, "build")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &AssemblerFailedError{ExitCode: exitErr.ExitCode()}
		}
		return errors.Wrap(err, "run assembler")
	}
	return nil
}

func appendMkosiOverride(outDir, overrideDir string) error {
	overrideConf := filepath.Join(overrideDir, "mkosi.conf")
	contents, err := os.ReadFile(overrideConf)
	if err != nil {
		return errors.Wrapf(err, "read mkosi override %s", overrideConf)
	}
	f, err := os.OpenFile(filepath.Join(outDir, "mkosi.conf"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open generated mkosi.conf for append")
	}
	defer f.Close()
	if _, err := f.Write(append([]byte("\n"), contents...)); err != nil {
		return errors.Wrap(err, "append mkosi override")
	}
	return nil
}

func runInspect(img *image.Image, profile string) error {
	r, err := img.Resolve(profile)
	if err != nil {
		return errors.Wrap(err, "resolve")
	}

	bold := color.New(color.Bold)
	bold.Println("Image:", r.Name)
	fmt.Println("  base:", r.Base)
	fmt.Println("  init:", r.InitSystem)
	fmt.Println("  default_target:", r.DefaultTarget)
	fmt.Println("  firmware:", r.Firmware)
	fmt.Println("  secure_boot:", r.SecureBoot)

	bold.Println("Packages:")
	fmt.Println(" ", len(r.Packages), "entries")

	bold.Println("Builds:")
	for _, a := range r.Builds {
		fmt.Println(" -", a.Name)
	}

	bold.Println("Services:")
	for _, name := range image.SortedServiceNames(r.Services) {
		fmt.Println(" -", name)
	}

	bold.Println("Secrets:")
	fmt.Println(" ", len(r.Secrets), "entries")

	return nil
}
