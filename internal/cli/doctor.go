package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"wabridge/internal/config"
	"wabridge/internal/session/sidecar"
)

// minNodeVersion is the oldest runtime the sidecar supports.
const minNodeVersion = ">= 18.0.0"

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose system health",
		Long: `Run diagnostic checks on your wabridge installation.

This command checks:
- Configuration validity
- Sidecar runtime (Node.js 18 or newer)
- Sidecar script and its dependencies
- Session data directory`,
		RunE: runDoctor,
	}

	return cmd
}

type checkResult struct {
	name    string
	status  string // ok, warning, error
	message string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errNoContext
	}
	cfg := cliCtx.Config
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "wabridge doctor")
	fmt.Fprintln(out, "===============")
	fmt.Fprintln(out)

	sidecarDir, _ := config.DefaultSidecarDir()

	results := []checkResult{
		checkSystemInfo(),
		checkConfig(cliCtx.ConfigPath, cfg),
		checkNodeRuntime(cmd.Context(), cfg.Session.Command),
		checkSidecarScript(cfg.Session, sidecarDir),
		checkSessionData(cfg.Session.DataDir),
	}

	printResults(out, results)
	return nil
}

func printResults(out io.Writer, results []checkResult) {
	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		icon := "✓"
		if r.status == "warning" {
			icon = "⚠️"
			hasWarnings = true
		} else if r.status == "error" {
			icon = "✗"
			hasErrors = true
		}

		fmt.Fprintf(out, "%s %s: %s\n", icon, r.name, r.message)
	}

	fmt.Fprintln(out)
	if hasErrors {
		fmt.Fprintln(out, "❌ Some checks failed. Please address the issues above.")
	} else if hasWarnings {
		fmt.Fprintln(out, "⚠️  Some warnings detected. The bridge should work but may have issues.")
	} else {
		fmt.Fprintln(out, "✅ All checks passed! wabridge is ready to use.")
	}
}

func checkSystemInfo() checkResult {
	return checkResult{
		name:   "System",
		status: "ok",
		message: fmt.Sprintf("Go %s on %s/%s",
			runtime.Version(),
			runtime.GOOS,
			runtime.GOARCH,
		),
	}
}

func checkConfig(path string, cfg *config.Config) checkResult {
	if err := cfg.Validate(); err != nil {
		return checkResult{
			name:    "Config",
			status:  "error",
			message: err.Error(),
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return checkResult{
			name:    "Config",
			status:  "warning",
			message: fmt.Sprintf("Not found: %s (using defaults and environment)", path),
		}
	}

	return checkResult{
		name:    "Config",
		status:  "ok",
		message: fmt.Sprintf("Valid: %s", path),
	}
}

func checkNodeRuntime(ctx context.Context, command string) checkResult {
	if command == "" {
		command = "node"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, command, "--version").Output()
	if err != nil {
		return checkResult{
			name:    "Sidecar Runtime",
			status:  "error",
			message: fmt.Sprintf("Cannot run %s --version: %v", command, err),
		}
	}
	return checkNodeVersion(string(output))
}

// checkNodeVersion evaluates the output of "node --version".
func checkNodeVersion(output string) checkResult {
	raw := strings.TrimSpace(output)
	v, err := semver.NewVersion(strings.TrimPrefix(raw, "v"))
	if err != nil {
		return checkResult{
			name:    "Sidecar Runtime",
			status:  "error",
			message: fmt.Sprintf("Unrecognized version %q: %v", raw, err),
		}
	}

	constraint, err := semver.NewConstraint(minNodeVersion)
	if err != nil {
		return checkResult{name: "Sidecar Runtime", status: "error", message: err.Error()}
	}
	if !constraint.Check(v) {
		return checkResult{
			name:    "Sidecar Runtime",
			status:  "error",
			message: fmt.Sprintf("Node.js %s is too old (need %s)", v, minNodeVersion),
		}
	}

	return checkResult{
		name:    "Sidecar Runtime",
		status:  "ok",
		message: fmt.Sprintf("Node.js %s", v),
	}
}

func checkSidecarScript(cfg config.SessionConfig, dir string) checkResult {
	if len(cfg.Args) > 0 {
		return checkResult{
			name:    "Sidecar Script",
			status:  "ok",
			message: fmt.Sprintf("Custom: %s", strings.Join(cfg.Args, " ")),
		}
	}

	path := filepath.Join(dir, sidecar.ScriptName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return checkResult{
			name:    "Sidecar Script",
			status:  "warning",
			message: fmt.Sprintf("Will be installed on first run: %s", path),
		}
	}

	deps := filepath.Join(dir, "node_modules", "whatsapp-web.js")
	if _, err := os.Stat(deps); os.IsNotExist(err) {
		return checkResult{
			name:    "Sidecar Script",
			status:  "warning",
			message: fmt.Sprintf("Dependencies missing, run: cd %s && npm install whatsapp-web.js", dir),
		}
	}

	return checkResult{
		name:    "Sidecar Script",
		status:  "ok",
		message: fmt.Sprintf("Found: %s", path),
	}
}

func checkSessionData(dir string) checkResult {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return checkResult{
			name:    "Session Data",
			status:  "warning",
			message: fmt.Sprintf("No saved session in %s (run: wabridge pair)", dir),
		}
	}
	if err != nil {
		return checkResult{
			name:    "Session Data",
			status:  "error",
			message: err.Error(),
		}
	}
	if !info.IsDir() {
		return checkResult{
			name:    "Session Data",
			status:  "error",
			message: fmt.Sprintf("Not a directory: %s", dir),
		}
	}

	// Check if we can write to it
	testFile := filepath.Join(dir, ".wabridge-test")
	if err := os.WriteFile(testFile, []byte("test"), 0600); err != nil {
		return checkResult{
			name:    "Session Data",
			status:  "error",
			message: fmt.Sprintf("Cannot write to: %s", dir),
		}
	}
	_ = os.Remove(testFile)

	return checkResult{
		name:    "Session Data",
		status:  "ok",
		message: fmt.Sprintf("Found: %s", dir),
	}
}
