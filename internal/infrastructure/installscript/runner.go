package installscript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

const (
	PowerShellScriptName = "dotnet-install.ps1"
	BashScriptName       = "dotnet-install.sh"

	DefaultPowerShellScriptURL = "https://dot.net/v1/dotnet-install.ps1"
	DefaultBashScriptURL       = "https://dot.net/v1/dotnet-install.sh"

	// waitDelay bounds how long Wait keeps draining output after cancellation
	waitDelay = 2 * time.Second
)

type Config struct {
	// Shell replaces the platform shell ("powershell" on Windows, "bash" elsewhere).
	Shell string
	// ScriptURL overrides where the script is downloaded from.
	ScriptURL string
	// ScriptPath runs a local copy of the script instead of downloading it.
	ScriptPath string
	Timeout    time.Duration
}

// Runner executes the platform install script and captures both output streams.
// It implements port.ScriptRunner.
type Runner struct {
	config  Config
	windows bool
	logger  *logger.Logger
}

func NewRunner(cfg Config, log *logger.Logger) *Runner {
	return &Runner{
		config:  cfg,
		windows: runtime.GOOS == "windows",
		logger:  log,
	}
}

// ExecuteInstallScript runs the script with args and waits for it to exit.
// A non-zero exit code is not an error; callers look at Stderr.
func (r *Runner) ExecuteInstallScript(ctx context.Context, args string) (entity.ScriptExecutionResult, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	scriptName, name, argv := r.command(args)
	result := entity.ScriptExecutionResult{ScriptName: scriptName, Args: args}

	cmd := exec.CommandContext(ctx, name, argv...)
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	r.logger.Debug("Install script finished",
		"script", scriptName,
		"args", args,
		"duration", time.Since(start).String(),
	)

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("install script %s interrupted: %w", scriptName, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.Debug("Install script exited with non-zero code", "script", scriptName, "exit_code", exitErr.ExitCode())
			return result, nil
		}
		return result, fmt.Errorf("failed to start install script %s: %w", scriptName, err)
	}

	return result, nil
}

// command returns the script name reported in telemetry and the process to start.
func (r *Runner) command(args string) (string, string, []string) {
	if r.windows {
		shell := firstNonEmpty(r.config.Shell, "powershell")
		return PowerShellScriptName, shell, []string{"-NoProfile", "-Command", r.powerShellCommand(args)}
	}

	shell := firstNonEmpty(r.config.Shell, "bash")
	return BashScriptName, shell, []string{"-c", r.bashCommand(args)}
}

func (r *Runner) bashCommand(args string) string {
	args = strings.ReplaceAll(args, `"`, `\"`)
	if r.config.ScriptPath != "" {
		return strings.TrimSpace(fmt.Sprintf("bash %s %s", r.config.ScriptPath, args))
	}
	url := firstNonEmpty(r.config.ScriptURL, DefaultBashScriptURL)
	return strings.TrimSpace(fmt.Sprintf("curl -sSL %s | bash /dev/stdin %s", url, args))
}

func (r *Runner) powerShellCommand(args string) string {
	if r.config.ScriptPath != "" {
		return strings.TrimSpace(fmt.Sprintf("& '%s' %s", r.config.ScriptPath, args))
	}
	url := firstNonEmpty(r.config.ScriptURL, DefaultPowerShellScriptURL)
	return strings.TrimSpace(
		"[Net.ServicePointManager]::SecurityProtocol = [Net.SecurityProtocolType]::Tls12;" +
			" $ProgressPreference = 'SilentlyContinue';" +
			" &([scriptblock]::Create((Invoke-WebRequest -UseBasicParsing '" + url + "'))) " + args)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
