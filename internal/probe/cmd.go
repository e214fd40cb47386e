package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

const maxCmdOutput = 500

// CmdProbe runs a shell command against a restored component, e.g.
// pg_isready or a redis-cli ping, and checks its exit code and output
type CmdProbe struct {
	name     string
	target   string
	command  string
	exitCode int
	contains string
	timeout  time.Duration
}

// CmdProbeConfig holds construction parameters for CmdProbe
type CmdProbeConfig struct {
	Name             string
	Target           string
	Command          string
	ExpectedExitCode int
	OutputContains   string
	Timeout          time.Duration
}

// NewCmdProbe creates a command probe; the timeout defaults to 10s
func NewCmdProbe(cfg CmdProbeConfig) *CmdProbe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &CmdProbe{
		name:     cfg.Name,
		target:   cfg.Target,
		command:  cfg.Command,
		exitCode: cfg.ExpectedExitCode,
		contains: cfg.OutputContains,
		timeout:  cfg.Timeout,
	}
}

func (p *CmdProbe) Name() string           { return p.name }
func (p *CmdProbe) Kind() domain.ProbeType { return domain.ProbeTypeCmd }

func (p *CmdProbe) Check(ctx context.Context) (*Result, error) {
	if strings.TrimSpace(p.command) == "" {
		return nil, fmt.Errorf("cmd probe %s: command is empty", p.name)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	output, err := exec.CommandContext(ctx, "sh", "-c", p.command).CombinedOutput()
	elapsed := time.Since(start)

	code := 0
	if err != nil {
		if ctx.Err() != nil {
			res := newResult(p.name, p.Kind(), p.target, false, map[string]any{"command": p.command})
			res.Error = fmt.Sprintf("%s timed out after %v", p.name, p.timeout)
			res.Latency = elapsed
			return res, nil
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("cmd probe %s: %w", p.name, err)
		}
		code = exitErr.ExitCode()
	}

	out := string(output)
	matched := p.contains == "" || strings.Contains(out, p.contains)
	if len(out) > maxCmdOutput {
		out = out[:maxCmdOutput]
	}

	res := newResult(p.name, p.Kind(), p.target, code == p.exitCode && matched, map[string]any{
		"command":            p.command,
		"exit_code":          code,
		"expected_exit_code": p.exitCode,
		"output":             out,
		"output_match":       matched,
	})
	res.Latency = elapsed
	return res, nil
}
