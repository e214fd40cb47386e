package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/probe"
	"github.com/drorchestrator/backend-go/internal/safety"
)

const defaultActionTimeout = 60 * time.Second

// PodExecutor runs a command inside a pod
type PodExecutor interface {
	Exec(ctx context.Context, namespace, pod string, command []string) (string, error)
}

// ActionRunner runs post-recovery actions
type ActionRunner struct {
	// Pods is optional; k8s_exec actions fail without it
	Pods PodExecutor
}

// Run executes act for a component under the action's own timeout
func (a *ActionRunner) Run(ctx context.Context, componentID string, act domain.PostRecoveryAction) (map[string]any, error) {
	timeout := defaultActionTimeout
	if act.TimeoutSeconds > 0 {
		timeout = time.Duration(act.TimeoutSeconds) * time.Second
	}

	var detail map[string]any
	err := safety.WithTimeout(ctx, timeout, func(ctx context.Context) error {
		var err error
		detail, err = a.run(ctx, componentID, act, timeout)
		return err
	})
	return detail, err
}

func (a *ActionRunner) run(ctx context.Context, componentID string, act domain.PostRecoveryAction, timeout time.Duration) (map[string]any, error) {
	props := act.Properties
	switch act.Type {
	case domain.ActionHTTP:
		method := probe.StringProp(props, "method")
		if method == "" {
			method = "POST"
		}
		p, err := probe.NewHTTPProbe(probe.HTTPProbeConfig{
			Name:           act.Name,
			Target:         componentID,
			URL:            probe.StringProp(props, "url"),
			Method:         method,
			Body:           probe.StringProp(props, "body"),
			ExpectedStatus: probe.IntProp(props, "expected_status", 200),
			Headers:        probe.StringMapProp(props, "headers"),
			Timeout:        timeout,
		})
		if err != nil {
			return nil, err
		}
		return checkResult(p.Check(ctx))
	case domain.ActionCmd:
		p := probe.NewCmdProbe(probe.CmdProbeConfig{
			Name:             act.Name,
			Target:           componentID,
			Command:          probe.StringProp(props, "command"),
			ExpectedExitCode: probe.IntProp(props, "expected_exit_code", 0),
			OutputContains:   probe.StringProp(props, "output_contains"),
			Timeout:          timeout,
		})
		return checkResult(p.Check(ctx))
	case domain.ActionK8sExec:
		if a == nil || a.Pods == nil {
			return nil, fmt.Errorf("k8s_exec action %s: no kubernetes client configured", act.Name)
		}
		ns := probe.StringProp(props, "namespace")
		if ns == "" {
			ns = "default"
		}
		pod := probe.StringProp(props, "pod")
		command := probe.StringSliceProp(props, "command")
		if pod == "" || len(command) == 0 {
			return nil, fmt.Errorf("k8s_exec action %s: pod and command are required", act.Name)
		}
		out, err := a.Pods.Exec(ctx, ns, pod, command)
		if err != nil {
			return nil, err
		}
		detail := map[string]any{"namespace": ns, "pod": pod, "stdout": out}
		if want := probe.StringProp(props, "output_contains"); want != "" && !strings.Contains(out, want) {
			return detail, fmt.Errorf("output of %s does not contain %q", act.Name, want)
		}
		return detail, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", act.Type)
	}
}

func checkResult(res *probe.Result, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	if !res.Healthy {
		return res.Detail, errors.New(res.Failure())
	}
	return res.Detail, nil
}
