package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/drorchestrator/backend-go/internal/graph"
	"github.com/drorchestrator/backend-go/internal/plan"
	"github.com/drorchestrator/backend-go/internal/restore"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "drctl",
		Short:         "Inspect disaster recovery plans",
		SilenceUsage: true,
	}
	root.AddCommand(newValidateCmd(), newScheduleCmd(), newGraphCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate PLAN_FILE...",
		Short: "Check that plan files parse and have an acyclic dependency graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				p, sched, err := load(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s: plan %s, %d components in %d groups\n",
					path, p.ID, len(p.Components), len(sched.Groups))
				for _, w := range sched.Warnings {
					fmt.Fprintf(out, "     warning: %s\n", w)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d plans invalid", failed, len(args))
			}
			return nil
		},
	}
}

type scheduleReport struct {
	PlanID                   string          `json:"plan_id" yaml:"plan_id"`
	Groups                   []scheduleGroup `json:"groups" yaml:"groups"`
	Warnings                 []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	EstimatedDurationSeconds int             `json:"estimated_duration_seconds" yaml:"estimated_duration_seconds"`
	TargetRTOSeconds         int             `json:"target_rto_seconds" yaml:"target_rto_seconds"`
}

type scheduleGroup struct {
	Index                    int                         `json:"index" yaml:"index"`
	ComponentIDs             []string                    `json:"component_ids" yaml:"component_ids"`
	EstimatedDurationSeconds int                         `json:"estimated_duration_seconds" yaml:"estimated_duration_seconds"`
	Resources                domain.ResourceRequirements `json:"resources" yaml:"resources"`
}

func newScheduleCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "schedule PLAN_FILE",
		Short: "Print the execution groups a plan would run in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, sched, err := load(args[0])
			if err != nil {
				return err
			}
			g, err := graph.Build(p)
			if err != nil {
				return err
			}
			report := buildReport(p, g, sched)
			return writeReport(cmd.OutOrStdout(), output, report)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func buildReport(p *domain.RecoveryPlan, g *graph.Graph, sched *graph.Schedule) scheduleReport {
	// estimates only; no backends are contacted
	estimate := restore.NewRegistry().Estimate
	reqs := graph.GroupRequirements(g, sched, estimate)

	report := scheduleReport{
		PlanID:                   p.ID,
		Warnings:                 sched.Warnings,
		EstimatedDurationSeconds: int(sched.EstimatedDuration.Seconds()),
		TargetRTOSeconds:         p.TargetRTOSeconds,
	}
	for i, grp := range sched.Groups {
		sg := scheduleGroup{
			Index:                    grp.Index,
			ComponentIDs:             grp.ComponentIDs,
			EstimatedDurationSeconds: grp.EstimatedDurationSeconds,
		}
		if i < len(reqs) {
			sg.Resources = reqs[i]
		}
		report.Groups = append(report.Groups, sg)
	}
	return report
}

func writeReport(w io.Writer, format string, report scheduleReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		fmt.Fprintf(w, "plan %s\n", report.PlanID)
		for _, grp := range report.Groups {
			fmt.Fprintf(w, "  group %d (~%s): %s\n", grp.Index,
				time.Duration(grp.EstimatedDurationSeconds)*time.Second,
				strings.Join(grp.ComponentIDs, ", "))
		}
		est := time.Duration(report.EstimatedDurationSeconds) * time.Second
		fmt.Fprintf(w, "estimated duration: %s", est)
		if report.TargetRTOSeconds > 0 {
			rto := time.Duration(report.TargetRTOSeconds) * time.Second
			if est > rto {
				fmt.Fprintf(w, " (exceeds RTO %s)", rto)
			} else {
				fmt.Fprintf(w, " (RTO %s)", rto)
			}
		}
		fmt.Fprintln(w)
		for _, warn := range report.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warn)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func newGraphCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph PLAN_FILE",
		Short: "Render the dependency graph as Graphviz DOT or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, sched, err := load(args[0])
			if err != nil {
				return err
			}
			g, err := graph.Build(p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "dot":
				_, err = fmt.Fprintln(out, graph.DOT(g, sched).String())
				return err
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(g.View(sched))
			default:
				return fmt.Errorf("unknown graph format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "graph format: dot or json")
	return cmd
}

func load(path string) (*domain.RecoveryPlan, *graph.Schedule, error) {
	p, err := plan.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	sched, err := plan.Validate(p)
	if err != nil {
		return nil, nil, fmt.Errorf("plan %s: %w", p.ID, err)
	}
	return p, sched, nil
}
