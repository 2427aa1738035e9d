package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrijr/flowstate/pkg/api"
)

type demoScenario struct {
	title string
	id    string
	ops   []api.Operation
}

var demoScenarios = []demoScenario{
	{title: "create", id: "wf-1"},
	{
		title: "validate, start_processing, complete",
		id:    "wf-2",
		ops:   []api.Operation{api.OpValidate, api.OpStartProcessing, api.OpComplete},
	},
	{
		title: "start_processing on a new instance",
		id:    "wf-3",
		ops:   []api.Operation{api.OpStartProcessing},
	},
	{
		title: "validate, fail, then complete",
		id:    "wf-4",
		ops:   []api.Operation{api.OpValidate, api.OpFail, api.OpComplete},
	},
}

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk standalone instances through the reference scenarios",
		Long: `demo runs four scenarios against in-process instances using the default
lifecycle table and prints every outcome, including rejected operations.
Nothing is written to the configured store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, sc := range demoScenarios {
				runDemoScenario(cmd.OutOrStdout(), i+1, sc)
			}
			return nil
		},
	}
}

func runDemoScenario(w io.Writer, n int, sc demoScenario) {
	fmt.Fprintf(w, "Scenario %d: %s\n", n, sc.title)

	inst := api.Create(sc.id, map[string]string{"scenario": sc.title})
	for _, op := range sc.ops {
		if _, err := inst.Apply(op); err != nil {
			var ite *api.InvalidTransitionError
			if errors.As(err, &ite) {
				fmt.Fprintf(w, "  rejected: attempted=%s actual=%s required=%s\n",
					ite.Attempted, ite.Actual, joinStates(ite.Required))
				continue
			}
			fmt.Fprintf(w, "  error: %v\n", err)
		}
	}
	fmt.Fprintf(w, "  %s\n", describeInstance(inst))
}

func describeInstance(inst *api.WorkflowInstance) string {
	var steps []string
	for rec := range inst.History() {
		steps = append(steps, fmt.Sprintf("%s->%s", rec.From, rec.To))
	}
	return fmt.Sprintf("%s state=%s terminal=%t history=[%s]",
		inst.ID(), inst.CurrentState(), inst.IsTerminal(), strings.Join(steps, " "))
}

func joinStates(states []api.State) string {
	if len(states) == 0 {
		return "none"
	}
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = s.String()
	}
	return strings.Join(parts, "|")
}
