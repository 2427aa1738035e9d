package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/petrijr/flowstate/pkg/api"
)

// instanceView is the YAML shape printed by show, create and apply.
type instanceView struct {
	ID        string       `yaml:"id"`
	State     api.State    `yaml:"state"`
	Terminal  bool         `yaml:"terminal"`
	Payload   any          `yaml:"payload,omitempty"`
	CreatedAt time.Time    `yaml:"created_at"`
	History   []recordView `yaml:"history"`
	Allowed   []string     `yaml:"allowed_operations,omitempty"`
}

type recordView struct {
	Operation api.Operation `yaml:"op"`
	From      api.State     `yaml:"from"`
	To        api.State     `yaml:"to"`
	At        time.Time     `yaml:"at"`
}

func newInstanceView(inst *api.WorkflowInstance) instanceView {
	v := instanceView{
		ID:        inst.ID(),
		State:     inst.CurrentState(),
		Terminal:  inst.IsTerminal(),
		Payload:   inst.Payload(),
		CreatedAt: inst.CreatedAt(),
		History:   []recordView{},
	}
	for rec := range inst.History() {
		v.History = append(v.History, recordView{
			Operation: rec.Operation,
			From:      rec.From,
			To:        rec.To,
			At:        rec.At,
		})
	}
	for _, op := range inst.Table().AllowedOperations(v.State) {
		v.Allowed = append(v.Allowed, op.String())
	}
	return v
}

func printInstance(w io.Writer, inst *api.WorkflowInstance) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newInstanceView(inst)); err != nil {
		return err
	}
	return enc.Close()
}

func newCreateCmd(a *app) *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "create [id]",
		Short: "Create an instance in the table's initial state",
		Long:  "create stores a new instance. Without an id a UUID is generated.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			var body any
			if payload != "" {
				body = payload
			}
			return a.withEngine(cmd.Context(), func(eng api.Engine) error {
				inst, err := eng.Create(cmd.Context(), id, body)
				if err != nil {
					return err
				}
				return printInstance(cmd.OutOrStdout(), inst)
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "Opaque payload stored with the instance")
	return cmd
}

func newApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <id> <operation>",
		Short: "Apply an operation to a stored instance",
		Long: `apply runs one operation (validate, start_processing, complete, fail or any
operation of a custom table) against a stored instance. An illegal operation
leaves the instance unchanged and reports the state it requires.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, op := args[0], api.Operation(args[1])
			return a.withEngine(cmd.Context(), func(eng api.Engine) error {
				inst, err := eng.Transition(cmd.Context(), id, op)
				if err != nil {
					var ite *api.InvalidTransitionError
					if errors.As(err, &ite) {
						return fmt.Errorf("%s rejected in state %s (requires %s): %w",
							ite.Attempted, ite.Actual, joinStates(ite.Required), api.ErrInvalidTransition)
					}
					return err
				}
				return printInstance(cmd.OutOrStdout(), inst)
			})
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print an instance with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(eng api.Engine) error {
				inst, err := eng.GetInstance(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printInstance(cmd.OutOrStdout(), inst)
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var (
		state string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored instances in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(eng api.Engine) error {
				if state != "" && !eng.Table().HasState(api.State(state)) {
					return fmt.Errorf("unknown state %q", state)
				}
				insts, err := eng.ListInstances(cmd.Context(), api.InstanceListOptions{
					State: api.State(state),
					Limit: limit,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, inst := range insts {
					fmt.Fprintf(out, "%s\t%s\t%d\n", inst.ID(), inst.CurrentState(), inst.HistoryLen())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Only list instances in this state")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of instances (0 for all)")
	return cmd
}
