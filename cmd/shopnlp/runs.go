package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognicore/shopnlp/pkg/shopnlp/bundle"
)

type runView struct {
	ID         string    `json:"id"`
	Component  string    `json:"component"`
	Kind       string    `json:"kind"`
	Iterations int       `json:"iterations"`
	Examples   int       `json:"examples"`
	Skipped    int       `json:"skipped"`
	FinalLoss  float64   `json:"final_loss"`
	Losses     []float64 `json:"losses,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func newRunsCommand() *cobra.Command {
	var (
		model  string
		losses bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Print the training history stored in a pipeline bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := bundle.Runs(cmd.Context(), model)
			if err != nil {
				return err
			}

			out := make([]runView, 0, len(runs))
			for _, r := range runs {
				v := runView{
					ID:         r.ID,
					Component:  r.Component,
					Kind:       r.Kind,
					Iterations: r.Iterations,
					Examples:   r.Examples,
					Skipped:    r.Skipped,
					StartedAt:  r.StartedAt,
					FinishedAt: r.FinishedAt,
				}
				if n := len(r.Losses); n > 0 {
					v.FinalLoss = r.Losses[n-1]
				}
				if losses {
					v.Losses = r.Losses
				}
				out = append(out, v)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&model, "model", "m", "models/best", "pipeline bundle directory")
	f.BoolVar(&losses, "losses", false, "include the per-iteration loss of every run")
	return cmd
}
