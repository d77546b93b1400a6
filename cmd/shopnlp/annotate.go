package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/shopnlp/pkg/shopnlp"
)

func newAnnotateCommand(root *rootOptions) *cobra.Command {
	var (
		model   string
		compact bool
	)
	cmd := &cobra.Command{
		Use:   "annotate [text...]",
		Short: "Annotate one utterance with a saved pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := shopnlp.New(shopnlp.Options{Logger: root.logger})
			if err := engine.Load(cmd.Context(), model); err != nil {
				return err
			}

			text := strings.Join(args, " ")
			var (
				out any
				err error
			)
			if compact {
				out, err = engine.Query(text)
			} else {
				out, err = engine.Parse(text)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&model, "model", "m", "models/best", "pipeline bundle directory")
	f.BoolVar(&compact, "compact", false, "print entities, intent and features only")
	return cmd
}
