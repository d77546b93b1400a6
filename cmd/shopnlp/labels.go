package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/cognicore/shopnlp/pkg/shopnlp/labels"
)

func newLabelsCommand() *cobra.Command {
	var corpusPath string
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Print the entity and intent labels of a corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCorpus(corpusPath)
			if err != nil {
				return err
			}
			ls := labels.Derive(c)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string][]string{
				"entities": ls.Entity.Labels(),
				"intents":  ls.Intent.Labels(),
			})
		},
	}
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "corpus YAML (embedded default when empty)")
	return cmd
}
