package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cognicore/shopnlp/pkg/shopnlp/config"
	"github.com/cognicore/shopnlp/pkg/shopnlp/corpus"
	"github.com/cognicore/shopnlp/pkg/shopnlp/train"
)

type trainOptions struct {
	configPath string
	corpusPath string
	output     string
	iterations int
}

func newTrainCommand(root *rootOptions) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the entity recognizer and text classifier and save the pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadTrainConfig(opts)
			if err != nil {
				return err
			}
			c, err := loadCorpus(cfg.Corpus)
			if err != nil {
				return err
			}

			p, results, err := train.TrainPipeline(cmd.Context(), cfg, c, train.WithLogger(root.logger))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "%-8s %d examples, %d skipped, final loss %.4f\n", r.Component, r.Examples, r.Skipped, r.FinalLoss())
			}
			fmt.Fprintf(out, "saved %v to %s\n", p.Names(), cfg.Output)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "training config YAML (defaults when empty)")
	f.StringVar(&opts.corpusPath, "corpus", "", "corpus YAML, overrides the config")
	f.StringVarP(&opts.output, "output", "o", "", "output directory, overrides the config")
	f.IntVar(&opts.iterations, "iterations", 0, "iterations for both components, overrides the config")
	return cmd
}

func loadTrainConfig(opts *trainOptions) (*config.Train, error) {
	cfg := config.DefaultTrain()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadTrain(opts.configPath); err != nil {
			return nil, err
		}
	}
	if opts.corpusPath != "" {
		cfg.Corpus = opts.corpusPath
	}
	if opts.output != "" {
		cfg.Output = opts.output
	}
	if opts.iterations > 0 {
		cfg.NER.Iterations = opts.iterations
		cfg.Textcat.Iterations = opts.iterations
	}
	return cfg, cfg.Validate()
}

func loadCorpus(path string) (*corpus.Corpus, error) {
	if path == "" {
		return corpus.Default()
	}
	return corpus.Load(path)
}
