package kgx

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-kgextract/pkg/dataset"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Build a labeled relation training set",
	Long: `Label entity pairs of a document with the rule-based relation extractor.
Pairs the rules do not relate become None examples. When several labels
compete for the same pair the highest priority wins:
属于 > 实现方式 > 应用场景 > 包含 > None.`,
	RunE: runDataset,
}

func init() {
	rootCmd.AddCommand(datasetCmd)

	datasetCmd.Flags().StringP("input", "i", "", "input document (required)")
	datasetCmd.Flags().StringP("out", "o", "train_data.json", "output JSON file")
	datasetCmd.MarkFlagRequired("input")
}

func runDataset(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.closer()

	input, _ := cmd.Flags().GetString("input")
	out, _ := cmd.Flags().GetString("out")

	c, err := buildComponents(e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer c.Close()

	in, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	b := dataset.NewBuilder(c.annotator, c.entities, c.relations.Rules(), nil, e.logger)
	examples, err := b.Build(cmd.Context(), in)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := dataset.Write(f, examples); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	e.logger.Info("exported training set", "path", out, "examples", len(examples))
	return nil
}
