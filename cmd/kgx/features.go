package kgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-kgextract/pkg/dataset"
	"github.com/soundprediction/go-kgextract/pkg/features"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Print the feature record of an entity pair, or encode a training set",
	Long: `With --sentence, --e1 and --e2, print the feature record of one entity pair
and the predicted label when a classifier is loaded.

With --dataset, re-annotate every example of a training set written by
"kgx dataset", fit the feature space on the records and write
{vectorizer, X, y} to --out. Pairs without features are skipped.`,
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresCmd.Flags().String("sentence", "", "sentence")
	featuresCmd.Flags().String("e1", "", "first entity")
	featuresCmd.Flags().String("e2", "", "second entity")
	featuresCmd.Flags().String("dataset", "", "training set JSON to encode")
	featuresCmd.Flags().StringP("out", "o", "features.json", "encoded training set (with --dataset)")
	featuresCmd.MarkFlagsMutuallyExclusive("dataset", "sentence")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	sentence, _ := cmd.Flags().GetString("sentence")
	e1, _ := cmd.Flags().GetString("e1")
	e2, _ := cmd.Flags().GetString("e2")
	datasetPath, _ := cmd.Flags().GetString("dataset")
	out, _ := cmd.Flags().GetString("out")
	if datasetPath == "" && (sentence == "" || e1 == "" || e2 == "") {
		return errors.New("either --dataset or all of --sentence, --e1 and --e2 are required")
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.closer()

	c, err := buildComponents(e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if datasetPath != "" {
		_, _, err := encodeDataset(cmd.Context(), c.features, datasetPath, out, e.logger)
		return err
	}

	rec, err := c.features.Extract(cmd.Context(), e1, e2, sentence)
	if err != nil {
		return err
	}
	result := map[string]interface{}{"features": rec}
	if c.bundle != nil && len(rec) > 0 {
		result["label"] = c.bundle.Predict(rec)
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

// encodeDataset encodes the training set at in and writes it to out. It
// returns the number of encoded and skipped examples.
func encodeDataset(ctx context.Context, fx *features.Extractor, in, out string, logger *slog.Logger) (int, int, error) {
	f, err := os.Open(in)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open dataset: %w", err)
	}
	examples, err := dataset.Read(f)
	f.Close()
	if err != nil {
		return 0, 0, err
	}

	set, skipped, err := fx.Encode(ctx, examples)
	if err != nil {
		return 0, skipped, err
	}
	if skipped > 0 {
		logger.Warn("examples without features skipped", "skipped", skipped)
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, skipped, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	w, err := os.Create(out)
	if err != nil {
		return 0, skipped, fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := writeJSON(w, set); err != nil {
		w.Close()
		return 0, skipped, err
	}
	if err := w.Close(); err != nil {
		return 0, skipped, err
	}
	logger.Info("exported encoded training set", "path", out, "examples", len(set.Y), "features", set.Vectorizer.Dim())
	return len(set.Y), skipped, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
