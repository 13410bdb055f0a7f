package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-classify/classifier"
	"github.com/nvr-ai/go-classify/config"
	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/models"
)

// defaultOneShotSide is the input edge assumed for --weights runs without --input-side.
const defaultOneShotSide = 128

// imageCommand classifies image files with one model.
//
// With --weights and --labels the model is built from flags alone and every
// argument is an image file; otherwise the first argument names a configured model.
func imageCommand(a *app) *cobra.Command {
	var (
		top       int
		asJSON    bool
		weights   string
		labelFile string
		inputSide int
	)

	oneShot := func() bool { return weights != "" }

	cmd := &cobra.Command{
		Use:   "image [model] <file...>",
		Short: "Classify image files",
		Long: `Classify one or more JPEG, PNG or WebP files with the named model.

Pass --weights and --labels to classify with a single model file and no
configuration; the model is then named after the weights file.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if oneShot() {
				return cobra.MinimumNArgs(1)(cmd, args)
			}
			return cobra.MinimumNArgs(2)(cmd, args)
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !oneShot() {
				return a.setup()
			}
			if labelFile == "" {
				return errors.New("--labels is required with --weights")
			}
			return a.setup(config.WithModel(modelName(weights), models.Config{
				WeightsPath: weights,
				LabelsPath:  labelFile,
				InputSide:   inputSide,
			}))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}
			id, files := modelName(weights), args
			if !oneShot() {
				id, files = args[0], args[1:]
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			if !asJSON {
				fmt.Fprintln(w, "FILE\tRANK\tLABEL\tCONFIDENCE\tSEVERITY\tTIME")
			}
			enc := json.NewEncoder(out)

			for _, path := range files {
				img, err := images.Load(path)
				if err != nil {
					return err
				}
				ranked, err := a.service.ClassifyTopN(ctx, id, img, top)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if asJSON {
					if err := enc.Encode(struct {
						File string `json:"file"`
						*classifier.Ranked
					}{path, ranked}); err != nil {
						return err
					}
					continue
				}
				for i, p := range ranked.Predictions {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%dms\n",
						path, i+1, p.Label, classifier.Percent(p.Confidence), classifier.SeverityOf(p.Confidence), ranked.InferenceTimeMillis)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", classifier.DefaultTopN, "Number of ranked predictions to print")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per file")
	cmd.Flags().StringVarP(&weights, "weights", "w", "", "Model weights file (.tflite or .onnx), replaces configured models")
	cmd.Flags().StringVarP(&labelFile, "labels", "l", "", "Label file for --weights, one class per line")
	cmd.Flags().IntVar(&inputSide, "input-side", defaultOneShotSide, "Square input edge in pixels for --weights")
	return cmd
}

// modelName derives a model identifier from a weights path.
func modelName(weights string) string {
	base := filepath.Base(weights)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
