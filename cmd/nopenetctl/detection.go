package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nopenet/nopenet/internal/backend"
	"github.com/nopenet/nopenet/internal/detection"
)

func newValidateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check that a file holds well-formed KDD records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			client, err := flags.backendClient()
			if err != nil {
				return err
			}

			v := client.Validate(cmd.Context(), text)
			fmt.Fprintln(cmd.OutOrStdout(), renderValidation(v))
			if !v.Valid {
				return errors.New("input is not valid")
			}
			return nil
		},
	}
}

type predictFlags struct {
	jsonOut bool
}

func newPredictCmd(flags *globalFlags) *cobra.Command {
	pf := &predictFlags{}

	cmd := &cobra.Command{
		Use:   "predict <file|->",
		Short: "Classify KDD records and summarize the result",
		Example: `  nopenetctl predict capture.kdd
  nopenetctl predict --json capture.kdd > scan.json
  nopenetctl chat --scan scan.json "Which attacks matter most?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			client, err := flags.backendClient()
			if err != nil {
				return err
			}

			data, err := client.Predict(cmd.Context(), text)
			if err != nil {
				var pe *backend.PredictError
				if errors.As(err, &pe) && pe.FormatExample != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), renderFormatHelp(pe))
				}
				return errors.New(backend.UserMessage(err))
			}

			if pf.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&pf.jsonOut, "json", false, "Write the raw detection data as JSON")
	return cmd
}

func newSampleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Print an example KDD record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.backendClient()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), client.Sample(cmd.Context()))
			return nil
		},
	}
}

func newLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels <file|->",
		Short: "Tally the labels of a labelled KDD file by attack category",
		Long: `Reads labelled KDD records locally (no backend call) and counts them
per attack category. Useful to know what a test capture should yield.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			records := detection.Records(text)
			if len(records) == 0 {
				return errors.New("no records found")
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTally(len(records), detection.LabelTally(text)))
			return nil
		},
	}
}
