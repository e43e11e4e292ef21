package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nopenet/nopenet/internal/chat"
	"github.com/nopenet/nopenet/internal/detection"
	"github.com/nopenet/nopenet/internal/llm"
)

func newChatCmd(flags *globalFlags) *cobra.Command {
	var scanPath string

	cmd := &cobra.Command{
		Use:   "chat [--scan scan.json] <question>",
		Short: "Ask the security assistant a question, optionally about a saved scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}

			var data *detection.Data
			if scanPath != "" {
				raw, err := os.ReadFile(scanPath)
				if err != nil {
					return fmt.Errorf("read scan: %w", err)
				}
				if data, err = chat.ParseDetectionData(raw); err != nil {
					return fmt.Errorf("parse scan: %w", err)
				}
			}

			provider, err := llm.New(cmd.Context(), cfg.LLM, logger)
			if err != nil {
				return err
			}
			proxy := chat.NewProxy(provider, cfg.LLM.Model, logger)
			return askQuestion(cmd, proxy, args[0], data)
		},
	}

	cmd.Flags().StringVar(&scanPath, "scan", "", "Detection data saved with 'predict --json'")
	return cmd
}

// askQuestion streams the assistant's answer to the command's output.
func askQuestion(cmd *cobra.Command, proxy *chat.Proxy, question string, data *detection.Data) error {
	msgs := []llm.Message{{Role: llm.RoleUser, Content: question}}

	reply, err := proxy.Open(cmd.Context(), msgs, data)
	if err != nil {
		return err
	}
	defer reply.Close()

	out := cmd.OutOrStdout()
	for {
		chunk, err := reply.Next()
		if len(chunk) > 0 {
			if _, werr := out.Write(chunk); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
	}
}
