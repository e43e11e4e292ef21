package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nopenet/nopenet/internal/backend"
	"github.com/nopenet/nopenet/internal/config"
	"github.com/nopenet/nopenet/internal/server"
)

type globalFlags struct {
	configPath string
	backendURL string
	timeout    time.Duration
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "nopenetctl",
		Short: "Operator tool for the NopeNet detection backend and chat proxy",
		Long: `nopenetctl talks to the NopeNet detection backend and LLM provider
directly, without going through the gateway. Use it to check KDD input
files, run scans and ask the assistant about a saved scan.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", config.Path(), "Path to nopenet.yaml")
	rootCmd.PersistentFlags().StringVar(&flags.backendURL, "backend", "", "Detection backend base URL (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 0, "Detection backend timeout (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "error", "Log level written to stderr")

	rootCmd.AddCommand(newValidateCmd(flags))
	rootCmd.AddCommand(newPredictCmd(flags))
	rootCmd.AddCommand(newSampleCmd(flags))
	rootCmd.AddCommand(newChatCmd(flags))
	rootCmd.AddCommand(newLabelsCmd())
	rootCmd.AddCommand(newAuditCmd(flags))

	return rootCmd
}

func (f *globalFlags) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	if f.backendURL != "" {
		cfg.Detection.BaseURL = f.backendURL
	}
	if f.timeout > 0 {
		cfg.Detection.Timeout = f.timeout
	}
	return cfg, server.NewLogger(os.Stderr, f.logLevel), nil
}

func (f *globalFlags) backendClient() (*backend.Client, error) {
	cfg, logger, err := f.load()
	if err != nil {
		return nil, err
	}
	return backend.NewClient(cfg.Detection.BaseURL, cfg.Detection.Timeout, logger), nil
}

// readInput returns the contents of path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}
