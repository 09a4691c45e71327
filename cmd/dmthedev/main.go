// Command dmthedev publishes signature-derived encryption keys, sends sealed
// messages to wallet addresses and reads a wallet's inbox.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TrendsAI-bit/dmthedev"
	"github.com/TrendsAI-bit/dmthedev/config"
	_ "github.com/TrendsAI-bit/dmthedev/maildir"
	_ "github.com/TrendsAI-bit/dmthedev/sqlite"
)

// app carries state shared by subcommands after the root pre-run.
type app struct {
	configPath  string
	envFile     string
	showMetrics bool

	cfg     *config.Config
	logger  *zap.Logger
	metrics *prometheus.Registry
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "dmthedev",
		Short:         "Encrypted messages to wallet addresses",
		Long:          "dmthedev seals messages for a wallet's signature-derived X25519 key.\nNo encryption secret is ever stored: the recipient re-derives it by signing.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.finish(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "path to .env file with DMTHEDEV_* variables")
	root.PersistentFlags().BoolVar(&a.showMetrics, "metrics", false, "print message counters on exit")

	root.AddCommand(
		newWalletCmd(a),
		newKeysCmd(a),
		newSendCmd(a),
		newInboxCmd(a),
		newBackendsCmd(),
	)
	return root
}

func (a *app) setup() error {
	if a.envFile != "" {
		if err := config.LoadEnvFile(a.envFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	a.metrics = prometheus.NewRegistry()
	return nil
}

func (a *app) finish(cmd *cobra.Command) {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if !a.showMetrics || a.metrics == nil {
		return
	}
	families, err := a.metrics.Gather()
	if err != nil {
		return
	}
	out := cmd.ErrOrStderr()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf("{%s=%q}", lp.GetName(), lp.GetValue())
			}
			fmt.Fprintf(out, "%s%s %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
		}
	}
}

// openMessenger opens the configured store. The caller must close the store.
func (a *app) openMessenger() (*dmthedev.Messenger, dmthedev.Store, error) {
	store, err := dmthedev.Open(a.cfg.ToStoreConfig(a.logger))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", a.cfg.Store.Type, err)
	}
	m := dmthedev.NewMessenger(store,
		dmthedev.WithLogger(a.logger),
		dmthedev.WithMetrics(a.metrics))
	return m, store, nil
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List available storage backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range dmthedev.RegisteredTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
