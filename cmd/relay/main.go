package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"subledger/internal/config"
	"subledger/internal/logging"
	"subledger/internal/metrics"
	"subledger/internal/relay"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg       *config.RelayConfig
		serverURL string
	)

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Automation relay for subledger auto-renewals",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadRelay()
			if err != nil {
				return err
			}
			if serverURL != "" {
				cfg.ServerURL = serverURL
			}
			logging.Init(cfg.LogLevel, cfg.LogFormat, "relay")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "", "ledger API base URL (overrides RELAY_SERVER_URL)")

	client := func() *relay.Client {
		return relay.NewClient(cfg.ServerURL, &http.Client{Timeout: cfg.Timeout})
	}

	var (
		once        bool
		metricsAddr string
	)
	run := &cobra.Command{
		Use:   "run",
		Short: "Poll candidates and perform renewals on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			keeper := relay.NewKeeper(client(), cfg.BatchSize)
			if once {
				res, err := keeper.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "candidates=%d renewed=%d skipped=%d failed=%d\n",
					res.Candidates, res.Renewed, res.Skipped, res.Failed)
				return nil
			}

			if metricsAddr != "" {
				metrics.InitRelayMetrics()
				go serveMetrics(ctx, metricsAddr)
			}

			done, err := keeper.Start(ctx, cfg.Schedule)
			if err != nil {
				return err
			}
			log.Info().Str("server", cfg.ServerURL).Str("schedule", cfg.Schedule).Msg("relay started")
			<-done
			log.Info().Msg("relay stopped")
			return nil
		},
	}
	run.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	run.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	check := &cobra.Command{
		Use:   "check <account>",
		Short: "Probe one account for renewal eligibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eligible, data, err := client().Check(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "eligible=%t perform_data=%s\n", eligible, data)
			return nil
		},
	}

	perform := &cobra.Command{
		Use:   "perform <perform-data>",
		Short: "Submit perform data returned by check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := client().Perform(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account=%s expires_at=%d\n", rec.Account, rec.ExpiresAt)
			return nil
		},
	}

	root.AddCommand(run, check, perform)
	return root
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server failed")
	}
}
