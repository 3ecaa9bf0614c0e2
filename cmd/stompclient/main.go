package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/client"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/logging"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/observability"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stompclient: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath, logLevel string
	cmd := &cobra.Command{
		Use:   "stompclient",
		Short: "Interactive emergency report client for a STOMP 1.2 broker",
		Long: `stompclient reads commands from standard input:

  login <host:port> <user> <password>
  join <channel>
  exit <channel>
  report <file>
  summary <channel> <user> <file>
  logout
  quit`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, logLevel, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	return cmd
}

func run(ctx context.Context, configPath, logLevel string, in io.Reader, out io.Writer) error {
	logging.ConfigureRuntime()
	if logLevel != "" && !logging.SetLevel(logLevel) {
		return fmt.Errorf("invalid log level %q", logLevel)
	}

	cfg := defaultAppConfig()
	if configPath != "" {
		loaded, err := loadAppConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	dial, err := transport.NewDialer(cfg.Transport)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           observability.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Msgf("stompclient metrics server addr=%q err=%v", cfg.MetricsAddr, err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info().Msgf("stompclient metrics listening addr=%q", cfg.MetricsAddr)
	}

	log.Debug().Msgf("stompclient start transport=%s host=%q", cfg.Transport.Kind, cfg.Session.Host)
	return newREPL(cfg, client.New(cfg.Session, dial), out).run(ctx, in)
}
