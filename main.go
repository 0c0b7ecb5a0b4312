// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-core-stack/mcp-actions-wrapper/pkg/api"
	"github.com/go-core-stack/mcp-actions-wrapper/pkg/config"
	"github.com/go-core-stack/mcp-actions-wrapper/pkg/mcp"
	"github.com/go-core-stack/mcp-actions-wrapper/pkg/metrics"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "mcp-actions-wrapper",
		Short:         "REST wrapper around an MCP tool server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.SetOut(out)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the REST routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(newCallCmd())

	return root
}

func newCallCmd() *cobra.Command {
	var rawArgs string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool and print its normalized result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseToolArgs(rawArgs)
			if err != nil {
				return err
			}

			cfg, err := setup()
			if err != nil {
				return err
			}
			client, err := mcp.New(cfg)
			if err != nil {
				return fmt.Errorf("construct MCP client: %w", err)
			}

			result, err := client.Invoke(cmd.Context(), args[0], toolArgs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "{}", "tool arguments as a JSON object")
	return cmd
}

// setup loads configuration and applies the log level.
func setup() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log.Logger = log.Level(level)
	return cfg, nil
}

func serve(ctx context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIToken(); err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	client, err := mcp.New(cfg, mcp.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("construct MCP client: %w", err)
	}

	server := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.New(api.Opts{
			Invoker:      client,
			APIToken:     cfg.APIToken,
			Metrics:      m,
			CORSOrigins:  cfg.CORSOrigins,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Logger:       log.Logger,
		}),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("listen_addr", cfg.ListenAddr).
			Str("upstream", cfg.Upstream.String()).
			Bool("metrics", cfg.MetricsEnabled).
			Msg("starting MCP actions wrapper")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("wrapper server exited unexpectedly")
		}
	}()

	waitForShutdown(ctx, server, cfg.GracefulShutdownTimeout)
	return nil
}

func waitForShutdown(ctx context.Context, srv *http.Server, timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down MCP actions wrapper")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	log.Info().Msg("wrapper stopped")
}

// parseToolArgs decodes the --args flag. Blank input means no arguments.
func parseToolArgs(raw string) (map[string]any, error) {
	if len(bytes.TrimSpace([]byte(raw))) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var args map[string]any
	if err := dec.Decode(&args); err != nil || dec.More() {
		return nil, errors.New("invalid --args: expected a JSON object")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
