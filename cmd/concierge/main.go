package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"concierge-agent/internal/bootstrap"
	"concierge-agent/internal/config"
	"concierge-agent/internal/usecase"
)

var (
	envFile     string
	metricsAddr string
	debug       bool
)

type asker interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "concierge",
		Short:         "Conversational travel and movie assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and wires the assistant. The returned func
// releases everything it opened.
func setup(ctx context.Context) (*bootstrap.App, *slog.Logger, func(), error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	logger := config.NewLogger(os.Stderr, level, false)
	slog.SetDefault(logger)

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	stopMetrics := serveMetrics(logger)
	cleanup := func() {
		stopMetrics()
		if err := app.Close(); err != nil {
			logger.Warn("close failed", "err", err)
		}
	}
	return app, logger, cleanup, nil
}

func serveMetrics(logger *slog.Logger) func() {
	if metricsAddr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", metricsAddr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func chatCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Fprintf(cmd.OutOrStdout(), "Ask me about %s. Type \"exit\" to quit.\n", app.Ask.Domain())
			return runChat(cmd.Context(), app.Ask, logger, conversationID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "resume an existing conversation id")
	return cmd
}

func askCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := askOnce(cmd.Context(), app.Ask, logger, conversationID, strings.Join(args, " "), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation id")
	return cmd
}

// runChat reads one question per line until EOF or "exit". A failed turn
// prints the fallback message and the session continues.
func runChat(ctx context.Context, uc asker, logger *slog.Logger, conversationID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		id, err := askOnce(ctx, uc, logger, conversationID, line, out)
		if err != nil {
			return err
		}
		conversationID = id
	}
}

// askOnce streams one answer to out and returns the conversation id to
// continue with, also after a failed turn. Turn failures are reported as the
// fallback message; only write errors are returned.
func askOnce(ctx context.Context, uc asker, logger *slog.Logger, conversationID, question string, out io.Writer) (string, error) {
	var writeErr error
	streamed := false
	res, err := uc.Ask(ctx, usecase.AskInput{
		Question:       question,
		ConversationID: conversationID,
		OnDelta: func(delta string) {
			if writeErr != nil {
				return
			}
			streamed = true
			_, writeErr = io.WriteString(out, delta)
		},
	})
	if writeErr != nil {
		return conversationID, writeErr
	}
	if res.ConversationID != "" {
		conversationID = res.ConversationID
	}
	if err != nil {
		logger.Debug("turn failed", "code", usecase.CodeOf(err), "err", err)
		if streamed {
			fmt.Fprintln(out)
		}
		_, werr := fmt.Fprintln(out, usecase.FallbackMessage)
		return conversationID, werr
	}
	if !streamed {
		fmt.Fprint(out, res.Answer)
	}
	_, werr := fmt.Fprintln(out)
	return conversationID, werr
}
