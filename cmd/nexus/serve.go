package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysugar/agent-nexus/internal/api"
	"github.com/pysugar/agent-nexus/internal/scheduler"
	"github.com/pysugar/agent-nexus/internal/version"
	"github.com/spf13/cobra"
)

var serveAPIOnly bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler loop and the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var runner *scheduler.Runner
		if !serveAPIOnly {
			runner = scheduler.NewRunner(a.triggers, a.tweets, a.cfg.Scheduler.Interval, a.logger)
			runner.Start(ctx)
		}

		srv := &http.Server{
			Addr: a.cfg.Server.Addr(),
			Handler: api.NewRouter(api.Deps{
				DB:       a.db,
				Logs:     a.logs,
				Triggers: a.triggers,
				Tweets:   a.tweets,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		a.logger.Info("agent nexus started", "addr", srv.Addr, "version", version.Version, "scheduler", !serveAPIOnly)

		var serveErr error
		select {
		case <-ctx.Done():
		case serveErr = <-errCh:
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http shutdown", "error", err)
		}
		if runner != nil {
			runner.Stop()
		}
		if serveErr != nil {
			return fmt.Errorf("server failed: %w", serveErr)
		}
		return nil
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Process due triggers and scheduled tweets once, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		triggers := a.triggers.ProcessPendingTriggers(ctx)
		tweets := a.tweets.ProcessScheduledTweets(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d triggers, %d scheduled tweets\n", triggers, tweets)
		return nil
	},
}

var runUser string

var runCmd = &cobra.Command{
	Use:   "run <trigger-id>",
	Short: "Execute one trigger now without moving its schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.triggers.RunTrigger(cmd.Context(), args[0], runUser)
		if err != nil {
			return err
		}
		return printJSON(cmd, entry)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveAPIOnly, "api-only", false, "Serve the admin API without starting the scheduler loop")
	runCmd.Flags().StringVar(&runUser, "user", "", "Owner user ID")
	cobra.CheckErr(runCmd.MarkFlagRequired("user"))
	rootCmd.AddCommand(serveCmd, tickCmd, runCmd)
}
