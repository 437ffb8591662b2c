package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/h0rv/finsight/internal/devserver"
	"github.com/h0rv/finsight/internal/logging"
)

var (
	addrFlag        string
	ssoModeFlag     string
	ssoDelayFlag    time.Duration
	authURLFlag     string
	insightModeFlag string
	chunkDelayFlag  time.Duration
	tokenTTLFlag    time.Duration
	usersFlag       []string
	logLevelFlag    string
	logFormatFlag   string
)

func main() {
	defaults := devserver.DefaultOptions()

	rootCmd := &cobra.Command{
		Use:   "finsight-dev",
		Short: "Fake dashboard backend for local finsight development",
		Long: `finsight-dev serves a fake project finance dashboard API.

It implements the single sign-on login-URL endpoint, password login and
registration, and the streaming insight endpoint. Modes reproduce the
failure cases the client has to handle:

  --sso      available | missing | slow | error
  --insight  normal | split | error | quota | late | truncate`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&addrFlag, "addr", "127.0.0.1:8080", "Listen address.")
	flags.StringVar(&ssoModeFlag, "sso", string(defaults.SSOMode), "Single sign-on behaviour.")
	flags.DurationVar(&ssoDelayFlag, "sso-delay", defaults.SSODelay, "Response delay in slow single sign-on mode.")
	flags.StringVar(&authURLFlag, "auth-url", "", "Authorization URL to hand out. Defaults to this server's /sso/authorize page.")
	flags.StringVar(&insightModeFlag, "insight", string(defaults.InsightMode), "Insight stream behaviour.")
	flags.DurationVar(&chunkDelayFlag, "chunk-delay", defaults.ChunkDelay, "Delay between streamed fragments.")
	flags.DurationVar(&tokenTTLFlag, "token-ttl", defaults.TokenTTL, "Lifetime of issued session tokens.")
	flags.StringSliceVar(&usersFlag, "user", []string{"admin:admin"}, "Seeded account as username:password. Repeatable.")
	flags.StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn or error.")
	flags.StringVar(&logFormatFlag, "log-format", "text", "Log format: text or json.")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseSSOMode(s string) (devserver.SSOMode, error) {
	switch mode := devserver.SSOMode(s); mode {
	case devserver.SSOAvailable, devserver.SSOMissing, devserver.SSOSlow, devserver.SSOError:
		return mode, nil
	}
	return "", fmt.Errorf("invalid --sso %q (must be one of: available, missing, slow, error)", s)
}

func parseInsightMode(s string) (devserver.InsightMode, error) {
	switch mode := devserver.InsightMode(s); mode {
	case devserver.InsightNormal, devserver.InsightSplitFrames, devserver.InsightProducerError,
		devserver.InsightQuota, devserver.InsightLateContent, devserver.InsightTruncated:
		return mode, nil
	}
	return "", fmt.Errorf("invalid --insight %q (must be one of: normal, split, error, quota, late, truncate)", s)
}

func parseUsers(entries []string) (map[string]string, error) {
	users := make(map[string]string, len(entries))
	for _, entry := range entries {
		name, password, ok := strings.Cut(entry, ":")
		if !ok || name == "" || password == "" {
			return nil, fmt.Errorf("invalid --user %q (want username:password)", entry)
		}
		users[name] = password
	}
	return users, nil
}

func run(cmd *cobra.Command, args []string) error {
	ssoMode, err := parseSSOMode(ssoModeFlag)
	if err != nil {
		return err
	}
	insightMode, err := parseInsightMode(insightModeFlag)
	if err != nil {
		return err
	}
	users, err := parseUsers(usersFlag)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, logging.Options{Level: logLevelFlag, Format: logFormatFlag})
	slog.SetDefault(logger)

	server := devserver.New(devserver.Options{
		SSOMode:     ssoMode,
		SSODelay:    ssoDelayFlag,
		AuthURL:     authURLFlag,
		InsightMode: insightMode,
		ChunkDelay:  chunkDelayFlag,
		TokenTTL:    tokenTTLFlag,
		Users:       users,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              addrFlag,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dev server listening", "addr", addrFlag, "sso", ssoMode, "insight", insightMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
