// Command bankdata-sandbox serves an in-memory finance backend for local
// development against the bankflow client.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/bankflow/internal/certs"
	"github.com/Veraticus/bankflow/internal/common"
	"github.com/Veraticus/bankflow/internal/config"
	"github.com/Veraticus/bankflow/internal/sandbox"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	def := sandbox.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "bankdata-sandbox",
		Short: "Run an in-memory finance backend for bankflow",
		Long: `Serve the /api/auth, /api/bankdata, /api/transactions and /api/categories
endpoints from memory. Imports produce deterministic synthetic history, honor
a per-account daily limit and can be made to fail for chosen accounts.

Settings may also come from BANKFLOW_SANDBOX_* environment variables.`,
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.String("addr", "127.0.0.1:3001", "listen address")
	flags.String("secret", string(def.Secret), "JWT signing secret")
	flags.Int("soft-limit", def.SoftLimit, "imports allowed per account per day")
	flags.Duration("step-delay", def.StepDelay, "delay between import batches")
	flags.Int("batch-size", def.BatchSize, "rows processed per import step")
	flags.Int("history-days", def.HistoryDays, "days of history a full import covers")
	flags.Duration("access-ttl", def.AccessTTL, "access token lifetime")
	flags.StringSlice("accounts", def.Accounts, "accounts linked for new users")
	flags.StringSlice("fail-accounts", nil, "accounts whose imports fail")
	flags.StringSlice("allow-origins", def.AllowOrigins, "CORS origins")
	flags.Bool("tls", false, "serve HTTPS with a self-signed localhost certificate")
	flags.String("cert-dir", "~/.config/bankflow/sandbox-tls", "where the TLS certificate is kept")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")

	v := viper.New()
	v.SetEnvPrefix("BANKFLOW_SANDBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context(), v)
	}
	return cmd
}

func serve(parent context.Context, v *viper.Viper) error {
	if err := common.SetupLogger(v.GetString("log-level"), v.GetString("log-format")); err != nil {
		return err
	}
	if !strings.EqualFold(v.GetString("log-level"), "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := sandbox.DefaultConfig()
	cfg.Secret = []byte(v.GetString("secret"))
	cfg.SoftLimit = v.GetInt("soft-limit")
	cfg.StepDelay = v.GetDuration("step-delay")
	cfg.BatchSize = v.GetInt("batch-size")
	cfg.HistoryDays = v.GetInt("history-days")
	cfg.AccessTTL = v.GetDuration("access-ttl")
	cfg.Accounts = v.GetStringSlice("accounts")
	cfg.FailAccounts = v.GetStringSlice("fail-accounts")
	cfg.AllowOrigins = v.GetStringSlice("allow-origins")

	sb := sandbox.New(cfg)
	defer sb.Close()

	server := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           sb.Handler(),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := v.GetBool("tls")
	if useTLS {
		mgr := certs.NewFileManager(config.ExpandPath(v.GetString("cert-dir")))
		cert, err := mgr.Ensure()
		if err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		slog.Info("Serving HTTPS; point bankflow's api.ca_file at the certificate", "ca_file", mgr.CertFile())
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Sandbox listening", "addr", server.Addr, "tls", useTLS, "soft_limit", cfg.SoftLimit, "fail_accounts", cfg.FailAccounts)
		var err error
		if useTLS {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("sandbox server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down sandbox")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down sandbox: %w", err)
	}
	return nil
}
