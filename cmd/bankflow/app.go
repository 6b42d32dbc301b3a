package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/certs"
	"github.com/Veraticus/bankflow/internal/common"
	"github.com/Veraticus/bankflow/internal/config"
	"github.com/Veraticus/bankflow/internal/cooldown"
	"github.com/Veraticus/bankflow/internal/importer"
	"github.com/Veraticus/bankflow/internal/ledger"
	"github.com/Veraticus/bankflow/internal/poller"
	"github.com/Veraticus/bankflow/internal/service"
	"github.com/Veraticus/bankflow/internal/session"
	"github.com/Veraticus/bankflow/internal/snapshot"
	"github.com/Veraticus/bankflow/internal/storage"
)

// app wires the client components for one command invocation.
type app struct {
	settings *config.Settings
	store    *storage.SQLiteStorage
	client   *api.Client
	cache    *snapshot.Cache
	ledger   *ledger.Ledger
	guard    *cooldown.Guard
	importer *importer.Orchestrator
	session  *session.Session
}

func newApp(ctx context.Context) (*app, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, settings.DatabasePath)
	if err != nil {
		return nil, err
	}

	clock := service.SystemClock{}
	opts := []api.Option{api.WithTimeout(settings.APITimeout), api.WithClock(clock)}
	if settings.CAFile != "" {
		transport, err := trustingTransport(settings.CAFile)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts = append(opts, api.WithTransport(transport))
	}
	client := api.NewClient(settings.APIURL, store, opts...)
	cache := snapshot.New(store, clock, settings.CacheTTL)
	l := ledger.New(client, cache, ledger.WithRefreshDelay(settings.RefreshDelay))
	guard := cooldown.NewGuard(store, clock)

	orch := importer.New(client, guard, l, importer.Options{
		Poll: poller.Config{
			Interval:    settings.PollInterval,
			MaxAttempts: settings.MaxPollAttempts,
			Deadline:    settings.PollDeadline,
		},
		Watch: poller.Config{
			Interval: settings.WatchInterval,
			Deadline: settings.PollDeadline,
		},
	})

	sess := session.New(session.Deps{
		Auth:        client,
		Credentials: store,
		Markers:     store,
		Cache:       cache,
		Ledger:      l,
		Syncer:      orch,
		Clock:       clock,
	}, session.Options{AutoSyncEvery: settings.AutoSyncEvery})

	return &app{
		settings: settings,
		store:    store,
		client:   client,
		cache:    cache,
		ledger:   l,
		guard:    guard,
		importer: orch,
		session:  sess,
	}, nil
}

// close waits for background work started by the command, then releases
// the database.
func (a *app) close() {
	a.session.Wait()
	a.ledger.Wait()
	a.session.Close()
	a.ledger.Close()
	_ = a.store.Close()
}

func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// trustingTransport adds the certificates in caFile to the trusted roots,
// for backends such as the sandbox that serve a self-signed certificate.
func trustingTransport(caFile string) (*http.Transport, error) {
	pool, err := certs.LoadPool(caFile)
	if err != nil {
		return nil, fmt.Errorf("%w: api.ca_file: %w", common.ErrInvalidConfig, err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return transport, nil
}

// maybeAutoSync starts a throttled background auto sync for views that
// show account data. Failures only mean nothing was started.
func (a *app) maybeAutoSync(ctx context.Context) {
	fired, err := a.session.MaybeAutoSync(ctx)
	if err != nil {
		slog.Debug("Auto sync not started", "error", err)
		return
	}
	if fired {
		slog.Debug("Auto sync requested in the background")
	}
}

// requireLogin fails early when no session is stored.
func (a *app) requireLogin(ctx context.Context) error {
	_, err := a.store.LoadCredentials(ctx)
	return err
}
