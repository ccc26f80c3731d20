// Package client wires the engine together: store, bus, transports,
// reconciliation, fetch, and typing, composed with fx and exposed through a
// single facade.
package client

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hravel/huddl/internal/api"
	"github.com/hravel/huddl/internal/bus"
	"github.com/hravel/huddl/internal/config"
	"github.com/hravel/huddl/internal/fetch"
	"github.com/hravel/huddl/internal/lock"
	"github.com/hravel/huddl/internal/logging"
	"github.com/hravel/huddl/internal/reconcile"
	"github.com/hravel/huddl/internal/retry"
	"github.com/hravel/huddl/internal/session"
	"github.com/hravel/huddl/internal/status"
	"github.com/hravel/huddl/internal/store"
	"github.com/hravel/huddl/internal/transport"
	"github.com/hravel/huddl/internal/typing"
)

// Params holds the resolved profile and configuration passed to the fx
// module.
type Params struct {
	Profile string
	Config  *config.Config
}

// Module returns the fx module for the chat engine, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("client",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideScheduler,
			provideStore,
			provideStateMachine,
			provideLock,
			provideAPI,
			provideTransport,
			provideReconciler,
			provideFetcher,
			provideTyping,
			New,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideScheduler(p Params) store.Scheduler {
	return store.NewTimerScheduler(p.Config.Notify.Debounce)
}

func provideStore(sched store.Scheduler, logger *zap.Logger) *store.Store {
	return store.New(sched, logger)
}

func provideStateMachine(st *store.Store, b *bus.Bus) *status.Machine {
	return status.NewMachine(st, b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideAPI(p Params, logger *zap.Logger) *api.Client {
	return api.New(api.Options{
		BaseURL:        p.Config.API.BaseURL,
		Token:          p.Config.API.Token,
		UserID:         p.Config.API.UserID,
		UserName:       p.Config.API.UserName,
		RequestTimeout: p.Config.API.RequestTimeout,
	}, logger)
}

func providePolicy(p Params) retry.Policy {
	return retry.Policy{
		MaxAttempts: p.Config.Retry.MaxAttempts,
		BaseDelay:   p.Config.Retry.BaseDelay,
		MaxDelay:    p.Config.Retry.MaxDelay,
	}
}

func provideTransport(p Params, apiClient *api.Client, b *bus.Bus, machine *status.Machine, logger *zap.Logger) transport.Transport {
	if p.Config.Transport.Mode == config.ModePolling {
		logger.Info("using polling transport",
			zap.Duration("interval", p.Config.Transport.PollInterval))
		return transport.NewPolling(apiClient, b, machine, p.Config.Transport.PollInterval, logger)
	}
	return transport.NewRealtime(transport.RealtimeConfig{
		URL:         p.Config.API.WebsocketURL,
		Token:       p.Config.API.Token,
		SelfID:      p.Config.API.UserID,
		SendTimeout: p.Config.API.RequestTimeout,
		Reconnect:   providePolicy(p),
	}, b, machine, logger)
}

func provideReconciler(p Params, st *store.Store, b *bus.Bus, logger *zap.Logger) *reconcile.Engine {
	return reconcile.NewEngine(st, b, reconcile.Config{
		SelfID:   p.Config.API.UserID,
		SelfName: p.Config.API.UserName,
	}, logger)
}

func provideFetcher(p Params, apiClient *api.Client, st *store.Store, recon *reconcile.Engine, tr transport.Transport, logger *zap.Logger) *fetch.Orchestrator {
	return fetch.New(apiClient, st, recon, tr, providePolicy(p), p.Config.Cache.TTL, logger)
}

func provideTyping(p Params, apiClient *api.Client, st *store.Store, b *bus.Bus, logger *zap.Logger) *typing.Manager {
	return typing.NewManager(apiClient, st, b, typing.Config{
		SelfID:     p.Config.API.UserID,
		SelfName:   p.Config.API.UserName,
		TTL:        p.Config.Typing.TTL,
		StopBuffer: p.Config.Typing.StopBuffer,
	}, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, b *bus.Bus, recon *reconcile.Engine, tm *typing.Manager, tr transport.Transport, fetcher *fetch.Orchestrator, st *store.Store, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Engine subscriptions must be live before the transport can
			// publish its first event.
			recon.Start(runCtx)
			tm.Start(runCtx)
			if err := tr.Start(runCtx); err != nil {
				return err
			}
			go refreshOnReconnect(runCtx, b, fetcher, logger)

			// Initial load runs in the background; the UI renders from the
			// store as data arrives.
			go func() {
				ctx := context.Background()
				if err := fetcher.LoadConversations(ctx); err != nil {
					logger.Error("initial conversation load failed", zap.Error(err))
				}
				if err := fetcher.LoadParticipants(ctx); err != nil {
					logger.Error("initial participant load failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			tm.Stop()
			tr.Stop()
			recon.Stop()
			st.Destroy()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}

// refreshOnReconnect force-reloads everything after the transport recovers,
// covering whatever the push channel missed while it was down.
func refreshOnReconnect(ctx context.Context, b *bus.Bus, fetcher *fetch.Orchestrator, logger *zap.Logger) {
	ch, unsub := b.Subscribe(bus.TopicConnChanged, 16)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			change, ok := evt.Payload.(status.Change)
			if !ok {
				continue
			}
			if change.To == store.ConnOnline && change.From == store.ConnReconnecting {
				logger.Info("connection recovered, refreshing")
				if err := fetcher.Refresh(ctx); err != nil {
					logger.Warn("refresh after reconnect failed", zap.Error(err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
