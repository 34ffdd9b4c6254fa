package daemon

import (
	"context"

	"github.com/srvmarket/srvchat/internal/api"
	"github.com/srvmarket/srvchat/internal/bus"
	"github.com/srvmarket/srvchat/internal/config"
	"github.com/srvmarket/srvchat/internal/lock"
	"github.com/srvmarket/srvchat/internal/logging"
	"github.com/srvmarket/srvchat/internal/notify"
	"github.com/srvmarket/srvchat/internal/profile"
	"github.com/srvmarket/srvchat/internal/store"
	intsync "github.com/srvmarket/srvchat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	// SocketPath overrides the profile's socket; used by tests.
	SocketPath string
	// Quiet disables the console log on stderr.
	Quiet bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideSettings,
			provideSynchronizer,
			provideCounter,
			provideSession,
			provideInboxService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, logging.Options{Quiet: p.Quiet})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore takes the lock so the database is only opened by its holder.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, result, err := store.OpenMigrated(dbPath)
	if err != nil {
		return nil, err
	}
	if result.Recovered {
		logger.Warn("snapshot schema was dirty, migrations replayed")
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSettings(p Params, logger *zap.Logger) (config.Profile, error) {
	cfg, err := config.LoadOrEmpty(profile.ConfigPath())
	if err != nil {
		return config.Profile{}, err
	}
	settings := cfg.Profile(p.ProfileName)
	logger.Info("profile settings loaded",
		zap.String("endpoint", settings.Endpoint),
		zap.Bool("signed_in", settings.SignedIn()),
		zap.Duration("poll_interval", settings.PollInterval.Duration),
		zap.Bool("push", settings.Push))
	return settings, nil
}

func provideSynchronizer(settings config.Profile, db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Synchronizer {
	return intsync.New(intsync.Options{
		Interval:      settings.PollInterval.Duration,
		PageSize:      settings.PageSize,
		NameCacheSize: settings.NameCacheSize,
		NameCacheTTL:  settings.NameCacheTTL.Duration,
	}, db, b, logger.Named("sync"))
}

func provideCounter(s *intsync.Synchronizer, b *bus.Bus, logger *zap.Logger) *notify.Counter {
	return notify.NewCounter(s, b, logger.Named("notify"))
}

func provideSession(p Params, settings config.Profile, s *intsync.Synchronizer, b *bus.Bus, logger *zap.Logger) *Session {
	return NewSession(p.ProfileName, profile.ConfigPath(), settings, s, b, logger.Named("session"))
}

func provideInboxService(p Params, s *intsync.Synchronizer, counter *notify.Counter, session *Session, b *bus.Bus, logger *zap.Logger) *api.InboxService {
	return api.NewInboxService(p.ProfileName, s, counter, session, b, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, s *intsync.Synchronizer, counter *notify.Counter, session *Session, logger *zap.Logger) {
	// Background loops outlive the OnStart context.
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			counter.Start(ctx)

			if err := session.Start(ctx); err != nil {
				logger.Error("sign-in from config failed", zap.Error(err))
			}
			if s.ViewerID() != "" {
				if err := s.Restore(startCtx); err != nil {
					logger.Warn("snapshot restore failed", zap.Error(err))
				}
				go func() {
					if err := s.FetchConversations(ctx, true); err != nil {
						logger.Warn("initial fetch failed", zap.Error(err))
					}
				}()
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			srv.Stop(stopCtx)
			cancel()
			session.Stop()
			s.StopAutoRefresh()
			counter.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
