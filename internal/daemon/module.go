package daemon

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/repository"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/settings"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      config.Config
	LogLevel    zapcore.Level
	Dir         string // optional session directory override for testing
	SocketPath  string // optional override for testing; empty = use default
}

func (p Params) dir() string {
	if p.Dir != "" {
		return p.Dir
	}
	return session.Dir(p.SessionName)
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return filepath.Join(p.dir(), filepath.Base(session.SocketPath(p.SessionName)))
}

func (p Params) dbPath() string {
	return filepath.Join(p.dir(), filepath.Base(session.AppDBPath(p.SessionName)))
}

func (p Params) logPath() string {
	if p.Dir != "" {
		return filepath.Join(p.Dir, "logs", filepath.Base(session.LogPath(p.SessionName)))
	}
	return session.LogPath(p.SessionName)
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	p.Config = p.Config.WithDefaults()
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRemote,
			provideChatLocks,
			provideSyncEngine,
			provideRepository,
			provideSettingsService,
			provideScheduler,
			provideSessionService,
			provideSyncService,
			provideChatService,
			provideMessageService,
			provideSettingsAPI,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.logPath(), p.SessionName, p.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.dbPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(p Params, logger *zap.Logger) *remote.Client {
	cfg := p.Config
	return remote.NewClient(remote.Config{
		BaseURL:           cfg.Server.BaseURL,
		Token:             cfg.Server.Token,
		PollInterval:      cfg.Sync.PollInterval.Duration,
		ShortPollInterval: cfg.Sync.ShortPollInterval.Duration,
		RetryBaseDelay:    cfg.Sync.RetryBaseDelay.Duration,
		RetryMaxDelay:     cfg.Sync.RetryMaxDelay.Duration,
	}, logger.Named("remote"))
}

func provideChatLocks() *lock.Keyed {
	return lock.NewKeyed()
}

func provideSyncEngine(p Params, db *store.DB, client *remote.Client, locks *lock.Keyed, b *bus.Bus, m *status.Machine, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, client, locks, b, m, logger.Named("sync"), intsync.Config{
		RetryBaseDelay: p.Config.Sync.RetryBaseDelay.Duration,
		RetryMaxDelay:  p.Config.Sync.RetryMaxDelay.Duration,
	})
}

func provideRepository(db *store.DB, client *remote.Client, locks *lock.Keyed, logger *zap.Logger) *repository.Repository {
	return repository.New(db, client, locks, logger.Named("repository"))
}

func provideSettingsService(db *store.DB, client *remote.Client, b *bus.Bus, logger *zap.Logger) *settings.Service {
	return settings.NewService(db, client, b, logger.Named("settings"))
}

func provideScheduler(p Params, svc *settings.Service, m *status.Machine, b *bus.Bus, logger *zap.Logger) *settings.Scheduler {
	cfg := p.Config.Settings
	return settings.NewScheduler(svc, m, b, logger.Named("scheduler"), settings.SchedulerConfig{
		Debounce:         cfg.Debounce.Duration,
		BackoffBase:      cfg.BackoffBase.Duration,
		BackoffMax:       cfg.BackoffMax.Duration,
		PeriodicInterval: cfg.PeriodicInterval.Duration,
	})
}

func provideSessionService(p Params, m *status.Machine, db *store.DB) *api.SessionService {
	return api.NewSessionService(p.SessionName, p.Config.Server.UserID, m, db)
}

func provideSyncService(p Params, engine *intsync.Engine, b *bus.Bus, m *status.Machine, logger *zap.Logger) *api.SyncService {
	return api.NewSyncService(engine, b, m, p.SessionName, logger.Named("api"))
}

func provideChatService(repo *repository.Repository, db *store.DB) *api.ChatService {
	return api.NewChatService(repo, db)
}

func provideMessageService(p Params, repo *repository.Repository, db *store.DB) *api.MessageService {
	return api.NewMessageService(repo, db, p.Config.Server.UserID)
}

func provideSettingsAPI(p Params, svc *settings.Service) *api.SettingsService {
	return api.NewSettingsService(svc, p.Config.Server.UserID)
}

// components are the long-running parts started and stopped by the lifecycle.
type components struct {
	fx.In

	Params    Params
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Engine    *intsync.Engine
	Settings  *settings.Service
	Scheduler *settings.Scheduler
	Machine   *status.Machine
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, c components) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			// Start gRPC server in background.
			go func() {
				if err := c.Server.Start(); err != nil {
					c.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			c.Scheduler.Start(ctx)

			server := c.Params.Config.Server
			if server.BaseURL == "" || server.Token == "" {
				c.Logger.Info("no server credentials configured, auth required")
				if err := c.Machine.Transition(status.AuthRequired); err != nil {
					c.Logger.Warn("status transition failed", zap.Error(err))
				}
				return nil
			}

			c.Engine.Start(ctx)

			if userID := server.UserID; userID != "" {
				c.Scheduler.SchedulePeriodicSync(userID)
				go func() {
					// Recovers missing settings; pending ones are announced
					// to the scheduler.
					_, err := c.Settings.Get(ctx, userID)
					if err != nil && !errors.Is(err, settings.ErrSettingsResetToDefaults) {
						c.Logger.Warn("initial settings load failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			c.Scheduler.Stop()
			c.Engine.Stop()
			c.Server.Stop(ctx)
			if err := c.DB.Close(); err != nil {
				c.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := c.Lock.Release(); err != nil {
				c.Logger.Warn("error releasing lock", zap.Error(err))
			}
			c.Logger.Info("daemon stopped")
			return nil
		},
	})
}
