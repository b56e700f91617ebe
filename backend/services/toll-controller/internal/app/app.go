package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tollbooth/backend/libs/db"
	libredis "tollbooth/backend/libs/redis"

	"tollbooth/backend/services/toll-controller/internal/capture"
	"tollbooth/backend/services/toll-controller/internal/config"
	"tollbooth/backend/services/toll-controller/internal/device"
	"tollbooth/backend/services/toll-controller/internal/handlers"
	httpserver "tollbooth/backend/services/toll-controller/internal/http"
	httphandlers "tollbooth/backend/services/toll-controller/internal/http/handlers"
	"tollbooth/backend/services/toll-controller/internal/http/middleware"
	"tollbooth/backend/services/toll-controller/internal/ingest"
	"tollbooth/backend/services/toll-controller/internal/ledger"
	"tollbooth/backend/services/toll-controller/internal/metrics"
	"tollbooth/backend/services/toll-controller/internal/password"
	redisstore "tollbooth/backend/services/toll-controller/internal/redis"
	"tollbooth/backend/services/toll-controller/internal/repository"
	"tollbooth/backend/services/toll-controller/internal/service"
	"tollbooth/backend/services/toll-controller/internal/tollproto"
	"tollbooth/backend/services/toll-controller/internal/tollproto/protocol"
	"tollbooth/backend/services/toll-controller/internal/ws"
)

const statusBuffer = 32

// Option overrides a hardware-facing dependency.
type Option func(*options)

type options struct {
	opener device.Opener
	runner capture.Runner
	now    func() time.Time
}

// WithOpener replaces the serial port opener.
func WithOpener(o device.Opener) Option {
	return func(opts *options) { opts.opener = o }
}

// WithCaptureRunner replaces the external capture command.
func WithCaptureRunner(r capture.Runner) Option {
	return func(opts *options) { opts.runner = r }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(opts *options) { opts.now = now }
}

// App wires all dependencies for the toll controller.
type App struct {
	logger *zap.Logger

	store   *ledger.Store
	state   *service.StatusState
	source  ingest.LineSource
	loop    *ingest.Loop
	flusher *ledger.Flusher

	hub         *ws.Hub
	hubUpdates  <-chan service.StatusSnapshot
	statusCache *redisstore.StatusStore
	cacheUpdate <-chan service.StatusSnapshot
	unsubscribe []func()

	router       http.Handler
	server       *httpserver.Server
	streamCancel context.CancelFunc

	db          *sql.DB
	redisClient *redis.Client
}

// New builds the application graph. A corrupt ledger file is fatal; a missing serial device
// and unreachable optional sinks are not.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{opener: device.OpenSerial, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		o.runner = capture.NewCommandRunner(cfg.Capture.Command, cfg.Capture.Args)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := ledger.Open(cfg.Ledger.Path, ledger.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	logger.Info("ledger loaded", zap.String("path", store.Path()), zap.Int("records", store.Len()))

	a := &App{
		logger:  logger,
		store:   store,
		state:   service.NewStatusState(o.now),
		flusher: ledger.NewFlusher(store, cfg.FlushInterval(), logger),
	}

	var (
		mirror  handlers.TransactionMirror
		journal tollproto.LineJournal
	)
	if cfg.Database.DSN != "" {
		if sqlDB, err := a.openPostgres(ctx, cfg.Database.DSN); err != nil {
			logger.Warn("postgres mirror unavailable, continuing without it", zap.Error(err))
		} else {
			a.db = sqlDB
			mirror = repository.NewTransactionRepository(sqlDB)
			journal = repository.NewLineJournalRepository(sqlDB)
		}
	} else {
		logger.Debug("postgres mirror disabled")
	}

	if cfg.Redis.Addr != "" {
		if client, err := libredis.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password); err != nil {
			logger.Warn("redis status cache unavailable, continuing without it", zap.Error(err))
		} else {
			a.redisClient = client
			a.statusCache = redisstore.NewStatusStore(client, m, logger)
			a.cacheUpdate = a.subscribe()
		}
	} else {
		logger.Debug("redis status cache disabled")
	}

	a.source = a.openDevice(cfg, o.opener, m)

	capturer := capture.NewCapturer(capture.Config{
		Dir:       cfg.Capture.Dir,
		Extension: cfg.Capture.Extension,
		Timeout:   cfg.CaptureTimeout(),
	}, o.runner, o.now, m, logger)

	router := tollproto.NewRouter()
	router.Register(protocol.TagCapture, handlers.NewCaptureHandler(capturer, a.state, logger))
	router.Register(protocol.TagTransaction, handlers.NewTransactionHandler(store, a.state, mirror, o.now, m, logger))
	router.Register(protocol.TagInsufficient, handlers.NewInsufficientHandler(a.state, logger))

	processor := tollproto.NewProcessor(tollproto.NewDecoder(), router, journal, m, logger)
	a.loop = ingest.NewLoop(a.source, processor, a.state, logger)

	streamCtx, streamCancel := context.WithCancel(context.Background())
	a.streamCancel = streamCancel
	a.hub = ws.NewHub(logger)
	a.hubUpdates = a.subscribe()
	wsServer := ws.NewServer(streamCtx, a.hub, a.state, cfg.WSWriteTimeout(), logger)

	deps := httpserver.RouterDeps{
		Health:   httphandlers.NewHealthHandler(a.state, store),
		Status:   httphandlers.NewStatusHandlers(a.state, store, o.now, logger),
		Stream:   wsServer.HandleStatus,
		Gatherer: registry,
		Metrics:  m,
	}
	if cfg.AuthEnabled() {
		tokens := service.NewTokenService(cfg.Auth.Secret, cfg.JWTExpiration())
		auth := service.NewOperatorAuth(cfg.Auth.Operator, cfg.Auth.PasswordHash, password.NewBcryptHasher(0), tokens, logger)
		deps.Login = httphandlers.NewLoginHandler(auth, logger)
		deps.Auth = middleware.AuthMiddleware(tokens)
	} else {
		logger.Warn("api auth disabled, status endpoints are open")
	}

	a.router = httpserver.NewRouter(deps)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), a.router, logger)
	return a, nil
}

func (a *App) openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	sqlDB, err := db.NewPostgresDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := repository.EnsureSchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func (a *App) openDevice(cfg *config.Config, opener device.Opener, m *metrics.Metrics) ingest.LineSource {
	src, err := device.Open(device.PortConfig{
		Name:              cfg.Serial.Port,
		BaudRate:          cfg.Serial.BaudRate,
		ReadTimeout:       cfg.SerialReadTimeout(),
		ReconnectAttempts: cfg.Serial.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay(),
		MaxLineBytes:      cfg.Serial.MaxLineBytes,
	}, opener, m, a.logger)
	if err != nil {
		a.logger.Warn("serial device unavailable, running without device", zap.Error(err))
		a.state.SetDevice(service.DeviceNone)
		return device.NewNullSource()
	}
	a.state.SetDevice(service.DeviceConnected)
	return src
}

func (a *App) subscribe() <-chan service.StatusSnapshot {
	ch, cancel := a.state.Subscribe(statusBuffer)
	a.unsubscribe = append(a.unsubscribe, cancel)
	return ch
}

// Handler exposes the HTTP routes.
func (a *App) Handler() http.Handler {
	return a.router
}

// State exposes the status state machine.
func (a *App) State() *service.StatusState {
	return a.state
}

// Ledger exposes the transaction ledger.
func (a *App) Ledger() *ledger.Store {
	return a.store
}

// Run starts ingestion, the flush loop, status fan-out and the HTTP server. It returns when
// ctx is cancelled or the HTTP server fails. A lost device stops ingestion only; the API
// keeps serving the last known state.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.flusher.Start(ctx)
	go a.hub.Run(ctx, a.hubUpdates)
	if a.statusCache != nil {
		go a.statusCache.Run(ctx, a.cacheUpdate)
	}

	ingestErr := make(chan error, 1)
	go func() { ingestErr <- a.loop.Run(ctx) }()

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.Run(ctx) }()

	for {
		select {
		case err := <-ingestErr:
			ingestErr = nil
			if err != nil {
				a.logger.Error("ingestion stopped, api keeps serving last state", zap.Error(err))
			}
		case err := <-serverErr:
			cancel()
			a.streamCancel()
			a.waitIngest(ingestErr)
			return err
		case <-ctx.Done():
			a.streamCancel()
			a.waitIngest(ingestErr)
			return <-serverErr
		}
	}
}

// waitIngest lets an in-flight line, including a running capture, finish.
func (a *App) waitIngest(ingestErr <-chan error) {
	if ingestErr == nil {
		return
	}
	if err := <-ingestErr; err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("ingestion ended during shutdown", zap.Error(err))
	}
}

// Close flushes the ledger and releases resources.
func (a *App) Close() {
	if err := a.flusher.Stop(); err != nil {
		a.logger.Error("final ledger flush failed", zap.Error(err))
	}
	a.streamCancel()
	for _, cancel := range a.unsubscribe {
		cancel()
	}
	if err := a.source.Close(); err != nil {
		a.logger.Warn("failed to close serial device", zap.Error(err))
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
