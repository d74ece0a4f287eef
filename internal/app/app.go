package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"hexhold/server/internal/actions"
	"hexhold/server/internal/hexgrid"
	servernet "hexhold/server/internal/net"
	"hexhold/server/internal/net/ws"
	"hexhold/server/internal/roads"
	"hexhold/server/internal/roads/spline"
	"hexhold/server/internal/storage/sqlite"
	"hexhold/server/internal/telemetry"
	"hexhold/server/logging"
	loggingSinks "hexhold/server/logging/sinks"
)

const (
	sinkConsole = "console"
	sinkJSON    = "json"

	shutdownTimeout = 5 * time.Second
)

// Server is the assembled process: stores, processor, loop and HTTP surface.
type Server struct {
	Config    Config
	Router    *logging.Router
	Metrics   *logging.Metrics
	Network   *roads.Network
	Processor *actions.Processor
	Loop      *actions.Loop
	Hub       *ws.Hub
	Handler   http.Handler

	logger  telemetry.Logger
	closers []func() error
}

// Build wires every component for cfg without starting the loop or listener.
func Build(ctx context.Context, cfg Config, logger telemetry.Logger) (*Server, error) {
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	fallbackLogger := log.Default()
	if provider, ok := logger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	s := &Server{Config: cfg, Metrics: &logging.Metrics{}, logger: logger}

	logConfig := cfg.LoggingConfig()
	sinks, err := s.buildSinks(logConfig)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	s.Router = router
	metrics := telemetry.WrapMetrics(s.Metrics)

	var (
		segments  roads.Store
		actStore  actions.Store
		buildings actions.BuildingStore
	)
	if cfg.DatabasePath == "" {
		memSegments := roads.NewMemoryStore()
		memActions := actions.NewMemoryStore()
		segments, actStore, buildings = memSegments, memActions, memActions
		logger.Printf("no database configured, state is kept in memory")
	} else {
		decoder := roads.PathDecoder{Metrics: metrics, Publisher: router}
		store, err := sqlite.Open(ctx, cfg.DatabasePath, decoder)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		segments, actStore, buildings = store, store, store
	}

	layout := cfg.Layout()
	s.Network = roads.NewNetwork(segments, layout, spline.NewGenerator(cfg.SplineConfig()),
		roads.WithPublisher(router),
		roads.WithMetrics(metrics),
	)
	renderer := roads.NewChunkRenderer(segments, layout, cfg.SDFConfig())
	s.Hub = ws.NewHub(logger, metrics)

	deps := actions.Deps{
		Actions:   actStore,
		Buildings: buildings,
		Network:   s.Network,
		Renderer:  renderer,
		Router:    hexgrid.Router{Terrain: hexgrid.OpenTerrain{}},
		Notifier:  s.Hub,
		Clock:     logging.SystemClock{},
		Logger:    logger,
		Publisher: router,
		Metrics:   metrics,
	}
	s.Processor, err = actions.NewProcessor(cfg.ProcessorConfig(), deps)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	if err := s.Processor.Restore(ctx); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("restore actions: %w", err)
	}
	s.Loop = actions.NewLoop(s.Processor, actions.LoopConfig{Interval: cfg.TickInterval}, actions.LoopHooks{}, deps)

	sessions := ws.NewHandler(s.Hub, s.Processor, ws.HandlerConfig{Logger: logger, Publisher: router})
	s.Handler = servernet.NewHTTPHandler(s.Hub, servernet.HTTPHandlerConfig{
		Logger:        logger,
		Actions:       s.Processor,
		Renderer:      renderer,
		Sessions:      sessions,
		Metrics:       s.Metrics,
		RouterStats:   router.Stats,
		Observability: cfg.Observability,
	})
	return s, nil
}

func (s *Server) buildSinks(cfg logging.Config) ([]logging.NamedSink, error) {
	var sinks []logging.NamedSink
	if cfg.HasSink(sinkConsole) {
		sinks = append(sinks, logging.NamedSink{Name: sinkConsole, Sink: loggingSinks.NewConsoleSink(os.Stdout, cfg.Console)})
	}
	if cfg.HasSink(sinkJSON) {
		var w io.Writer = os.Stdout
		if cfg.JSON.Path != "" {
			rotating := &lumberjack.Logger{
				Filename:   cfg.JSON.Path,
				MaxSize:    s.Config.LogJSONMaxSizeMB,
				MaxBackups: s.Config.LogJSONMaxBackups,
			}
			s.closers = append(s.closers, rotating.Close)
			w = rotating
		}
		sinks = append(sinks, logging.NamedSink{Name: sinkJSON, Sink: loggingSinks.NewJSON(w, cfg.JSON.FlushInterval)})
	}
	return sinks, nil
}

// Close flushes the logging router and releases stores and files.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.Router != nil {
		if err := s.Router.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close logging router: %w", err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Serve runs the tick loop and the HTTP listener until ctx is cancelled or
// either fails.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.Config.ListenAddr, Handler: s.Handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Loop.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Printf("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Run builds the server from cfg and serves until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	s, err := Build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if cerr := s.Close(closeCtx); cerr != nil {
			s.logger.Printf("shutdown: %v", cerr)
		}
	}()
	return s.Serve(ctx)
}
