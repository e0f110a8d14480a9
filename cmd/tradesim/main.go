package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tradesim/internal/api/rest"
	"tradesim/internal/config"
	"tradesim/internal/costmodel"
	"tradesim/internal/exchange/common"
	"tradesim/internal/exchange/okx"
	"tradesim/internal/feed"
	"tradesim/internal/infra/health"
	"tradesim/internal/infra/http/middleware"
	"tradesim/internal/infra/log"
	"tradesim/internal/infra/metrics"
	"tradesim/internal/infra/netutil"
	"tradesim/internal/infra/runner"
	"tradesim/internal/infra/version"
	"tradesim/internal/latency"
	"tradesim/internal/orderbook"
	"tradesim/internal/simulator"
	"tradesim/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	logger := log.NewLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exited with error")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metrics.Init(logger)
	tracker := latency.New(cfg.Latency.Window, latency.WithObserver(func(name string, d time.Duration) {
		metrics.ModelLatencyMs.WithLabelValues(name).Observe(float64(d) / float64(time.Millisecond))
	}))

	suite, err := costmodel.NewSuite(cfg.Suite())
	if err != nil {
		return err
	}
	params, err := cfg.OrderParams()
	if err != nil {
		return err
	}
	format, err := feed.ParseFormat(cfg.Feed.Format)
	if err != nil {
		return err
	}
	decoder, err := feed.NewDecoder(format)
	if err != nil {
		return err
	}

	client := okx.New(okx.Config{
		URL:             cfg.Feed.URL,
		InstID:          cfg.Feed.InstID,
		Channel:         cfg.Feed.Channel,
		Format:          format,
		PingInterval:    time.Duration(cfg.Feed.PingIntervalSeconds) * time.Second,
		ReadTimeout:     time.Duration(cfg.Feed.ReadTimeoutSeconds) * time.Second,
		BackoffInitial:  seconds(cfg.Feed.ReconnectInitialSeconds),
		BackoffMax:      seconds(cfg.Feed.ReconnectMaxSeconds),
		BackoffFactor:   cfg.Feed.ReconnectFactor,
		Buffer:          cfg.Feed.Buffer,
		ResyncBurst:     cfg.Feed.ResyncBurst,
		ResyncPerSecond: cfg.Feed.ResyncPerSecond,
	}, logger)
	var feedClient common.StreamFeed = client

	// full-book relays need no snapshot requests
	var requester common.SnapshotRequester = client
	if fb, ok := feedClient.(common.FullBookFeed); ok && fb.FullBookFrames() {
		requester = nil
	}

	sinks := []sink.Sink{sink.NewLog(logger)}
	if cfg.Redis.Addr != "" {
		rs := sink.NewRedis(sink.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			Channel:  cfg.Redis.Channel,
			TTL:      time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		})
		defer rs.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rs.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable; deliveries will be retried per estimate")
		}
		cancel()
		sinks = append(sinks, rs)
	}

	health.SetReady(false, simulator.Idle.String())
	sim, err := simulator.New(simulator.Config{
		Store:         orderbook.NewStore(),
		Decoder:       decoder,
		Suite:         suite,
		Tracker:       tracker,
		Requester:     requester,
		Consumer:      sink.NewMulti(sinks...),
		Params:        params,
		Exchange:      feedClient.Name(),
		StaleAfter:    time.Duration(cfg.Book.StaleAfterSeconds) * time.Second,
		ResyncTimeout: time.Duration(cfg.Feed.ResyncTimeoutSeconds) * time.Second,
		OnStateChange: func(_, to simulator.State) {
			health.SetReady(to == simulator.Streaming, to.String())
		},
	}, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           middleware.RequestID(middleware.Logger(logger)(routes(cfg, metrics.Handler(registry), sim, logger))),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	v := version.Get()
	logger.Info().Str("version", v.Version).Str("commit", v.Commit).Str("addr", cfg.Server.Addr).
		Str("feed", cfg.Feed.URL).Str("format", string(decoder.Format())).Msg("trade simulator started")

	g := runner.New(ctx, logger)
	g.Go("feed", feedClient.Run)
	g.Go("simulator", func(ctx context.Context) error {
		return sim.Run(ctx, feedClient.Events())
	})
	g.Go("http", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		health.SetReady(false, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	sim.Stop()
	logger.Info().Msg("shutdown complete")
	return err
}

func routes(cfg config.Config, metricsHandler http.Handler, sim *simulator.Simulator, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	admin := netutil.MustParseCIDRs(cfg.Server.AdminAllowCIDRs)
	mux.Handle("/metrics", middleware.AdminGate(admin, metricsHandler))
	mux.HandleFunc("/healthz", health.Healthz)
	mux.HandleFunc("/readyz", health.Readyz)
	mux.HandleFunc("/version", version.Handler)
	if cfg.Server.Pprof {
		mux.Handle("/debug/pprof/", middleware.AdminGate(admin, http.HandlerFunc(pprof.Index)))
		mux.Handle("/debug/pprof/cmdline", middleware.AdminGate(admin, http.HandlerFunc(pprof.Cmdline)))
		mux.Handle("/debug/pprof/profile", middleware.AdminGate(admin, http.HandlerFunc(pprof.Profile)))
		mux.Handle("/debug/pprof/symbol", middleware.AdminGate(admin, http.HandlerFunc(pprof.Symbol)))
		mux.Handle("/debug/pprof/trace", middleware.AdminGate(admin, http.HandlerFunc(pprof.Trace)))
	}
	mux.Handle("/", rest.New(sim, logger).Handler())
	return mux
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
