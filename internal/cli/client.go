package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go"
	"github.com/mobilebackend/cloudbackend.go/internal/codec"
	"github.com/mobilebackend/cloudbackend.go/pkg/config"
	"github.com/mobilebackend/cloudbackend.go/pkg/connection"
	httpconn "github.com/mobilebackend/cloudbackend.go/pkg/connection/http"
	"github.com/mobilebackend/cloudbackend.go/pkg/metrics"
	"github.com/mobilebackend/cloudbackend.go/pkg/push"
	"github.com/mobilebackend/cloudbackend.go/pkg/watermark"
)

var errNoPush = errors.New("push url and sender id are required to receive updates")

// client is the wired client stack of one CLI invocation. Handlers run on
// loop, which the command drives.
type client struct {
	async     *cloudbackend.Async
	messaging *cloudbackend.Messaging
	loop      *cloudbackend.LoopExecutor
	provider  *push.WebSocketProvider
	registrar *push.Registrar
	marks     watermark.Store
	conn      *httpconn.Connection
	metrics   *http.Server
	logger    zerolog.Logger
}

func newClient(cfg *config.Config, logger zerolog.Logger) (*client, error) {
	c, ok := codec.ByName(cfg.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", cfg.Codec)
	}
	connCfg := connection.NewConfig(cfg.EndpointURL())
	connCfg.Codec = c
	connCfg.Logger = logger
	connCfg.Timeout = cfg.Timeout
	connCfg.MaxElapsedRetry = cfg.MaxElapsedRetry
	conn := httpconn.New(connCfg)

	var marks watermark.Store = watermark.NewMemoryStore()
	if cfg.WatermarkPath != "" {
		var err error
		if marks, err = watermark.OpenPebble(cfg.WatermarkPath, nil, logger); err != nil {
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	backend := cloudbackend.NewBackend(conn, logger)
	backend.SetCredential(cfg.Credential)

	cl := &client{
		loop:   cloudbackend.NewLoopExecutor(),
		marks:  marks,
		conn:   conn,
		logger: logger,
	}
	opts := []cloudbackend.Option{
		cloudbackend.WithExecutor(cl.loop),
		cloudbackend.WithLogger(logger),
		cloudbackend.WithMetrics(m),
		cloudbackend.WithWorkers(cfg.Workers),
	}

	var registrar *push.Registrar
	if cfg.PushURL != "" {
		cl.provider = push.NewWebSocketProvider(cfg.PushURL, logger)
		registrar = push.NewRegistrar(cfg.SenderID, cl.provider, logger)
		registrar.Timeout = cfg.RegistrationTimeout
		registrar.ReconnectInterval = cfg.ReconnectInterval
		opts = append(opts, cloudbackend.WithRegistration(registrar))
	}

	cl.async = cloudbackend.NewAsync(backend, opts...)
	cl.messaging = cloudbackend.NewMessaging(cl.async, marks, logger, m)

	if cl.provider != nil {
		cl.registrar = registrar
		cl.provider.SetReceiver(push.NewRouter(cl.async, logger, m))
		cl.provider.SetDisconnectHandler(registrar.Disconnected)
		registrar.SetReregisteredHandler(func(string) { cl.async.Resubscribe() })
		if err := registrar.RegisterIfNeeded(context.Background()); err != nil {
			cl.Close(context.Background())
			return nil, err
		}
	}

	if cfg.MetricsAddr != "" {
		cl.metrics = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := cl.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}
	return cl, nil
}

func (c *client) canPush() bool {
	return c.provider != nil
}

// Close stops the async layer and releases the connections and stores.
func (c *client) Close(ctx context.Context) {
	if c.registrar != nil {
		c.registrar.Close()
	}
	c.async.Close()
	if c.provider != nil {
		if err := c.provider.Close(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("closing push connection")
		}
	}
	if err := c.conn.Close(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("closing connection")
	}
	if err := c.marks.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("closing watermark store")
	}
	if c.metrics != nil {
		_ = c.metrics.Shutdown(ctx)
	}
}

// await drives the loop until f completes, so its handler has run.
func await[T any](ctx context.Context, loop *cloudbackend.LoopExecutor, f *cloudbackend.Future[T]) (T, error) {
	runCtx, stop := context.WithCancel(ctx)
	go func() {
		select {
		case <-f.Done():
		case <-runCtx.Done():
		}
		stop()
	}()
	_ = loop.Run(runCtx)
	// flush what was queued as the future completed
	_ = loop.Run(runCtx)
	return f.Await(ctx)
}
