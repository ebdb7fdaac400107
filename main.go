package main

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"brqueue/internal/auth"
	configpkg "brqueue/internal/config"
	httpapi "brqueue/internal/http"
	"brqueue/internal/kernel"
	"brqueue/internal/logging"
	"brqueue/internal/networking"
	"brqueue/internal/session"
	"brqueue/internal/wire"
	"brqueue/internal/wsgateway"
)

func main() {
	startedAt := time.Now()

	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	k := kernel.New()
	authenticator := auth.NewStaticAuthenticator(cfg.Username, cfg.Password)
	authThrottle := networking.NewAuthFailureThrottle(cfg.AuthFailureWindow, cfg.AuthFailureBurst, nil)
	bandwidth := networking.NewBandwidthRegulator(0, nil)
	clients := networking.NewClientGate(cfg.MaxClients)

	dispatcher := &session.Dispatcher{
		Kernel:        k,
		Authenticator: authenticator,
		Log:           logger.With(logging.String("component", "dispatcher")),
		AuthThrottle:  authThrottle,
		Bandwidth:     bandwidth,
	}

	compressor, err := wire.CompressorByName(cfg.CompressionCodec)
	if err != nil {
		logger.Fatal("failed to configure compression codec", logging.Error(err))
	}
	codec := wire.NewCodec(compressor, cfg.CompressionThresholdBytes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	maxFrameBytes := uint32(math.MaxUint32)
	if cfg.MaxPayloadBytes < math.MaxUint32 {
		maxFrameBytes = uint32(cfg.MaxPayloadBytes)
	}
	tcpServer := &session.Server{
		Dispatcher:    dispatcher,
		Log:           logger.With(logging.String("component", "tcp-transport")),
		Codec:         codec,
		MaxFrameBytes: maxFrameBytes,
		Clients:       clients,
	}

	tcpListener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		logger.Fatal("failed to start raw stream listener", logging.Error(err), logging.String("address", cfg.Address))
	}
	go func() {
		logger.Info("raw stream transport listening", logging.String("address", cfg.Address))
		if err := tcpServer.Serve(ctx, tcpListener); err != nil {
			logger.Error("raw stream transport terminated", logging.Error(err))
		}
	}()

	originLogger := logger.With(logging.String("component", "origin-check"))
	gateway := &wsgateway.Gateway{
		Dispatcher: dispatcher,
		Log:        logger.With(logging.String("component", "ws-transport")),
		Upgrader: websocket.Upgrader{
			CheckOrigin: wsgateway.BuildOriginChecker(originLogger, cfg.AllowedOrigins),
		},
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		PingInterval:    cfg.PingInterval,
		Clients:         clients,
	}

	opsHandlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:      logger.With(logging.String("component", "ops")),
		Stats:       k.Stats,
		Pending:     k.GetAll,
		Bandwidth:   bandwidth,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(time.Minute, 60, nil),
		StartedAt:   startedAt,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	opsHandlers.Register(mux)

	wsServer := &http.Server{
		Addr:    cfg.WSAddress,
		Handler: logging.HTTPTraceMiddleware(logger)(mux),
	}

	go func() {
		logger.Info("websocket transport listening", logging.String("address", cfg.WSAddress))
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("websocket transport terminated", logging.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, draining connections")
	cancel()
	tcpListener.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket server shutdown error", logging.Error(err))
	}
}
