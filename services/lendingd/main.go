package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"creditpool/core/events"
	"creditpool/native/bank"
	nativecommon "creditpool/native/common"
	"creditpool/native/lending"
	"creditpool/observability"
	"creditpool/observability/logging"
	telemetry "creditpool/observability/otel"
	"creditpool/services/lending/journal"
	lendingserver "creditpool/services/lending/server"
	"creditpool/services/lendingd/config"
	"creditpool/state/lendingstore"
	"creditpool/storage"
)

const serviceName = "lendingd"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("CREDITPOOL_ENV"))
	logger := logging.SetupWithOptions(serviceName, env, logging.Options{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	if err := run(cfg, env, logger); err != nil {
		logger.Error("lendingd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, env string, logger *slog.Logger) error {
	params, err := config.LoadEngineParams(cfg.EngineParams)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	engineAddr := cfg.EngineAddressOrDefault()
	owner := cfg.OwnerAddress()

	vault, err := bank.Open(engineAddr, db)
	if err != nil {
		return fmt.Errorf("open bank: %w", err)
	}
	eventLog, err := journal.Open(cfg.Journal.Path, nil)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer eventLog.Close()
	eventLog.SetLogger(logger)
	if err := eventLog.Verify(); err != nil {
		return fmt.Errorf("verify journal: %w", err)
	}

	controls := nativecommon.NewControls(owner)
	engine, err := lending.NewEngine(engineAddr, params)
	if err != nil {
		return err
	}
	engine.SetState(lendingstore.New(db))
	engine.SetVault(vault)
	engine.SetPauses(controls)
	engine.SetOwners(controls)
	engine.SetEmitter(events.Fanout{eventLog, observability.Events()})
	engine.SetMetrics(observability.Lending())
	engine.SetLogger(logger.With("component", "lending"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.RegisterAssets(ctx, owner, params.Assets); err != nil {
		return fmt.Errorf("register assets: %w", err)
	}

	srv, err := lendingserver.New(lendingserver.Config{
		ServiceName: serviceName,
		Auth: lendingserver.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			AdminScope: cfg.Auth.AdminScope,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimit: lendingserver.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		CORS:           lendingserver.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		RequestTimeout: cfg.RequestTimeout,
	}, engine, controls, eventLog, logger)
	if err != nil {
		return fmt.Errorf("configure server: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	if cfg.TLS.AllowInsecure {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			_ = listener.Close()
			return errors.New("plaintext lendingd mode is restricted to loopback listeners or dev environment")
		}
	}
	tlsCfg, err := loadServerTLS(cfg.TLS)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("configure tls: %w", err)
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         tlsCfg,
		ErrorLog:          log.Default(),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "addr", cfg.ListenAddress, "tls", tlsCfg != nil, "engine", engineAddr.Hex())
		if tlsCfg != nil {
			serverErr <- httpServer.ServeTLS(listener, "", "")
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

func loadServerTLS(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		if cfg.AllowInsecure {
			return nil, nil
		}
		return nil, fmt.Errorf("tls credentials are required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if cfg.MTLSEnabled() {
		pem, err := os.ReadFile(cfg.ClientCAPath)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse client ca: invalid pem data")
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsCfg.ClientAuth = tls.NoClientCert
	}
	return tlsCfg, nil
}
