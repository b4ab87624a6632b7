package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authbridge/internal/accounts"
	"github.com/dropDatabas3/authbridge/internal/audit"
	"github.com/dropDatabas3/authbridge/internal/backend"
	"github.com/dropDatabas3/authbridge/internal/cache"
	"github.com/dropDatabas3/authbridge/internal/config"
	"github.com/dropDatabas3/authbridge/internal/delegated"
	httpapi "github.com/dropDatabas3/authbridge/internal/http"
	"github.com/dropDatabas3/authbridge/internal/metrics"
	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/rate"
	"github.com/dropDatabas3/authbridge/internal/security/secretbox"
	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/token"
	"github.com/dropDatabas3/authbridge/internal/token/google"
	"github.com/dropDatabas3/authbridge/internal/token/microsoft"
)

var version = "dev"

func main() {
	// .env primero: las overrides de config dependen del entorno cargado
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:     "authbridge",
		Short:   "Bridge de sesión de autenticación multi-provider",
		Version: version,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("AUTHBRIDGE_CONFIG"), "ruta al config YAML")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el bridge HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("LOG_LEVEL"),
		ServiceName: "authbridge",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ToContext(ctx, log)

	// cache + sello de cuentas
	memTTL, _ := time.ParseDuration(cfg.Cache.Memory.DefaultTTL)
	cacheClient, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: memTTL,
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer func() { _ = cacheClient.Close() }()

	var box *secretbox.Box
	switch {
	case cfg.Security.SecretBoxMasterKey != "":
		box, err = secretbox.New(cfg.Security.SecretBoxMasterKey)
	case os.Getenv(secretbox.EnvMasterKey) != "":
		box, err = secretbox.NewFromEnv()
	default:
		log.Warn("sin master key: las cuentas persistidas van en claro (solo dev)")
	}
	if err != nil {
		return fmt.Errorf("secretbox: %w", err)
	}
	store := accounts.New(cacheClient, box, cfg.Session.AccountTTL)

	// providers
	providers := provider.Resolve(cfg)
	for _, p := range []provider.Identity{provider.Microsoft, provider.Google, provider.Traditional} {
		rc, ok := providers.Get(p)
		if !ok {
			continue
		}
		log.Info("provider resuelto",
			logger.Provider(string(p)),
			logger.Bool("enabled", rc.Enabled),
			logger.Any("missing", rc.Missing),
		)
	}

	// backend
	var be *backend.Client
	if cfg.Backend.BaseURL != "" {
		be, err = backend.New(backend.Config{
			BaseURL:      cfg.Backend.BaseURL,
			ValidatePath: cfg.Backend.ValidatePath,
			TokenPath:    cfg.Backend.TokenPath,
			Timeout:      cfg.Backend.Timeout,
		})
		if err != nil {
			return fmt.Errorf("backend: %w", err)
		}
	}

	// camino legacy /.auth (deprecado)
	var legacy *httpapi.LegacyHandlers
	if cfg.Legacy.Enabled {
		lc, err := delegated.New(cfg.Legacy.BaseURL)
		if err != nil {
			return fmt.Errorf("legacy: %w", err)
		}
		legacy = &httpapi.LegacyHandlers{Client: lc}
		log.Warn("camino legacy /.auth habilitado; migrar al modelo de tokens",
			logger.String("base_url", cfg.Legacy.BaseURL))
	}

	// auditoría
	trail, err := audit.New(ctx, audit.Config{Driver: cfg.Audit.Driver, DSN: cfg.Audit.DSN})
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	// acquirers
	broker := httpapi.NewPromptBroker()
	acquirers := make(map[provider.Identity]token.Acquirer)
	var msClient *microsoft.Client
	if rc, ok := providers.Get(provider.Microsoft); ok && rc.Enabled {
		msClient, err = microsoft.New(ctx, rc, store, microsoft.Options{
			Prompt:             broker.Prompt,
			InteractiveTimeout: cfg.Session.InteractiveTimeout,
		})
		if err != nil {
			return fmt.Errorf("microsoft: %w", err)
		}
		acquirers[provider.Microsoft] = msClient
	}
	var googleVerifier *google.Verifier
	if rc, ok := providers.Get(provider.Google); ok && rc.Enabled {
		googleVerifier = google.New(rc.ClientID)
	}

	// coordinador
	coordinator := session.New(session.Deps{
		Providers: providers,
		Acquirers: acquirers,
		Google:    googleVerifier,
		Backend:   be,
		Store:     store,
		Trail:     trail,
	})
	defer func() { _ = coordinator.Close() }()

	if err := coordinator.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	st := coordinator.State()
	log.Info("sesión inicializada",
		logger.String("status", string(st.Status)),
		logger.Bool("authenticated", st.Authenticated()),
	)

	// métricas + router
	metricsHandler, err := metrics.Register(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	var throttle rate.Limiter
	if rb, ok := cacheClient.(cache.RedisBackend); ok {
		throttle = rate.NewRedisLimiter(rb.Redis(), "rl:login", cfg.Security.LoginRateMax, cfg.Security.LoginRateWindow)
	} else {
		throttle = rate.NewMemoryLimiter(cfg.Security.LoginRateMax, cfg.Security.LoginRateWindow)
	}
	router := httpapi.NewRouter(httpapi.RouterDeps{
		Handlers: &httpapi.Handlers{
			Coordinator: coordinator,
			Microsoft:   msClient,
			Prompt:      broker,
			LoginPath:   cfg.Server.LoginPath,
		},
		State:              coordinator,
		LoginPath:          cfg.Server.LoginPath,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Metrics:            metricsHandler,
		LoginThrottle:      throttle,
		Legacy:             legacy,
	})

	srv := httpapi.NewServer(cfg.Server.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("bridge escuchando", logger.String("addr", cfg.Server.Addr))
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("apagando")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
	}
	return nil
}
