package main

import (
	"car-management/config"
	"car-management/handlers/api/cars"
	"car-management/handlers/auth"
	authMiddleware "car-management/middleware"
	"car-management/service/accounts"
	carsvc "car-management/service/cars"
	"car-management/stores"
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
)

type server struct {
	cfg       *config.Config
	tokens    *auth.Tokens
	accounts  *accounts.Service
	cars      *carsvc.Service
	media     http.Handler
	providers []*auth.OAuthProvider
}

func setupRouter(s *server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello Car Management"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	if s.media != nil {
		r.Handle("/media/*", http.StripPrefix("/media", s.media))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", auth.HandleSignup(s.accounts))
		r.Post("/login", auth.HandleLogin(s.accounts))
		r.Post("/refresh", auth.HandleRefresh(s.accounts))
		for _, p := range s.providers {
			r.Get("/"+p.Name+"/login", p.HandleLogin())
			r.Get("/"+p.Name+"/callback", p.HandleCallback(s.accounts))
		}
	})

	limits := cars.Limits{MaxFiles: s.cfg.MaxUploadFiles, MaxFileBytes: s.cfg.MaxUploadBytes}
	r.Route("/api/cars", func(r chi.Router) {
		r.Use(authMiddleware.AuthJWT(s.tokens))
		r.Post("/", cars.HandleCreateCar(s.cars, limits))
		r.Get("/", cars.HandleListCars(s.cars))
		r.Get("/search", cars.HandleSearchCars(s.cars))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", cars.HandleGetCar(s.cars))
			r.Put("/", cars.HandleUpdateCar(s.cars, limits))
			r.Delete("/", cars.HandleDeleteCar(s.cars))
		})
	})

	return r
}

func setupProviders(ctx context.Context, cfg *config.Config) []*auth.OAuthProvider {
	var providers []*auth.OAuthProvider
	if cfg.GitHubClientID != "" {
		providers = append(providers, auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL))
		logrus.Info("GitHub login enabled")
	}
	if cfg.OIDCIssuerURL != "" {
		p, err := auth.NewOIDCProvider(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL)
		if err != nil {
			logrus.WithError(err).Error("OIDC login disabled")
		} else {
			providers = append(providers, p)
			logrus.WithField("issuer", cfg.OIDCIssuerURL).Info("OIDC login enabled")
		}
	}
	return providers
}

func waitForShutdown(srv *http.Server) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ctx := context.Background()
	store, closeStore, err := stores.GetStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open store")
	}
	blobStore, err := stores.GetBlobStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open blob store")
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	opts := carsvc.DefaultOptions()
	opts.MaxFiles = cfg.MaxUploadFiles
	opts.MaxFileBytes = cfg.MaxUploadBytes
	opts.UploadConcurrency = cfg.UploadConcurrency
	opts.BrowseAllOnEmptySearch = cfg.BrowseAllOnEmptySearch

	s := &server{
		cfg:       cfg,
		tokens:    tokens,
		accounts:  accounts.NewService(store, tokens, clock.WallClock),
		cars:      carsvc.NewService(store, blobStore, opts),
		providers: setupProviders(ctx, cfg),
	}
	if m, ok := blobStore.(stores.MediaHandler); ok {
		s.media = m.Handler()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           setupRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithField("addr", cfg.ListenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(srv)

	s.cars.Wait()
	if err := closeStore(context.Background()); err != nil {
		logrus.WithError(err).Error("Failed to close store")
	}
}
