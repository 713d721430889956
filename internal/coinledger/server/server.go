package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/cache"
	"github.com/25x8/coinledger/internal/coinledger/config"
	"github.com/25x8/coinledger/internal/coinledger/handlers"
	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/middleware"
	"github.com/25x8/coinledger/internal/coinledger/repository"
	"github.com/25x8/coinledger/internal/coinledger/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	log        *logger.Logger
	repo       *repository.Repository
	cache      interface{ Close() error }
	reconciler *service.Reconciler
	handler    *handlers.Handler
	httpServer *http.Server
}

// NewServer creates a new server. Init must succeed before Router or Run
// are used.
func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	return &Server{
		cfg:  cfg,
		log:  log,
		repo: repository.NewRepository(log),
	}
}

// Init opens storage, connects the balance cache, builds the services and
// seeds the quest catalog
func (s *Server) Init(ctx context.Context) error {
	if err := s.repo.InitDB(s.cfg.DatabaseDriver, s.cfg.DatabaseURI); err != nil {
		return err
	}

	var balanceCache service.BalanceCache = cache.NopBalanceCache{}
	s.cache = cache.NopBalanceCache{}
	if s.cfg.RedisAddr != "" {
		rc, err := cache.NewRedisBalanceCache(cache.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
			TTL:      s.cfg.BalanceCacheTTL,
		})
		if err != nil {
			// reads fall back to the database
			s.log.Warn("balance cache unavailable, continuing without it", "addr", s.cfg.RedisAddr, "error", err)
		} else {
			balanceCache = rc
			s.cache = rc
		}
	}

	var orders service.PaidOrderCounter
	if s.cfg.OrdersSystemAddress != "" {
		orders = service.NewOrderClient(s.cfg.OrdersSystemAddress)
	}

	ledger := service.NewLedger(s.repo, balanceCache, s.log)
	tracker := service.NewQuestTracker(s.repo, ledger, s.log)
	attributor := service.NewReferralAttributor(s.repo, ledger, tracker, s.log)
	purchases := service.NewPurchaseMilestones(s.repo, ledger, tracker, attributor, orders, s.log)
	registration := service.NewRegistration(s.repo, ledger, tracker, attributor, s.log)
	s.reconciler = service.NewReconciler(s.repo, ledger, s.cfg.ReconcileInterval, s.log)
	s.handler = handlers.NewHandler(ledger, tracker, attributor, purchases, registration, s.reconciler, s.log)

	return tracker.SeedCatalog(ctx, s.cfg.SeedQuests)
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	jwtConfig := &middleware.JWTConfig{SecretKey: s.cfg.JWTSecret}
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtConfig))

		r.Route("/loyalty", func(r chi.Router) {
			r.Post("/register", s.handler.Register)
			r.Get("/balance", s.handler.GetBalance)
			r.Get("/history", s.handler.GetHistory)
			r.Post("/redeem", s.handler.Redeem)
			r.Get("/quests", s.handler.GetQuests)
			r.Get("/referrals", s.handler.GetReferrals)
		})

		r.Route("/hooks", func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleService))
			r.Post("/purchases", s.handler.PurchaseCompleted)
			r.Post("/profile-completed", s.handler.ProfileCompleted)
			r.Post("/quests/{code}/advance", s.handler.AdvanceQuest)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleAdmin))
			r.Post("/reconcile", s.handler.ReconcileAll)
			r.Post("/reconcile/{userID}", s.handler.ReconcileUser)
			r.Post("/credit", s.handler.Credit)
		})
	})

	return otelhttp.NewHandler(r, "coinledger")
}

// Run initializes the server and serves until Shutdown
func (s *Server) Run() error {
	if s.handler == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.Init(ctx)
		cancel()
		if err != nil {
			return err
		}
	}

	s.reconciler.Start()

	s.httpServer = &http.Server{
		Addr:              s.cfg.RunAddress,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("starting server", "address", s.cfg.RunAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}

	if s.reconciler != nil {
		s.reconciler.Stop()
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.Warn("balance cache close failed", "error", err)
		}
	}

	return s.repo.Close()
}
