package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/semaphore"

	"creditpool/native/lending"
	"creditpool/services/lending/journal"
)

// Engine is the subset of the lending engine exposed over HTTP.
type Engine interface {
	Deposit(ctx context.Context, call lending.Call, asset common.Address, amount *uint256.Int) (*uint256.Int, error)
	Withdraw(ctx context.Context, call lending.Call, asset common.Address, shares *uint256.Int) (*uint256.Int, error)
	TransferClaim(ctx context.Context, call lending.Call, asset, to common.Address, amount *uint256.Int) (*uint256.Int, error)
	Borrow(ctx context.Context, call lending.Call, req lending.BorrowRequest) (uint64, error)
	Repay(ctx context.Context, call lending.Call, index uint64, amount *uint256.Int) (*lending.RepayResult, error)
	Liquidate(ctx context.Context, call lending.Call, borrower common.Address, index uint64) (*lending.LiquidationResult, error)

	AddAsset(ctx context.Context, caller, asset common.Address, maxBorrowLimit *uint256.Int) error
	RemoveAsset(ctx context.Context, caller, asset common.Address) error
	SetMaxBorrowLimit(ctx context.Context, caller, asset common.Address, limit *uint256.Int) error
	WithdrawProtocolFees(ctx context.Context, caller, asset, to common.Address, amount *uint256.Int) error

	Pool(asset common.Address) (*lending.AssetPool, error)
	Assets() ([]common.Address, error)
	Profile(addr common.Address) (*lending.CreditProfile, error)
	Positions(addr common.Address) ([]*lending.BorrowPosition, error)
	PositionDebt(addr common.Address, index uint64) (lending.Debt, error)
	RedeemableValue(asset, account common.Address) (*uint256.Int, error)
	SharesOf(asset, account common.Address) (*uint256.Int, error)
	CanBorrow(addr common.Address) (bool, error)
}

// Controls pauses and resumes the lending module.
type Controls interface {
	Pause(caller common.Address, module string) error
	Unpause(caller common.Address, module string) error
}

// EventLog lists committed events in sequence order.
type EventLog interface {
	List(after uint64, limit int) ([]journal.Entry, error)
}

// Config captures the HTTP surface settings.
type Config struct {
	ServiceName    string
	Auth           AuthConfig
	RateLimit      RateLimit
	CORS           CORSConfig
	RequestTimeout time.Duration
}

// Server exposes the lending engine over HTTP/JSON.
type Server struct {
	engine   Engine
	controls Controls
	events   EventLog
	auth     *Authenticator
	limiter  *RateLimiter
	cors     CORSConfig
	logger   *slog.Logger
	service  string
	timeout  time.Duration
	// writes admits one mutating request into the engine at a time.
	writes *semaphore.Weighted
}

// New constructs the HTTP server. controls and events may be nil, in which
// case the corresponding routes report 503.
func New(cfg Config, engine Engine, controls Controls, events EventLog, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("lending server: engine required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	auth, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lendingd"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Server{
		engine:   engine,
		controls: controls,
		events:   events,
		auth:     auth,
		limiter:  NewRateLimiter(cfg.RateLimit),
		cors:     cfg.CORS,
		logger:   logger,
		service:  cfg.ServiceName,
		timeout:  cfg.RequestTimeout,
		writes:   semaphore.NewWeighted(1),
	}, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(instrument(s.logger))
	r.Use(cors(s.cors))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v chi.Router) {
		v.Use(s.auth.Middleware)
		v.Use(s.limiter.Middleware)

		v.Get("/assets", s.listAssets)
		v.Get("/pools/{asset}", s.getPool)
		v.Get("/pools/{asset}/balances/{addr}", s.getBalance)
		v.Get("/accounts/{addr}/profile", s.getProfile)
		v.Get("/accounts/{addr}/positions", s.listPositions)
		v.Get("/accounts/{addr}/positions/{index}/debt", s.getDebt)
		v.Get("/events", s.listEvents)

		v.Group(func(m chi.Router) {
			m.Use(s.serialize)
			m.Post("/deposit", s.deposit)
			m.Post("/withdraw", s.withdraw)
			m.Post("/transfer", s.transfer)
			m.Post("/borrow", s.borrow)
			m.Post("/repay", s.repay)
			m.Post("/liquidate", s.liquidate)
		})

		v.Route("/admin", func(a chi.Router) {
			a.Use(s.auth.RequireScopes(s.auth.AdminScope()))
			a.Use(s.serialize)
			a.Post("/assets", s.addAsset)
			a.Delete("/assets/{asset}", s.removeAsset)
			a.Post("/assets/{asset}/limit", s.setLimit)
			a.Post("/fees/withdraw", s.withdrawFees)
			a.Post("/pause", s.pause)
			a.Post("/unpause", s.unpause)
		})
	})

	return otelhttp.NewHandler(r, s.service)
}

// serialize queues mutating requests so the engine never sees two in flight.
// A request that cannot be admitted within the request timeout gets 504.
func (s *Server) serialize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.context(r.Context())
		defer cancel()
		if err := s.writes.Acquire(ctx, 1); err != nil {
			s.writeError(w, "admit", err)
			return
		}
		defer s.writes.Release(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}
