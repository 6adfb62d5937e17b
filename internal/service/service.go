package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/KrishmiH/supermarket-pos-system/internal/cache"
	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
	"github.com/KrishmiH/supermarket-pos-system/internal/xid"
)

const (
	defaultRecentSalesLimit = 20
	defaultRecentSalesMax   = 100
	idempotencyTTL          = 24 * time.Hour
)

// DefaultTaxRate applies when Options leaves the rate unset.
var DefaultTaxRate = decimal.RequireFromString("0.05")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type Options struct {
	Idempotency    cache.IdempotencyStore
	Receipts       *xid.ReceiptGenerator
	Clock          Clock
	Logger         *zap.Logger
	// DefaultTaxRate is used for carts without a rate. Nil means 0.05.
	DefaultTaxRate *decimal.Decimal
	RecentSalesMax int
}

type Service struct {
	repo           store.Repository
	idem           cache.IdempotencyStore
	receipts       *xid.ReceiptGenerator
	clock          Clock
	logger         *zap.Logger
	validate       *validator.Validate
	defaultTaxRate decimal.Decimal
	recentSalesMax int
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Idempotency == nil {
		opts.Idempotency = cache.NoopIdempotencyStore{}
	}
	if opts.Receipts == nil {
		opts.Receipts = xid.NewReceiptGenerator(nil)
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	taxRate := DefaultTaxRate
	if opts.DefaultTaxRate != nil {
		taxRate = *opts.DefaultTaxRate
	}
	if taxRate.IsNegative() {
		taxRate = decimal.Zero
	}
	if opts.RecentSalesMax < 1 {
		opts.RecentSalesMax = defaultRecentSalesMax
	}

	return &Service{
		repo:           repo,
		idem:           opts.Idempotency,
		receipts:       opts.Receipts,
		clock:          opts.Clock,
		logger:         opts.Logger.Named("service"),
		validate:       validator.New(),
		defaultTaxRate: taxRate,
		recentSalesMax: opts.RecentSalesMax,
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func actorField(ctx context.Context) zap.Field {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return zap.String("actor", "system")
	}
	return zap.String("actor", actor.Username)
}
