package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/pricing"
	"pharmapos/backend/internal/report"
	"pharmapos/backend/internal/sale"
	"pharmapos/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service is the boundary the HTTP layer talks to. Catalog writes are
// admin-only; sales and reports are open to any authenticated actor.
type Service struct {
	repo    store.Repository
	sales   *sale.Engine
	reports *report.Aggregator
	logger  *zap.Logger
}

func New(repo store.Repository, sales *sale.Engine, reports *report.Aggregator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		sales:   sales,
		reports: reports,
		logger:  logger.Named("service"),
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product, err := resolveProduct(in)
	if err != nil {
		return domain.Product{}, err
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", created.ID, fmt.Sprintf("name=%s,stock=%d,units_per_box=%d", created.Name, created.Stock, created.UnitsPerBox))
	return *created, nil
}

// UpdateProduct replaces the whole record with a fresh resolution of in.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product, err := resolveProduct(in)
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = id
	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", updated.ID, fmt.Sprintf("name=%s,stock=%d,units_per_box=%d", updated.Name, updated.Stock, updated.UnitsPerBox))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "product_delete", id, "")
	return nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	return s.sales.CreateSale(ctx, req.Items)
}

func (s *Service) SalesForMonth(ctx context.Context) (domain.MonthlySales, error) {
	return s.reports.SalesForMonth(ctx)
}

func (s *Service) SalesForDay(ctx context.Context, date string) (domain.DailySales, error) {
	return s.reports.SalesForDay(ctx, date)
}

func (s *Service) DailyClosing(ctx context.Context, date string) (domain.DailyClosing, error) {
	return s.reports.DailyClosing(ctx, date)
}

func (s *Service) TopProducts(ctx context.Context, period domain.ReportPeriod, date string) ([]domain.TopProduct, error) {
	return s.reports.TopProducts(ctx, period, date)
}

func resolveProduct(in domain.ProductInput) (domain.Product, error) {
	product := pricing.Resolve(in)
	if product.Name == "" {
		return domain.Product{}, &store.ValidationError{Field: "name", Reason: "is required"}
	}
	return product, nil
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, productID int64, detail string) {
	actor, _ := ActorFromContext(ctx)
	s.logger.Info("audit",
		zap.String("action", action),
		zap.String("actor", actor.Username),
		zap.Int64("product_id", productID),
		zap.String("detail", detail),
	)
}
