package invoice

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"servicecenter/internal/domain/subscription"
	"servicecenter/internal/pkg/apperr"
	"servicecenter/internal/pkg/clock"
)

var (
	ErrInvalidInvoice  = apperr.Validation("invalid_invoice", "invoice needs a customer and a non-negative amount")
	ErrInvoiceNotFound = apperr.NotFound("invoice_not_found", "invoice not found")
)

type ServiceParams struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Clock clock.Clock
	Log   *zap.Logger
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		clock: p.Clock,
		log:   p.Log.Named("invoice.service"),
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Invoice{})
}

// CreateInvoice issues the invoice of a package purchase.
func (s *Service) CreateInvoice(ctx context.Context, req subscription.InvoiceRequest) (string, error) {
	if req.CustomerID <= 0 || req.Amount < 0 {
		return "", ErrInvalidInvoice
	}

	now := s.clock.Now()
	inv := Invoice{
		ID:             uuid.NewString(),
		Number:         "INV-" + s.node.Generate().String(),
		CustomerID:     req.CustomerID,
		SubscriptionID: req.SubscriptionID,
		Description:    "Maintenance package: " + req.PackageName,
		Amount:         req.Amount,
		Status:         StatusIssued,
		Metadata: datatypes.JSONMap{
			"package_name": req.PackageName,
			"source":       "package_purchase",
		},
		IssuedAt:  now,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&inv).Error; err != nil {
		s.log.Error("failed to create invoice", zap.String("subscription_id", req.SubscriptionID), zap.Error(err))
		return "", apperr.Persistence(err)
	}

	s.log.Info("invoice issued",
		zap.String("invoice_id", inv.ID),
		zap.String("number", inv.Number),
		zap.String("subscription_id", req.SubscriptionID),
		zap.Int64("amount", req.Amount))
	return inv.ID, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	var inv Invoice
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, apperr.Persistence(err)
	}
	return &inv, nil
}

var _ subscription.Invoicer = (*Service)(nil)
