package invoice

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"servicecenter/internal/database"
	"servicecenter/internal/domain/subscription"
	"servicecenter/internal/pkg/clock"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:invoice_%s?mode=memory&cache=shared&_time_format=sqlite", name), nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return NewService(ServiceParams{
		DB:    db,
		Node:  node,
		Clock: clock.NewManual(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)),
		Log:   zap.NewNop(),
	})
}

func TestCreateInvoice(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	id, err := s.CreateInvoice(ctx, subscription.InvoiceRequest{
		SubscriptionID: "5b0e6c1e-0000-4000-8000-000000000001",
		CustomerID:     7,
		PackageName:    "Basic care",
		Amount:         1_500_000,
	})
	require.NoError(t, err)

	inv, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(inv.Number, "INV-"))
	assert.Equal(t, StatusIssued, inv.Status)
	assert.Equal(t, int64(1_500_000), inv.Amount)
	assert.Equal(t, "Basic care", inv.Metadata["package_name"])

	other, err := s.CreateInvoice(ctx, subscription.InvoiceRequest{CustomerID: 7, PackageName: "x", Amount: 1})
	require.NoError(t, err)
	second, err := s.Get(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, inv.Number, second.Number)
}

func TestCreateInvoice_Validates(t *testing.T) {
	s := setupService(t)
	_, err := s.CreateInvoice(context.Background(), subscription.InvoiceRequest{Amount: 10})
	assert.ErrorIs(t, err, ErrInvalidInvoice)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}
