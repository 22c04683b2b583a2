package promotion

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/database"
	"servicecenter/internal/domain/discount"
	"servicecenter/internal/pkg/clock"
)

var now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func setupRepo(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.OpenSQLite(fmt.Sprintf("file:promo_%s?mode=memory&cache=shared&_time_format=sqlite", name), nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return NewRepository(db, zap.NewNop(), clock.NewManual(now)), db
}

func TestValidatePromotion_PercentageWithCap(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &Promotion{
		Code: " spring15 ", Kind: KindPercentage, Value: 15, MaxDiscount: 120_000,
		StartsAt: now.Add(-time.Hour), IsActive: true,
	}))

	valid, amount, err := repo.ValidatePromotion(ctx, "SPRING15", discount.OrderContext{Total: 1_000_000})
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, int64(120_000), amount)

	valid, amount, err = repo.ValidatePromotion(ctx, "spring15", discount.OrderContext{Total: 100_000})
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, int64(15_000), amount)
}

func TestValidatePromotion_Rejections(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	ended := now.Add(-time.Minute)
	center := int64(2)
	require.NoError(t, repo.Create(ctx, &Promotion{Code: "OLD", Kind: KindFixed, Value: 100, StartsAt: now.Add(-48 * time.Hour), EndsAt: &ended, IsActive: true}))
	require.NoError(t, repo.Create(ctx, &Promotion{Code: "LATER", Kind: KindFixed, Value: 100, StartsAt: now.Add(time.Hour), IsActive: true}))
	require.NoError(t, repo.Create(ctx, &Promotion{Code: "MIN", Kind: KindFixed, Value: 100, MinOrderAmount: 5_000, StartsAt: now.Add(-time.Hour), IsActive: true}))
	require.NoError(t, repo.Create(ctx, &Promotion{Code: "CENTER2", Kind: KindFixed, Value: 100, CenterID: &center, StartsAt: now.Add(-time.Hour), IsActive: true}))

	for _, code := range []string{"OLD", "LATER", "MIN", "CENTER2", "MISSING"} {
		valid, amount, err := repo.ValidatePromotion(ctx, code, discount.OrderContext{CenterID: 1, Total: 1_000})
		require.NoError(t, err, code)
		assert.False(t, valid, code)
		assert.Zero(t, amount, code)
	}
}

func TestRedeem_RespectsMaxUsage(t *testing.T) {
	repo, db := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &Promotion{Code: "ONCE", Kind: KindFixed, Value: 500, MaxUsage: 1, StartsAt: now.Add(-time.Hour), IsActive: true}))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error { return repo.Redeem(ctx, tx, "once") }))
	err := db.Transaction(func(tx *gorm.DB) error { return repo.Redeem(ctx, tx, "ONCE") })
	assert.ErrorIs(t, err, ErrPromotionExhausted)

	valid, _, err := repo.ValidatePromotion(ctx, "ONCE", discount.OrderContext{Total: 10_000})
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestCreate_Validates(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	assert.ErrorIs(t, repo.Create(ctx, &Promotion{Code: "", Kind: KindFixed, Value: 1}), ErrInvalidPromotion)
	assert.ErrorIs(t, repo.Create(ctx, &Promotion{Code: "X", Kind: "bogus", Value: 1}), ErrInvalidPromotion)
	assert.ErrorIs(t, repo.Create(ctx, &Promotion{Code: "X", Kind: KindPercentage, Value: 150}), ErrInvalidPromotion)
}

func TestAmount_FixedClampedToTotal(t *testing.T) {
	p := &Promotion{Kind: KindFixed, Value: 900}
	assert.Equal(t, int64(500), p.Amount(500))
	assert.Equal(t, int64(900), p.Amount(5_000))
}
