package discount

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"servicecenter/internal/observability/metrics"
)

type MockPromotions struct {
	mock.Mock
}

func (m *MockPromotions) ValidatePromotion(ctx context.Context, code string, order OrderContext) (bool, int64, error) {
	args := m.Called(ctx, code, order)
	return args.Bool(0), args.Get(1).(int64), args.Error(2)
}

func newCalculator(p PromotionValidator) *Calculator {
	return NewCalculator(CalculatorParams{Promotions: p, Log: zap.NewNop(), Metrics: metrics.New(prometheus.NewRegistry())})
}

func TestCalculator_PromotionBeatsCustomerType(t *testing.T) {
	promos := new(MockPromotions)
	promos.On("ValidatePromotion", mock.Anything, "SPRING15", mock.MatchedBy(func(o OrderContext) bool {
		return o.Total == 1_000_000 && o.CustomerID == 3
	})).Return(true, int64(150_000), nil)

	res, err := newCalculator(promos).Calculate(context.Background(), Input{
		CustomerID:          3,
		CustomerTypePercent: 10,
		PromotionCode:       "SPRING15",
		Lines: []Line{
			{ServiceID: 1, Quantity: 1, UnitPrice: 600_000},
			{ServiceID: 2, Quantity: 2, UnitPrice: 200_000},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1_000_000), res.OriginalTotal)
	assert.Equal(t, int64(100_000), res.CustomerTypeDiscount)
	assert.Equal(t, int64(150_000), res.PromotionDiscount)
	assert.Equal(t, int64(150_000), res.FinalDiscount)
	assert.Equal(t, TypePromotion, res.Applied)
	assert.Equal(t, int64(850_000), res.FinalTotal)
	assert.Equal(t, "SPRING15", res.PromotionCode)

	require.Len(t, res.Lines, 2)
	assert.Equal(t, int64(90_000), res.Lines[0].Discount)
	assert.Equal(t, int64(60_000), res.Lines[1].Discount)
	assert.Equal(t, "promotion SPRING15", res.Lines[0].Reason)
	promos.AssertExpectations(t)
}

func TestCalculator_CustomerTypeWinsTie(t *testing.T) {
	promos := new(MockPromotions)
	promos.On("ValidatePromotion", mock.Anything, "TEN", mock.Anything).Return(true, int64(50), nil)

	res, err := newCalculator(promos).Calculate(context.Background(), Input{
		CustomerTypePercent: 10,
		PromotionCode:       "TEN",
		Lines:               []Line{{ServiceID: 1, Quantity: 1, UnitPrice: 500}},
	})
	require.NoError(t, err)

	assert.Equal(t, TypeCustomerType, res.Applied)
	assert.Equal(t, int64(50), res.FinalDiscount)
	assert.Empty(t, res.PromotionCode)
	assert.Equal(t, "customer type discount 10%", res.Lines[0].Reason)
}

func TestCalculator_SubscriptionLinesExcluded(t *testing.T) {
	res, err := newCalculator(nil).Calculate(context.Background(), Input{
		CustomerTypePercent: 20,
		Lines: []Line{
			{ServiceID: 1, Quantity: 1, UnitPrice: 300, Covered: true},
			{ServiceID: 2, Quantity: 1, UnitPrice: 1000},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), res.OriginalTotal)
	assert.Equal(t, int64(200), res.FinalDiscount)
	assert.Equal(t, int64(800), res.FinalTotal)
	assert.Equal(t, int64(0), res.Lines[0].UnitPrice)
	assert.Equal(t, int64(0), res.Lines[0].FinalPrice)
	assert.Equal(t, "covered by package", res.Lines[0].Reason)
}

func TestCalculator_InvalidOrFailingPromotionYieldsZero(t *testing.T) {
	promos := new(MockPromotions)
	promos.On("ValidatePromotion", mock.Anything, "EXPIRED", mock.Anything).Return(false, int64(0), nil)
	promos.On("ValidatePromotion", mock.Anything, "FLAKY", mock.Anything).Return(false, int64(0), errors.New("timeout"))
	calc := newCalculator(promos)

	for _, code := range []string{"EXPIRED", "FLAKY"} {
		res, err := calc.Calculate(context.Background(), Input{
			PromotionCode: code,
			Lines:         []Line{{ServiceID: 1, Quantity: 1, UnitPrice: 700}},
		})
		require.NoError(t, err)
		assert.Equal(t, TypeNone, res.Applied, code)
		assert.Equal(t, int64(700), res.FinalTotal, code)
		assert.Equal(t, "no discount", res.Lines[0].Reason)
	}
}

func TestCalculator_PromotionClampedToTotal(t *testing.T) {
	promos := new(MockPromotions)
	promos.On("ValidatePromotion", mock.Anything, "BIG", mock.Anything).Return(true, int64(5_000), nil)

	res, err := newCalculator(promos).Calculate(context.Background(), Input{
		PromotionCode: "BIG",
		Lines:         []Line{{ServiceID: 1, Quantity: 1, UnitPrice: 1_200}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1_200), res.FinalDiscount)
	assert.Equal(t, int64(0), res.FinalTotal)
}

func TestCalculator_OnlyCoveredLinesSkipsPromotion(t *testing.T) {
	promos := new(MockPromotions)

	res, err := newCalculator(promos).Calculate(context.Background(), Input{
		PromotionCode: "ANY",
		Lines:         []Line{{ServiceID: 1, Quantity: 1, UnitPrice: 900, Covered: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.FinalTotal)
	promos.AssertNotCalled(t, "ValidatePromotion", mock.Anything, mock.Anything, mock.Anything)
}

func TestCalculator_Validation(t *testing.T) {
	calc := newCalculator(nil)

	_, err := calc.Calculate(context.Background(), Input{Lines: []Line{{Quantity: 0, UnitPrice: 1}}})
	assert.ErrorIs(t, err, ErrInvalidLine)
	_, err = calc.Calculate(context.Background(), Input{Lines: []Line{{Quantity: 1, UnitPrice: -1}}})
	assert.ErrorIs(t, err, ErrInvalidLine)
	_, err = calc.Calculate(context.Background(), Input{CustomerTypePercent: 101})
	assert.ErrorIs(t, err, ErrInvalidPercent)
}

func TestCalculator_RejectsOverflowingAmounts(t *testing.T) {
	calc := newCalculator(nil)
	ctx := context.Background()

	_, err := calc.Calculate(ctx, Input{
		CustomerTypePercent: 10,
		Lines:               []Line{{ServiceID: 1, Quantity: 2, UnitPrice: math.MaxInt64/2 + 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidLine)

	_, err = calc.Calculate(ctx, Input{Lines: []Line{
		{ServiceID: 1, Quantity: 1, UnitPrice: math.MaxInt64/2 + 1},
		{ServiceID: 2, Quantity: 1, UnitPrice: math.MaxInt64/2 + 1},
	}})
	assert.ErrorIs(t, err, ErrInvalidLine)

	// covered lines are billed at 0 and never reach the total
	res, err := calc.Calculate(ctx, Input{Lines: []Line{
		{ServiceID: 1, Quantity: 2, UnitPrice: math.MaxInt64, Covered: true},
	}})
	require.NoError(t, err)
	assert.Zero(t, res.OriginalTotal)
}

func TestCalculator_LargeTotalsAllocateExactly(t *testing.T) {
	res, err := newCalculator(nil).Calculate(context.Background(), Input{
		CustomerTypePercent: 10,
		Lines: []Line{
			{ServiceID: 1, Quantity: 1, UnitPrice: math.MaxInt64 / 2},
			{ServiceID: 2, Quantity: 1, UnitPrice: math.MaxInt64 / 2},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(math.MaxInt64-1), res.OriginalTotal)
	assert.Equal(t, TypeCustomerType, res.Applied)
	assert.Greater(t, res.FinalDiscount, int64(0))
	assert.Less(t, res.FinalDiscount, res.OriginalTotal)
	assert.Equal(t, res.OriginalTotal-res.FinalDiscount, res.FinalTotal)

	var sum int64
	for _, l := range res.Lines {
		assert.GreaterOrEqual(t, l.FinalPrice, int64(0))
		sum += l.Discount
	}
	assert.Equal(t, res.FinalDiscount, sum)
}

func TestCalculator_RoundingSharesStayWithinLines(t *testing.T) {
	res, err := newCalculator(nil).Calculate(context.Background(), Input{
		CustomerTypePercent: 66.67,
		Lines: []Line{
			{ServiceID: 1, Quantity: 1, UnitPrice: 1},
			{ServiceID: 2, Quantity: 1, UnitPrice: 1},
			{ServiceID: 3, Quantity: 1, UnitPrice: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.FinalDiscount)

	var sum int64
	for _, l := range res.Lines {
		assert.GreaterOrEqual(t, l.FinalPrice, int64(0))
		sum += l.Discount
	}
	assert.Equal(t, res.FinalDiscount, sum)
}

// Randomized check of the pricing bounds.
func TestCalculator_RandomizedBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		promoAmount := rng.Int63n(2_000_000)
		promos := new(MockPromotions)
		promos.On("ValidatePromotion", mock.Anything, "P", mock.Anything).Return(rng.Intn(4) != 0, promoAmount, nil)

		lines := make([]Line, 1+rng.Intn(5))
		for j := range lines {
			lines[j] = Line{
				ServiceID: int64(j + 1),
				Quantity:  1 + rng.Intn(3),
				UnitPrice: rng.Int63n(400_000),
				Covered:   rng.Intn(5) == 0,
			}
		}

		res, err := newCalculator(promos).Calculate(context.Background(), Input{
			CustomerTypePercent: float64(rng.Intn(101)),
			PromotionCode:       "P",
			Lines:               lines,
		})
		require.NoError(t, err)

		want := res.CustomerTypeDiscount
		if res.PromotionDiscount > want {
			want = res.PromotionDiscount
		}
		assert.Equal(t, want, res.FinalDiscount)
		assert.Equal(t, res.OriginalTotal-res.FinalDiscount, res.FinalTotal)
		assert.GreaterOrEqual(t, res.FinalTotal, int64(0))

		var sum int64
		for _, l := range res.Lines {
			assert.GreaterOrEqual(t, l.FinalPrice, int64(0))
			sum += l.Discount
		}
		assert.Equal(t, res.FinalDiscount, sum)
	}
}
