// Package discount prices a set of service lines under the three mutually
// exclusive discount tiers: package coverage, customer type and promotion.
package discount

import (
	"context"
	"math"
	"math/bits"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"servicecenter/internal/observability/metrics"
	"servicecenter/internal/pkg/apperr"
)

type Type string

const (
	TypeNone         Type = "none"
	TypeCustomerType Type = "customer_type"
	TypePromotion    Type = "promotion"
)

var (
	ErrInvalidLine    = apperr.Validation("invalid_line", "service line needs quantity >= 1 and a non-negative price")
	ErrInvalidPercent = apperr.Validation("invalid_discount_percent", "customer type discount must be within 0..100")

	errAmountOverflow = ErrInvalidLine.WithMessage("service line amounts exceed the supported order total")
)

// OrderContext is what a promotion is validated against.
type OrderContext struct {
	CustomerID int64
	CenterID   int64
	ServiceIDs []int64
	// Total of the billable lines before any discount.
	Total int64
}

// PromotionValidator checks a promotion code and returns the discount
// amount it grants for the order. An unknown or expired code is
// (false, 0, nil).
type PromotionValidator interface {
	ValidatePromotion(ctx context.Context, code string, order OrderContext) (valid bool, amount int64, err error)
}

type Line struct {
	ServiceID int64
	Quantity  int
	UnitPrice int64
	// Covered lines are drawn from a package quota and billed at 0.
	Covered bool
}

type Input struct {
	CustomerID          int64
	CenterID            int64
	CustomerTypePercent float64
	PromotionCode       string
	Lines               []Line
}

type LineBreakdown struct {
	ServiceID     int64  `json:"service_id"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	OriginalPrice int64  `json:"original_price"`
	Discount      int64  `json:"discount"`
	FinalPrice    int64  `json:"final_price"`
	Reason        string `json:"reason"`
}

type Result struct {
	OriginalTotal        int64           `json:"original_total"`
	CustomerTypeDiscount int64           `json:"customer_type_discount"`
	PromotionDiscount    int64           `json:"promotion_discount"`
	FinalDiscount        int64           `json:"final_discount"`
	FinalTotal           int64           `json:"final_total"`
	Applied              Type            `json:"applied_discount_type"`
	PromotionCode        string          `json:"promotion_code,omitempty"`
	Lines                []LineBreakdown `json:"lines"`
}

type CalculatorParams struct {
	fx.In

	Promotions PromotionValidator `optional:"true"`
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
}

type Calculator struct {
	promotions PromotionValidator
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewCalculator(p CalculatorParams) *Calculator {
	return &Calculator{
		promotions: p.Promotions,
		log:        p.Log.Named("discount.calculator"),
		metrics:    p.Metrics,
	}
}

// Calculate prices the lines. The customer-type and promotion tiers never
// stack: the larger one wins, and on a tie the customer-type tier is kept so
// no promotion use is consumed.
func (c *Calculator) Calculate(ctx context.Context, in Input) (*Result, error) {
	if in.CustomerTypePercent < 0 || in.CustomerTypePercent > 100 || math.IsNaN(in.CustomerTypePercent) {
		return nil, ErrInvalidPercent
	}

	res := &Result{Applied: TypeNone, Lines: make([]LineBreakdown, len(in.Lines))}
	serviceIDs := make([]int64, 0, len(in.Lines))
	for i, l := range in.Lines {
		if l.Quantity <= 0 || l.UnitPrice < 0 {
			return nil, ErrInvalidLine
		}
		if !l.Covered && (l.UnitPrice > math.MaxInt64/int64(l.Quantity) ||
			l.UnitPrice*int64(l.Quantity) > math.MaxInt64-res.OriginalTotal) {
			return nil, errAmountOverflow
		}
		b := LineBreakdown{ServiceID: l.ServiceID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
		if l.Covered {
			b.UnitPrice = 0
			b.Reason = "covered by package"
		} else {
			b.OriginalPrice = l.UnitPrice * int64(l.Quantity)
			res.OriginalTotal += b.OriginalPrice
			serviceIDs = append(serviceIDs, l.ServiceID)
		}
		res.Lines[i] = b
	}

	if d := math.Round(float64(res.OriginalTotal) * in.CustomerTypePercent / 100); d >= float64(res.OriginalTotal) {
		res.CustomerTypeDiscount = res.OriginalTotal
	} else {
		res.CustomerTypeDiscount = int64(d)
	}
	res.PromotionDiscount = c.promotionDiscount(ctx, in, OrderContext{
		CustomerID: in.CustomerID,
		CenterID:   in.CenterID,
		ServiceIDs: serviceIDs,
		Total:      res.OriginalTotal,
	})

	switch {
	case res.PromotionDiscount > res.CustomerTypeDiscount:
		res.FinalDiscount = res.PromotionDiscount
		res.Applied = TypePromotion
		res.PromotionCode = strings.TrimSpace(in.PromotionCode)
	case res.CustomerTypeDiscount > 0:
		res.FinalDiscount = res.CustomerTypeDiscount
		res.Applied = TypeCustomerType
	}
	if res.FinalDiscount > res.OriginalTotal {
		res.FinalDiscount = res.OriginalTotal
	}
	res.FinalTotal = res.OriginalTotal - res.FinalDiscount

	allocate(res, in.PromotionCode, in.CustomerTypePercent)
	c.metrics.DiscountApplied(string(res.Applied))
	return res, nil
}

func (c *Calculator) promotionDiscount(ctx context.Context, in Input, order OrderContext) int64 {
	code := strings.TrimSpace(in.PromotionCode)
	if code == "" || c.promotions == nil || order.Total == 0 {
		return 0
	}

	valid, amount, err := c.promotions.ValidatePromotion(ctx, code, order)
	if err != nil {
		c.log.Warn("promotion validation failed, ignoring code",
			zap.String("code", code), zap.Int64("customer_id", in.CustomerID), zap.Error(err))
		return 0
	}
	if !valid || amount <= 0 {
		return 0
	}
	if amount > order.Total {
		return order.Total
	}
	return amount
}

// allocate spreads FinalDiscount over billable lines in proportion to their
// price, handing rounding units to the largest remainders so the shares add
// up exactly and no line goes below zero.
func allocate(res *Result, code string, percent float64) {
	reason := "no discount"
	switch res.Applied {
	case TypeCustomerType:
		reason = "customer type discount " + strconv.FormatFloat(percent, 'f', -1, 64) + "%"
	case TypePromotion:
		reason = "promotion " + strings.TrimSpace(code)
	}

	type remainder struct {
		idx int
		rem int64
	}
	var (
		given int64
		rems  []remainder
	)
	for i := range res.Lines {
		b := &res.Lines[i]
		if b.OriginalPrice == 0 {
			if b.Reason == "" {
				b.Reason = reason
			}
			continue
		}
		if res.FinalDiscount > 0 {
			// FinalDiscount and OriginalPrice are both <= OriginalTotal, so the
			// 128-bit quotient fits in 64 bits.
			hi, lo := bits.Mul64(uint64(res.FinalDiscount), uint64(b.OriginalPrice))
			quo, rem := bits.Div64(hi, lo, uint64(res.OriginalTotal))
			b.Discount = int64(quo)
			given += b.Discount
			rems = append(rems, remainder{idx: i, rem: int64(rem)})
		}
		b.Reason = reason
	}

	sort.SliceStable(rems, func(a, b int) bool { return rems[a].rem > rems[b].rem })
	for left := res.FinalDiscount - given; left > 0 && len(rems) > 0; left-- {
		res.Lines[rems[0].idx].Discount++
		rems = rems[1:]
	}

	for i := range res.Lines {
		res.Lines[i].FinalPrice = res.Lines[i].OriginalPrice - res.Lines[i].Discount
	}
}
