package vouchers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
)

// minorUnits is the number of decimal places the deployment currency carries.
const minorUnits = 2

var hundred = decimal.NewFromInt(100)

// ComputeDiscount applies percentage to price with round-half-up to the
// currency minor unit. final + discount always equals price.
func ComputeDiscount(price, percentage decimal.Decimal) (discount, final decimal.Decimal) {
	price = price.Round(minorUnits)
	discount = price.Mul(percentage).Div(hundred).Round(minorUnits)
	if discount.GreaterThan(price) {
		discount = price
	}
	return discount, price.Sub(discount)
}

// CanonicalCode trims and upper-cases a voucher code.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// availability reports why v cannot be redeemed at now, or "" when it can.
// Course applicability and prior usage are checked by the caller.
func availability(v *models.Voucher, now time.Time) Reason {
	switch {
	case !v.IsActive:
		return ReasonInactive
	case now.Before(v.ValidFrom):
		return ReasonNotYetValid
	case now.After(v.ValidUntil):
		return ReasonExpired
	case v.UsedCount >= v.UsageLimit:
		return ReasonExhausted
	}
	return ""
}
