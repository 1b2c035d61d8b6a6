package vouchers

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
)

func TestComputeDiscountRoundsHalfUp(t *testing.T) {
	cases := []struct {
		price, pct, discount, final string
	}{
		{"100.00", "20", "20.00", "80.00"},
		{"99.99", "15", "15.00", "84.99"},
		{"10.05", "50", "5.03", "5.02"},
		{"0.01", "50", "0.01", "0.00"},
		{"49.90", "0", "0.00", "49.90"},
		{"49.90", "100", "49.90", "0.00"},
		{"0", "30", "0.00", "0.00"},
	}
	for _, tc := range cases {
		discount, final := ComputeDiscount(decimal.RequireFromString(tc.price), decimal.RequireFromString(tc.pct))
		require.Truef(t, discount.Equal(decimal.RequireFromString(tc.discount)), "%s @ %s%%: discount %s", tc.price, tc.pct, discount)
		require.Truef(t, final.Equal(decimal.RequireFromString(tc.final)), "%s @ %s%%: final %s", tc.price, tc.pct, final)
	}
}

func TestComputeDiscountRoundTrip(t *testing.T) {
	for cents := int64(0); cents <= 25000; cents += 137 {
		price := decimal.New(cents, -2)
		for pct := int64(0); pct <= 100; pct += 7 {
			discount, final := ComputeDiscount(price, decimal.NewFromInt(pct))
			if !final.Add(discount).Equal(price) {
				t.Fatalf("price %s pct %d: %s + %s != price", price, pct, final, discount)
			}
			if final.IsNegative() || discount.IsNegative() {
				t.Fatalf("price %s pct %d produced negative amounts", price, pct)
			}
		}
	}
}

func TestCanonicalCode(t *testing.T) {
	require.Equal(t, "SPRING20", CanonicalCode("  spring20 "))
	require.Equal(t, "", CanonicalCode("   "))
}

func TestAvailabilityOrder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	base := models.Voucher{
		IsActive:   true,
		UsageLimit: 1,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour),
	}

	v := base
	require.Equal(t, Reason(""), availability(&v, now))

	v = base
	v.IsActive = false
	v.UsedCount = 1
	require.Equal(t, ReasonInactive, availability(&v, now))

	v = base
	v.ValidFrom = now.Add(time.Minute)
	require.Equal(t, ReasonNotYetValid, availability(&v, now))

	v = base
	v.ValidUntil = now.Add(-time.Minute)
	v.UsedCount = 1
	require.Equal(t, ReasonExpired, availability(&v, now))

	v = base
	v.UsedCount = 1
	require.Equal(t, ReasonExhausted, availability(&v, now))
}
