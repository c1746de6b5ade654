package pricing

import "github.com/shopspring/decimal"

var (
	surchargeRate       = decimal.RequireFromString("0.02")
	surchargeMultiplier = decimal.NewFromInt(1).Add(surchargeRate)
	centsPerUnit        = decimal.NewFromInt(100)
)

// Subtotal sums unit price times quantity over lines.
func Subtotal(lines []ResolvedLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// Surcharge is the flat 2% fee, rounded down to whole currency units so the
// buyer is never overcharged.
func Surcharge(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(surchargeRate).Floor()
}

// OrderTotal is the amount recorded on the order.
func OrderTotal(lines []ResolvedLine) decimal.Decimal {
	subtotal := Subtotal(lines)
	return subtotal.Add(Surcharge(subtotal)).Round(2)
}

// GatewayUnitPrice folds the surcharge into one unit price, rounded to cents.
func GatewayUnitPrice(unit decimal.Decimal) decimal.Decimal {
	return unit.Mul(surchargeMultiplier).Round(2)
}

// GatewayAmount is the sum the payment gateway computes from the submitted lines.
func GatewayAmount(lines []ResolvedLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(GatewayUnitPrice(line.UnitPrice).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// ToCents converts a currency amount to the gateway's integer minor units.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(centsPerUnit).Round(0).IntPart()
}
