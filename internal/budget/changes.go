package budget

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/fathom/internal/domain"
)

// Changes describes the move of every category from current to recommended.
// ChangePercent is 0 when the current amount is 0. All values are in cents.
func Changes(current, recommended domain.ExpenseBreakdown) map[domain.Category]domain.ExpenseChange {
	out := make(map[domain.Category]domain.ExpenseChange, len(current))
	for _, c := range current.Keys() {
		cur := decimal.NewFromFloat(current[c])
		rec := decimal.NewFromFloat(recommended[c])
		diff := rec.Sub(cur)

		pct := decimal.Zero
		if cur.IsPositive() {
			pct = diff.Div(cur).Mul(decimal.NewFromInt(100))
		}

		out[c] = domain.ExpenseChange{
			Current:       cur.Round(2).InexactFloat64(),
			Recommended:   rec.Round(2).InexactFloat64(),
			ChangePercent: pct.Round(2).InexactFloat64(),
			ChangeAmount:  diff.Round(2).InexactFloat64(),
		}
	}
	return out
}
