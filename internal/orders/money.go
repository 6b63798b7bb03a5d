package orders

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is a BRL amount in centavos. Arithmetic stays in integers; decimal
// is only used to render amounts.
type Cents int64

func (c Cents) Mul(n int) Cents { return c * Cents(n) }

func (c Cents) Decimal() decimal.Decimal { return decimal.New(int64(c), -2) }

// BRL renders c as "R$ 1234,50".
func (c Cents) BRL() string {
	return "R$ " + strings.Replace(c.Decimal().StringFixed(2), ".", ",", 1)
}

// CentsFromDecimal rounds d to two places.
func CentsFromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Round(2).Shift(2).IntPart())
}
