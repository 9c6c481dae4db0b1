package fee

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Arash3f/icart-pos/internal/pos/domain"
)

// Rate is one fee schedule entry: a fractional percentage of the amount,
// clamped to [Min, Max] minor units.
type Rate struct {
	Percent decimal.Decimal
	Min     int64
	Max     int64
}

// Table is the config-driven FeeLookup implementation, keyed by
// (value type, user type).
type Table struct {
	rates map[string]Rate
}

func key(vt domain.ValueType, ut domain.UserType) string {
	return strings.ToLower(string(vt)) + "_" + strings.ToLower(string(ut))
}

// FromViper reads the fees.* section: fees.cash_user.percent and so on.
// Missing entries default to a zero fee.
func FromViper() (*Table, error) {
	t := &Table{rates: make(map[string]Rate)}
	for _, vt := range []domain.ValueType{domain.ValueCash, domain.ValueCredit} {
		for _, ut := range []domain.UserType{domain.UserTypeUser, domain.UserTypeMerchant} {
			k := key(vt, ut)
			base := "fees." + k
			if !viper.IsSet(base) {
				t.rates[k] = Rate{Percent: decimal.Zero}
				continue
			}
			pct, err := decimal.NewFromString(viper.GetString(base + ".percent"))
			if err != nil {
				return nil, fmt.Errorf("fee rate %s: %w", k, err)
			}
			t.rates[k] = Rate{
				Percent: pct,
				Min:     viper.GetInt64(base + ".min"),
				Max:     viper.GetInt64(base + ".max"),
			}
		}
	}
	return t, nil
}

// NewTable builds a table from explicit rates, used by tests and wiring
// that bypasses viper.
func NewTable(rates map[string]Rate) *Table {
	return &Table{rates: rates}
}

// Calculate returns the fee in minor units, floored, clamped to the
// schedule's min/max. A zero amount pays no fee.
func (t *Table) Calculate(ctx context.Context, amount int64, vt domain.ValueType, ut domain.UserType) (int64, error) {
	if amount < 0 {
		return 0, domain.ErrIncorrectData
	}
	if amount == 0 {
		return 0, nil
	}

	r, ok := t.rates[key(vt, ut)]
	if !ok {
		return 0, nil
	}

	fee := decimal.NewFromInt(amount).
		Mul(r.Percent).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()

	if r.Min > 0 && fee < r.Min {
		fee = r.Min
	}
	if r.Max > 0 && fee > r.Max {
		fee = r.Max
	}
	return fee, nil
}
