// Package progression implements the lot-size recurrence for a
// martingale-style money-management scheme.
//
// After (n-1) consecutive losses with cumulative loss C, the nth trade's lot
// size L must satisfy:
//
//	netWinRate × L = n × targetWinPerTrade − C
//
// so that a win on trade n both recovers every prior loss and lands the
// cumulative profit at exactly n × targetWinPerTrade. The recurrence provides:
//   - Exact recovery: winAmount + C = n × target for every n and every C
//   - Geometric-style lot growth under consecutive losses
//   - Path independence of the win target (only C matters, not how it arose)
//
// All monetary values use shopspring/decimal — never float64 for money.
//
// netWinRate = profitPerMicroLot × 100 − commissionPerLot must be strictly
// positive; otherwise the recurrence divides by zero or inverts the lot sign.
// The constructor rejects such configurations up front.
package progression

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lotforge/lot-engine/internal/model"
)

var (
	// ErrNonPositiveNetWin is returned when commission eats the entire
	// per-lot profit (netWinRate <= 0). The recurrence is undefined there.
	ErrNonPositiveNetWin = errors.New("progression: net win rate per lot must be positive")

	// ErrNonPositiveRate is returned when a per-micro-lot profit or loss
	// rate is zero or negative.
	ErrNonPositiveRate = errors.New("progression: profit and loss per 0.01 lot must be positive")

	// ErrNegativeMoney is returned when commission or the target win per
	// trade is negative.
	ErrNegativeMoney = errors.New("progression: commission and target win must not be negative")

	// ErrInvalidTradeCount is returned for a trade index or trade count
	// below 1.
	ErrInvalidTradeCount = errors.New("progression: trade count must be at least 1")

	// LotScale is the number of decimal places lot sizes are rounded to.
	LotScale int32 = 8
)

// Calculator evaluates the lot-size recurrence for one fixed parameter set.
// It is stateless — the cumulative loss is passed as an argument, not stored —
// so a single Calculator is safe for concurrent use.
type Calculator struct {
	params      model.StrategyParams
	netWinRate  decimal.Decimal
	netLossRate decimal.Decimal
}

// NewCalculator validates the strategy parameters and returns a Calculator.
// Fails fast on any configuration the recurrence cannot support, in
// particular netWinRate <= 0.
func NewCalculator(params model.StrategyParams) (*Calculator, error) {
	if params.ProfitPerMicroLot.LessThanOrEqual(decimal.Zero) ||
		params.LossPerMicroLot.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNonPositiveRate
	}
	if params.CommissionPerLot.IsNegative() || params.TargetWinPerTrade.IsNegative() {
		return nil, ErrNegativeMoney
	}

	netWin := params.NetWinRate()
	if netWin.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: got %s per lot", ErrNonPositiveNetWin, netWin)
	}

	return &Calculator{
		params:      params,
		netWinRate:  netWin,
		netLossRate: params.NetLossRate(),
	}, nil
}

// Params returns the strategy parameters the calculator was built with.
func (c *Calculator) Params() model.StrategyParams {
	return c.params
}

// NetWinRate returns the validated net dollar gain per 1.00 lot on a win.
func (c *Calculator) NetWinRate() decimal.Decimal {
	return c.netWinRate
}

// NetLossRate returns the net dollar loss per 1.00 lot on a loss (positive).
func (c *Calculator) NetLossRate() decimal.Decimal {
	return c.netLossRate
}

// ComputeTrade evaluates one step of the recurrence: the lot size for trade n
// given the cumulative loss carried in from trades 1..n-1, plus the dollar
// outcomes at that lot size.
//
// cumulativeLossBefore is zero or negative (losses accumulate downward).
// By construction winAmount + cumulativeLossBefore = n × targetWinPerTrade,
// up to LotScale rounding of the lot size.
func (c *Calculator) ComputeTrade(n int, cumulativeLossBefore decimal.Decimal) (model.TradeRecord, error) {
	if n < 1 {
		return model.TradeRecord{}, fmt.Errorf("%w: got trade index %d", ErrInvalidTradeCount, n)
	}

	desired := c.params.TargetWinPerTrade.Mul(decimal.NewFromInt(int64(n)))
	lot := desired.Sub(cumulativeLossBefore).Div(c.netWinRate).Round(LotScale)

	win := c.netWinRate.Mul(lot)
	lose := c.netLossRate.Mul(lot).Neg()

	return model.TradeRecord{
		TradeIndex:             n,
		DesiredTotalProfit:     desired,
		LotSize:                lot,
		WinAmount:              win,
		LoseAmount:             lose,
		CumulativeLossIfLosing: cumulativeLossBefore.Add(lose),
	}, nil
}

// Simulate runs the recurrence across a worst-case all-losing sequence of
// numTrades trades, threading each record's CumulativeLossIfLosing into the
// next step. The returned sequence is ordered by trade index and fully
// deterministic for a given parameter set.
//
// This demonstrates lot-size growth under consecutive losses; it is not an
// actual win/loss outcome path.
func (c *Calculator) Simulate(numTrades int) ([]model.TradeRecord, error) {
	if numTrades < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTradeCount, numTrades)
	}

	records := make([]model.TradeRecord, 0, numTrades)
	cumulativeLoss := decimal.Zero

	for n := 1; n <= numTrades; n++ {
		rec, err := c.ComputeTrade(n, cumulativeLoss)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		cumulativeLoss = rec.CumulativeLossIfLosing
	}

	return records, nil
}
