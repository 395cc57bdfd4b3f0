// Package drawdown determines how many consecutive losing trades an account
// plan can sustain under the progressive lot-size scheme before breaching its
// maximum drawdown limit.
//
// The analysis drives the same recurrence the progression table uses,
// assuming every trade loses, and stops at the first trade whose cumulative
// loss reaches the plan's limit. The breaching trade itself is not counted
// as supported, and one further trade is always deducted as a safety margin.
package drawdown

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lotforge/lot-engine/internal/model"
	"github.com/lotforge/lot-engine/internal/progression"
)

var (
	// ErrInvalidPlan is returned when a plan's account size or loss limit
	// is not positive, or the loss limit exceeds the account itself.
	ErrInvalidPlan = errors.New("drawdown: account size and max overall loss must be positive")

	// ErrInvalidSimulationBound is returned when maxTrades < 1.
	ErrInvalidSimulationBound = errors.New("drawdown: max trades to simulate must be at least 1")
)

// Informational account-size percentages reported alongside each result.
// Display constants from the prop-firm domain, independent of the simulation.
var (
	eightPercent    = decimal.NewFromFloat(0.08)
	fivePercent     = decimal.NewFromFloat(0.05)
	thirteenPercent = decimal.NewFromFloat(0.13)
)

// Analyzer runs loss-support analysis against one calculator configuration.
// Stateless: each Analyze call owns its own accumulator, so one Analyzer may
// be used concurrently across plans.
type Analyzer struct {
	calc *progression.Calculator
}

// NewAnalyzer creates an Analyzer over the given lot-size calculator.
func NewAnalyzer(calc *progression.Calculator) *Analyzer {
	return &Analyzer{calc: calc}
}

// Analyze simulates up to maxTrades consecutive losses against the plan and
// reports the adjusted number of supported losses and the lot size of the
// last trade that did not breach the drawdown limit.
//
// A plan that survives all maxTrades simulated losses reports maxTrades
// supported losses before the safety adjustment.
func (a *Analyzer) Analyze(plan model.AccountPlan, maxTrades int) (model.LossSupportResult, error) {
	if err := validatePlan(plan); err != nil {
		return model.LossSupportResult{}, err
	}
	if maxTrades < 1 {
		return model.LossSupportResult{}, fmt.Errorf("%w: got %d", ErrInvalidSimulationBound, maxTrades)
	}

	cumulativeLoss := decimal.Zero
	lastTradeLotSize := decimal.Zero
	lossesSupported := maxTrades
	limit := plan.MaxOverallLoss.Neg()

	for n := 1; n <= maxTrades; n++ {
		rec, err := a.calc.ComputeTrade(n, cumulativeLoss)
		if err != nil {
			return model.LossSupportResult{}, err
		}
		cumulativeLoss = rec.CumulativeLossIfLosing

		if cumulativeLoss.LessThanOrEqual(limit) {
			// Trade n breaches the limit; it is not counted as supported.
			lossesSupported = n - 1
			break
		}
		lastTradeLotSize = rec.LotSize
	}

	adjusted := lossesSupported - 1
	if adjusted < 0 {
		adjusted = 0
	}

	return model.LossSupportResult{
		Plan:                    plan,
		AdjustedLossesSupported: adjusted,
		LastTradeLotSize:        lastTradeLotSize,
		EightPercent:            plan.AccountSize.Mul(eightPercent).Round(2),
		FivePercent:             plan.AccountSize.Mul(fivePercent).Round(2),
		ThirteenPercent:         plan.AccountSize.Mul(thirteenPercent).Round(2),
	}, nil
}

// AnalyzeAll analyzes each plan in order and returns one result per plan.
// Fails on the first invalid plan rather than returning partial results.
func (a *Analyzer) AnalyzeAll(plans []model.AccountPlan, maxTrades int) ([]model.LossSupportResult, error) {
	results := make([]model.LossSupportResult, 0, len(plans))
	for _, plan := range plans {
		res, err := a.Analyze(plan, maxTrades)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func validatePlan(plan model.AccountPlan) error {
	if plan.AccountSize.LessThanOrEqual(decimal.Zero) ||
		plan.MaxOverallLoss.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidPlan
	}
	if plan.MaxOverallLoss.GreaterThan(plan.AccountSize) {
		return fmt.Errorf("%w: loss limit %s exceeds account size %s",
			ErrInvalidPlan, plan.MaxOverallLoss, plan.AccountSize)
	}
	return nil
}
