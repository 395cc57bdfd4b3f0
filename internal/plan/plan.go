// Package plan handles account-plan parsing, validation, and the default
// plan book used for loss-support analysis.
//
// Plans can be supplied as a compact spec string (PLANS env var or query
// parameter): a comma-separated list of SIZE:MAXLOSS pairs, e.g.
//
//	6000:600,15000:1500,25000:2500
package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lotforge/lot-engine/internal/model"
)

// entryRegex matches one SIZE:MAXLOSS pair. Both sides are plain positive
// numbers with an optional fractional part.
var entryRegex = regexp.MustCompile(`^(\d+(?:\.\d+)?):(\d+(?:\.\d+)?)$`)

var (
	ErrInvalidPlanSpec = errors.New("plan: invalid plan spec entry")
	ErrEmptyPlanSpec   = errors.New("plan: plan spec is empty")
)

// DefaultDrawdownFraction is the domain-standard maximum overall loss as a
// fraction of account size (prop-firm style 10% drawdown).
var DefaultDrawdownFraction = decimal.NewFromFloat(0.10)

// DefaultPlans returns the stock plan book: six fixed account sizes, each
// with a 10% maximum overall loss.
func DefaultPlans() []model.AccountPlan {
	sizes := []int64{6000, 15000, 25000, 50000, 100000, 200000}
	plans := make([]model.AccountPlan, 0, len(sizes))
	for _, size := range sizes {
		plans = append(plans, ForAccountSize(decimal.NewFromInt(size)))
	}
	return plans
}

// ForAccountSize derives a plan from an account size alone, applying the
// default 10% drawdown limit.
func ForAccountSize(size decimal.Decimal) model.AccountPlan {
	return model.AccountPlan{
		AccountSize:    size,
		MaxOverallLoss: size.Mul(DefaultDrawdownFraction),
	}
}

// ParseList parses a comma-separated SIZE:MAXLOSS spec into account plans,
// preserving order. Whitespace around entries is ignored.
func ParseList(spec string) ([]model.AccountPlan, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, ErrEmptyPlanSpec
	}

	entries := strings.Split(spec, ",")
	plans := make([]model.AccountPlan, 0, len(entries))

	for _, entry := range entries {
		p, err := parseEntry(strings.TrimSpace(entry))
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func parseEntry(entry string) (model.AccountPlan, error) {
	matches := entryRegex.FindStringSubmatch(entry)
	if matches == nil {
		return model.AccountPlan{}, fmt.Errorf("%w: %q (expected SIZE:MAXLOSS)",
			ErrInvalidPlanSpec, entry)
	}

	size, err := decimal.NewFromString(matches[1])
	if err != nil {
		return model.AccountPlan{}, fmt.Errorf("%w: %q", ErrInvalidPlanSpec, entry)
	}
	maxLoss, err := decimal.NewFromString(matches[2])
	if err != nil {
		return model.AccountPlan{}, fmt.Errorf("%w: %q", ErrInvalidPlanSpec, entry)
	}

	if size.LessThanOrEqual(decimal.Zero) || maxLoss.LessThanOrEqual(decimal.Zero) {
		return model.AccountPlan{}, fmt.Errorf("%w: %q (size and loss must be positive)",
			ErrInvalidPlanSpec, entry)
	}
	if maxLoss.GreaterThan(size) {
		return model.AccountPlan{}, fmt.Errorf("%w: %q (loss limit exceeds account size)",
			ErrInvalidPlanSpec, entry)
	}

	return model.AccountPlan{AccountSize: size, MaxOverallLoss: maxLoss}, nil
}
