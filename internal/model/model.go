// Package model defines the core domain types shared across the lot engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"github.com/shopspring/decimal"
)

// StrategyParams holds the market and target parameters for a progressive
// lot-size calculation. Immutable for the duration of a run.
//
// Profit and loss are quoted per micro lot (0.01 lot), commission per full
// lot, matching how forex brokers publish these figures.
type StrategyParams struct {
	CommissionPerLot  decimal.Decimal `json:"commission_per_lot"`   // $ per 1.00 lot per trade
	ProfitPerMicroLot decimal.Decimal `json:"profit_per_micro_lot"` // $ per 0.01 lot, excl. commission
	LossPerMicroLot   decimal.Decimal `json:"loss_per_micro_lot"`   // $ per 0.01 lot, excl. commission
	TargetWinPerTrade decimal.Decimal `json:"target_win_per_trade"` // $ of cumulative profit per trade index
}

// NetWinRate returns the net dollar gain per 1.00 lot on a winning trade:
// profitPerMicroLot × 100 − commissionPerLot.
func (p StrategyParams) NetWinRate() decimal.Decimal {
	return p.ProfitPerMicroLot.Mul(decimal.NewFromInt(100)).Sub(p.CommissionPerLot)
}

// NetLossRate returns the net dollar loss per 1.00 lot on a losing trade:
// lossPerMicroLot × 100 + commissionPerLot. Always positive; the sign is
// applied where the loss is recorded.
func (p StrategyParams) NetLossRate() decimal.Decimal {
	return p.LossPerMicroLot.Mul(decimal.NewFromInt(100)).Add(p.CommissionPerLot)
}

// TradeRecord is one row of the progressive lot-size table. Records form an
// ordered sequence: each depends on the prior record's CumulativeLossIfLosing.
// Immutable once computed.
type TradeRecord struct {
	TradeIndex             int             `json:"trade_index"`
	DesiredTotalProfit     decimal.Decimal `json:"desired_total_profit"` // n × targetWinPerTrade
	LotSize                decimal.Decimal `json:"lot_size"`
	WinAmount              decimal.Decimal `json:"win_amount"`  // restores profit to n × target
	LoseAmount             decimal.Decimal `json:"lose_amount"` // negative
	CumulativeLossIfLosing decimal.Decimal `json:"cumulative_loss_if_losing"`
}

// AccountPlan is one fixed account configuration for loss-support analysis.
type AccountPlan struct {
	AccountSize    decimal.Decimal `json:"account_size"`
	MaxOverallLoss decimal.Decimal `json:"max_overall_loss"` // drawdown limit, typically 10% of size
}

// LossSupportResult reports how many consecutive losing trades a plan
// survives, with one loss deducted for safety, plus the lot size of the last
// survivable trade and fixed informational percentages of the account size.
type LossSupportResult struct {
	Plan                    AccountPlan     `json:"plan"`
	AdjustedLossesSupported int             `json:"adjusted_losses_supported"`
	LastTradeLotSize        decimal.Decimal `json:"last_trade_lot_size"`
	EightPercent            decimal.Decimal `json:"eight_percent_of_account"`
	FivePercent             decimal.Decimal `json:"five_percent_of_account"`
	ThirteenPercent         decimal.Decimal `json:"thirteen_percent_of_account"`
}
