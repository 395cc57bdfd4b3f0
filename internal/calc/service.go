// Package calc provides the HTTP handlers for the progressive lot-size
// table, the loss-support table, and its CSV export.
//
// The handlers are presentation glue: they collect strategy parameters from
// query strings (with the stock UI defaults), drive the numeric core, and
// render tables with currency formatting. All money stays decimal end to end.
package calc

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lotforge/lot-engine/internal/drawdown"
	"github.com/lotforge/lot-engine/internal/metrics"
	"github.com/lotforge/lot-engine/internal/model"
	"github.com/lotforge/lot-engine/internal/plan"
	"github.com/lotforge/lot-engine/internal/progression"
)

// Stock UI defaults, matching the original calculator's controls.
var (
	defaultCommission = decimal.NewFromFloat(1.5)
	defaultProfit     = decimal.NewFromFloat(1.2)
	defaultLoss       = decimal.NewFromFloat(1.0)
	defaultTarget     = decimal.NewFromFloat(1.0)
)

const (
	defaultNumTrades = 11
	minNumTrades     = 1
	maxNumTrades     = 20

	// CSVFilename is the download name for the loss-support export.
	CSVFilename = "adjusted_loss_support_with_last_lot.csv"
)

// Service handles calculator requests. Stateless: every request builds its
// own calculator from its own parameters, so no locking is needed.
type Service struct {
	plans        []model.AccountPlan
	maxSimTrades int
}

// NewService creates a calculator service with the given default plan book
// and loss-support simulation bound.
func NewService(plans []model.AccountPlan, maxSimTrades int) *Service {
	return &Service{
		plans:        plans,
		maxSimTrades: maxSimTrades,
	}
}

// --- Response types ---

// ProgressionRow is one formatted row of the progressive lot-size table.
type ProgressionRow struct {
	TradeIndex            int    `json:"trade_index"`
	DesiredTotalProfit    string `json:"desired_total_profit"`
	LotSize               string `json:"lot_size"`
	IfWin                 string `json:"if_win"`
	CumulativeProfitIfWin string `json:"cumulative_profit_if_win"`
	IfLose                string `json:"if_lose"`
	CumulativeLossIfLose  string `json:"cumulative_loss_if_lose"`
}

// ProgressionResponse is the JSON body for GET /progression.
type ProgressionResponse struct {
	RunID       string               `json:"run_id"`
	Params      model.StrategyParams `json:"params"`
	NetWinRate  decimal.Decimal      `json:"net_win_rate"`
	NetLossRate decimal.Decimal      `json:"net_loss_rate"`
	Trades      []model.TradeRecord  `json:"trades"`
	Table       []ProgressionRow     `json:"table"`
}

// LossSupportRow is one formatted row of the adjusted loss-support table,
// using the original export's column values.
type LossSupportRow struct {
	AccountSize             string `json:"account_size"`
	MaxOverallLoss          string `json:"max_overall_loss"`
	AdjustedLossesSupported int    `json:"adjusted_losses_supported"`
	EightPercent            string `json:"eight_percent_of_account"`
	FivePercent             string `json:"five_percent_of_account"`
	ThirteenPercent         string `json:"thirteen_percent_of_account"`
	LastTradeLotSize        string `json:"lot_size_in_last_trade"`
}

// LossSupportResponse is the JSON body for GET /loss-support.
type LossSupportResponse struct {
	RunID   string                    `json:"run_id"`
	Params  model.StrategyParams      `json:"params"`
	Results []model.LossSupportResult `json:"results"`
	Table   []LossSupportRow          `json:"table"`
}

// --- HTTP Handlers ---

// GetProgression handles GET /api/v1/progression
// Query: trades (1..20, default 11), commission, profit, loss, target.
func (s *Service) GetProgression(w http.ResponseWriter, r *http.Request) {
	params, calc, ok := s.calculatorFromQuery(w, r)
	if !ok {
		return
	}

	numTrades, err := parseIntParam(r.URL.Query(), "trades", defaultNumTrades)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if numTrades < minNumTrades || numTrades > maxNumTrades {
		writeError(w, fmt.Sprintf("trades must be between %d and %d", minNumTrades, maxNumTrades),
			http.StatusBadRequest)
		return
	}

	start := time.Now()
	records, err := calc.Simulate(numTrades)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	metrics.CalculationsTotal.WithLabelValues("progression").Inc()
	metrics.CalculationDuration.WithLabelValues("progression").Observe(time.Since(start).Seconds())

	resp := ProgressionResponse{
		RunID:       uuid.New().String(),
		Params:      params,
		NetWinRate:  calc.NetWinRate(),
		NetLossRate: calc.NetLossRate(),
		Trades:      records,
		Table:       progressionTable(records),
	}

	slog.Info("progression computed",
		"run_id", resp.RunID,
		"trades", numTrades,
		"final_cumulative_loss", records[len(records)-1].CumulativeLossIfLosing.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetLossSupport handles GET /api/v1/loss-support
// Query: plans (SIZE:MAXLOSS,... spec; default plan book when absent),
// max_trades, plus the strategy parameter set.
func (s *Service) GetLossSupport(w http.ResponseWriter, r *http.Request) {
	results, params, ok := s.lossSupportFromQuery(w, r)
	if !ok {
		return
	}

	resp := LossSupportResponse{
		RunID:   uuid.New().String(),
		Params:  params,
		Results: results,
		Table:   lossSupportTable(results),
	}

	slog.Info("loss support computed",
		"run_id", resp.RunID,
		"plans", len(results),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ExportLossSupportCSV handles GET /api/v1/loss-support/csv
// Streams the loss-support table as a CSV download.
func (s *Service) ExportLossSupportCSV(w http.ResponseWriter, r *http.Request) {
	results, _, ok := s.lossSupportFromQuery(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+CSVFilename+`"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{
		"Account Size",
		"Max Overall Loss",
		"Losses Supported (Adjusted)",
		"8% of Account Size",
		"5% of Account Size",
		"13% of Account Size",
		"Lot Size in Last Trade",
	})
	for _, row := range lossSupportTable(results) {
		cw.Write([]string{
			row.AccountSize,
			row.MaxOverallLoss,
			strconv.Itoa(row.AdjustedLossesSupported),
			row.EightPercent,
			row.FivePercent,
			row.ThirteenPercent,
			row.LastTradeLotSize,
		})
	}
	cw.Flush()

	metrics.CSVExportsTotal.Inc()
	slog.Info("loss support exported", "plans", len(results), "filename", CSVFilename)
}

// --- Shared request plumbing ---

// calculatorFromQuery parses strategy parameters and builds a validated
// calculator, writing a 400 (and counting the rejection) on failure.
func (s *Service) calculatorFromQuery(w http.ResponseWriter, r *http.Request) (model.StrategyParams, *progression.Calculator, bool) {
	params, err := parseStrategyParams(r.URL.Query())
	if err != nil {
		metrics.ConfigRejections.Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return model.StrategyParams{}, nil, false
	}

	calc, err := progression.NewCalculator(params)
	if err != nil {
		metrics.ConfigRejections.Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return model.StrategyParams{}, nil, false
	}
	return params, calc, true
}

// lossSupportFromQuery runs the full loss-support analysis for a request.
func (s *Service) lossSupportFromQuery(w http.ResponseWriter, r *http.Request) ([]model.LossSupportResult, model.StrategyParams, bool) {
	params, calc, ok := s.calculatorFromQuery(w, r)
	if !ok {
		return nil, model.StrategyParams{}, false
	}

	q := r.URL.Query()
	plans := s.plans
	if spec := q.Get("plans"); spec != "" {
		parsed, err := plan.ParseList(spec)
		if err != nil {
			metrics.ConfigRejections.Inc()
			writeError(w, err.Error(), http.StatusBadRequest)
			return nil, model.StrategyParams{}, false
		}
		plans = parsed
	}

	maxTrades, err := parseIntParam(q, "max_trades", s.maxSimTrades)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, model.StrategyParams{}, false
	}

	start := time.Now()
	results, err := drawdown.NewAnalyzer(calc).AnalyzeAll(plans, maxTrades)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, model.StrategyParams{}, false
	}
	metrics.CalculationsTotal.WithLabelValues("loss_support").Inc()
	metrics.CalculationDuration.WithLabelValues("loss_support").Observe(time.Since(start).Seconds())

	return results, params, true
}

// parseStrategyParams reads the four strategy controls from the query,
// falling back to the stock defaults for absent keys.
func parseStrategyParams(q url.Values) (model.StrategyParams, error) {
	commission, err := parseDecimalParam(q, "commission", defaultCommission)
	if err != nil {
		return model.StrategyParams{}, err
	}
	profit, err := parseDecimalParam(q, "profit", defaultProfit)
	if err != nil {
		return model.StrategyParams{}, err
	}
	loss, err := parseDecimalParam(q, "loss", defaultLoss)
	if err != nil {
		return model.StrategyParams{}, err
	}
	target, err := parseDecimalParam(q, "target", defaultTarget)
	if err != nil {
		return model.StrategyParams{}, err
	}

	return model.StrategyParams{
		CommissionPerLot:  commission,
		ProfitPerMicroLot: profit,
		LossPerMicroLot:   loss,
		TargetWinPerTrade: target,
	}, nil
}

func parseDecimalParam(q url.Values, key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

func parseIntParam(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

// --- Table rendering ---

func progressionTable(records []model.TradeRecord) []ProgressionRow {
	rows := make([]ProgressionRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, ProgressionRow{
			TradeIndex:            rec.TradeIndex,
			DesiredTotalProfit:    formatUSD(rec.DesiredTotalProfit, 2),
			LotSize:               rec.LotSize.StringFixed(5),
			IfWin:                 formatUSD(rec.WinAmount, 4),
			CumulativeProfitIfWin: formatUSD(rec.DesiredTotalProfit, 2),
			IfLose:                formatUSD(rec.LoseAmount, 4),
			CumulativeLossIfLose:  formatUSD(rec.CumulativeLossIfLosing, 4),
		})
	}
	return rows
}

func lossSupportTable(results []model.LossSupportResult) []LossSupportRow {
	rows := make([]LossSupportRow, 0, len(results))
	for _, res := range results {
		rows = append(rows, LossSupportRow{
			AccountSize:             formatUSD(res.Plan.AccountSize, 0),
			MaxOverallLoss:          formatUSD(res.Plan.MaxOverallLoss, 0),
			AdjustedLossesSupported: res.AdjustedLossesSupported,
			EightPercent:            formatUSD(res.EightPercent, 2),
			FivePercent:             formatUSD(res.FivePercent, 2),
			ThirteenPercent:         formatUSD(res.ThirteenPercent, 2),
			LastTradeLotSize:        res.LastTradeLotSize.StringFixed(5),
		})
	}
	return rows
}

// formatUSD renders a decimal as "$1,234.56" with the given number of
// fractional places. Negative values render as "$-1,234.56".
func formatUSD(v decimal.Decimal, places int32) string {
	fixed := v.StringFixed(places)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	intPart := fixed
	fracPart := ""
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, fracPart = fixed[:i], fixed[i:]
	}

	// Insert thousands separators right to left.
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	return "$" + sign + b.String() + fracPart
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
