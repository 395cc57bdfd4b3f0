package calc_test

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lotforge/lot-engine/internal/calc"
	"github.com/lotforge/lot-engine/internal/plan"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service with the default plan book and a chi router.
func newTestEnv(t *testing.T) chi.Router {
	t.Helper()
	svc := calc.NewService(plan.DefaultPlans(), 100)

	r := chi.NewRouter()
	r.Get("/api/v1/progression", svc.GetProgression)
	r.Get("/api/v1/loss-support", svc.GetLossSupport)
	r.Get("/api/v1/loss-support/csv", svc.ExportLossSupportCSV)

	return r
}

func doGet(t *testing.T, router chi.Router, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- Progression endpoint tests ---

func TestGetProgression_Defaults(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/progression")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp calc.ProgressionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.RunID == "" {
		t.Error("expected non-empty run_id")
	}
	if len(resp.Trades) != 11 {
		t.Fatalf("expected 11 trades by default, got %d", len(resp.Trades))
	}
	if !resp.NetWinRate.Equal(d(118.5)) {
		t.Errorf("expected net win rate 118.5, got %s", resp.NetWinRate)
	}
	if !resp.NetLossRate.Equal(d(101.5)) {
		t.Errorf("expected net loss rate 101.5, got %s", resp.NetLossRate)
	}
}

func TestGetProgression_FirstRowFormatting(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/progression")
	var resp calc.ProgressionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Table) == 0 {
		t.Fatal("expected a formatted table")
	}
	row := resp.Table[0]
	if row.TradeIndex != 1 {
		t.Errorf("expected trade index 1, got %d", row.TradeIndex)
	}
	if row.DesiredTotalProfit != "$1.00" {
		t.Errorf("expected desired profit $1.00, got %s", row.DesiredTotalProfit)
	}
	if row.LotSize != "0.00844" {
		t.Errorf("expected lot size 0.00844, got %s", row.LotSize)
	}
	if row.IfWin != "$1.0000" {
		t.Errorf("expected if-win $1.0000, got %s", row.IfWin)
	}
	if row.IfLose != "$-0.8565" {
		t.Errorf("expected if-lose $-0.8565, got %s", row.IfLose)
	}
}

func TestGetProgression_TradeCountParam(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/progression?trades=20")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp calc.ProgressionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Trades) != 20 {
		t.Errorf("expected 20 trades, got %d", len(resp.Trades))
	}
}

func TestGetProgression_TradesOutOfRange(t *testing.T) {
	router := newTestEnv(t)

	for _, q := range []string{"trades=0", "trades=21", "trades=-3"} {
		w := doGet(t, router, "/api/v1/progression?"+q)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %s, got %d", q, w.Code)
		}
	}
}

func TestGetProgression_ZeroCommission(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/progression?commission=0")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp calc.ProgressionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.NetWinRate.Equal(d(120)) {
		t.Errorf("expected net win rate 120 without commission, got %s", resp.NetWinRate)
	}
}

func TestGetProgression_DegenerateConfig(t *testing.T) {
	router := newTestEnv(t)

	// Commission exactly consumes the per-lot profit: netWinRate = 0.
	w := doGet(t, router, "/api/v1/progression?profit=0.015")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero net win rate, got %d", w.Code)
	}

	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if !strings.Contains(body["error"], "net win rate") {
		t.Errorf("expected a net-win-rate error, got %q", body["error"])
	}
}

func TestGetProgression_InvalidDecimal(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/progression?commission=abc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid commission, got %d", w.Code)
	}
}

// --- Loss-support endpoint tests ---

func TestGetLossSupport_Defaults(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/loss-support")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp calc.LossSupportResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Results) != 6 {
		t.Fatalf("expected 6 results for the default plan book, got %d", len(resp.Results))
	}

	// Under the defaults the plan book supports 8..13 adjusted losses.
	want := []int{8, 9, 10, 11, 12, 13}
	for i, res := range resp.Results {
		if res.AdjustedLossesSupported != want[i] {
			t.Errorf("plan %d: expected %d adjusted losses, got %d",
				i, want[i], res.AdjustedLossesSupported)
		}
	}
}

func TestGetLossSupport_FirstRowFormatting(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/loss-support")
	var resp calc.LossSupportResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Table) == 0 {
		t.Fatal("expected a formatted table")
	}
	row := resp.Table[0]
	if row.AccountSize != "$6,000" {
		t.Errorf("expected account size $6,000, got %s", row.AccountSize)
	}
	if row.MaxOverallLoss != "$600" {
		t.Errorf("expected max loss $600, got %s", row.MaxOverallLoss)
	}
	if row.EightPercent != "$480.00" {
		t.Errorf("expected 8%% = $480.00, got %s", row.EightPercent)
	}
	if row.LastTradeLotSize != "2.57165" {
		t.Errorf("expected last lot 2.57165, got %s", row.LastTradeLotSize)
	}
}

func TestGetLossSupport_CustomPlans(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/loss-support?plans=50000:5000,6000:600")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp calc.LossSupportResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	// Input order is preserved.
	if !resp.Results[0].Plan.AccountSize.Equal(d(50000)) {
		t.Errorf("expected first result for $50,000 plan, got %s",
			resp.Results[0].Plan.AccountSize)
	}
}

func TestGetLossSupport_InvalidPlanSpec(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/loss-support?plans=nonsense")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid plan spec, got %d", w.Code)
	}
}

func TestGetLossSupport_Deterministic(t *testing.T) {
	router := newTestEnv(t)

	w1 := doGet(t, router, "/api/v1/loss-support")
	w2 := doGet(t, router, "/api/v1/loss-support")

	var r1, r2 calc.LossSupportResponse
	json.Unmarshal(w1.Body.Bytes(), &r1)
	json.Unmarshal(w2.Body.Bytes(), &r2)

	for i := range r1.Table {
		if r1.Table[i] != r2.Table[i] {
			t.Errorf("row %d differs between identical requests", i)
		}
	}
}

// --- CSV export tests ---

func TestExportLossSupportCSV(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/loss-support/csv")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, calc.CSVFilename) {
		t.Errorf("expected download filename %s, got %s", calc.CSVFilename, cd)
	}

	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}
	if len(rows) != 7 { // header + 6 plans
		t.Fatalf("expected 7 CSV rows, got %d", len(rows))
	}
	if rows[0][0] != "Account Size" || rows[0][6] != "Lot Size in Last Trade" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][2] != "8" {
		t.Errorf("expected 8 adjusted losses for the first plan, got %s", rows[1][2])
	}
	if rows[1][6] != "2.57165" {
		t.Errorf("expected last lot 2.57165 for the first plan, got %s", rows[1][6])
	}
}

func TestExportLossSupportCSV_RejectsBadParams(t *testing.T) {
	router := newTestEnv(t)

	w := doGet(t, router, "/api/v1/loss-support/csv?profit=0.01")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for degenerate params, got %d", w.Code)
	}
}
