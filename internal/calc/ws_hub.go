// Package calc — WebSocket hub for live recalculation.
//
// Connected clients send a parameter message whenever a control changes; the
// hub recomputes both tables and broadcasts them to every client, so all
// open views stay in sync with the latest parameter set.
package calc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lotforge/lot-engine/internal/drawdown"
	"github.com/lotforge/lot-engine/internal/metrics"
	"github.com/lotforge/lot-engine/internal/model"
	"github.com/lotforge/lot-engine/internal/progression"
)

// WSRequest is a parameter-change message from a client. Absent fields fall
// back to the stock defaults, numeric values travel as strings to keep
// decimal precision.
type WSRequest struct {
	Commission string `json:"commission,omitempty"`
	Profit     string `json:"profit,omitempty"`
	Loss       string `json:"loss,omitempty"`
	Target     string `json:"target,omitempty"`
	Trades     int    `json:"trades,omitempty"`
	MaxTrades  int    `json:"max_trades,omitempty"`
}

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type        string               `json:"type"` // "calculation" or "error"
	RunID       string               `json:"run_id,omitempty"`
	Params      model.StrategyParams `json:"params,omitempty"`
	Progression []ProgressionRow     `json:"progression,omitempty"`
	LossSupport []LossSupportRow     `json:"loss_support,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// WSHub manages WebSocket connections and broadcasts recomputed tables to
// all connected clients when any client changes parameters.
type WSHub struct {
	svc        *Service
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewWSHub creates a WebSocket hub computing against the given service's
// plan book and simulation bound.
func NewWSHub(svc *Service) *WSHub {
	return &WSHub{
		svc:        svc,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Recalculate computes both tables for the request and queues the result for
// broadcast. Returns the error message to send back to the requesting client
// when the parameters are rejected.
func (h *WSHub) Recalculate(req WSRequest) *WSMessage {
	params, err := parseStrategyParams(req.values())
	if err != nil {
		metrics.ConfigRejections.Inc()
		return &WSMessage{Type: "error", Error: err.Error()}
	}

	calc, err := progression.NewCalculator(params)
	if err != nil {
		metrics.ConfigRejections.Inc()
		return &WSMessage{Type: "error", Error: err.Error()}
	}

	numTrades := req.Trades
	if numTrades == 0 {
		numTrades = defaultNumTrades
	}
	if numTrades < minNumTrades || numTrades > maxNumTrades {
		return &WSMessage{Type: "error", Error: "trades out of range"}
	}

	maxTrades := req.MaxTrades
	if maxTrades == 0 {
		maxTrades = h.svc.maxSimTrades
	}

	records, err := calc.Simulate(numTrades)
	if err != nil {
		return &WSMessage{Type: "error", Error: err.Error()}
	}
	results, err := drawdown.NewAnalyzer(calc).AnalyzeAll(h.svc.plans, maxTrades)
	if err != nil {
		return &WSMessage{Type: "error", Error: err.Error()}
	}
	metrics.CalculationsTotal.WithLabelValues("progression").Inc()
	metrics.CalculationsTotal.WithLabelValues("loss_support").Inc()

	msg := WSMessage{
		Type:        "calculation",
		RunID:       uuid.New().String(),
		Params:      params,
		Progression: progressionTable(records),
		LossSupport: lossSupportTable(results),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return &WSMessage{Type: "error", Error: "internal encoding error"}
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking the reader.
	}
	return nil
}

func (req WSRequest) values() url.Values {
	q := url.Values{}
	if req.Commission != "" {
		q.Set("commission", req.Commission)
	}
	if req.Profit != "" {
		q.Set("profit", req.Profit)
	}
	if req.Loss != "" {
		q.Set("loss", req.Loss)
	}
	if req.Target != "" {
		q.Set("target", req.Target)
	}
	return q
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: parse parameter messages, trigger recalculations, and
	// detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			var req WSRequest
			if err := json.Unmarshal(data, &req); err != nil {
				h.sendTo(conn, WSMessage{Type: "error", Error: "invalid request"})
				continue
			}
			if errMsg := h.Recalculate(req); errMsg != nil {
				h.sendTo(conn, *errMsg)
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}

// sendTo writes a message to a single client (validation errors go back to
// the sender only, not the whole room).
func (h *WSHub) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[conn] {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}
