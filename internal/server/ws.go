// Package server exposes the arena over a websocket endpoint: live event
// subscriptions per symbol plus the bet, switch and ping client actions.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"priceArena/internal/app"
	"priceArena/internal/domain"
	"priceArena/internal/hub"
	"priceArena/internal/ports"
	"priceArena/internal/round"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 1024
)

// Config holds the server parameters.
type Config struct {
	ListenAddr    string
	DefaultSymbol string // Subscribed when a client connects without ?symbol=.
}

// Server upgrades websocket clients, feeds them through the hub, and routes
// their actions to the round manager.
type Server struct {
	cfg      Config
	logger   ports.Logger
	svc      *app.Service
	manager  *round.Manager
	events   *hub.Hub
	symbols  ports.SymbolRepository
	upgrader websocket.Upgrader
}

// NewServer creates the websocket server.
func NewServer(
	cfg Config,
	logger ports.Logger,
	svc *app.Service,
	manager *round.Manager,
	events *hub.Hub,
	symbols ports.SymbolRepository,
) (*Server, error) {
	if logger == nil || svc == nil || manager == nil || events == nil || symbols == nil {
		return nil, fmt.Errorf("missing required dependencies for server")
	}
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("ListenAddr is required")
	}
	if cfg.DefaultSymbol == "" {
		return nil, fmt.Errorf("DefaultSymbol is required")
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		svc:     svc,
		manager: manager,
		events:  events,
		symbols: symbols,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the HTTP mux: the websocket endpoint plus health and stats.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Websocket server listening", map[string]interface{}{"addr": s.cfg.ListenAddr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.events.Stats()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"subscribers":%d,"published":%d,"delivered":%d,"dropped":%d}`,
		stats.Subscribers, stats.Published, stats.Delivered, stats.Dropped)
}

// client wraps a websocket connection with a write mutex so hub broadcasts and
// direct replies never interleave on the wire.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// clientMessage is the envelope for every client-to-server action.
type clientMessage struct {
	Action    string `json:"action"`
	Symbol    string `json:"symbol,omitempty"`
	BotID     string `json:"bot_id,omitempty"`
	BotName   string `json:"bot_name,omitempty"`
	Direction string `json:"direction,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "Websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn}
	defer func() {
		s.events.Unsubscribe(c)
		_ = conn.Close()
	}()

	ctx := r.Context()
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = s.cfg.DefaultSymbol
	}
	if err := s.subscribe(ctx, c, symbol); err != nil {
		_ = c.WriteJSON(hub.NewErrorEvent(err.Error()))
		return
	}

	s.readLoop(ctx, c)
}

// subscribe validates the symbol, moves the client onto it, and pushes the
// current round snapshot.
func (s *Server) subscribe(ctx context.Context, c *client, symbol string) error {
	sym, err := s.symbols.FindSymbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("symbol lookup failed")
	}
	if sym == nil {
		return fmt.Errorf("unknown symbol %q", symbol)
	}
	if !sym.Enabled {
		return fmt.Errorf("symbol %q is disabled", symbol)
	}

	s.events.Subscribe(c, symbol)
	return c.WriteJSON(s.svc.CurrentRoundEvent(ctx, symbol))
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug(ctx, "Websocket closed unexpectedly", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		s.handleAction(ctx, c, msg)
	}
}

func (s *Server) handleAction(ctx context.Context, c *client, msg clientMessage) {
	switch msg.Action {
	case "ping":
		_ = c.WriteJSON(&hub.Event{Type: hub.EventPong})
	case "switch":
		if err := s.subscribe(ctx, c, msg.Symbol); err != nil {
			_ = c.WriteJSON(hub.NewErrorEvent(err.Error()))
		}
	case "bet":
		s.handleBet(ctx, c, msg)
	default:
		_ = c.WriteJSON(hub.NewErrorEvent(fmt.Sprintf("unknown action %q", msg.Action)))
	}
}

// handleBet places a bet on the client's current symbol and acknowledges it.
// Rejections come back as error events with a stable, client-friendly message.
func (s *Server) handleBet(ctx context.Context, c *client, msg clientMessage) {
	symbol, ok := s.events.Symbol(c)
	if !ok {
		_ = c.WriteJSON(hub.NewErrorEvent("not subscribed to a symbol"))
		return
	}
	if msg.BotID == "" {
		_ = c.WriteJSON(hub.NewErrorEvent("bot_id is required"))
		return
	}

	dir, err := parseDirection(msg.Direction)
	if err != nil {
		_ = c.WriteJSON(hub.NewErrorEvent(err.Error()))
		return
	}

	botName := msg.BotName
	if botName == "" {
		botName = msg.BotID
	}

	bet, err := s.manager.PlaceBet(ctx, symbol, msg.BotID, botName, dir)
	if err != nil {
		_ = c.WriteJSON(hub.NewErrorEvent(betErrorMessage(err)))
		return
	}

	_ = c.WriteJSON(&hub.Event{Type: hub.EventBetAccepted, Data: hub.BetAcceptedPayload{
		BetID:        bet.ID,
		RoundID:      bet.RoundID,
		Symbol:       bet.Symbol,
		Direction:    string(bet.Direction),
		TimeProgress: bet.TimeProgress,
	}})
}

func parseDirection(raw string) (domain.BetDirection, error) {
	switch raw {
	case string(domain.DirectionLong):
		return domain.DirectionLong, nil
	case string(domain.DirectionShort):
		return domain.DirectionShort, nil
	default:
		return "", fmt.Errorf("direction must be %q or %q", domain.DirectionLong, domain.DirectionShort)
	}
}

// betErrorMessage maps placement failures to messages safe to send clients.
func betErrorMessage(err error) string {
	switch {
	case errors.Is(err, ports.ErrBetWindowClosed):
		return "betting window is closed"
	case errors.Is(err, ports.ErrDuplicateBet):
		return "bot already bet in this round"
	case errors.Is(err, ports.ErrRoundNotActive):
		return "no active round"
	case errors.Is(err, ports.ErrSymbolDisabled):
		return "symbol is disabled"
	case errors.Is(err, ports.ErrNotFound):
		return "unknown symbol"
	default:
		return "bet rejected"
	}
}
