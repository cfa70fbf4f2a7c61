package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"priceArena/internal/app"
	"priceArena/internal/domain"
	"priceArena/internal/hub"
	"priceArena/internal/ports"
	"priceArena/internal/pricehistory"
	"priceArena/internal/round"
	"priceArena/internal/scoring"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockRoundRepo struct {
	rounds map[int64]*domain.Round
	nextID int64
}

func (m *mockRoundRepo) CreateRound(ctx context.Context, r *domain.Round) (int64, error) {
	for _, ex := range m.rounds {
		if ex.Symbol == r.Symbol && ex.StartTime.Equal(r.StartTime) {
			return 0, ports.ErrDuplicateInterval
		}
	}
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.rounds[r.ID] = &cp
	return r.ID, nil
}

func (m *mockRoundRepo) FindRoundByID(ctx context.Context, id int64) (*domain.Round, error) {
	r, ok := m.rounds[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRoundRepo) FindLiveRound(ctx context.Context, symbol string) (*domain.Round, error) {
	for _, r := range m.rounds {
		if r.Symbol == symbol && (r.Status == domain.RoundActive || r.Status == domain.RoundSettling) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRoundRepo) FindRoundByStart(ctx context.Context, symbol string, start time.Time) (*domain.Round, error) {
	for _, r := range m.rounds {
		if r.Symbol == symbol && r.StartTime.Equal(start) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRoundRepo) FindRecentSettledRounds(ctx context.Context, symbol string, limit int) ([]*domain.Round, error) {
	out := make([]*domain.Round, 0)
	for _, r := range m.rounds {
		if r.Symbol == symbol && r.Status == domain.RoundSettled {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRoundRepo) UpdateRoundStatus(ctx context.Context, id int64, status domain.RoundStatus) error {
	if r, ok := m.rounds[id]; ok {
		r.Status = status
	}
	return nil
}

func (m *mockRoundRepo) SettleRound(ctx context.Context, round *domain.Round) error {
	if r, ok := m.rounds[round.ID]; ok {
		r.Status = domain.RoundSettled
		r.Result = round.Result
	}
	return nil
}

type mockBetRepo struct {
	bets   map[int64]*domain.Bet
	nextID int64
}

func (m *mockBetRepo) CreateBet(ctx context.Context, b *domain.Bet) (int64, error) {
	for _, ex := range m.bets {
		if ex.RoundID == b.RoundID && ex.BotID == b.BotID {
			return 0, ports.ErrDuplicateBet
		}
	}
	m.nextID++
	b.ID = m.nextID
	b.Result = domain.BetPending
	cp := *b
	m.bets[b.ID] = &cp
	return b.ID, nil
}

func (m *mockBetRepo) FindBetsByRound(ctx context.Context, roundID int64) ([]*domain.Bet, error) {
	return nil, nil
}

func (m *mockBetRepo) FindRecentSettledBets(ctx context.Context, botID, symbol string, limit int) ([]*domain.Bet, error) {
	return nil, nil
}

func (m *mockBetRepo) SettleBet(ctx context.Context, betID int64, result domain.BetResult, scoreChange int) error {
	return nil
}

type mockScoreRepo struct{}

func (m *mockScoreRepo) ApplyScoreChange(ctx context.Context, botID, botName string, delta int, result domain.BetResult) error {
	return nil
}

func (m *mockScoreRepo) ApplySymbolScoreChange(ctx context.Context, botID, symbol string, delta int, result domain.BetResult) error {
	return nil
}

func (m *mockScoreRepo) FindBotScore(ctx context.Context, botID string) (*domain.BotScore, error) {
	return nil, nil
}

type mockSymbolRepo struct {
	symbols map[string]*domain.Symbol
}

func (m *mockSymbolRepo) FindEnabledSymbols(ctx context.Context) ([]*domain.Symbol, error) {
	out := make([]*domain.Symbol, 0)
	for _, s := range m.symbols {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSymbolRepo) FindSymbol(ctx context.Context, symbol string) (*domain.Symbol, error) {
	return m.symbols[symbol], nil
}

type mockTickRepo struct{}

func (m *mockTickRepo) UpsertTick(ctx context.Context, tick *domain.PriceTick) error { return nil }
func (m *mockTickRepo) FindTicksByRound(ctx context.Context, roundID int64) ([]*domain.PriceTick, error) {
	return nil, nil
}
func (m *mockTickRepo) CountTicksByRound(ctx context.Context, roundID int64) (int, error) {
	return 0, nil
}

type mockPriceSource struct{ price float64 }

func (m *mockPriceSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return m.price, nil
}

func (m *mockPriceSource) GetHistoricalTicks(ctx context.Context, symbol string, startMs, endMs int64) ([]ports.HistoricalTick, error) {
	return nil, nil
}

func (m *mockPriceSource) Ping(ctx context.Context) error { return nil }

// --- Test fixture ---

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type fixture struct {
	srv  *Server
	http *httptest.Server
	mgr  *round.Manager
	svc  *app.Service
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := &mockLogger{}
	engine, err := scoring.NewEngine(scoring.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{now: time.Date(2025, 6, 1, 14, 3, 27, 0, time.UTC)}

	rounds := &mockRoundRepo{rounds: make(map[int64]*domain.Round)}
	bets := &mockBetRepo{bets: make(map[int64]*domain.Bet)}
	symbols := &mockSymbolRepo{symbols: map[string]*domain.Symbol{
		"BTCUSDT": {Symbol: "BTCUSDT", RoundDuration: 600, DrawThreshold: 0.0001, Enabled: true},
		"XRPUSDT": {Symbol: "XRPUSDT", RoundDuration: 600, Enabled: false},
	}}
	prices := &mockPriceSource{price: 65000}

	mgr, err := round.NewManager(round.Config{
		DefaultRoundDuration: 600 * time.Second,
		DefaultDrawThreshold: 0.0001,
		BettingWindow:        420 * time.Second,
		BettingCutoff:        180 * time.Second,
		StreakLookback:       10,
		SkipLookback:         10,
		SkipGrace:            2,
	}, logger, rounds, bets, &mockScoreRepo{}, symbols, prices, engine)
	require.NoError(t, err)
	mgr.SetClock(func() time.Time { return f.now })
	f.mgr = mgr

	history, err := pricehistory.New(&mockTickRepo{}, prices, logger)
	require.NoError(t, err)

	events, err := hub.NewHub(logger, 8)
	require.NoError(t, err)

	svc, err := app.NewService(app.Config{
		SchedulerInterval: 5 * time.Second,
		TickInterval:      time.Second,
		BettingWindow:     420 * time.Second,
		MinCoverage:       0.5,
	}, logger, rounds, symbols, prices, mgr, history, engine, events)
	require.NoError(t, err)
	svc.SetClock(func() time.Time { return f.now })
	f.svc = svc

	srv, err := NewServer(Config{ListenAddr: ":0", DefaultSymbol: "BTCUSDT"}, logger, svc, mgr, events, symbols)
	require.NoError(t, err)
	f.srv = srv

	f.http = httptest.NewServer(srv.Handler())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// ensureRound creates a live round so snapshot and bet tests have one.
func (f *fixture) ensureRound(t *testing.T) {
	t.Helper()
	sym := &domain.Symbol{Symbol: "BTCUSDT", RoundDuration: 600, DrawThreshold: 0.0001, Enabled: true}
	_, _, err := f.mgr.EnsureRound(context.Background(), sym)
	require.NoError(t, err)
}

// --- Tests ---

func TestConnectPushesNoRoundSnapshot(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "")

	ev := readEvent(t, conn)
	assert.Equal(t, hub.EventNoRound, ev.Type)
}

func TestConnectPushesRoundSnapshot(t *testing.T) {
	f := newFixture(t)
	f.ensureRound(t)
	conn := f.dial(t, "?symbol=BTCUSDT")

	ev := readEvent(t, conn)
	require.Equal(t, hub.EventRoundStart, ev.Type)

	var payload hub.RoundStartPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "BTCUSDT", payload.Symbol)
	assert.Equal(t, 65000.0, payload.OpenPrice)
	assert.True(t, payload.BettingOpen)
	require.NotNil(t, payload.Scoring)
}

func TestConnectUnknownSymbolGetsError(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "?symbol=DOGEUSDT")

	ev := readEvent(t, conn)
	assert.Equal(t, hub.EventError, ev.Type)
}

func TestPingPong(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "")
	readEvent(t, conn) // snapshot

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	ev := readEvent(t, conn)
	assert.Equal(t, hub.EventPong, ev.Type)
}

func TestSwitchToDisabledSymbolRejected(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "")
	readEvent(t, conn) // snapshot

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "switch", "symbol": "XRPUSDT"}))
	ev := readEvent(t, conn)
	assert.Equal(t, hub.EventError, ev.Type)
}

func TestUnknownActionGetsError(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "")
	readEvent(t, conn) // snapshot

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "teleport"}))
	ev := readEvent(t, conn)
	assert.Equal(t, hub.EventError, ev.Type)
}

func TestBetFlow(t *testing.T) {
	f := newFixture(t)
	f.ensureRound(t)
	conn := f.dial(t, "")
	readEvent(t, conn) // snapshot

	bet := map[string]string{"action": "bet", "bot_id": "bot-1", "bot_name": "Alpha", "direction": "long"}
	require.NoError(t, conn.WriteJSON(bet))
	ev := readEvent(t, conn)
	require.Equal(t, hub.EventBetAccepted, ev.Type)

	var payload hub.BetAcceptedPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "BTCUSDT", payload.Symbol)
	assert.Equal(t, "long", payload.Direction)
	assert.InDelta(t, 207.0/420.0, payload.TimeProgress, 1e-9)

	// Same bot betting again in the same round is rejected.
	require.NoError(t, conn.WriteJSON(bet))
	ev = readEvent(t, conn)
	require.Equal(t, hub.EventError, ev.Type)

	var errPayload hub.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &errPayload))
	assert.Contains(t, errPayload.Message, "already bet")
}

func TestBetValidation(t *testing.T) {
	f := newFixture(t)
	f.ensureRound(t)
	conn := f.dial(t, "")
	readEvent(t, conn) // snapshot

	tests := []struct {
		name string
		msg  map[string]string
	}{
		{"missing bot_id", map[string]string{"action": "bet", "direction": "long"}},
		{"bad direction", map[string]string{"action": "bet", "bot_id": "bot-1", "direction": "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(tt.msg))
			ev := readEvent(t, conn)
			assert.Equal(t, hub.EventError, ev.Type)
		})
	}
}

func TestHealthAndStatsEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(f.http.URL + "/stats")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "application/json", resp2.Header.Get("Content-Type"))
}
