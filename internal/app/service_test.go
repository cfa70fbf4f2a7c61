package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"priceArena/internal/domain"
	"priceArena/internal/hub"
	"priceArena/internal/ports"
	"priceArena/internal/pricehistory"
	"priceArena/internal/round"
	"priceArena/internal/scoring"

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

func newMockRoundRepo() *mockRoundRepo {
	return &mockRoundRepo{rounds: make(map[int64]*domain.Round)}
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
	var live *domain.Round
	for _, r := range m.rounds {
		if r.Symbol == symbol && (r.Status == domain.RoundActive || r.Status == domain.RoundSettling) {
			if live == nil || r.StartTime.After(live.StartTime) {
				live = r
			}
		}
	}
	if live == nil {
		return nil, nil
	}
	cp := *live
	return &cp, nil
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
	r, ok := m.rounds[id]
	if !ok {
		return ports.ErrRoundNotFound
	}
	r.Status = status
	return nil
}

func (m *mockRoundRepo) SettleRound(ctx context.Context, round *domain.Round) error {
	r, ok := m.rounds[round.ID]
	if !ok {
		return ports.ErrRoundNotFound
	}
	r.ClosePrice = round.ClosePrice
	r.PriceChange = round.PriceChange
	r.Result = round.Result
	r.Status = domain.RoundSettled
	round.Status = domain.RoundSettled
	return nil
}

type mockBetRepo struct {
	bets   map[int64]*domain.Bet
	nextID int64
}

func newMockBetRepo() *mockBetRepo {
	return &mockBetRepo{bets: make(map[int64]*domain.Bet)}
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
	out := make([]*domain.Bet, 0)
	for _, b := range m.bets {
		if b.RoundID == roundID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockBetRepo) FindRecentSettledBets(ctx context.Context, botID, symbol string, limit int) ([]*domain.Bet, error) {
	out := make([]*domain.Bet, 0)
	for _, b := range m.bets {
		if b.BotID == botID && b.Symbol == symbol && b.Result != domain.BetPending {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockBetRepo) SettleBet(ctx context.Context, betID int64, result domain.BetResult, scoreChange int) error {
	b, ok := m.bets[betID]
	if !ok || b.Result != domain.BetPending {
		return ports.ErrNotFound
	}
	b.Result = result
	b.ScoreChange = scoreChange
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

type mockTickRepo struct {
	ticks map[int64]map[int64]float64 // roundID -> timestampMs -> price
}

func newMockTickRepo() *mockTickRepo {
	return &mockTickRepo{ticks: make(map[int64]map[int64]float64)}
}

func (m *mockTickRepo) UpsertTick(ctx context.Context, tick *domain.PriceTick) error {
	if m.ticks[tick.RoundID] == nil {
		m.ticks[tick.RoundID] = make(map[int64]float64)
	}
	m.ticks[tick.RoundID][tick.TimestampMs] = tick.Price
	return nil
}

func (m *mockTickRepo) FindTicksByRound(ctx context.Context, roundID int64) ([]*domain.PriceTick, error) {
	out := make([]*domain.PriceTick, 0)
	for ts, price := range m.ticks[roundID] {
		out = append(out, &domain.PriceTick{RoundID: roundID, TimestampMs: ts, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out, nil
}

func (m *mockTickRepo) CountTicksByRound(ctx context.Context, roundID int64) (int, error) {
	return len(m.ticks[roundID]), nil
}

type mockPriceSource struct {
	price float64
	err   error
}

func (m *mockPriceSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return m.price, m.err
}

func (m *mockPriceSource) GetHistoricalTicks(ctx context.Context, symbol string, startMs, endMs int64) ([]ports.HistoricalTick, error) {
	return nil, nil
}

func (m *mockPriceSource) Ping(ctx context.Context) error { return nil }

// recordingConn captures every event delivered through the hub.
type recordingConn struct {
	mu     sync.Mutex
	events []*hub.Event
}

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v.(*hub.Event))
	return nil
}

func (c *recordingConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

// --- Test fixture ---

type fixture struct {
	svc    *Service
	rounds *mockRoundRepo
	bets   *mockBetRepo
	ticks  *mockTickRepo
	prices *mockPriceSource
	mgr    *round.Manager
	conn   *recordingConn
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := &mockLogger{}
	engine, err := scoring.NewEngine(scoring.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{
		rounds: newMockRoundRepo(),
		bets:   newMockBetRepo(),
		ticks:  newMockTickRepo(),
		prices: &mockPriceSource{price: 65000},
		conn:   &recordingConn{},
		now:    time.Date(2025, 6, 1, 14, 3, 27, 0, time.UTC),
	}
	symbols := &mockSymbolRepo{symbols: map[string]*domain.Symbol{
		"BTCUSDT": {Symbol: "BTCUSDT", DisplayName: "Bitcoin", Category: "crypto", RoundDuration: 600, DrawThreshold: 0.0001, Enabled: true},
	}}

	mgrCfg := round.Config{
		DefaultRoundDuration: 600 * time.Second,
		DefaultDrawThreshold: 0.0001,
		BettingWindow:        420 * time.Second,
		BettingCutoff:        180 * time.Second,
		StreakLookback:       10,
		SkipLookback:         10,
		SkipGrace:            2,
	}
	mgr, err := round.NewManager(mgrCfg, logger, f.rounds, f.bets, &mockScoreRepo{}, symbols, f.prices, engine)
	require.NoError(t, err)
	mgr.SetClock(func() time.Time { return f.now })
	f.mgr = mgr

	history, err := pricehistory.New(f.ticks, f.prices, logger)
	require.NoError(t, err)

	events, err := hub.NewHub(logger, 8)
	require.NoError(t, err)
	events.Subscribe(f.conn, "BTCUSDT")

	svc, err := NewService(Config{
		SchedulerInterval: 5 * time.Second,
		TickInterval:      time.Second,
		BettingWindow:     420 * time.Second,
		MinCoverage:       0.5,
	}, logger, f.rounds, symbols, f.prices, mgr, history, engine, events)
	require.NoError(t, err)
	svc.now = func() time.Time { return f.now }
	f.svc = svc
	return f
}

func (f *fixture) advanceTo(ts time.Time) {
	f.now = ts
}

// --- Tests ---

func TestSweepCreatesInitialRound(t *testing.T) {
	f := newFixture(t)

	f.svc.sweepRounds(context.Background())

	require.Len(t, f.rounds.rounds, 1)
	for _, r := range f.rounds.rounds {
		assert.Equal(t, domain.RoundActive, r.Status)
		assert.True(t, r.StartTime.Equal(time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)))
	}
	assert.Equal(t, []string{hub.EventRoundStart}, f.conn.types())
}

func TestSweepIsIdleWhileRoundRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.sweepRounds(ctx)
	f.advanceTo(time.Date(2025, 6, 1, 14, 5, 0, 0, time.UTC))
	f.svc.sweepRounds(ctx)

	require.Len(t, f.rounds.rounds, 1)
	assert.Equal(t, []string{hub.EventRoundStart}, f.conn.types(), "no duplicate round_start")
}

func TestSweepSettlesExpiredRoundAndStartsNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.sweepRounds(ctx)

	// Past the round boundary; the price has risen.
	f.prices.price = 65500
	f.advanceTo(time.Date(2025, 6, 1, 14, 10, 1, 0, time.UTC))
	f.svc.sweepRounds(ctx)

	settled := 0
	active := 0
	for _, r := range f.rounds.rounds {
		switch r.Status {
		case domain.RoundSettled:
			settled++
			assert.Equal(t, domain.ResultUp, r.Result)
		case domain.RoundActive:
			active++
			assert.Equal(t, 65500.0, r.OpenPrice, "new round opens at the fresh price")
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, active)
	assert.Equal(t, []string{hub.EventRoundStart, hub.EventRoundEnd, hub.EventRoundStart}, f.conn.types())
}

func TestSweepRetryableSettlementLeavesRoundLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.sweepRounds(ctx)

	// Price source dies before settlement.
	f.prices.err = errors.New("exchange down")
	f.advanceTo(time.Date(2025, 6, 1, 14, 10, 1, 0, time.UTC))
	f.svc.sweepRounds(ctx)

	live, err := f.rounds.FindLiveRound(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, live, "expired round stays live for the retry")
	assert.Equal(t, []string{hub.EventRoundStart}, f.conn.types(), "no round_end on failure")

	// Recovery on the next sweep.
	f.prices.err = nil
	f.svc.sweepRounds(ctx)
	assert.Equal(t, []string{hub.EventRoundStart, hub.EventRoundEnd, hub.EventRoundStart}, f.conn.types())
}

func TestRoundEndCarriesBetOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.sweepRounds(ctx)
	_, err := f.mgr.PlaceBet(ctx, "BTCUSDT", "bot-1", "Alpha", domain.DirectionLong)
	require.NoError(t, err)

	f.prices.price = 65500
	f.advanceTo(time.Date(2025, 6, 1, 14, 10, 1, 0, time.UTC))
	f.svc.sweepRounds(ctx)

	var end *hub.Event
	for _, e := range f.conn.events {
		if e.Type == hub.EventRoundEnd {
			end = e
		}
	}
	require.NotNil(t, end)
	payload, ok := end.Data.(hub.RoundEndPayload)
	require.True(t, ok)
	assert.Equal(t, "up", payload.Result)
	require.Len(t, payload.Bets, 1)
	assert.Equal(t, "bot-1", payload.Bets[0].BotID)
	assert.Equal(t, "win", payload.Bets[0].Result)
	assert.Positive(t, payload.Bets[0].ScoreChange)
}

func TestSampleSymbolRecordsAndBroadcastsTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.sweepRounds(ctx)
	f.conn.events = nil

	f.prices.price = 65250
	f.advanceTo(time.Date(2025, 6, 1, 14, 4, 0, 0, time.UTC))
	f.svc.sampleAll(ctx)

	require.Len(t, f.conn.events, 1)
	payload, ok := f.conn.events[0].Data.(hub.PriceTickPayload)
	require.True(t, ok)
	assert.Equal(t, 65250.0, payload.Price)
	assert.Equal(t, 360, payload.RemainingSeconds)
	assert.InDelta(t, 250.0/65000.0*100, payload.ChangePercent, 1e-9)

	// The sample is persisted for the round's history.
	var roundID int64
	for id := range f.rounds.rounds {
		roundID = id
	}
	count, err := f.ticks.CountTicksByRound(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSampleAllSkipsSymbolsWithoutActiveRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.sampleAll(ctx)
	assert.Empty(t, f.conn.events)
	assert.Empty(t, f.ticks.ticks)
}

func TestCurrentRoundEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No round yet.
	ev := f.svc.CurrentRoundEvent(ctx, "BTCUSDT")
	assert.Equal(t, hub.EventNoRound, ev.Type)

	// Live round, betting open: payload carries a scoring estimate.
	f.svc.sweepRounds(ctx)
	ev = f.svc.CurrentRoundEvent(ctx, "BTCUSDT")
	require.Equal(t, hub.EventRoundStart, ev.Type)
	payload, ok := ev.Data.(hub.RoundStartPayload)
	require.True(t, ok)
	assert.True(t, payload.BettingOpen)
	require.NotNil(t, payload.Scoring)
	assert.Positive(t, payload.Scoring.WinScore)
	assert.Negative(t, payload.Scoring.LoseScore)

	// Past the cutoff: betting closed, no estimate.
	f.advanceTo(time.Date(2025, 6, 1, 14, 8, 0, 0, time.UTC))
	ev = f.svc.CurrentRoundEvent(ctx, "BTCUSDT")
	payload, ok = ev.Data.(hub.RoundStartPayload)
	require.True(t, ok)
	assert.False(t, payload.BettingOpen)
	assert.Nil(t, payload.Scoring)
	assert.Equal(t, 120, payload.RemainingSeconds)
}
