package services

import (
	"context"
	"sync"
	"time"

	"idlemine/internal/economy"
	"idlemine/internal/models"
	"idlemine/internal/store"
	"idlemine/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memPlayerStore keeps committed players in memory. GetForUpdate hands out
// copies, so a failed mutation never leaks into stored state.
type memPlayerStore struct {
	mu      sync.Mutex
	players map[string]*models.Player
	saves   int
}

func newMemPlayerStore(players ...*models.Player) *memPlayerStore {
	s := &memPlayerStore{players: map[string]*models.Player{}}
	for _, p := range players {
		s.players[p.ID] = copyPlayer(p)
	}
	return s
}

func (s *memPlayerStore) Ensure(_ context.Context, _ store.Execer, playerID string, starterFuel decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[playerID]; ok {
		return false, nil
	}
	s.players[playerID] = &models.Player{
		ID:            playerID,
		Fuel:          starterFuel,
		Diamonds:      decimal.Zero,
		DailyDiamonds: decimal.Zero,
		Minerals:      map[models.Resource]int64{},
	}
	return true, nil
}

func (s *memPlayerStore) GetForUpdate(_ context.Context, _ store.Tx, playerID string) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil, models.ErrNotFound.WithMessage("player %s not found", playerID)
	}
	return copyPlayer(p), nil
}

func (s *memPlayerStore) Save(_ context.Context, _ store.Execer, player *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[player.ID] = copyPlayer(player)
	s.saves++
	return nil
}

func (s *memPlayerStore) get(playerID string) *models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPlayer(s.players[playerID])
}

func copyPlayer(p *models.Player) *models.Player {
	out := *p
	out.Minerals = make(map[models.Resource]int64, len(p.Minerals))
	for resource, qty := range p.Minerals {
		out.Minerals[resource] = qty
	}
	out.Machines = make([]models.Machine, len(p.Machines))
	for i, machine := range p.Machines {
		out.Machines[i] = machine.Clone()
	}
	return &out
}

type stubClaimStore struct {
	createFn          func(ctx context.Context, claim *models.CashoutClaim) error
	getFn             func(ctx context.Context, claimID string) (*models.CashoutClaim, error)
	resolveFn         func(ctx context.Context, claim *models.CashoutClaim) error
	lockPendingUpToFn func(ctx context.Context, cutoff time.Time) ([]models.CashoutClaim, error)
	listFn            func(ctx context.Context, statuses []string, limit, offset int) ([]models.CashoutClaim, error)
	listByPlayerFn    func(ctx context.Context, playerID string, limit, offset int) ([]models.CashoutClaim, error)
}

func (s stubClaimStore) Create(ctx context.Context, _ store.Execer, claim *models.CashoutClaim) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, claim)
}

func (s stubClaimStore) Get(ctx context.Context, claimID string) (*models.CashoutClaim, error) {
	return s.getFn(ctx, claimID)
}

func (s stubClaimStore) GetForUpdate(ctx context.Context, _ store.Getter, claimID string) (*models.CashoutClaim, error) {
	return s.getFn(ctx, claimID)
}

func (s stubClaimStore) Resolve(ctx context.Context, _ store.Execer, claim *models.CashoutClaim) error {
	if s.resolveFn == nil {
		return nil
	}
	return s.resolveFn(ctx, claim)
}

func (s stubClaimStore) LockPendingUpTo(ctx context.Context, _ store.Selecter, cutoff time.Time) ([]models.CashoutClaim, error) {
	if s.lockPendingUpToFn == nil {
		return nil, nil
	}
	return s.lockPendingUpToFn(ctx, cutoff)
}

func (s stubClaimStore) List(ctx context.Context, statuses []string, limit, offset int) ([]models.CashoutClaim, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, statuses, limit, offset)
}

func (s stubClaimStore) ListByPlayer(ctx context.Context, playerID string, limit, offset int) ([]models.CashoutClaim, error) {
	if s.listByPlayerFn == nil {
		return nil, nil
	}
	return s.listByPlayerFn(ctx, playerID, limit, offset)
}

// memRoundStore holds a single round by id.
type memRoundStore struct {
	mu       sync.Mutex
	rounds   map[string]*models.Round
	carry    int64
	payouts  []models.PayoutRecord
	updates  int
	createOK bool
}

func newMemRoundStore(rounds ...models.Round) *memRoundStore {
	s := &memRoundStore{rounds: map[string]*models.Round{}, createOK: true}
	for i := range rounds {
		round := rounds[i]
		s.rounds[round.ID] = &round
	}
	return s
}

func (s *memRoundStore) Create(_ context.Context, _ store.Execer, round *models.Round) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.createOK {
		return false, nil
	}
	copied := *round
	s.rounds[round.ID] = &copied
	return true, nil
}

func (s *memRoundStore) GetByDate(_ context.Context, _ store.Getter, date time.Time) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, round := range s.rounds {
		if round.RoundDate.Equal(date) {
			copied := *round
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memRoundStore) Get(ctx context.Context, roundID string) (*models.Round, error) {
	round, err := s.GetForUpdate(ctx, nil, roundID)
	if err != nil {
		return nil, err
	}
	round.Payouts = s.payouts
	return round, nil
}

func (s *memRoundStore) GetForUpdate(_ context.Context, _ store.Getter, roundID string) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[roundID]
	if !ok {
		return nil, models.ErrNotFound.WithMessage("round %s not found", roundID)
	}
	copied := *round
	return &copied, nil
}

func (s *memRoundStore) Update(_ context.Context, _ store.Execer, round *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *round
	s.rounds[round.ID] = &copied
	s.updates++
	return nil
}

func (s *memRoundStore) TakeCarry(context.Context, store.Tx, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	carry := s.carry
	s.carry = 0
	return carry, nil
}

func (s *memRoundStore) InsertPayouts(_ context.Context, _ store.Execer, records []models.PayoutRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts = append(s.payouts, records...)
	return nil
}

func (s *memRoundStore) ListUnemitted(_ context.Context, limit int) ([]models.PayoutRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PayoutRecord
	for _, record := range s.payouts {
		if record.EmittedAt == nil && len(out) < limit {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *memRoundStore) MarkEmitted(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		for i := range s.payouts {
			if s.payouts[i].ID == id && s.payouts[i].EmittedAt == nil {
				emitted := at
				s.payouts[i].EmittedAt = &emitted
			}
		}
	}
	return nil
}

// unemitted counts records still queued for the payment collaborator.
func (s *memRoundStore) unemitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, record := range s.payouts {
		if record.EmittedAt == nil {
			n++
		}
	}
	return n
}

type stubConfigStore struct {
	latestFn          func(ctx context.Context) (*economy.Config, error)
	latestForUpdateFn func(ctx context.Context) (*economy.Config, error)
	insertFn          func(ctx context.Context, cfg *economy.Config, createdBy string) (*economy.Config, error)
}

func (s stubConfigStore) Latest(ctx context.Context) (*economy.Config, error) {
	return s.latestFn(ctx)
}

func (s stubConfigStore) LatestForUpdate(ctx context.Context, _ store.Getter) (*economy.Config, error) {
	return s.latestForUpdateFn(ctx)
}

func (s stubConfigStore) Insert(ctx context.Context, _ store.Getter, cfg *economy.Config, createdBy string) (*economy.Config, error) {
	return s.insertFn(ctx, cfg, createdBy)
}

type stubAdminStore struct {
	hasAnyAdminFn func(ctx context.Context) (bool, error)
	createFn      func(ctx context.Context, userID string, isSuper bool) error
	grantFn       func(ctx context.Context, userID, role string) error
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context, _ store.Tx) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return false, nil
	}
	return s.hasAnyAdminFn(ctx)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, _ store.Execer, userID string, isSuper bool, _ *string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, userID, isSuper)
}

func (s stubAdminStore) GrantRole(ctx context.Context, _ store.Execer, userID, role string) error {
	if s.grantFn == nil {
		return nil
	}
	return s.grantFn(ctx, userID, role)
}

type auditCall struct {
	actor    string
	action   string
	entityID string
}

type recordingAuditStore struct {
	mu    sync.Mutex
	calls []auditCall
}

func (s *recordingAuditStore) Log(_ context.Context, _ store.Execer, actorID, action, _ string, entityID string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, auditCall{actor: actorID, action: action, entityID: entityID})
	return nil
}

func (s *recordingAuditStore) List(context.Context, int, int) ([]models.AuditEntry, error) {
	return nil, nil
}

type recordingHub struct {
	mu      sync.Mutex
	updates map[string][]websocket.LedgerUpdate
}

func newRecordingHub() *recordingHub {
	return &recordingHub{updates: map[string][]websocket.LedgerUpdate{}}
}

func (h *recordingHub) BroadcastLedger(playerID string, update websocket.LedgerUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates[playerID] = append(h.updates[playerID], update)
}

func (h *recordingHub) count(playerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates[playerID])
}

type stubEmitter struct {
	emitFn func(ctx context.Context, round models.Round, records []models.PayoutRecord) error
}

func (s stubEmitter) Emit(ctx context.Context, round models.Round, records []models.PayoutRecord) error {
	if s.emitFn == nil {
		return nil
	}
	return s.emitFn(ctx, round, records)
}

func (s stubEmitter) Close() error {
	return nil
}
