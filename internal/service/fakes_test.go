package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/virtuex/exchange-backend/internal/bank"
	"github.com/virtuex/exchange-backend/internal/models"
	"github.com/virtuex/exchange-backend/internal/repo"
)

// fakeState is the shared in-memory book behind the store fakes. The fakes
// mirror the repo package's ordering rules so the matcher sees the same
// candidate sequences it would get from Postgres.
type fakeState struct {
	mu        sync.Mutex
	orders    map[int64]*models.Order
	trades    map[int64]*models.Trade
	users     map[uuid.UUID]*models.User
	nextOrder int64
	nextTrade int64
	clock     time.Time
}

func newFakeState() *fakeState {
	return &fakeState{
		orders: make(map[int64]*models.Order),
		trades: make(map[int64]*models.Trade),
		users:  make(map[uuid.UUID]*models.User),
		clock:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so every row gets a distinct created_at.
func (f *fakeState) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeState) addUser(bankID string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &models.User{ID: uuid.New(), BankID: bankID, Name: bankID, CreatedAt: f.tick()}
	f.users[u.ID] = u
	return u
}

func (f *fakeState) addOrder(typ models.OrderType, u *models.User, amount, price int64) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOrder++
	o := &models.Order{
		ID:        f.nextOrder,
		Type:      typ,
		UserID:    u.ID,
		Amount:    amount,
		Price:     price,
		CreatedAt: f.tick(),
	}
	f.orders[o.ID] = o
	return o
}

// open returns open orders of one side. Callers must hold f.mu.
func (f *fakeState) open(typ models.OrderType) []*models.Order {
	var out []*models.Order
	for _, o := range f.orders {
		if o.Type == typ && o.IsOpen() {
			out = append(out, o)
		}
	}
	return out
}

type fakeOrders struct{ st *fakeState }

func (f *fakeOrders) Insert(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	f.st.nextOrder++
	o.ID = f.st.nextOrder
	o.CreatedAt = f.st.tick()
	f.st.orders[o.ID] = o
	return nil
}

func (f *fakeOrders) GetByID(ctx context.Context, q repo.Queryer, id int64) (*models.Order, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	o, ok := f.st.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return o, nil
}

func (f *fakeOrders) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return f.GetByID(ctx, nil, id)
}

func (f *fakeOrders) LowestSellOrder(ctx context.Context, q repo.Queryer) (*models.Order, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	open := f.st.open(models.OrderTypeSell)
	if len(open) == 0 {
		return nil, sql.ErrNoRows
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].Price != open[j].Price {
			return open[i].Price < open[j].Price
		}
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})
	return open[0], nil
}

func (f *fakeOrders) HighestBuyOrder(ctx context.Context, q repo.Queryer) (*models.Order, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	open := f.st.open(models.OrderTypeBuy)
	if len(open) == 0 {
		return nil, sql.ErrNoRows
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].Price != open[j].Price {
			return open[i].Price > open[j].Price
		}
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})
	return open[0], nil
}

func (f *fakeOrders) SelectCrossing(ctx context.Context, tx *sql.Tx, takerType models.OrderType, price int64) ([]*models.Order, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []*models.Order
	if takerType == models.OrderTypeBuy {
		for _, o := range f.st.open(models.OrderTypeSell) {
			if o.Price <= price {
				out = append(out, o)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Price != out[j].Price {
				return out[i].Price < out[j].Price
			}
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].ID < out[j].ID
		})
		return out, nil
	}
	for _, o := range f.st.open(models.OrderTypeBuy) {
		if o.Price >= price {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price > out[j].Price
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeOrders) CloseAsCanceled(ctx context.Context, q repo.Queryer, id int64) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	o, ok := f.st.orders[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := f.st.tick()
	o.ClosedAt = &now
	return nil
}

func (f *fakeOrders) CloseAsTraded(ctx context.Context, tx *sql.Tx, ids []int64, tradeID int64) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	now := f.st.tick()
	for _, id := range ids {
		o, ok := f.st.orders[id]
		if !ok {
			return sql.ErrNoRows
		}
		tid := tradeID
		o.ClosedAt = &now
		o.TradeID = &tid
	}
	return nil
}

func (f *fakeOrders) GetByUserID(ctx context.Context, q repo.Queryer, userID uuid.UUID) ([]*models.Order, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []*models.Order
	for _, o := range f.st.orders {
		if o.UserID == userID && (o.IsOpen() || o.TradeID != nil) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeOrders) GetByUserIDAndLastTradeID(ctx context.Context, q repo.Queryer, userID uuid.UUID, tradeID int64) ([]*models.Order, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []*models.Order
	for _, o := range f.st.orders {
		if o.UserID == userID && o.TradeID != nil && *o.TradeID > tradeID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type fakeTrades struct{ st *fakeState }

func (f *fakeTrades) Insert(ctx context.Context, tx *sql.Tx, t *models.Trade) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	f.st.nextTrade++
	t.ID = f.st.nextTrade
	t.CreatedAt = f.st.tick()
	f.st.trades[t.ID] = t
	return nil
}

func (f *fakeTrades) GetByID(ctx context.Context, q repo.Queryer, id int64) (*models.Trade, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	t, ok := f.st.trades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeTrades) Latest(ctx context.Context, q repo.Queryer) (*models.Trade, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var latest *models.Trade
	for _, t := range f.st.trades {
		if latest == nil || t.ID > latest.ID {
			latest = t
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (f *fakeTrades) Candles(ctx context.Context, q repo.Queryer, since time.Time, trunc string) ([]*models.CandlestickData, error) {
	return nil, nil
}

type fakeUsers struct{ st *fakeState }

func (f *fakeUsers) GetByID(ctx context.Context, q repo.Queryer, id uuid.UUID) (*models.User, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	u, ok := f.st.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUsers) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.User, error) {
	return f.GetByID(ctx, nil, id)
}

func (f *fakeUsers) GetByBankID(ctx context.Context, q repo.Queryer, bankID string) (*models.User, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	for _, u := range f.st.users {
		if u.BankID == bankID {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

type hold struct {
	bankID string
	price  int64
}

// fakeBank models the ledger with plain balances. A negative reserve price
// is a debit hold and fails when it exceeds the remaining balance; credit
// holds always succeed. Every call is recorded for conservation checks.
type fakeBank struct {
	mu     sync.Mutex
	credit map[string]int64
	nextID int64
	holds  map[int64]hold

	reserveLog []string
	reserved   []int64
	commits    [][]int64
	cancels    [][]int64

	commitErr error
	checkErr  error

	// failReserveAt makes the n-th Reserve call fail with reserveErr.
	failReserveAt   int
	reserveErr      error
	reserveAttempts int
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		credit: make(map[string]int64),
		holds:  make(map[int64]hold),
	}
}

func (b *fakeBank) Check(ctx context.Context, bankID string, price int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.checkErr != nil {
		return b.checkErr
	}
	if b.credit[bankID] < price {
		return bank.ErrCreditInsufficient
	}
	return nil
}

func (b *fakeBank) Reserve(ctx context.Context, bankID string, price int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserveAttempts++
	if b.failReserveAt > 0 && b.reserveAttempts == b.failReserveAt {
		return 0, b.reserveErr
	}
	if price < 0 && b.credit[bankID]+price < 0 {
		return 0, bank.ErrCreditInsufficient
	}
	b.credit[bankID] += price
	b.nextID++
	b.holds[b.nextID] = hold{bankID: bankID, price: price}
	b.reserveLog = append(b.reserveLog, bankID)
	b.reserved = append(b.reserved, b.nextID)
	return b.nextID, nil
}

func (b *fakeBank) Commit(ctx context.Context, reserveIDs []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.commitErr != nil {
		return b.commitErr
	}
	b.commits = append(b.commits, append([]int64(nil), reserveIDs...))
	for _, id := range reserveIDs {
		delete(b.holds, id)
	}
	return nil
}

func (b *fakeBank) Cancel(ctx context.Context, reserveIDs []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels = append(b.cancels, append([]int64(nil), reserveIDs...))
	for _, id := range reserveIDs {
		if h, ok := b.holds[id]; ok {
			b.credit[h.bankID] -= h.price
			delete(b.holds, id)
		}
	}
	return nil
}

func (b *fakeBank) settledIDs() (committed, canceled []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ids := range b.commits {
		committed = append(committed, ids...)
	}
	for _, ids := range b.cancels {
		canceled = append(canceled, ids...)
	}
	return committed, canceled
}

// assertConservation checks that every reserve id ended up in exactly one of
// the commit or cancel sets.
func (b *fakeBank) assertConservation() (missing, double []int64) {
	committed, canceled := b.settledIDs()
	seen := make(map[int64]int)
	for _, id := range committed {
		seen[id]++
	}
	for _, id := range canceled {
		seen[id]++
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.reserved {
		switch seen[id] {
		case 0:
			missing = append(missing, id)
		case 1:
		default:
			double = append(double, id)
		}
	}
	return missing, double
}

type auditEntry struct {
	Tag  string
	Data map[string]interface{}
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAudit) Send(tag string, data interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, _ := data.(map[string]interface{})
	a.entries = append(a.entries, auditEntry{Tag: tag, Data: m})
}

func (a *fakeAudit) count(tag string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		if e.Tag == tag {
			n++
		}
	}
	return n
}

func (a *fakeAudit) last(tag string) (auditEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Tag == tag {
			return a.entries[i], true
		}
	}
	return auditEntry{}, false
}

func newTestTradeService(st *fakeState, bk *fakeBank) (*TradeService, *fakeAudit) {
	audit := &fakeAudit{}
	svc := NewTradeService(nil, &fakeOrders{st}, &fakeTrades{st}, &fakeUsers{st}, bk, audit, zap.NewNop())
	svc.inTx = func(ctx context.Context, fn func(*sql.Tx) error) error {
		return fn(nil)
	}
	return svc, audit
}
