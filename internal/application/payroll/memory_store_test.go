package payroll

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/farmpay/backend/internal/domain/payroll"
	"github.com/farmpay/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errInjected = errors.New("injected store failure")

// memoryState is a copyable snapshot of every table
type memoryState struct {
	payments       map[uuid.UUID]payroll.Payment
	debts          map[uuid.UUID]payroll.Debt
	workers        map[uuid.UUID]payroll.Worker
	paymentHistory []payroll.PaymentHistory
	debtHistory    []payroll.DebtHistory
	balanceHistory []payroll.WorkerBalanceHistory
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		payments:       make(map[uuid.UUID]payroll.Payment, len(s.payments)),
		debts:          make(map[uuid.UUID]payroll.Debt, len(s.debts)),
		workers:        make(map[uuid.UUID]payroll.Worker, len(s.workers)),
		paymentHistory: append([]payroll.PaymentHistory(nil), s.paymentHistory...),
		debtHistory:    append([]payroll.DebtHistory(nil), s.debtHistory...),
		balanceHistory: append([]payroll.WorkerBalanceHistory(nil), s.balanceHistory...),
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	for k, v := range s.debts {
		out.debts[k] = v
	}
	for k, v := range s.workers {
		out.workers[k] = v
	}
	return out
}

// memoryStore is a transactional in-memory store. Transactions are serialized,
// savepoints are snapshots.
type memoryStore struct {
	mu    sync.Mutex
	state *memoryState
	// failOn makes the named repository method return errInjected
	failOn map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		state: &memoryState{
			payments: map[uuid.UUID]payroll.Payment{},
			debts:    map[uuid.UUID]payroll.Debt{},
			workers:  map[uuid.UUID]payroll.Worker{},
		},
		failOn: map[string]bool{},
	}
}

func (s *memoryStore) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	begin := s.state.clone()
	tx := &memoryTx{store: s, savepoints: map[string]*memoryState{}}
	if err := fn(tx); err != nil {
		s.state = begin
		return err
	}
	return nil
}

func (s *memoryStore) fail(method string) error {
	if s.failOn[method] {
		return errInjected
	}
	return nil
}

// snapshot returns a copy of the committed state for assertions
func (s *memoryStore) snapshot() *memoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *memoryStore) seedWorker(name string) *payroll.Worker {
	w, err := payroll.NewWorker(name)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.workers[w.ID] = *w
	return w
}

type memoryTx struct {
	store      *memoryStore
	savepoints map[string]*memoryState
}

func (t *memoryTx) PaymentRepo() payroll.PaymentRepository { return &memoryPaymentRepo{t.store} }
func (t *memoryTx) DebtRepo() payroll.DebtRepository       { return &memoryDebtRepo{t.store} }
func (t *memoryTx) WorkerRepo() payroll.WorkerRepository   { return &memoryWorkerRepo{t.store} }
func (t *memoryTx) HistoryRepo() payroll.HistoryRepository { return &memoryHistoryRepo{t.store} }

func (t *memoryTx) Savepoint(name string) error {
	t.savepoints[name] = t.store.state.clone()
	return nil
}

func (t *memoryTx) RollbackTo(name string) error {
	snap, ok := t.savepoints[name]
	if !ok {
		return errors.New("unknown savepoint " + name)
	}
	t.store.state = snap.clone()
	return nil
}

type memoryPaymentRepo struct{ s *memoryStore }

func (r *memoryPaymentRepo) load(p payroll.Payment) *payroll.Payment {
	p.ClearDomainEvents()
	return &p
}

func (r *memoryPaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*payroll.Payment, error) {
	if err := r.s.fail("Payment.FindByID"); err != nil {
		return nil, err
	}
	p, ok := r.s.state.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r.load(p), nil
}

func (r *memoryPaymentRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*payroll.Payment, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryPaymentRepo) FindByIdempotencyKey(_ context.Context, key string) (*payroll.Payment, error) {
	for _, p := range r.s.state.payments {
		if p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			return r.load(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryPaymentRepo) FindByAssignment(_ context.Context, pitakID, workerID, sessionID uuid.UUID) (*payroll.Payment, error) {
	for _, p := range r.s.state.payments {
		if p.PitakID != nil && *p.PitakID == pitakID && p.WorkerID == workerID && p.SessionID == sessionID {
			return r.load(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryPaymentRepo) FindByReference(_ context.Context, sessionID uuid.UUID, ref string) (*payroll.Payment, error) {
	for _, p := range r.s.state.payments {
		if p.SessionID == sessionID && p.ReferenceNumber == ref {
			return r.load(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryPaymentRepo) FindAll(_ context.Context, filter payroll.PaymentFilter) ([]payroll.Payment, error) {
	out := make([]payroll.Payment, 0)
	for _, p := range r.s.state.payments {
		if filter.WorkerID != nil && p.WorkerID != *filter.WorkerID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, *r.load(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryPaymentRepo) Count(ctx context.Context, filter payroll.PaymentFilter) (int64, error) {
	all, err := r.FindAll(ctx, filter)
	return int64(len(all)), err
}

func (r *memoryPaymentRepo) Create(_ context.Context, p *payroll.Payment) error {
	if err := r.s.fail("Payment.Create"); err != nil {
		return err
	}
	cp := *p
	cp.ClearDomainEvents()
	r.s.state.payments[p.ID] = cp
	return nil
}

func (r *memoryPaymentRepo) SaveWithLock(_ context.Context, p *payroll.Payment) error {
	if err := r.s.fail("Payment.SaveWithLock"); err != nil {
		return err
	}
	stored, ok := r.s.state.payments[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != p.Version {
		return shared.ErrConcurrencyConflict
	}
	p.IncrementVersion()
	cp := *p
	cp.ClearDomainEvents()
	r.s.state.payments[p.ID] = cp
	return nil
}

func (r *memoryPaymentRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.s.state.payments, id)
	return nil
}

type memoryDebtRepo struct{ s *memoryStore }

func (r *memoryDebtRepo) load(d payroll.Debt) *payroll.Debt {
	d.ClearDomainEvents()
	return &d
}

func (r *memoryDebtRepo) FindByID(_ context.Context, id uuid.UUID) (*payroll.Debt, error) {
	d, ok := r.s.state.debts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r.load(d), nil
}

func (r *memoryDebtRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*payroll.Debt, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryDebtRepo) FindOpenByWorkerForUpdate(_ context.Context, workerID uuid.UUID) ([]*payroll.Debt, error) {
	out := make([]*payroll.Debt, 0)
	for _, d := range r.s.state.debts {
		if d.WorkerID == workerID && d.Status.IsOpen() {
			out = append(out, r.load(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *memoryDebtRepo) FindByWorker(_ context.Context, workerID uuid.UUID) ([]payroll.Debt, error) {
	out := make([]payroll.Debt, 0)
	for _, d := range r.s.state.debts {
		if d.WorkerID == workerID {
			out = append(out, *r.load(d))
		}
	}
	return out, nil
}

func (r *memoryDebtRepo) SumOpenBalanceByWorker(ctx context.Context, workerID uuid.UUID) (decimal.Decimal, error) {
	debts, err := r.FindOpenByWorkerForUpdate(ctx, workerID)
	if err != nil {
		return decimal.Zero, err
	}
	return payroll.OpenBalanceTotal(debts), nil
}

func (r *memoryDebtRepo) Create(_ context.Context, d *payroll.Debt) error {
	cp := *d
	cp.ClearDomainEvents()
	r.s.state.debts[d.ID] = cp
	return nil
}

func (r *memoryDebtRepo) SaveWithLock(_ context.Context, d *payroll.Debt) error {
	if err := r.s.fail("Debt.SaveWithLock"); err != nil {
		return err
	}
	stored, ok := r.s.state.debts[d.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != d.Version {
		return shared.ErrConcurrencyConflict
	}
	d.IncrementVersion()
	cp := *d
	cp.ClearDomainEvents()
	r.s.state.debts[d.ID] = cp
	return nil
}

type memoryWorkerRepo struct{ s *memoryStore }

func (r *memoryWorkerRepo) FindByID(_ context.Context, id uuid.UUID) (*payroll.Worker, error) {
	w, ok := r.s.state.workers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &w, nil
}

func (r *memoryWorkerRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*payroll.Worker, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryWorkerRepo) ExistsByID(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := r.s.state.workers[id]
	return ok, nil
}

func (r *memoryWorkerRepo) Create(_ context.Context, w *payroll.Worker) error {
	r.s.state.workers[w.ID] = *w
	return nil
}

func (r *memoryWorkerRepo) SaveWithLock(_ context.Context, w *payroll.Worker) error {
	if err := r.s.fail("Worker.SaveWithLock"); err != nil {
		return err
	}
	stored, ok := r.s.state.workers[w.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != w.Version {
		return shared.ErrConcurrencyConflict
	}
	w.IncrementVersion()
	r.s.state.workers[w.ID] = *w
	return nil
}

type memoryHistoryRepo struct{ s *memoryStore }

func (r *memoryHistoryRepo) AppendPaymentHistory(_ context.Context, rows ...*payroll.PaymentHistory) error {
	if err := r.s.fail("History.AppendPaymentHistory"); err != nil {
		return err
	}
	for _, row := range rows {
		r.s.state.paymentHistory = append(r.s.state.paymentHistory, *row)
	}
	return nil
}

func (r *memoryHistoryRepo) AppendDebtHistory(_ context.Context, rows ...*payroll.DebtHistory) error {
	for _, row := range rows {
		r.s.state.debtHistory = append(r.s.state.debtHistory, *row)
	}
	return nil
}

func (r *memoryHistoryRepo) FindPaymentHistory(_ context.Context, paymentID uuid.UUID) ([]payroll.PaymentHistory, error) {
	out := make([]payroll.PaymentHistory, 0)
	for _, row := range r.s.state.paymentHistory {
		if row.PaymentID == paymentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memoryHistoryRepo) FindDebtHistory(_ context.Context, debtID uuid.UUID) ([]payroll.DebtHistory, error) {
	out := make([]payroll.DebtHistory, 0)
	for _, row := range r.s.state.debtHistory {
		if row.DebtID == debtID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memoryHistoryRepo) FindDebtHistoryByPayment(_ context.Context, paymentID uuid.UUID) ([]payroll.DebtHistory, error) {
	out := make([]payroll.DebtHistory, 0)
	for _, row := range r.s.state.debtHistory {
		if row.PaymentID != nil && *row.PaymentID == paymentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memoryHistoryRepo) CountDebtHistoryByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	rows, err := r.FindDebtHistoryByPayment(ctx, paymentID)
	return int64(len(rows)), err
}

func (r *memoryHistoryRepo) AppendWorkerBalanceHistory(_ context.Context, rows ...*payroll.WorkerBalanceHistory) error {
	for _, row := range rows {
		r.s.state.balanceHistory = append(r.s.state.balanceHistory, *row)
	}
	return nil
}

func (r *memoryHistoryRepo) FindWorkerBalanceHistory(_ context.Context, workerID uuid.UUID) ([]payroll.WorkerBalanceHistory, error) {
	out := make([]payroll.WorkerBalanceHistory, 0)
	for _, row := range r.s.state.balanceHistory {
		if row.WorkerID == workerID {
			out = append(out, row)
		}
	}
	return out, nil
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var (
	_ TransactionScope          = (*memoryStore)(nil)
	_ TransactionalRepositories = (*memoryTx)(nil)
	_ shared.EventPublisher     = (*recordingPublisher)(nil)
)
