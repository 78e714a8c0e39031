package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/taskcoin/backend/internal/ledger"
	"github.com/taskcoin/backend/internal/models"
	"github.com/taskcoin/backend/internal/payments"
)

// ---------------------------------------------------------------------------
// memDB is an in-memory stand-in for the Postgres schema. Each table adapter
// below mirrors the guards the SQL in internal/repository applies.
// ---------------------------------------------------------------------------

type memDB struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]models.Account
	tasks       map[uuid.UUID]models.Task
	submissions map[uuid.UUID]models.Submission
	withdrawals map[uuid.UUID]models.Withdrawal
	payments    map[uuid.UUID]models.Payment
	entries     []models.LedgerEntry
}

func newMemDB() *memDB {
	return &memDB{
		accounts:    map[uuid.UUID]models.Account{},
		tasks:       map[uuid.UUID]models.Task{},
		submissions: map[uuid.UUID]models.Submission{},
		withdrawals: map[uuid.UUID]models.Withdrawal{},
		payments:    map[uuid.UUID]models.Payment{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() *memDB {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &memDB{
		accounts:    copyMap(db.accounts),
		tasks:       copyMap(db.tasks),
		submissions: copyMap(db.submissions),
		withdrawals: copyMap(db.withdrawals),
		payments:    copyMap(db.payments),
		entries:     append([]models.LedgerEntry(nil), db.entries...),
	}
}

func (db *memDB) restore(s *memDB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts, db.tasks, db.submissions = s.accounts, s.tasks, s.submissions
	db.withdrawals, db.payments, db.entries = s.withdrawals, s.payments, s.entries
}

// fakeRunner serializes transactions and rolls memDB back when fn fails.
type fakeRunner struct {
	mu  sync.Mutex
	db  *memDB
	txs int
}

func (r *fakeRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs++
	snap := r.db.snapshot()
	if err := fn(ctx, nil); err != nil {
		r.db.restore(snap)
		return err
	}
	return nil
}

// --- accounts ---

type memAccounts struct{ db *memDB }

func (m memAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func (m memAccounts) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return m.GetByID(ctx, id)
}

func (m memAccounts) CreateIfMissingTx(_ context.Context, _ pgx.Tx, a *models.Account) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.accounts {
		if existing.ID == a.ID || existing.Email == a.Email {
			return false, nil
		}
	}
	m.db.accounts[a.ID] = models.Account{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role}
	return true, nil
}

func (m memAccounts) DeductCoins(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.accounts[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	if a.Coins < amount {
		return 0, models.ErrInsufficientBalance
	}
	a.Coins -= amount
	m.db.accounts[id] = a
	return a.Coins, nil
}

func (m memAccounts) AddCoins(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.accounts[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	a.Coins += amount
	m.db.accounts[id] = a
	return a.Coins, nil
}

// --- ledger entries ---

type memJournal struct{ db *memDB }

func (m memJournal) CreateTx(_ context.Context, _ pgx.Tx, e *models.LedgerEntry) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.entries = append(m.db.entries, *e)
	return nil
}

// --- tasks ---

type memTasks struct{ db *memDB }

func (m memTasks) CreateTx(_ context.Context, _ pgx.Tx, t *models.Task) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.tasks[t.ID] = *t
	return nil
}

func (m memTasks) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return m.GetByID(ctx, id)
}

func (m memTasks) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &t, nil
}

func (m memTasks) DecrementSlotTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.tasks[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	if t.RequiredWorkers > 0 {
		t.RequiredWorkers--
	}
	m.db.tasks[id] = t
	return t.RequiredWorkers, nil
}

func (m memTasks) IncrementSlotTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.tasks[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	t.RequiredWorkers++
	m.db.tasks[id] = t
	return t.RequiredWorkers, nil
}

func (m memTasks) UpdateDetailsTx(_ context.Context, _ pgx.Tx, t *models.Task) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cur, ok := m.db.tasks[t.ID]
	if !ok {
		return models.ErrNotFound
	}
	cur.Title, cur.Detail, cur.SubmissionInfo = t.Title, t.Detail, t.SubmissionInfo
	m.db.tasks[t.ID] = cur
	return nil
}

func (m memTasks) DeleteTx(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.tasks[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.db.tasks, id)
	return nil
}

// --- submissions ---

type memSubmissions struct{ db *memDB }

func (m memSubmissions) CreateTx(_ context.Context, _ pgx.Tx, s *models.Submission) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.submissions {
		if existing.TaskID == s.TaskID && existing.WorkerID == s.WorkerID {
			return fmt.Errorf("unique violation on (task_id, worker_id)")
		}
	}
	m.db.submissions[s.ID] = *s
	return nil
}

func (m memSubmissions) ExistsForWorkerTx(_ context.Context, _ pgx.Tx, taskID, workerID uuid.UUID) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.submissions {
		if s.TaskID == taskID && s.WorkerID == workerID {
			return true, nil
		}
	}
	return false, nil
}

func (m memSubmissions) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Submission, error) {
	return m.GetByID(ctx, id)
}

func (m memSubmissions) GetByID(_ context.Context, id uuid.UUID) (*models.Submission, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.submissions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (m memSubmissions) UpdateStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.submissions[id]
	if !ok || s.Status != models.StatusPending {
		return models.ErrInvalidState
	}
	s.Status = status
	m.db.submissions[id] = s
	return nil
}

// --- withdrawals ---

type memWithdrawals struct{ db *memDB }

func (m memWithdrawals) CreateTx(_ context.Context, _ pgx.Tx, w *models.Withdrawal) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.withdrawals[w.ID] = *w
	return nil
}

func (m memWithdrawals) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	return m.GetByID(ctx, id)
}

func (m memWithdrawals) GetByID(_ context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.withdrawals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &w, nil
}

func (m memWithdrawals) UpdateStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	w, ok := m.db.withdrawals[id]
	if !ok || w.Status != models.StatusPending {
		return models.ErrInvalidState
	}
	w.Status = status
	m.db.withdrawals[id] = w
	return nil
}

// --- payments ---

type memPayments struct{ db *memDB }

func (m memPayments) CreateTx(_ context.Context, _ pgx.Tx, p *models.Payment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.payments {
		if existing.ExternalID == p.ExternalID {
			return fmt.Errorf("unique violation on external_id")
		}
	}
	m.db.payments[p.ID] = *p
	return nil
}

func (m memPayments) GetByExternalIDForUpdate(_ context.Context, _ pgx.Tx, externalID string) (*models.Payment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, p := range m.db.payments {
		if p.ExternalID == externalID {
			return &p, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m memPayments) UpdateStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return models.ErrInvalidState
	}
	p.Status = status
	m.db.payments[id] = p
	return nil
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []models.Notification
	fails bool
}

func (n *fakeNotifier) Notify(_ context.Context, note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails {
		return fmt.Errorf("queue unavailable")
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *fakeNotifier) to(recipient uuid.UUID) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Notification
	for _, s := range n.sent {
		if s.RecipientID == recipient {
			out = append(out, s)
		}
	}
	return out
}

type fakeGateway struct {
	mu          sync.Mutex
	intents     map[string]*payments.Intent
	seq         int
	createErr   error
	retrieveErr error
	retrieves   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*payments.Intent{}}
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount decimal.Decimal, metadata map[string]string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	id := fmt.Sprintf("pi_%d", g.seq)
	md := map[string]string{}
	for k, v := range metadata {
		md[k] = v
	}
	g.intents[id] = &payments.Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method", Amount: amount, Currency: "usd", Metadata: md}
	cp := *g.intents[id]
	return &cp, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, id string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrieves++
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	in, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", payments.ErrIntentNotFound, id)
	}
	cp := *in
	return &cp, nil
}

// put registers an intent directly, as if it had been created and paid elsewhere.
func (g *fakeGateway) put(in *payments.Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[in.ID] = in
}

func (g *fakeGateway) setStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[id].Status = status
}

// ---------------------------------------------------------------------------
// fixture wires every service against one memDB.
// ---------------------------------------------------------------------------

type fixture struct {
	db      *memDB
	runner  *fakeRunner
	notes   *fakeNotifier
	gateway *fakeGateway

	escrow      *EscrowService
	submissions *SubmissionService
	withdrawals *WithdrawalService
	topup       *TopupService
	accounts    *AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	runner := &fakeRunner{db: db}
	notes := &fakeNotifier{}
	gw := newFakeGateway()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(memAccounts{db}, memJournal{db})

	return &fixture{
		db:          db,
		runner:      runner,
		notes:       notes,
		gateway:     gw,
		escrow:      NewEscrowService(runner, l, memTasks{db}, logger),
		submissions: NewSubmissionService(runner, l, memTasks{db}, memSubmissions{db}, notes, logger),
		withdrawals: NewWithdrawalService(runner, l, memWithdrawals{db}, notes, logger),
		topup:       NewTopupService(runner, l, memPayments{db}, gw, logger),
		accounts: NewAccountService(runner, l, memAccounts{db}, map[models.Role]int64{
			models.RoleWorker: 10,
			models.RoleBuyer:  50,
		}, logger),
	}
}

func (f *fixture) account(role models.Role, coins int64) uuid.UUID {
	id := uuid.New()
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.accounts[id] = models.Account{ID: id, Email: id.String() + "@example.com", Role: role, Coins: coins}
	return id
}

func (f *fixture) balance(id uuid.UUID) int64 {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.accounts[id].Coins
}

func (f *fixture) task(id uuid.UUID) (models.Task, bool) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.tasks[id]
	return t, ok
}

func (f *fixture) submission(id uuid.UUID) models.Submission {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.submissions[id]
}

func (f *fixture) withdrawal(id uuid.UUID) models.Withdrawal {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.withdrawals[id]
}

func (f *fixture) entries(entryType string) []models.LedgerEntry {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range f.db.entries {
		if e.EntryType == entryType {
			out = append(out, e)
		}
	}
	return out
}

// holdings is Σ balances + Σ open escrow, the quantity only topups, signup
// grants and approved withdrawals may change.
func (f *fixture) holdings() int64 {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var total int64
	for _, a := range f.db.accounts {
		total += a.Coins
	}
	for _, t := range f.db.tasks {
		total += t.OpenEscrow()
	}
	return total
}

// newTask opens a task for owner with the given slots and pay.
func (f *fixture) newTask(t *testing.T, owner uuid.UUID, workers int, pay int64) *models.Task {
	t.Helper()
	task, _, err := f.escrow.CreateTask(context.Background(), owner, NewTask{Title: "Review app", Detail: "Install and review", RequiredWorkers: workers, PayableAmount: pay})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}
