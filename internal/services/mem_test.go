package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/craftbid/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory store with row locks and rollback, so the real engine logic can
// be exercised without a database, including the concurrent-accept paths.
// memTx emulates just enough of a transaction: writes apply immediately but
// register undo hooks that run on Rollback, and FOR UPDATE locks are held
// until Commit or Rollback.
// ---------------------------------------------------------------------------

type memTx struct {
	pgx.Tx // panics if anything beyond Commit/Rollback is called

	mu      sync.Mutex
	unlocks []func()
	undos   []func()
	held    map[string]bool
	done    bool
}

func (t *memTx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.release()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	for i := len(t.undos) - 1; i >= 0; i-- {
		t.undos[i]()
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
	t.undos = nil
	t.held = nil
}

func (t *memTx) holds(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.held[key]
}

func (t *memTx) hold(key string) {
	t.mu.Lock()
	if t.held == nil {
		t.held = make(map[string]bool)
	}
	t.held[key] = true
	t.mu.Unlock()
}

func (t *memTx) onRollback(undo func()) {
	t.mu.Lock()
	t.undos = append(t.undos, undo)
	t.mu.Unlock()
}

func (t *memTx) onEnd(unlock func()) {
	t.mu.Lock()
	t.unlocks = append(t.unlocks, unlock)
	t.mu.Unlock()
}

func asMemTx(tx pgx.Tx) *memTx { return tx.(*memTx) }

// ---

type memStore struct {
	mu        sync.Mutex
	leads     map[uuid.UUID]*models.Lead
	interests map[uuid.UUID]*models.Interest
	accounts  map[uuid.UUID]*models.CreditAccount // keyed by contractor id
	entries   []*models.LedgerEntry
	events    []*models.Event
	seq       int64
	rowLocks  map[string]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		leads:     make(map[uuid.UUID]*models.Lead),
		interests: make(map[uuid.UUID]*models.Interest),
		accounts:  make(map[uuid.UUID]*models.CreditAccount),
		rowLocks:  make(map[string]*sync.Mutex),
	}
}

func (s *memStore) Begin(context.Context) (pgx.Tx, error) { return &memTx{}, nil }

// lockRow emulates SELECT ... FOR UPDATE: the per-row mutex is held until the
// transaction ends. Like Postgres row locks, re-locking a row the same
// transaction already holds is a no-op.
func (s *memStore) lockRow(kind string, id uuid.UUID, tx *memTx) {
	s.mu.Lock()
	key := kind + "/" + id.String()
	m, ok := s.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[key] = m
	}
	s.mu.Unlock()
	if tx.holds(key) {
		return
	}
	m.Lock()
	tx.hold(key)
	tx.onEnd(m.Unlock)
}

// --- lead repo ---

type memLeadRepo struct{ s *memStore }

func (r *memLeadRepo) CreateTx(_ context.Context, tx pgx.Tx, l *models.Lead) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.leads[l.ID] = &cp
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		delete(s.leads, cp.ID)
		s.mu.Unlock()
	})
	return nil
}

func (r *memLeadRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leads[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (r *memLeadRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Lead, error) {
	r.s.lockRow("lead", id, asMemTx(tx))
	return r.GetByID(ctx, id)
}

func (r *memLeadRepo) UpdateStatus(_ context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		l.Status = from
		s.mu.Unlock()
	})
	return true, nil
}

func (r *memLeadRepo) SetAssigned(_ context.Context, tx pgx.Tx, id, interestID uuid.UUID) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.Status != models.LeadStatusOpen {
		return false, nil
	}
	prevAssigned := l.AssignedInterestID
	l.Status = models.LeadStatusAssigned
	iid := interestID
	l.AssignedInterestID = &iid
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		l.Status = models.LeadStatusOpen
		l.AssignedInterestID = prevAssigned
		s.mu.Unlock()
	})
	return true, nil
}

func (r *memLeadRepo) SetCancelled(_ context.Context, tx pgx.Tx, id uuid.UUID, from, reason string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.Status != from {
		return false, nil
	}
	prevReason := l.CancelReason
	l.Status = models.LeadStatusCancelled
	rsn := reason
	l.CancelReason = &rsn
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		l.Status = from
		l.CancelReason = prevReason
		s.mu.Unlock()
	})
	return true, nil
}

// --- interest repo ---

type memInterestRepo struct{ s *memStore }

// CreateTx mirrors the constrained insert: no row unless the lead is open,
// unique-violation error when a non-withdrawn interest already exists.
func (r *memInterestRepo) CreateTx(_ context.Context, tx pgx.Tx, i *models.Interest) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[i.LeadID]
	if !ok || l.Status != models.LeadStatusOpen {
		return pgx.ErrNoRows
	}
	for _, existing := range s.interests {
		if existing.LeadID == i.LeadID && existing.ContractorID == i.ContractorID &&
			existing.Status != models.InterestStatusWithdrawn {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	cp := *i
	s.interests[i.ID] = &cp
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		delete(s.interests, cp.ID)
		s.mu.Unlock()
	})
	return nil
}

func (r *memInterestRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Interest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.interests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *i
	return &cp, nil
}

func (r *memInterestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Interest, error) {
	r.s.lockRow("interest", id, asMemTx(tx))
	return r.GetByID(ctx, id)
}

func (r *memInterestRepo) GetPendingByLeadAndContractor(ctx context.Context, tx pgx.Tx, leadID, contractorID uuid.UUID) (*models.Interest, error) {
	r.s.mu.Lock()
	var found *models.Interest
	for _, i := range r.s.interests {
		if i.LeadID == leadID && i.ContractorID == contractorID && i.Status == models.InterestStatusPending {
			found = i
			break
		}
	}
	r.s.mu.Unlock()
	if found == nil {
		return nil, pgx.ErrNoRows
	}
	return r.GetByIDForUpdate(ctx, tx, found.ID)
}

func (r *memInterestRepo) UpdateStatus(_ context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.interests[id]
	if !ok || i.Status != from {
		return false, nil
	}
	i.Status = to
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		i.Status = from
		s.mu.Unlock()
	})
	return true, nil
}

// --- account repo ---

type memAccountRepo struct{ s *memStore }

func (r *memAccountRepo) CreateTx(_ context.Context, tx pgx.Tx, a *models.CreditAccount) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	cp.Version = 1
	s.accounts[a.ContractorID] = &cp
	a.Version = 1
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		delete(s.accounts, cp.ContractorID)
		s.mu.Unlock()
	})
	return nil
}

func (r *memAccountRepo) GetByContractorIDForUpdate(_ context.Context, tx pgx.Tx, contractorID uuid.UUID) (*models.CreditAccount, error) {
	r.s.lockRow("account", contractorID, asMemTx(tx))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[contractorID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) ApplyDelta(_ context.Context, tx pgx.Tx, accountID uuid.UUID, delta int64) (int64, bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID != accountID {
			continue
		}
		if a.BalanceCents+delta < 0 {
			return 0, false, nil
		}
		prevBalance, prevVersion := a.BalanceCents, a.Version
		a.BalanceCents += delta
		a.Version++
		asMemTx(tx).onRollback(func() {
			s.mu.Lock()
			a.BalanceCents = prevBalance
			a.Version = prevVersion
			s.mu.Unlock()
		})
		return a.BalanceCents, true, nil
	}
	return 0, false, nil
}

func (r *memAccountRepo) balance(contractorID uuid.UUID) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.accounts[contractorID].BalanceCents
}

// --- ledger entry repo ---

type memLedgerRepo struct{ s *memStore }

func (r *memLedgerRepo) InsertTx(_ context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries = append(s.entries, &cp)
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		for idx, entry := range s.entries {
			if entry.ID == cp.ID {
				s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
				break
			}
		}
		s.mu.Unlock()
	})
	return nil
}

func (r *memLedgerRepo) GetByReference(_ context.Context, _ pgx.Tx, entryType string, referenceID uuid.UUID) (*models.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.entries {
		if e.EntryType == entryType && e.ReferenceID == referenceID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memLedgerRepo) byType(entryType string) []*models.LedgerEntry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range r.s.entries {
		if e.EntryType == entryType {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

func (r *memLedgerRepo) all() []*models.LedgerEntry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.LedgerEntry, 0, len(r.s.entries))
	for _, e := range r.s.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

// --- event repo ---

type memEventRepo struct{ s *memStore }

func (r *memEventRepo) InsertTx(_ context.Context, tx pgx.Tx, e *models.Event) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e.Seq = s.seq
	cp := *e
	s.events = append(s.events, &cp)
	asMemTx(tx).onRollback(func() {
		s.mu.Lock()
		for idx, ev := range s.events {
			if ev.ID == cp.ID {
				s.events = append(s.events[:idx], s.events[idx+1:]...)
				break
			}
		}
		s.mu.Unlock()
	})
	return nil
}

func (r *memEventRepo) types() []string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]string, 0, len(r.s.events))
	for _, e := range r.s.events {
		out = append(out, e.Type)
	}
	return out
}

// --- directory ---

type memDirectory struct {
	mu       sync.Mutex
	names    map[uuid.UUID]string
	contacts map[uuid.UUID]models.ContactInfo
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		names:    make(map[uuid.UUID]string),
		contacts: make(map[uuid.UUID]models.ContactInfo),
	}
}

func (d *memDirectory) add(id uuid.UUID, name, email, phone string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[id] = name
	d.contacts[id] = models.ContactInfo{Name: name, Email: email, Phone: phone}
}

func (d *memDirectory) DisplayName(_ context.Context, id uuid.UUID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.names[id], nil
}

func (d *memDirectory) ContactInfo(_ context.Context, id uuid.UUID) (models.ContactInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contacts[id], nil
}

// ---------------------------------------------------------------------------
// fixture: a fully wired engine over the in-memory store.
// ---------------------------------------------------------------------------

type fixture struct {
	store     *memStore
	leads     *memLeadRepo
	interests *memInterestRepo
	accounts  *memAccountRepo
	entries   *memLedgerRepo
	events    *memEventRepo
	directory *memDirectory
	ledger    *Ledger
	engine    *Engine
}

func newFixture() *fixture {
	s := newMemStore()
	f := &fixture{
		store:     s,
		leads:     &memLeadRepo{s: s},
		interests: &memInterestRepo{s: s},
		accounts:  &memAccountRepo{s: s},
		entries:   &memLedgerRepo{s: s},
		events:    &memEventRepo{s: s},
		directory: newMemDirectory(),
	}
	f.ledger = NewLedger(f.accounts, f.entries)
	f.engine = NewEngine(s, f.leads, f.interests, f.ledger, f.events, f.directory, nil, nil, nil)
	return f
}

// customer registers a customer principal with contact data.
func (f *fixture) customer(name string) models.Principal {
	id := uuid.New()
	f.directory.add(id, name, name+"@example.com", "+49 170 0000000")
	return models.Principal{ID: id, Role: models.RoleCustomer}
}

// contractor registers a contractor principal with a funded credit account.
func (f *fixture) contractor(name string, balanceCents int64) models.Principal {
	id := uuid.New()
	f.directory.add(id, name, name+"@example.com", "+49 171 0000000")
	f.store.accounts[id] = &models.CreditAccount{
		ID:           uuid.New(),
		ContractorID: id,
		BalanceCents: balanceCents,
		Version:      1,
	}
	return models.Principal{ID: id, Role: models.RoleContractor}
}

func (f *fixture) operator() models.Principal {
	return models.Principal{ID: uuid.New(), Role: models.RoleOperator}
}

// openLead creates a lead owned by the given customer.
func (f *fixture) openLead(c models.Principal) *models.Lead {
	lead := &models.Lead{
		ID:         uuid.New(),
		ReporterID: c.ID,
		Trade:      models.TradeWater,
		Title:      "burst pipe",
		Status:     models.LeadStatusOpen,
	}
	f.store.leads[lead.ID] = lead
	return lead
}

// pendingInterest seeds a pending interest from the contractor on the lead.
func (f *fixture) pendingInterest(lead *models.Lead, contractor models.Principal, priceCents int64) *models.Interest {
	name, _ := f.directory.DisplayName(context.Background(), contractor.ID)
	i := &models.Interest{
		ID:               uuid.New(),
		LeadID:           lead.ID,
		ContractorID:     contractor.ID,
		ContractorName:   name,
		QuotedPriceCents: priceCents,
		Status:           models.InterestStatusPending,
	}
	f.store.interests[i.ID] = i
	return i
}
