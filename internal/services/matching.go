package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/craftbid/backend/internal/models"
	"github.com/craftbid/backend/internal/notify"
)

// Business-rule outcomes. These are expected results surfaced verbatim to the
// caller and are never retried by the engine itself.
var (
	ErrNotFound          = errors.New("not found")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrLeadNotOpen       = errors.New("lead is no longer open")
	ErrNotPending        = errors.New("interest is not pending")
	ErrDuplicateInterest = errors.New("contractor already holds an interest on this lead")
	ErrTerminalState     = errors.New("lead is in a terminal state")
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation wraps malformed-input rejections; no state is touched.
	ErrValidation = errors.New("validation failed")
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EngineLeadRepo is the lead store surface the engine drives.
type EngineLeadRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, l *models.Lead) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Lead, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
	SetAssigned(ctx context.Context, tx pgx.Tx, id, interestID uuid.UUID) (bool, error)
	SetCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, reason string) (bool, error)
}

// EngineInterestRepo is the interest registry surface the engine drives.
type EngineInterestRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, i *models.Interest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Interest, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Interest, error)
	GetPendingByLeadAndContractor(ctx context.Context, tx pgx.Tx, leadID, contractorID uuid.UUID) (*models.Interest, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
}

// CreditLedger is the slice of the ledger the engine charges through.
type CreditLedger interface {
	Debit(ctx context.Context, tx pgx.Tx, contractorID uuid.UUID, amount int64, entryType string, referenceID uuid.UUID) (int64, error)
}

// EventAppender writes to the change feed inside the engine's transaction.
type EventAppender interface {
	InsertTx(ctx context.Context, tx pgx.Tx, e *models.Event) error
}

// EventPublisher receives committed events for live fan-out. Delivery is best
// effort; the durable feed is the events table.
type EventPublisher interface {
	Publish(e models.Event)
}

// Directory resolves principals to their profile fields: the contact payload
// revealed on accept, and the display name snapshotted onto interests.
type Directory interface {
	ContactInfo(ctx context.Context, userID uuid.UUID) (models.ContactInfo, error)
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// EnqueueNotificationTxFunc enqueues a notification job within the given
// transaction. Provided by main using river.Client.InsertTx.
type EnqueueNotificationTxFunc func(ctx context.Context, tx pgx.Tx, args notify.NotificationArgs) error

// Engine is the matching engine: it owns every lead and interest transition,
// executes the atomic accept-and-reveal unit, and emits lifecycle events.
type Engine struct {
	Pool      TxBeginner
	Leads     EngineLeadRepo
	Interests EngineInterestRepo
	Ledger    CreditLedger
	Events    EventAppender
	Directory Directory
	Notify    EnqueueNotificationTxFunc
	Hub       EventPublisher
	Logger    *slog.Logger
}

func NewEngine(pool TxBeginner, leads EngineLeadRepo, interests EngineInterestRepo, ledger CreditLedger, events EventAppender, directory Directory, enqueue EnqueueNotificationTxFunc, hub EventPublisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Pool:      pool,
		Leads:     leads,
		Interests: interests,
		Ledger:    ledger,
		Events:    events,
		Directory: directory,
		Notify:    enqueue,
		Hub:       hub,
		Logger:    logger,
	}
}

// CreateLeadInput carries the reporter-supplied lead fields.
type CreateLeadInput struct {
	Trade       string
	Title       string
	Description string
	Lat         float64
	Lng         float64
	District    string
	Urgent      bool
}

// CreateLead opens a new lead for the reporting customer and queues the
// fan-out notification to nearby contractors.
func (e *Engine) CreateLead(ctx context.Context, p models.Principal, in CreateLeadInput) (*models.Lead, error) {
	if p.Role != models.RoleCustomer {
		return nil, ErrNotAuthorized
	}
	if !models.ValidTrade(in.Trade) {
		return nil, fmt.Errorf("%w: unknown trade category %q", ErrValidation, in.Trade)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	lead := &models.Lead{
		ID:          uuid.New(),
		ReporterID:  p.ID,
		Trade:       in.Trade,
		Title:       in.Title,
		Description: in.Description,
		Lat:         in.Lat,
		Lng:         in.Lng,
		District:    in.District,
		Urgent:      in.Urgent,
		Status:      models.LeadStatusOpen,
	}

	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := e.Leads.CreateTx(ctx, tx, lead); err != nil {
		return nil, err
	}
	ev, err := e.appendEvent(ctx, tx, models.EventLeadCreated, lead.ID, nil, map[string]any{
		"trade":    lead.Trade,
		"district": lead.District,
		"urgent":   lead.Urgent,
	})
	if err != nil {
		return nil, err
	}
	if err := e.enqueueNotification(ctx, tx, models.EventLeadCreated, ev.Payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.publish(ev)
	e.Logger.Info("lead created", "lead_id", lead.ID, "trade", lead.Trade, "district", lead.District)
	return lead, nil
}

// SubmitInterest registers a contractor's claim on an open lead. The lead-open
// and no-duplicate guards are enforced by a single constrained insert, not a
// read-then-write.
func (e *Engine) SubmitInterest(ctx context.Context, p models.Principal, leadID uuid.UUID, quotedPriceCents int64) (*models.Interest, error) {
	if p.Role != models.RoleContractor {
		return nil, ErrNotAuthorized
	}
	if quotedPriceCents <= 0 {
		return nil, fmt.Errorf("%w: quoted price must be positive", ErrValidation)
	}

	lead, err := e.Leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lead.ReporterID == p.ID {
		return nil, ErrNotAuthorized
	}

	name, err := e.Directory.DisplayName(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	interest := &models.Interest{
		ID:               uuid.New(),
		LeadID:           leadID,
		ContractorID:     p.ID,
		ContractorName:   name,
		QuotedPriceCents: quotedPriceCents,
		Status:           models.InterestStatusPending,
	}

	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := e.Interests.CreateTx(ctx, tx, interest); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotOpen
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateInterest
		}
		return nil, err
	}
	ev, err := e.appendEvent(ctx, tx, models.EventInterestSubmitted, leadID, &p.ID, map[string]any{
		"interest_id":        interest.ID,
		"quoted_price_cents": interest.QuotedPriceCents,
	})
	if err != nil {
		return nil, err
	}
	if err := e.enqueueNotification(ctx, tx, models.EventInterestSubmitted, ev.Payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.publish(ev)
	return interest, nil
}

// WithdrawInterest lets the owning contractor pull a still-pending interest.
func (e *Engine) WithdrawInterest(ctx context.Context, p models.Principal, interestID uuid.UUID) error {
	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	interest, err := e.Interests.GetByIDForUpdate(ctx, tx, interestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if interest.ContractorID != p.ID {
		return ErrNotAuthorized
	}
	ok, err := e.Interests.UpdateStatus(ctx, tx, interestID, models.InterestStatusPending, models.InterestStatusWithdrawn)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPending
	}
	ev, err := e.appendEvent(ctx, tx, models.EventInterestWithdrawn, interest.LeadID, &interest.ContractorID, map[string]any{
		"interest_id": interest.ID,
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	e.publish(ev)
	return nil
}

// RejectInterest lets the lead's customer (or an operator) reject a pending
// interest. Rejection is explicit; an assigned lead's remaining interests stay
// pending until the customer acts on them.
func (e *Engine) RejectInterest(ctx context.Context, p models.Principal, interestID uuid.UUID) error {
	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	interest, err := e.Interests.GetByIDForUpdate(ctx, tx, interestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	lead, err := e.Leads.GetByID(ctx, interest.LeadID)
	if err != nil {
		return err
	}
	if p.Role != models.RoleOperator && lead.ReporterID != p.ID {
		return ErrNotAuthorized
	}
	ok, err := e.Interests.UpdateStatus(ctx, tx, interestID, models.InterestStatusPending, models.InterestStatusRejected)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPending
	}
	ev, err := e.appendEvent(ctx, tx, models.EventInterestRejected, interest.LeadID, &interest.ContractorID, map[string]any{
		"interest_id": interest.ID,
	})
	if err != nil {
		return err
	}
	if err := e.enqueueNotification(ctx, tx, models.EventInterestRejected, ev.Payload); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	e.publish(ev)
	return nil
}

// AcceptResult is the output of the accept-and-reveal unit. Contact is the
// customer's contact payload, disclosed to the accepted contractor from this
// point on.
type AcceptResult struct {
	Lead     *models.Lead
	Interest *models.Interest
	Contact  models.ContactInfo
}

// AcceptInterest executes the atomic accept-and-charge unit: re-checks the
// lead under a row lock, debits the contractor, flips interest and lead
// status, and reveals the customer's contact fields. A retry with the same
// interest id after success is a no-op returning the same contact info.
func (e *Engine) AcceptInterest(ctx context.Context, p models.Principal, interestID uuid.UUID) (*AcceptResult, error) {
	peek, err := e.Interests.GetByID(ctx, interestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lock order is lead first, then interest, everywhere; accept and
	// direct-assign can then never deadlock each other.
	lead, err := e.Leads.GetByIDForUpdate(ctx, tx, peek.LeadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	interest, err := e.Interests.GetByIDForUpdate(ctx, tx, interestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if p.Role != models.RoleOperator && lead.ReporterID != p.ID {
		return nil, ErrNotAuthorized
	}

	return e.acceptLocked(ctx, tx, lead, interest, false)
}

// DirectAssign is the operator entry path into the same accept unit, bypassing
// the bidding flow: the contractor's pending interest is reused if present,
// created otherwise, and then accepted under the identical guards. feeExempt
// skips the debit by explicit policy.
func (e *Engine) DirectAssign(ctx context.Context, p models.Principal, leadID, contractorID uuid.UUID, priceCents int64, feeExempt bool) (*AcceptResult, error) {
	if p.Role != models.RoleOperator {
		return nil, ErrNotAuthorized
	}

	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	lead, err := e.Leads.GetByIDForUpdate(ctx, tx, leadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	interest, err := e.Interests.GetPendingByLeadAndContractor(ctx, tx, leadID, contractorID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// Retry of a completed assignment: no pending interest remains, but the
	// lead already points at this contractor's accepted one. Route to the
	// replay path so the caller gets the same contact payload back.
	if interest == nil && lead.AssignedInterestID != nil {
		assigned, err := e.Interests.GetByIDForUpdate(ctx, tx, *lead.AssignedInterestID)
		if err != nil {
			return nil, err
		}
		if assigned.ContractorID == contractorID {
			return e.acceptLocked(ctx, tx, lead, assigned, feeExempt)
		}
	}
	if interest == nil {
		if priceCents <= 0 {
			return nil, fmt.Errorf("%w: price must be positive for a direct assignment without an existing interest", ErrValidation)
		}
		name, err := e.Directory.DisplayName(ctx, contractorID)
		if err != nil {
			return nil, err
		}
		interest = &models.Interest{
			ID:               uuid.New(),
			LeadID:           leadID,
			ContractorID:     contractorID,
			ContractorName:   name,
			QuotedPriceCents: priceCents,
			Status:           models.InterestStatusPending,
		}
		if err := e.Interests.CreateTx(ctx, tx, interest); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrLeadNotOpen
			}
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return nil, ErrDuplicateInterest
			}
			return nil, err
		}
	}

	return e.acceptLocked(ctx, tx, lead, interest, feeExempt)
}

// acceptLocked runs the accept unit with lead and interest rows already
// locked in tx. It commits on success.
func (e *Engine) acceptLocked(ctx context.Context, tx pgx.Tx, lead *models.Lead, interest *models.Interest, feeExempt bool) (*AcceptResult, error) {
	// Replay of a completed accept: same output, no writes, no second debit.
	if interest.Status == models.InterestStatusAccepted &&
		lead.AssignedInterestID != nil && *lead.AssignedInterestID == interest.ID {
		contact, err := e.Directory.ContactInfo(ctx, lead.ReporterID)
		if err != nil {
			return nil, err
		}
		return &AcceptResult{Lead: lead, Interest: interest, Contact: contact}, nil
	}

	if interest.Status != models.InterestStatusPending {
		return nil, ErrNotPending
	}
	// Re-check under the lock: a cancel that won the race is observed here
	// and the accept fails instead of assigning a cancelled lead.
	if lead.Status != models.LeadStatusOpen {
		return nil, ErrLeadNotOpen
	}

	if !feeExempt {
		if _, err := e.Ledger.Debit(ctx, tx, interest.ContractorID, interest.QuotedPriceCents, models.EntryLeadUnlockDebit, interest.ID); err != nil {
			return nil, err
		}
	}

	ok, err := e.Interests.UpdateStatus(ctx, tx, interest.ID, models.InterestStatusPending, models.InterestStatusAccepted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPending
	}
	ok, err = e.Leads.SetAssigned(ctx, tx, lead.ID, interest.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeadNotOpen
	}

	ev, err := e.appendEvent(ctx, tx, models.EventLeadAssigned, lead.ID, &interest.ContractorID, map[string]any{
		"interest_id":        interest.ID,
		"quoted_price_cents": interest.QuotedPriceCents,
		"fee_exempt":         feeExempt,
	})
	if err != nil {
		return nil, err
	}
	if err := e.enqueueNotification(ctx, tx, models.EventLeadAssigned, ev.Payload); err != nil {
		return nil, err
	}

	contact, err := e.Directory.ContactInfo(ctx, lead.ReporterID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.publish(ev)

	interest.Status = models.InterestStatusAccepted
	lead.Status = models.LeadStatusAssigned
	id := interest.ID
	lead.AssignedInterestID = &id

	e.Logger.Info("lead assigned", "lead_id", lead.ID, "interest_id", interest.ID, "contractor_id", interest.ContractorID, "fee_exempt", feeExempt)
	return &AcceptResult{Lead: lead, Interest: interest, Contact: contact}, nil
}

// AdvanceLeadStatus moves an assigned lead one step forward:
// assigned -> scheduled -> in_progress -> completed. Only the assigned
// contractor or an operator may advance, and only from the immediately
// preceding state.
func (e *Engine) AdvanceLeadStatus(ctx context.Context, p models.Principal, leadID uuid.UUID, next string) (*models.Lead, error) {
	if _, ok := prevLeadStatus[next]; !ok {
		return nil, fmt.Errorf("%w: %q is not a progress status", ErrValidation, next)
	}

	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	lead, err := e.Leads.GetByIDForUpdate(ctx, tx, leadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if models.LeadStatusTerminal(lead.Status) {
		return nil, ErrTerminalState
	}
	if prevLeadStatus[next] != lead.Status {
		return nil, ErrInvalidTransition
	}

	if p.Role != models.RoleOperator {
		contractorID, err := e.assignedContractor(ctx, lead)
		if err != nil {
			return nil, err
		}
		if contractorID != p.ID {
			return nil, ErrNotAuthorized
		}
	}

	from := lead.Status
	ok, err := e.Leads.UpdateStatus(ctx, tx, leadID, from, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	ev, err := e.appendEvent(ctx, tx, models.EventLeadStatusChanged, leadID, nil, map[string]any{
		"from": from,
		"to":   next,
	})
	if err != nil {
		return nil, err
	}
	if err := e.enqueueNotification(ctx, tx, models.EventLeadStatusChanged, ev.Payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.publish(ev)

	lead.Status = next
	return lead, nil
}

// CancelLead cancels an open or assigned lead with a required reason. Once a
// lead is completed or cancelled, every further transition is refused.
func (e *Engine) CancelLead(ctx context.Context, p models.Principal, leadID uuid.UUID, reason string) (*models.Lead, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", ErrValidation)
	}

	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	lead, err := e.Leads.GetByIDForUpdate(ctx, tx, leadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if models.LeadStatusTerminal(lead.Status) {
		return nil, ErrTerminalState
	}
	if lead.Status != models.LeadStatusOpen && lead.Status != models.LeadStatusAssigned {
		return nil, ErrInvalidTransition
	}
	if p.Role != models.RoleOperator && lead.ReporterID != p.ID {
		return nil, ErrNotAuthorized
	}

	from := lead.Status
	ok, err := e.Leads.SetCancelled(ctx, tx, leadID, from, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	ev, err := e.appendEvent(ctx, tx, models.EventLeadCancelled, leadID, nil, map[string]any{
		"from":   from,
		"reason": reason,
	})
	if err != nil {
		return nil, err
	}
	if err := e.enqueueNotification(ctx, tx, models.EventLeadCancelled, ev.Payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.publish(ev)

	lead.Status = models.LeadStatusCancelled
	lead.CancelReason = &reason
	return lead, nil
}

// prevLeadStatus is the inverse of models.NextLeadStatus: the state a lead
// must currently be in for each progress target.
var prevLeadStatus = invert(models.NextLeadStatus)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// assignedContractor resolves which contractor owns the lead's accepted
// interest.
func (e *Engine) assignedContractor(ctx context.Context, lead *models.Lead) (uuid.UUID, error) {
	if lead.AssignedInterestID == nil {
		return uuid.Nil, ErrNotAuthorized
	}
	interest, err := e.Interests.GetByID(ctx, *lead.AssignedInterestID)
	if err != nil {
		return uuid.Nil, err
	}
	return interest.ContractorID, nil
}

func (e *Engine) appendEvent(ctx context.Context, tx pgx.Tx, eventType string, leadID uuid.UUID, contractorID *uuid.UUID, payload map[string]any) (models.Event, error) {
	payload["lead_id"] = leadID
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.Event{}, err
	}
	ev := &models.Event{
		ID:           uuid.New(),
		Type:         eventType,
		LeadID:       leadID,
		ContractorID: contractorID,
		Payload:      raw,
	}
	if err := e.Events.InsertTx(ctx, tx, ev); err != nil {
		return models.Event{}, err
	}
	return *ev, nil
}

func (e *Engine) enqueueNotification(ctx context.Context, tx pgx.Tx, eventType string, payload json.RawMessage) error {
	if e.Notify == nil {
		return nil
	}
	return e.Notify(ctx, tx, notify.NotificationArgs{EventType: eventType, Payload: payload})
}

func (e *Engine) publish(ev models.Event) {
	if e.Hub != nil {
		e.Hub.Publish(ev)
	}
}
