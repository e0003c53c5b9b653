package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/splitpay-backend/internal/items"
	"github.com/angelmondragon/splitpay-backend/internal/sessions"
	dbpkg "github.com/angelmondragon/splitpay-backend/pkg/db"
	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
	"github.com/angelmondragon/splitpay-backend/pkg/metrics"
	"github.com/angelmondragon/splitpay-backend/pkg/outbox"
	"github.com/angelmondragon/splitpay-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

// fractionPlaces matches the precision of the assignments.fraction column.
const fractionPlaces = 6

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type announcer interface {
	Announce(ctx context.Context, msg types.Message)
}

// Service is the single source of truth for who owns which share of every item.
type Service interface {
	Assign(ctx context.Context, input AssignInput) (*models.Assignment, error)
	Reassign(ctx context.Context, input ReassignInput) (*models.Assignment, error)
	List(ctx context.Context, sessionID uuid.UUID, guestID string) ([]models.Assignment, error)
	GuestTotal(ctx context.Context, sessionID uuid.UUID, guestID string) (*GuestTotal, error)
	SessionTotal(ctx context.Context, sessionID uuid.UUID) (*SessionTotal, error)
}

type ServiceParams struct {
	Repo              Repository
	Items             items.Repository
	Sessions          sessions.Repository
	TransactionRunner txRunner
	Outbox            outboxEmitter
	Announcer         announcer
	Metrics           *metrics.Metrics
	Logger            *logger.Logger
}

type service struct {
	repo      Repository
	items     items.Repository
	sessions  sessions.Repository
	tx        txRunner
	outbox    outboxEmitter
	announcer announcer
	metrics   *metrics.Metrics
	logg      *logger.Logger
}

// NewService wires the assignment ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if params.Items == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:      params.Repo,
		items:     params.Items,
		sessions:  params.Sessions,
		tx:        params.TransactionRunner,
		outbox:    params.Outbox,
		announcer: params.Announcer,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

func (s *service) Assign(ctx context.Context, input AssignInput) (*models.Assignment, error) {
	if input.SessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item_id is required")
	}
	guestID := strings.TrimSpace(input.GuestID)
	if guestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest_id is required")
	}
	if err := validateFraction(input.Fraction); err != nil {
		s.metrics.AssignmentResult("invalid_fraction")
		return nil, err
	}

	assignment := &models.Assignment{
		ID:        uuid.New(),
		SessionID: input.SessionID,
		ItemID:    input.ItemID,
		GuestID:   guestID,
		Fraction:  input.Fraction,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.appendAssignment(ctx, tx, assignment, nil)
	})
	if err != nil {
		s.recordFailure(ctx, err)
		return nil, err
	}
	s.metrics.AssignmentResult("created")
	s.announce(ctx, assignment)
	return assignment, nil
}

// Reassign appends a row that supersedes an earlier one. The earlier row's
// fraction is released before the sum check, and history is never rewritten.
func (s *service) Reassign(ctx context.Context, input ReassignInput) (*models.Assignment, error) {
	if input.AssignmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignment id is required")
	}
	guestID := strings.TrimSpace(input.GuestID)
	if guestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest_id is required")
	}
	if err := validateFraction(input.Fraction); err != nil {
		s.metrics.AssignmentResult("invalid_fraction")
		return nil, err
	}

	var assignment *models.Assignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		previous, err := s.repo.WithTx(tx).FindByID(ctx, input.AssignmentID)
		if err != nil {
			return err
		}
		assignment = &models.Assignment{
			ID:           uuid.New(),
			SessionID:    previous.SessionID,
			ItemID:       previous.ItemID,
			GuestID:      guestID,
			Fraction:     input.Fraction,
			SupersedesID: &previous.ID,
		}
		return s.appendAssignment(ctx, tx, assignment, previous)
	})
	if err != nil {
		s.recordFailure(ctx, err)
		return nil, err
	}
	s.metrics.AssignmentResult("reassigned")
	s.announce(ctx, assignment)
	return assignment, nil
}

// appendAssignment runs the locked fraction-sum check and inserts the row.
// The item row lock serializes concurrent writers on the same item.
func (s *service) appendAssignment(ctx context.Context, tx *gorm.DB, assignment *models.Assignment, previous *models.Assignment) error {
	if _, err := sessions.RequireOpen(ctx, s.sessions.WithTx(tx), assignment.SessionID); err != nil {
		return err
	}
	item, err := s.items.WithTx(tx).FindByIDForUpdate(ctx, assignment.ItemID)
	if err != nil {
		return err
	}
	if item.SessionID != assignment.SessionID {
		return items.NotFound()
	}

	repo := s.repo.WithTx(tx)
	effective, err := repo.EffectiveForItem(ctx, item.ID)
	if err != nil {
		return err
	}

	allocated := decimal.Zero
	previousEffective := false
	for _, row := range effective {
		if previous != nil && row.ID == previous.ID {
			previousEffective = true
			continue
		}
		allocated = allocated.Add(row.Fraction)
	}
	if previous != nil && !previousEffective {
		return alreadySuperseded()
	}
	if allocated.Add(assignment.Fraction).GreaterThan(one) {
		return overAllocated(one.Sub(allocated).String())
	}

	if err := repo.Create(ctx, assignment); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_assignments_supersedes") || dbpkg.IsUniqueViolation(err, "assignments.supersedes_id") {
			return alreadySuperseded()
		}
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAssignmentCreated,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   assignment.ID,
		Actor:         &outbox.ActorRef{GuestID: assignment.GuestID},
		Data: payloads.AssignmentCreatedEvent{
			AssignmentID: assignment.ID,
			SessionID:    assignment.SessionID,
			ItemID:       assignment.ItemID,
			GuestID:      assignment.GuestID,
			Fraction:     assignment.Fraction.String(),
			SupersedesID: assignment.SupersedesID,
		},
	})
}

func (s *service) List(ctx context.Context, sessionID uuid.UUID, guestID string) ([]models.Assignment, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListEffective(ctx, sessionID, strings.TrimSpace(guestID))
}

// GuestTotal sums unit_price*qty*fraction over the guest's effective
// assignments and rounds once, half-up, to the currency's minor unit.
func (s *service) GuestTotal(ctx context.Context, sessionID uuid.UUID, guestID string) (*GuestTotal, error) {
	guestID = strings.TrimSpace(guestID)
	if sessionID == uuid.Nil || guestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id and guest_id are required")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.AssignedItemsForGuest(ctx, sessionID, guestID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, GuestNotFound()
	}

	places := session.Currency.MinorUnits()
	subtotal := decimal.Zero
	lines := make([]GuestLine, 0, len(rows))
	for _, row := range rows {
		share := row.Share()
		subtotal = subtotal.Add(share)
		lines = append(lines, GuestLine{
			AssignmentID: row.AssignmentID,
			ItemID:       row.ItemID,
			Name:         row.Name,
			Qty:          row.Qty,
			UnitPrice:    row.UnitPrice,
			Fraction:     row.Fraction,
			Share:        share,
		})
	}

	return &GuestTotal{
		SessionID:    sessionID,
		GuestID:      guestID,
		Currency:     session.Currency,
		Amount:       roundMinor(subtotal, places),
		Tax:          roundMinor(subtotal.Mul(session.TaxRate).Div(hundred), places),
		SuggestedTip: roundMinor(subtotal.Mul(session.TipRate).Div(hundred), places),
		Lines:        lines,
	}, nil
}

// SessionTotal reports the whole bill regardless of how much has been claimed.
func (s *service) SessionTotal(ctx context.Context, sessionID uuid.UUID) (*SessionTotal, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	itemRows, err := s.items.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	assigned, err := s.repo.AssignedItemsForGuest(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, item := range itemRows {
		total = total.Add(item.LineTotal())
	}
	claimed := decimal.Zero
	for _, row := range assigned {
		claimed = claimed.Add(row.Share())
	}

	places := session.Currency.MinorUnits()
	roundedTotal := roundMinor(total, places)
	roundedClaimed := roundMinor(claimed, places)
	return &SessionTotal{
		SessionID:  sessionID,
		Currency:   session.Currency,
		Total:      roundedTotal,
		Assigned:   roundedClaimed,
		Unassigned: roundedTotal.Sub(roundedClaimed),
	}, nil
}

func (s *service) announce(ctx context.Context, assignment *models.Assignment) {
	if s.announcer == nil {
		return
	}
	msg, err := types.NewMessage(enums.MessageTableUpdate, assignment.SessionID.String(), map[string]any{
		"action":     "assignment_created",
		"assignment": FromModel(assignment),
	})
	if err != nil {
		return
	}
	s.announcer.Announce(ctx, msg)
}

func (s *service) recordFailure(ctx context.Context, err error) {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		s.metrics.AssignmentResult("conflict")
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.metrics.AssignmentResult("not_found")
	default:
		s.metrics.AssignmentResult("error")
		if s.logg != nil {
			s.logg.Error(ctx, "assignment write failed", err)
		}
	}
}

func validateFraction(f decimal.Decimal) error {
	if !f.IsPositive() || f.GreaterThan(one) {
		return invalidFraction()
	}
	if !f.Equal(f.Truncate(fractionPlaces)) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidFraction, fmt.Sprintf("fraction supports at most %d decimal places", fractionPlaces))
	}
	return nil
}

// roundMinor rounds half away from zero, which is half-up for the
// non-negative amounts the ledger produces.
func roundMinor(amount decimal.Decimal, places int32) decimal.Decimal {
	return amount.Round(places)
}
