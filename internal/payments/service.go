package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/splitpay-backend/internal/ledger"
	"github.com/angelmondragon/splitpay-backend/internal/sessions"
	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
	"github.com/angelmondragon/splitpay-backend/pkg/metrics"
	"github.com/angelmondragon/splitpay-backend/pkg/outbox"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
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

type guestTotaler interface {
	GuestTotal(ctx context.Context, sessionID uuid.UUID, guestID string) (*ledger.GuestTotal, error)
}

// Outcome describes what handling a provider event did.
type Outcome string

const (
	OutcomeProcessed      Outcome = Outcome(metrics.OutcomeProcessed)
	OutcomeDuplicate      Outcome = Outcome(metrics.OutcomeDuplicate)
	OutcomeIgnored        Outcome = Outcome(metrics.OutcomeIgnored)
	OutcomeUnknownPayment Outcome = Outcome(metrics.OutcomeUnknownPayment)
	OutcomeAnomaly        Outcome = Outcome(metrics.OutcomeAnomaly)
)

// IntentResult is returned to the guest's client to confirm the payment.
type IntentResult struct {
	PaymentID         uuid.UUID           `json:"payment_id"`
	ProviderPaymentID string              `json:"provider_payment_id"`
	ClientSecret      string              `json:"client_secret"`
	Amount            decimal.Decimal     `json:"amount"`
	Currency          enums.Currency      `json:"currency"`
	Status            enums.PaymentStatus `json:"status"`
}

// Service creates payment intents and reconciles provider notifications.
type Service interface {
	CreateIntent(ctx context.Context, sessionID uuid.UUID, guestID string) (*IntentResult, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	HandleProviderEvent(ctx context.Context, payload []byte, signature string) (Outcome, error)
}

type ServiceParams struct {
	Repo              Repository
	Sessions          sessions.Repository
	Ledger            guestTotaler
	Processor         Processor
	Verifier          Verifier
	TransactionRunner txRunner
	Outbox            outboxEmitter
	Announcer         announcer
	Metrics           *metrics.Metrics
	Logger            *logger.Logger
	Now               func() time.Time
}

type service struct {
	repo      Repository
	sessions  sessions.Repository
	ledger    guestTotaler
	processor Processor
	verifier  Verifier
	tx        txRunner
	outbox    outboxEmitter
	announcer announcer
	metrics   *metrics.Metrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("webhook verifier required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      params.Repo,
		sessions:  params.Sessions,
		ledger:    params.Ledger,
		processor: params.Processor,
		verifier:  params.Verifier,
		tx:        params.TransactionRunner,
		outbox:    params.Outbox,
		announcer: params.Announcer,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// CreateIntent charges the guest's computed total. No payment row exists
// unless the processor accepted the intent and the row was committed.
func (s *service) CreateIntent(ctx context.Context, sessionID uuid.UUID, guestID string) (*IntentResult, error) {
	guestID = strings.TrimSpace(guestID)
	if sessionID == uuid.Nil || guestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id and guest_id are required")
	}
	ctx = s.logg.WithSessionID(ctx, sessionID.String())
	ctx = s.logg.WithGuestID(ctx, guestID)

	if _, err := sessions.RequireOpen(ctx, s.sessions, sessionID); err != nil {
		return nil, err
	}
	total, err := s.ledger.GuestTotal(ctx, sessionID, guestID)
	if err != nil {
		return nil, err
	}
	if !total.Amount.IsPositive() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrNothingToPay, "guest total must be positive")
	}

	paymentID := uuid.New()
	minor := total.Amount.Shift(total.Currency.MinorUnits()).IntPart()
	intent, err := s.processor.CreateIntent(ctx, IntentRequest{
		PaymentID:   paymentID,
		SessionID:   sessionID,
		GuestID:     guestID,
		AmountMinor: minor,
		Currency:    total.Currency,
	})
	if err != nil {
		s.metrics.PaymentIntent("processor_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "payment processor request failed")
	}

	payment := &models.Payment{
		ID:                paymentID,
		SessionID:         sessionID,
		GuestID:           guestID,
		Provider:          s.processor.Provider(),
		ProviderPaymentID: intent.ID,
		Amount:            total.Amount,
		Currency:          total.Currency,
		Status:            enums.PaymentStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := sessions.RequireOpen(ctx, s.sessions.WithTx(tx), sessionID); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Create(ctx, payment)
	})
	if err != nil {
		s.metrics.PaymentIntent("store_error")
		if cancelErr := s.processor.CancelIntent(ctx, intent.ID); cancelErr != nil {
			s.logg.Error(s.logg.WithField(ctx, "provider_payment_id", intent.ID), "cancel orphaned payment intent", cancelErr)
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment")
	}

	s.metrics.PaymentIntent("created")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id":          paymentID.String(),
		"provider_payment_id": intent.ID,
		"amount":              total.Amount.String(),
	}), "payment intent created")

	return &IntentResult{
		PaymentID:         paymentID,
		ProviderPaymentID: intent.ID,
		ClientSecret:      intent.ClientSecret,
		Amount:            total.Amount,
		Currency:          total.Currency,
		Status:            payment.Status,
	}, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	return s.repo.FindByID(ctx, paymentID)
}

// HandleProviderEvent verifies a notification and applies its effect once.
// The processed-event insert and the status change commit together.
func (s *service) HandleProviderEvent(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	provider := s.verifier.Provider().String()
	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		s.metrics.WebhookEvent(provider, metrics.OutcomeInvalidSignature)
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "webhook signature rejected")
		return "", InvalidSignature(err)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"provider_event_id":   event.ID,
		"provider_event_type": event.Type,
		"provider_payment_id": event.ProviderPaymentID,
	})

	var (
		outcome Outcome
		updated *models.Payment
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inserted, err := repo.RecordProcessedEvent(ctx, &models.ProcessedEvent{
			EventID:    event.ID,
			Provider:   provider,
			EventType:  event.Type,
			Payload:    datatypes.JSON(event.Payload),
			ReceivedAt: s.now(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeDuplicate
			return nil
		}

		target, ok := targetStatus(event.Type)
		if !ok || event.ProviderPaymentID == "" {
			outcome = OutcomeIgnored
			return nil
		}

		payment, err := repo.FindByProviderPaymentIDForUpdate(ctx, event.ProviderPaymentID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			outcome = OutcomeUnknownPayment
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case payment.Status == target:
			outcome = OutcomeIgnored
			return nil
		case payment.Status.IsTerminal():
			outcome = OutcomeAnomaly
			return nil
		}

		changed, err := repo.TransitionFromPending(ctx, payment.ID, target)
		if err != nil {
			return err
		}
		if !changed {
			outcome = OutcomeIgnored
			return nil
		}
		payment.Status = target
		if err := s.outbox.Emit(ctx, tx, paymentStatusEvent(payment, event.ID)); err != nil {
			return err
		}
		updated = payment
		outcome = OutcomeProcessed
		return nil
	})
	if err != nil {
		s.metrics.WebhookEvent(provider, metrics.OutcomeError)
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile provider event")
	}

	s.metrics.WebhookEvent(provider, string(outcome))
	switch outcome {
	case OutcomeProcessed:
		s.logg.Info(s.logg.WithField(ctx, "status", updated.Status.String()), "payment status updated")
		s.announceStatus(ctx, updated)
	case OutcomeDuplicate:
		s.logg.Info(ctx, "duplicate provider event acknowledged")
	case OutcomeUnknownPayment:
		s.logg.Warn(ctx, "provider event for unknown payment")
	case OutcomeAnomaly:
		s.logg.Warn(ctx, "provider event contradicts terminal payment status")
	}
	return outcome, nil
}

func (s *service) announceStatus(ctx context.Context, payment *models.Payment) {
	if s.announcer == nil || payment == nil {
		return
	}
	msg, err := types.NewMessage(enums.MessageOrderStatusChange, payment.SessionID.String(), map[string]any{
		"payment_id": payment.ID,
		"guest_id":   payment.GuestID,
		"amount":     payment.Amount,
		"currency":   payment.Currency,
		"status":     payment.Status,
	})
	if err != nil {
		return
	}
	s.announcer.Announce(ctx, msg)
}

func targetStatus(eventType string) (enums.PaymentStatus, bool) {
	switch eventType {
	case StripeEventSucceeded:
		return enums.PaymentStatusSucceeded, true
	case StripeEventFailed, StripeEventCanceled:
		return enums.PaymentStatusFailed, true
	default:
		return "", false
	}
}
