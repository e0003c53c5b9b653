package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/splitpay-backend/pkg/db"
	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/outbox"
	"github.com/angelmondragon/splitpay-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/splitpay-backend/pkg/security"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

const maxCodeAttempts = 5

var (
	defaultTaxRate = decimal.NewFromInt(16)
	defaultTipRate = decimal.NewFromInt(10)
	maxRate        = decimal.NewFromInt(100)
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

// Service manages the table lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateSessionInput) (*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByCode(ctx context.Context, rawCode string) (*models.Session, error)
	Close(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Outbox            outboxEmitter
	Announcer         announcer
	GenerateCode      func() (string, error)
	Now               func() time.Time
}

type service struct {
	repo         Repository
	tx           txRunner
	outbox       outboxEmitter
	announcer    announcer
	generateCode func() (string, error)
	now          func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	gen := params.GenerateCode
	if gen == nil {
		gen = security.GenerateJoinCode
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:         params.Repo,
		tx:           params.TransactionRunner,
		outbox:       params.Outbox,
		announcer:    params.Announcer,
		generateCode: gen,
		now:          now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	name := strings.TrimSpace(input.RestaurantName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant_name is required")
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyMXN
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", currency))
	}
	taxRate, err := rateOrDefault(input.TaxRate, defaultTaxRate, "tax_rate")
	if err != nil {
		return nil, err
	}
	tipRate, err := rateOrDefault(input.TipRate, defaultTipRate, "tip_rate")
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate join code")
		}
		session := &models.Session{
			ID:             uuid.New(),
			Code:           code,
			RestaurantName: name,
			Currency:       currency,
			TaxRate:        taxRate,
			TipRate:        tipRate,
			Status:         enums.SessionStatusOpen,
		}
		err = s.repo.Create(ctx, session)
		if err == nil {
			return session, nil
		}
		if !isCodeCollision(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create session")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique join code")
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return s.repo.FindByID(ctx, id)
}

func (s *service) GetByCode(ctx context.Context, rawCode string) (*models.Session, error) {
	code := security.NormalizeJoinCode(rawCode)
	if code == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidJoinCode, "join code is required")
	}
	if !security.ValidJoinCode(code) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidJoinCode, "join code must be 6 letters or digits")
	}
	return s.repo.FindOpenByCode(ctx, code)
}

// Close is idempotent: closing a closed session returns it unchanged.
func (s *service) Close(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	var (
		closed  *models.Session
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		at := s.now()
		var err error
		changed, err = repo.MarkClosed(ctx, id, at)
		if err != nil {
			return err
		}
		closed, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSessionClosed,
			AggregateType: enums.AggregateSession,
			AggregateID:   id,
			Data: payloads.SessionClosedEvent{
				SessionID: id,
				Code:      closed.Code,
				ClosedAt:  at,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if changed && s.announcer != nil {
		if msg, err := types.NewMessage(enums.MessageTableUpdate, id.String(), map[string]any{
			"action": "session_closed",
		}); err == nil {
			s.announcer.Announce(ctx, msg)
		}
	}
	return closed, nil
}

// RequireOpen loads the session through repo and fails unless it is open.
// Inside a transaction it takes a shared lock so a concurrent close waits.
func RequireOpen(ctx context.Context, repo Repository, id uuid.UUID) (*models.Session, error) {
	session, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return nil, Closed()
	}
	return session, nil
}

func rateOrDefault(value *decimal.Decimal, fallback decimal.Decimal, field string) (decimal.Decimal, error) {
	if value == nil {
		return fallback, nil
	}
	if value.IsNegative() || value.GreaterThan(maxRate) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be between 0 and 100", field))
	}
	return *value, nil
}

func isCodeCollision(err error) bool {
	return dbpkg.IsUniqueViolation(err, "ux_sessions_code") || dbpkg.IsUniqueViolation(err, "sessions.code")
}
