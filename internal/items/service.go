package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/splitpay-backend/internal/sessions"
	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type announcer interface {
	Announce(ctx context.Context, msg types.Message)
}

// CreateItemInput describes a new ordered line.
type CreateItemInput struct {
	SessionID uuid.UUID
	Name      string
	Qty       int
	UnitPrice decimal.Decimal
}

type Service interface {
	Create(ctx context.Context, input CreateItemInput) (*models.Item, error)
	List(ctx context.Context, sessionID uuid.UUID) ([]models.Item, error)
}

type ServiceParams struct {
	Repo              Repository
	Sessions          sessions.Repository
	TransactionRunner txRunner
	Announcer         announcer
}

type service struct {
	repo      Repository
	sessions  sessions.Repository
	tx        txRunner
	announcer announcer
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:      params.Repo,
		sessions:  params.Sessions,
		tx:        params.TransactionRunner,
		announcer: params.Announcer,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateItemInput) (*models.Item, error) {
	if input.SessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.Qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be at least 1")
	}
	if !input.UnitPrice.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit_price must be positive")
	}

	item := &models.Item{
		ID:        uuid.New(),
		SessionID: input.SessionID,
		Name:      name,
		Qty:       input.Qty,
		UnitPrice: input.UnitPrice,
	}
	var session *models.Session
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		session, err = sessions.RequireOpen(ctx, s.sessions.WithTx(tx), input.SessionID)
		if err != nil {
			return err
		}
		item.UnitPrice = item.UnitPrice.Round(session.Currency.MinorUnits())
		return s.repo.WithTx(tx).Create(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	if s.announcer != nil {
		msg, err := types.NewMessage(enums.MessageNewOrder, session.ID.String(), map[string]any{
			"item_id":    item.ID,
			"name":       item.Name,
			"qty":        item.Qty,
			"unit_price": item.UnitPrice,
		})
		if err == nil {
			s.announcer.Announce(ctx, msg)
		}
	}
	return item, nil
}

func (s *service) List(ctx context.Context, sessionID uuid.UUID) ([]models.Item, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListBySession(ctx, sessionID)
}
