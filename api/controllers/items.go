package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/splitpay-backend/api/responses"
	"github.com/angelmondragon/splitpay-backend/api/validators"
	"github.com/angelmondragon/splitpay-backend/internal/items"
	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
)

type createItemRequest struct {
	SessionID string          `json:"session_id" validate:"required,uuid"`
	Name      string          `json:"name" validate:"required,max=200"`
	Qty       int             `json:"qty" validate:"min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type itemResponse struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	CreatedAt time.Time       `json:"created_at"`
}

func newItemResponse(m models.Item) itemResponse {
	return itemResponse{
		ID:        m.ID,
		SessionID: m.SessionID,
		Name:      m.Name,
		Qty:       m.Qty,
		UnitPrice: m.UnitPrice,
		LineTotal: m.LineTotal(),
		CreatedAt: m.CreatedAt,
	}
}

func CreateItem(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "item service unavailable"))
			return
		}

		var payload createItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := uuid.Parse(payload.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session_id"))
			return
		}

		item, err := svc.Create(r.Context(), items.CreateItemInput{
			SessionID: sessionID,
			Name:      validators.SanitizeString(payload.Name, 200),
			Qty:       payload.Qty,
			UnitPrice: payload.UnitPrice,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newItemResponse(*item))
	}
}

// ListItems returns a session's items in creation order.
func ListItems(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := validators.ParseUUIDQuery(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]itemResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newItemResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}
