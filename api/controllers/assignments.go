package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/splitpay-backend/api/responses"
	"github.com/angelmondragon/splitpay-backend/api/validators"
	"github.com/angelmondragon/splitpay-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
)

type createAssignmentRequest struct {
	SessionID string           `json:"session_id" validate:"required,uuid"`
	ItemID    string           `json:"item_id" validate:"required,uuid"`
	GuestID   string           `json:"guest_id" validate:"required,max=64"`
	Fraction  *decimal.Decimal `json:"fraction,omitempty"`
}

type reassignRequest struct {
	GuestID  string           `json:"guest_id" validate:"required,max=64"`
	Fraction *decimal.Decimal `json:"fraction,omitempty"`
}

func fractionOrWhole(f *decimal.Decimal) decimal.Decimal {
	if f == nil {
		return decimal.NewFromInt(1)
	}
	return *f
}

// CreateAssignment claims a fraction of an item for a guest.
func CreateAssignment(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var payload createAssignmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := uuid.Parse(payload.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session_id"))
			return
		}
		itemID, err := uuid.Parse(payload.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item_id"))
			return
		}

		ctx := logg.WithGuestID(logg.WithSessionID(r.Context(), sessionID.String()), payload.GuestID)
		assignment, err := svc.Assign(ctx, ledger.AssignInput{
			SessionID: sessionID,
			ItemID:    itemID,
			GuestID:   validators.SanitizeString(payload.GuestID, maxGuestIDLength),
			Fraction:  fractionOrWhole(payload.Fraction),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ledger.FromModel(assignment))
	}
}

// ListAssignments returns effective assignments, optionally for one guest.
func ListAssignments(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := validators.ParseUUIDQuery(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		guestID := validators.SanitizeString(r.URL.Query().Get("guest_id"), maxGuestIDLength)

		rows, err := svc.List(r.Context(), sessionID, guestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]ledger.AssignmentDTO, 0, len(rows))
		for i := range rows {
			out = append(out, ledger.FromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func ReassignAssignment(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, err := validators.ParseUUIDParam(r, "assignmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload reassignRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		assignment, err := svc.Reassign(r.Context(), ledger.ReassignInput{
			AssignmentID: assignmentID,
			GuestID:      validators.SanitizeString(payload.GuestID, maxGuestIDLength),
			Fraction:     fractionOrWhole(payload.Fraction),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ledger.FromModel(assignment))
	}
}
