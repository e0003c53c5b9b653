package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/splitpay-backend/api/responses"
	"github.com/angelmondragon/splitpay-backend/api/validators"
	"github.com/angelmondragon/splitpay-backend/internal/ledger"
	"github.com/angelmondragon/splitpay-backend/internal/sessions"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
)

type createSessionRequest struct {
	RestaurantName string           `json:"restaurant_name" validate:"required,max=120"`
	Currency       string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	TaxRate        *decimal.Decimal `json:"tax_rate,omitempty"`
	TipRate        *decimal.Decimal `json:"tip_rate,omitempty"`
}

func (r createSessionRequest) toInput() (sessions.CreateSessionInput, error) {
	input := sessions.CreateSessionInput{
		RestaurantName: validators.SanitizeString(r.RestaurantName, 120),
		TaxRate:        r.TaxRate,
		TipRate:        r.TipRate,
	}
	if raw := strings.TrimSpace(r.Currency); raw != "" {
		currency, err := enums.ParseCurrency(strings.ToUpper(raw))
		if err != nil {
			return sessions.CreateSessionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
		}
		input.Currency = currency
	}
	return input, nil
}

// CreateSession opens a new table.
func CreateSession(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable"))
			return
		}

		var payload createSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sessions.FromModel(session))
	}
}

// GetSessionByCode resolves an open table from its join code.
func GetSessionByCode(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(r.URL.Query().Get("code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "code is required"))
			return
		}
		session, err := svc.GetByCode(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessions.FromModel(session))
	}
}

func GetSession(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "sessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessions.FromModel(session))
	}
}

// CloseSession is idempotent; closing a closed session returns it unchanged.
func CloseSession(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "sessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Close(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessions.FromModel(session))
	}
}

func SessionTotals(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "sessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		total, err := svc.SessionTotal(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, total)
	}
}

func GuestTotal(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "sessionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		guestID := validators.SanitizeString(chiParam(r, "guestID"), maxGuestIDLength)
		if guestID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "guest id is required"))
			return
		}
		total, err := svc.GuestTotal(r.Context(), id, guestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, total)
	}
}
