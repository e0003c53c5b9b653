package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/splitpay-backend/api/responses"
	"github.com/angelmondragon/splitpay-backend/api/validators"
	"github.com/angelmondragon/splitpay-backend/internal/payments"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
)

// createIntentRequest carries no amount: the guest total is authoritative,
// and an amount field is rejected as unknown.
type createIntentRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	GuestID   string `json:"guest_id" validate:"required,max=64"`
}

type paymentResponse struct {
	ID                uuid.UUID             `json:"id"`
	SessionID         uuid.UUID             `json:"session_id"`
	GuestID           string                `json:"guest_id"`
	Provider          enums.PaymentProvider `json:"provider"`
	ProviderPaymentID string                `json:"provider_payment_id"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          enums.Currency        `json:"currency"`
	Status            enums.PaymentStatus   `json:"status"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

func CreatePaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := uuid.Parse(payload.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session_id"))
			return
		}
		guestID := validators.SanitizeString(payload.GuestID, maxGuestIDLength)

		ctx := logg.WithGuestID(logg.WithSessionID(r.Context(), sessionID.String()), guestID)
		result, err := svc.CreateIntent(ctx, sessionID, guestID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := validators.ParseUUIDParam(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.Get(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentResponse{
			ID:                payment.ID,
			SessionID:         payment.SessionID,
			GuestID:           payment.GuestID,
			Provider:          payment.Provider,
			ProviderPaymentID: payment.ProviderPaymentID,
			Amount:            payment.Amount,
			Currency:          payment.Currency,
			Status:            payment.Status,
			CreatedAt:         payment.CreatedAt,
			UpdatedAt:         payment.UpdatedAt,
		})
	}
}
