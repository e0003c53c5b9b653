package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/splitpay-backend/api/responses"
	"github.com/angelmondragon/splitpay-backend/api/validators"
	"github.com/angelmondragon/splitpay-backend/internal/realtime"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
)

type tableServer interface {
	ServeTable(w http.ResponseWriter, r *http.Request, tableID string, who realtime.Participant)
}

// TableSocket upgrades /ws/tables/{tableID} to the table's push channel.
func TableSocket(hub tableServer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "realtime hub unavailable"))
			return
		}
		tableID := strings.TrimSpace(chiParam(r, "tableID"))
		if tableID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "table id is required"))
			return
		}
		query := r.URL.Query()
		role, err := enums.ParseParticipantRole(strings.TrimSpace(query.Get("role")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}

		hub.ServeTable(w, r, tableID, realtime.Participant{
			GuestID: validators.SanitizeString(query.Get("guest_id"), maxGuestIDLength),
			Name:    validators.SanitizeString(query.Get("name"), 80),
			Role:    role,
		})
	}
}
