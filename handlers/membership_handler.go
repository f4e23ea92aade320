package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Dosada05/league-reservations/services"
)

type MembershipHandler struct {
	memberships *services.MembershipService
	logger      *slog.Logger
}

func NewMembershipHandler(memberships *services.MembershipService, logger *slog.Logger) *MembershipHandler {
	return &MembershipHandler{memberships: memberships, logger: logger}
}

// Status возвращает членство пользователя: GET /membership/status?user_id=N.
func (h *MembershipHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || userID <= 0 {
		badRequestResponse(w, h.logger, errInvalidID)
		return
	}

	status, err := h.memberships.Status(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, status, nil); err != nil {
		serverErrorResponse(w, h.logger, err)
	}
}

// Subscribe создаёт платёжную сессию оформления подписки.
func (h *MembershipHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var input services.SubscribeInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, h.logger, err)
		return
	}

	session, err := h.memberships.SubscribeCheckout(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusAccepted, jsonResponse{
		"session_id":   session.SessionID,
		"checkout_url": session.RedirectURL,
	}, nil); err != nil {
		serverErrorResponse(w, h.logger, err)
	}
}

// BillingPortal возвращает URL портала самообслуживания шлюза.
func (h *MembershipHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	var input struct {
		UserID int `json:"user_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, h.logger, err)
		return
	}

	url, err := h.memberships.BillingPortal(r.Context(), input.UserID)
	if err != nil {
		mapServiceErrorToHTTP(w, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"portal_url": url}, nil); err != nil {
		serverErrorResponse(w, h.logger, err)
	}
}
