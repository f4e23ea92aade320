package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/league-reservations/services"
)

type EntryHandler struct {
	reservations *services.ReservationService
	logger       *slog.Logger
}

func NewEntryHandler(reservations *services.ReservationService, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{reservations: reservations, logger: logger}
}

// Create обрабатывает попытку записи на турнир.
// 201 — слот занят (comped); 202 — создана платёжная сессия либо
// пользователь поставлен в лист ожидания; 200 — запись уже существует;
// 409 — мест нет и в лист ожидания пользователь не захотел.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.ReserveInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, h.logger, err)
		return
	}

	result, err := h.reservations.AttemptReserve(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	switch result.Status {
	case services.ReservationCheckout, services.ReservationWaitlisted:
		status = http.StatusAccepted
	case services.ReservationAlreadyRegistered:
		status = http.StatusOK
	}

	if err := writeJSON(w, status, result, nil); err != nil {
		serverErrorResponse(w, h.logger, err)
	}
}
