package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/league-reservations/services"
)

type AdminHandler struct {
	admin     *services.AdminService
	promotion *services.PromotionService
	reports   *services.ReportService
	logger    *slog.Logger
}

func NewAdminHandler(admin *services.AdminService, promotion *services.PromotionService, reports *services.ReportService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, promotion: promotion, reports: reports, logger: logger}
}

// Login выдаёт оператору JWT по админ-ключу.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Key string `json:"key"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, h.logger, err)
		return
	}

	token, err := h.admin.Login(r.Context(), input.Key)
	if err != nil {
		mapServiceErrorToHTTP(w, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"token": token}, nil); err != nil {
		serverErrorResponse(w, h.logger, err)
	}
}

// PromoteNext вручную запускает цикл продвижения листа ожидания турнира.
func (h *AdminHandler) PromoteNext(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := strconv.Atoi(chi.URLParam(r, "tournamentID"))
	if err != nil || tournamentID <= 0 {
		badRequestResponse(w, h.logger, errInvalidID)
		return
	}

	result, err := h.promotion.PromoteNext(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, h.logger, err)
	}
}

// HallRevenue возвращает разбивку выручки зала.
func (h *AdminHandler) HallRevenue(w http.ResponseWriter, r *http.Request) {
	hallID, err := strconv.Atoi(chi.URLParam(r, "hallID"))
	if err != nil || hallID <= 0 {
		badRequestResponse(w, h.logger, errInvalidID)
		return
	}

	report, err := h.reports.HallRevenue(r.Context(), hallID)
	if err != nil {
		mapServiceErrorToHTTP(w, h.logger, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, report, nil); err != nil {
		serverErrorResponse(w, h.logger, err)
	}
}
