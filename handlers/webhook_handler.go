package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/league-reservations/payments"
	"github.com/Dosada05/league-reservations/services"
	"github.com/Dosada05/league-reservations/storage"
)

const signatureHeader = "X-Payment-Signature"

// EventApplier применяет проверенное событие шлюза к локальному состоянию.
type EventApplier interface {
	HandleEvent(ctx context.Context, evt *payments.Event) error
}

var _ EventApplier = (*services.ReconciliationService)(nil)

type WebhookHandler struct {
	reconciliation EventApplier
	archiver       storage.PayloadArchiver
	webhookSecret  string
	logger         *slog.Logger
}

func NewWebhookHandler(reconciliation EventApplier, archiver storage.PayloadArchiver, webhookSecret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciliation: reconciliation,
		archiver:       archiver,
		webhookSecret:  webhookSecret,
		logger:         logger,
	}
}

// HandleEvent принимает событие платёжного шлюза.
// 400 — плохая подпись или нечитаемое тело (повтор бессмысленен);
// 200 — событие применено, дубликат или неизвестный вид (подтверждаем,
// чтобы шлюз не ретраил); 5xx — эффекты применились частично, шлюз
// обязан доставить событие ещё раз.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1_048_576))
	if err != nil {
		badRequestResponse(w, h.logger, fmt.Errorf("failed to read request body: %w", err))
		return
	}

	if err := payments.VerifySignature(h.webhookSecret, body, r.Header.Get(signatureHeader)); err != nil {
		h.logger.Warn("webhook signature rejected", slog.String("remote", r.RemoteAddr))
		badRequestResponse(w, h.logger, err)
		return
	}

	evt, err := payments.ParseEvent(body)
	if err != nil {
		if errors.Is(err, payments.ErrUnknownEvent) {
			// Подпись сошлась — событие настоящее, просто не из нашего
			// набора. Подтверждаем без эффектов.
			h.logger.Info("unknown gateway event acknowledged", slog.String("event_id", evt.ID))
			h.archiveAsync(evt.ID, body)
			_ = writeJSON(w, http.StatusOK, jsonResponse{"received": true}, nil)
			return
		}
		badRequestResponse(w, h.logger, err)
		return
	}

	h.archiveAsync(evt.ID, body)

	if err := h.reconciliation.HandleEvent(r.Context(), evt); err != nil {
		serverErrorResponse(w, h.logger, err)
		return
	}

	_ = writeJSON(w, http.StatusOK, jsonResponse{"received": true}, nil)
}

// archiveAsync пишет сырое тело в архив, не задерживая ответ шлюзу.
func (h *WebhookHandler) archiveAsync(eventID string, body []byte) {
	if h.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		key := fmt.Sprintf("webhooks/%s/%s.json", time.Now().UTC().Format("2006/01/02"), eventID)
		if _, err := h.archiver.Archive(ctx, key, "application/json", body); err != nil {
			h.logger.Error("failed to archive webhook payload",
				slog.String("event_id", eventID),
				slog.String("error", err.Error()),
			)
		}
	}()
}
