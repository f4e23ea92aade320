package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Dosada05/league-reservations/payments"
	"github.com/Dosada05/league-reservations/repositories"
	"github.com/Dosada05/league-reservations/services"
)

type jsonResponse map[string]interface{}

var errInvalidID = errors.New("invalid id parameter")

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // Ошибка программиста: dst не указатель
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, logger *slog.Logger, status int, message interface{}) {
	env := jsonResponse{"error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		logger.Error("failed to write error response", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal server error", slog.String("error", err.Error()))
	errorResponse(w, logger, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func badRequestResponse(w http.ResponseWriter, logger *slog.Logger, err error) {
	errorResponse(w, logger, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, logger *slog.Logger) {
	errorResponse(w, logger, http.StatusNotFound, "the requested resource could not be found")
}

func conflictResponse(w http.ResponseWriter, logger *slog.Logger, message string) {
	errorResponse(w, logger, http.StatusConflict, message)
}

func unauthorizedResponse(w http.ResponseWriter, logger *slog.Logger, message string) {
	errorResponse(w, logger, http.StatusUnauthorized, message)
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы.
func mapServiceErrorToHTTP(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, repositories.ErrEntryNotFound),
		errors.Is(err, repositories.ErrTournamentNotFound),
		errors.Is(err, repositories.ErrMembershipNotFound),
		errors.Is(err, repositories.ErrHallSettingsNotFound),
		errors.Is(err, repositories.ErrWaitlistRowNotFound):
		notFoundResponse(w, logger)

	case errors.Is(err, services.ErrCapacityExhausted),
		errors.Is(err, repositories.ErrEntryConflict):
		conflictResponse(w, logger, err.Error())

	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrEmailRequired),
		errors.Is(err, services.ErrNoBillingAccount),
		errors.Is(err, payments.ErrInvalidCheckout):
		badRequestResponse(w, logger, err)

	case errors.Is(err, services.ErrAdminInvalidKey):
		unauthorizedResponse(w, logger, err.Error())

	// Шлюз недоступен — вина не клиента и не наша.
	case errors.Is(err, payments.ErrGatewayCallFailed):
		errorResponse(w, logger, http.StatusBadGateway, "payment provider is unavailable, try again later")

	default:
		serverErrorResponse(w, logger, err)
	}
}
