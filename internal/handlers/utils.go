// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("could not write JSON response")
	}
}

// writeJSONError writes the error body. Details of 5xx errors are logged, never returned.
func writeJSONError(w http.ResponseWriter, statusCode int, err error) {
	var msg string
	if statusCode < 500 && err != nil {
		msg = apperr.Message(err)
	} else {
		msg = http.StatusText(statusCode)
	}

	if statusCode >= 500 {
		logrus.WithField("statusCode", statusCode).Error(err)
	}

	writeJSON(w, statusCode, errorResponse{
		Message:    msg,
		StatusCode: statusCode,
	})
}

// writeError maps a classified error to its status code.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, apperr.KindOf(err).StatusCode(), err)
}

// decodeRequest reads a JSON body into payload. It writes the error response itself and
// reports whether the handler may continue.
func decodeRequest(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || (mediaType != "application/json" && mediaType != "text/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, nil)
			return false
		}
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, nil)
			return false
		}
		writeJSONError(w, http.StatusBadRequest, apperr.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

// uuidVar parses a route variable that the router already constrained to uuid form.
func uuidVar(r *http.Request, name string) uuid.UUID {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil
	}
	return id
}
