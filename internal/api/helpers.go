package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/models"
)

// maxBodyBytes caps request bodies. Drafts are small; a megabyte leaves room for long HTML.
const maxBodyBytes = 1 << 20

// writeJSON encodes v to a buffer first so a failed encode never leaves a partial response.
func writeJSON(w http.ResponseWriter, status int, v any, component string) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("%s: Failed to encode response: %v", component, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("%s: Failed to write response: %v", component, err)
	}
}

// decodeJSON reads one JSON object from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// requireMethod writes 405 and returns false when r does not use method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// validationDetails joins the user-facing messages of a validation error.
func validationDetails(err error) (string, []string) {
	var validationErr *compose.ValidationError
	if !errors.As(err, &validationErr) {
		return err.Error(), nil
	}

	return strings.Join(validationErr.Messages(), "; "), validationErr.Fields
}

func errorResponse(message, details string, fields []string) models.ErrorResponse {
	return models.ErrorResponse{Error: message, Details: details, Fields: fields}
}
