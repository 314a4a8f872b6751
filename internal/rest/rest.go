package rest

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON envelope of every error the API returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error writes message wrapped in ErrorResponse with the given status. The
// signature mirrors http.Error so handlers can use it as a drop-in.
func Error(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); encodeErr != nil {
		http.Error(w, encodeErr.Error(), http.StatusInternalServerError)
	}
}
