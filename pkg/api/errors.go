package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"watch-harvest/pkg/models"

	log "github.com/sirupsen/logrus"
)

// follows RFC 7807: Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

func (pd *ProblemDetails) Error() string {
	return fmt.Sprintf("%d %s: %s", pd.Status, pd.Title, pd.Detail)
}

func WriteError(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	pd := &ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}

	if err := json.NewEncoder(w).Encode(pd); err != nil {
		log.Warnf("failed to encode problem details: %v", err)
	}
}

func WriteInternalServerError(w http.ResponseWriter, err error, instance string) {
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), instance)
}

func WriteBadRequest(w http.ResponseWriter, detail, instance string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail, instance)
}

func WriteNotFound(w http.ResponseWriter, detail, instance string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail, instance)
}

func WriteMethodNotAllowed(w http.ResponseWriter, allowed, instance string) {
	w.Header().Set("Allow", allowed)
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "Use "+allowed+".", instance)
}

// WriteProblem maps a store or harvest error onto a status code.
func WriteProblem(w http.ResponseWriter, err error, instance string) {
	var cfgErr *models.ConfigurationError
	switch {
	case errors.Is(err, models.ErrRecordNotFound):
		WriteNotFound(w, "Record not found", instance)
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, "Gateway Timeout", "Upstream store timed out: "+err.Error(), instance)
	case errors.As(err, &cfgErr):
		WriteError(w, http.StatusServiceUnavailable, "Service Unavailable", cfgErr.Error(), instance)
	default:
		WriteInternalServerError(w, err, instance)
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Error encoding response: %v", err)
	}
}
