package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/scriba/internal/models"
)

// RequireMethod validates that the HTTP request uses one of the allowed
// methods. Returns true on a match, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, method := range methods {
		if r.Method == method {
			return true
		}
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSurfaceError writes an error response using its embedded HTTP
// equivalent status. Non-surface errors become a 500.
func WriteSurfaceError(w http.ResponseWriter, err error) error {
	serr, ok := err.(*models.SurfaceError)
	if !ok {
		serr = models.NewSurfaceError(models.CodeInternalError, err.Error())
	}
	status := serr.Details.HTTPEquivalent
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return WriteJSON(w, status, map[string]interface{}{
		"status": "error",
		"error":  serr,
	})
}

// QueryInt reads an integer query parameter, falling back to def.
func QueryInt(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return def
}

// QueryBool reads a boolean query parameter.
func QueryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
