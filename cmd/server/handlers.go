package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hirewire/admission/pkg/ratelimit"
)

// The handlers below stand in for the career platform's business API. They
// return realistic statuses so the admission layer can be exercised end to
// end: failed logins count against the auth budget, successful ones do not.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func livenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readinessHandler(store ratelimit.CounterStore) http.HandlerFunc {
	type checker interface {
		Healthcheck(ctx context.Context) error
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if hc, ok := store.(checker); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := hc.Healthcheck(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  "counter store unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func loginHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request body"})
		return
	}
	if creds.Email == "" || creds.Password == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   uuid.NewString(),
	})
}

func registerHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request body"})
		return
	}
	if creds.Email == "" || creds.Password == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "error": "Email and password are required"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"userId":  uuid.NewString(),
	})
}

func passwordResetHandler(w http.ResponseWriter, r *http.Request) {
	// Always accepted; existence of the account is never revealed.
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

func uploadResumeHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Expected multipart form data"})
		return
	}
	if _, _, err := r.FormFile("resume"); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Missing resume file"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"resumeId": uuid.NewString(),
	})
}

func listJobsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"jobs":    []any{},
	})
}

func getJobHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job":     map[string]string{"id": r.PathValue("id")},
	})
}

func getCompanyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"company": map[string]string{"id": r.PathValue("id")},
	})
}

func deleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}
