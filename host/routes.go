// CLAUDE:SUMMARY HTTP surface: POST /execute envelope, /healthz, /ws/screencast, reason-code error mapping.
package host

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/gaia/kit"
	"github.com/hazyhaar/gaia/reason"
)

// envelope is the /execute request body.
type envelope struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

// Routes registers the host's HTTP surface on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/execute", s.handleExecute)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/ws/screencast", s.hub.ServeWS)
}

func (s *Service) handleExecute(w http.ResponseWriter, r *http.Request) {
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"reason_code": string(reason.InvalidInput),
			"message":     "malformed envelope: " + err.Error(),
		})
		return
	}
	if env.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"reason_code": string(reason.InvalidInput),
			"message":     "envelope requires action",
		})
		return
	}

	ctx := kit.WithTransport(r.Context(), "http")
	result, err := s.Execute(ctx, env.Action, env.Params)
	if err != nil {
		status, body := errorPayload(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": n})
}

// errorPayload maps a dispatch error to its HTTP status and body. Caller
// faults are 4xx; action outcomes travel inside a 200 envelope with
// success=false so clients branch on reason_code, not status.
func errorPayload(err error) (int, map[string]any) {
	var ambiguous *AmbiguousTargetError
	if errors.As(err, &ambiguous) {
		return http.StatusOK, map[string]any{
			"success":     false,
			"effective":   false,
			"reason_code": string(ambiguous.Code()),
			"reason":      ambiguous.Error(),
			"matches":     ambiguous.Matches,
		}
	}
	if errors.Is(err, ErrUnknownAction) {
		return http.StatusBadRequest, map[string]any{
			"reason_code": string(reason.InvalidInput),
			"message":     err.Error(),
		}
	}
	if errors.Is(err, ErrSessionNotFound) {
		return http.StatusOK, map[string]any{
			"success":     false,
			"effective":   false,
			"reason_code": string(reason.NotFound),
			"reason":      err.Error(),
		}
	}
	if errors.Is(err, ErrShuttingDown) {
		return http.StatusServiceUnavailable, map[string]any{
			"reason_code": string(reason.Unknown),
			"message":     err.Error(),
		}
	}

	var re *reason.Error
	if errors.As(err, &re) {
		if reason.CallerFault(re.Code) {
			return http.StatusBadRequest, map[string]any{
				"reason_code": string(re.Code),
				"message":     re.Message,
			}
		}
		return http.StatusOK, map[string]any{
			"success":     false,
			"effective":   false,
			"reason_code": string(re.Code),
			"reason":      re.Message,
		}
	}

	return http.StatusInternalServerError, map[string]any{
		"reason_code": string(reason.Unknown),
		"message":     err.Error(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
