package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/rs/zerolog/log"
)

const timeoutMessage = "The server took too long to complete the request"

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

type timeoutBody struct {
	Errors struct {
		Error string `json:"error"`
	} `json:"errors"`
}

// respondWithJSON encodes payload before touching the status line so an
// encoding failure can still be reported as a 500.
func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		return
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		log.Err(err).Msg("failed to encode response")
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ProblemDetail{
			Type:   problemType(http.StatusInternalServerError),
			Title:  "Internal Server Error",
			Status: http.StatusInternalServerError,
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func respondWithProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	problem := ProblemDetail{
		Type:     problemType(status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem); err != nil {
		log.Err(err).Msg("failed to encode problem response")
	}
}

// respondWithError turns an error from the token, identity or order layers
// into a response.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var reauth *errors.ReauthenticationError
	var rejected *errors.UpstreamRejectedError

	switch {
	case errors.As(err, &reauth):
		if reauth.RedirectTarget != "" {
			http.Redirect(w, r, s.deps.Login.LoginURL(), http.StatusFound)
			return
		}
		respondWithProblem(w, r, http.StatusUnauthorized, "Unauthorized", "login required")
	case errors.IsTimeout(err):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream timeout")
		if isXHR(r) {
			var body timeoutBody
			body.Errors.Error = timeoutMessage
			respondWithJSON(w, http.StatusGatewayTimeout, body)
			return
		}
		respondWithProblem(w, r, http.StatusInternalServerError, "Internal Server Error", timeoutMessage)
	case errors.As(err, &rejected):
		log.Info().Err(err).Msg("upstream rejected request")
		if ct := rejected.ContentType; ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(rejected.Status)
		_, _ = w.Write(rejected.Body)
	default:
		log.Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondWithProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func problemType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "https://tools.ietf.org/html/rfc7231#section-6.5.1"
	case http.StatusUnauthorized:
		return "https://tools.ietf.org/html/rfc7235#section-3.1"
	case http.StatusNotFound:
		return "https://tools.ietf.org/html/rfc7231#section-6.5.4"
	case http.StatusTooManyRequests:
		return "https://tools.ietf.org/html/rfc6585#section-4"
	case http.StatusInternalServerError:
		return "https://tools.ietf.org/html/rfc7231#section-6.6.1"
	default:
		return "about:blank"
	}
}
