package ingress

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ondutyhq/sentinel/pkg/incident"
)

// ErrBackpressure signals the Intake is shedding load; ingress turns it
// into a 429 so the sender's webhook retry policy kicks in.
var ErrBackpressure = errBackpressure{}

type errBackpressure struct{}

func (errBackpressure) Error() string { return "intake backpressured" }

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const maxBodyBytes = 1 << 20 // 1MiB — webhook payloads are small JSON documents.

func (s *Server) handlePagerDuty(secret []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := s.readAndVerify(w, r, secret, r.Header.Get("X-PagerDuty-Signature"))
		if !ok {
			return
		}

		alert, err := parsePagerDuty(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.dispatch(w, alert)
	}
}

func (s *Server) handleCloudWatch(secret []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := s.readAndVerify(w, r, secret, r.Header.Get("X-CloudWatch-Signature"))
		if !ok {
			return
		}

		alert, err := parseCloudWatch(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.dispatch(w, alert)
	}
}

// readAndVerify reads the request body (bounded) and checks its HMAC
// signature. If no secret is configured for this webhook, signature
// verification is skipped entirely and the request is accepted unauthenticated
// (logged as a warning) — this is the documented default/no-secret deployment
// path, not a fallback for a misconfigured secret. On any other failure it
// writes the response itself and returns ok=false.
func (s *Server) readAndVerify(w http.ResponseWriter, r *http.Request, secret []byte, signatureHeader string) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return nil, false
	}

	if len(secret) == 0 {
		s.logger.Warn("webhook secret not configured, accepting request unauthenticated", zap.String("path", r.URL.Path))
		return body, true
	}

	sig := strings.TrimPrefix(signatureHeader, "v1=")
	if sig == "" || !verifySignature(secret, body, sig) {
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return nil, false
	}
	return body, true
}

// dispatch hands a parsed alert (if any) to the Intake, translating its
// outcome into the ingress response contract: 202 accepted, 200 ignored
// (event type we don't act on), 429 when the intake is backpressured, 500
// on unexpected failure.
func (s *Server) dispatch(w http.ResponseWriter, alert *incident.Alert) {
	if alert == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := s.intake.Accept(*alert); err != nil {
		if err == ErrBackpressure {
			writeError(w, http.StatusTooManyRequests, "intake is backpressured, retry later")
			return
		}
		s.logger.Error("intake failed to accept alert", zap.Error(err), zap.String("alert_id", alert.ID))
		writeError(w, http.StatusInternalServerError, "failed to accept alert")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "alert_id": alert.ID})
}
