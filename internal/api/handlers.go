package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/lyftr/internal/ingest"
	"github.com/mattjoyce/lyftr/internal/log"
	"github.com/mattjoyce/lyftr/internal/query"
	"github.com/mattjoyce/lyftr/internal/store"
)

// handleWebhook handles POST /webhook.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	res, err := s.deps.Ingester.Ingest(ctx, body, r.Header.Get(s.config.SignatureHeader))
	if err != nil {
		log.AddFields(ctx, slog.String("message_id", res.MessageID), slog.String("result", string(ingest.Unavailable)))
		s.writeStoreError(w, err)
		return
	}

	fields := []slog.Attr{slog.String("result", string(res.Outcome))}
	if res.MessageID != "" {
		fields = append(fields, slog.String("message_id", res.MessageID))
	}
	if res.Outcome.Accepted() {
		fields = append(fields, slog.Bool("dup", res.Outcome == ingest.Duplicate))
	}
	log.AddFields(ctx, fields...)

	switch res.Outcome {
	case ingest.Created, ingest.Duplicate:
		respondJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	case ingest.InvalidSignature:
		s.writeError(w, http.StatusUnauthorized, "invalid signature")
	case ingest.ValidationError:
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payload", Detail: res.Reason})
	default:
		s.writeError(w, http.StatusInternalServerError, "unexpected ingestion outcome")
	}
}

// handleListMessages handles GET /messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), query.DefaultLimit)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid query parameters", Detail: "limit: must be an integer"})
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid query parameters", Detail: "offset: must be an integer"})
		return
	}

	page, err := s.deps.Messages.ListMessages(r.Context(), query.Params{
		From:   q.Get("from"),
		Since:  q.Get("since"),
		Q:      q.Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		if errors.Is(err, query.ErrInvalidParams) {
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid query parameters", Detail: err.Error()})
			return
		}
		s.writeStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Stats.GetStats(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleLive handles GET /health/live.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{Status: "alive"})
}

// handleReady handles GET /health/ready. Ready needs a configured secret and
// a store that answers within the readiness timeout.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.ReadinessTimeout)
	defer cancel()

	ready := true
	checks := map[string]string{"database": "ok", "secret": "ok"}
	if err := s.deps.Store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = "unavailable"
		s.logger.Warn("readiness: store ping failed", "error", err)
	}
	if !s.config.SecretConfigured {
		ready = false
		checks["secret"] = "missing"
	}

	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	respondJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// handleRoot handles GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RootResponse{
		Service:          s.config.ServiceName,
		SecretConfigured: s.config.SecretConfigured,
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeStoreError maps storage failures to 503 and anything else to 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		s.logger.Error("storage unavailable", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.logger.Error("request failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
