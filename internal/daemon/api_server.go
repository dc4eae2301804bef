package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"anchord/internal/api"
	"anchord/internal/config"
	"anchord/internal/ingest"
	"anchord/internal/logging"
	"anchord/internal/outbox"
	"anchord/internal/scheduler"
)

// apiServer serves the HTTP API used by anchorctl and external callers. A nil
// apiServer (empty bind address) disables the API entirely.
type apiServer struct {
	daemon *Daemon
	jobs   *api.JobService
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &apiServer{
		daemon: d,
		jobs:   api.NewJobService(d.store),
		logger: logging.NewComponentLogger(logger, "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/evidence", s.handleEvidence)
	mux.HandleFunc("/api/evidence/", s.handleEvidenceByID)

	s.server = &http.Server{
		Addr:         bind,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

func (s *apiServer) start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("api server already started")
	}

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.listener = listener
	s.logger.Info("api server listening", logging.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server terminated", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown", logging.Error(err))
	}
	s.listener = nil
}

// addr returns the bound address, which differs from the configured one when
// the bind port is 0.
func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := healthResponse(s.daemon.scheduler.Health())
	code := http.StatusOK
	if !resp.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := s.daemon.Status(r.Context())
	writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		OutboxDBPath: status.OutboxDBPath,
		LockFilePath: status.LockFilePath,
		Provider:     status.Provider,
		Health:       healthResponse(status.Scheduler),
		QueueStats:   api.MergeStats(status.QueueStats),
	})
}

func (s *apiServer) handleEvidence(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.submitEvidence(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []outbox.Status
	for _, raw := range r.URL.Query()["status"] {
		status, ok := outbox.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}

	jobs, err := s.jobs.List(r.Context(), statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) submitEvidence(w http.ResponseWriter, r *http.Request) {
	var req api.EvidenceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := ingest.RecordFromEnvelope(&ingest.Envelope{
		EvidenceID:  req.EvidenceID,
		Digest:      req.Digest,
		PayloadMIME: req.PayloadMIME,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.jobs.Submit(r.Context(), rec)
	if err != nil {
		if errors.Is(err, outbox.ErrDuplicateEvidence) {
			existing, lookupErr := s.jobs.DescribeByDigest(r.Context(), rec.Digest)
			if lookupErr != nil || existing == nil {
				writeError(w, http.StatusConflict, "evidence already submitted")
				return
			}
			writeJSON(w, http.StatusConflict, api.SubmitResponse{Job: *existing, Duplicate: true})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, api.SubmitResponse{Job: *job})
}

func (s *apiServer) handleEvidenceByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/evidence/")
	evidenceID, wantProof := rest, false
	if trimmed, ok := strings.CutSuffix(rest, "/proof"); ok {
		evidenceID, wantProof = trimmed, true
	}
	if evidenceID == "" || strings.Contains(evidenceID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if wantProof {
		s.getProof(w, r, evidenceID)
		return
	}
	s.getJob(w, r, evidenceID)
}

func (s *apiServer) getJob(w http.ResponseWriter, r *http.Request, evidenceID string) {
	job, err := s.jobs.Describe(r.Context(), evidenceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "evidence not found")
		return
	}
	writeJSON(w, http.StatusOK, api.JobResponse{Job: *job})
}

func (s *apiServer) getProof(w http.ResponseWriter, r *http.Request, evidenceID string) {
	bundle, err := s.jobs.Bundle(r.Context(), evidenceID)
	if err != nil {
		if errors.Is(err, outbox.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no proof for evidence")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func healthResponse(h scheduler.Health) api.HealthResponse {
	return api.HealthResponse{
		Healthy:     h.Healthy(),
		SubmitLoop:  loopStatus(h.SubmitLoopAlive, h.LastSubmitPoll),
		ConfirmLoop: loopStatus(h.ConfirmLoopAlive, h.LastConfirmPoll),
	}
}

func loopStatus(alive bool, lastPoll time.Time) api.LoopStatus {
	status := api.LoopStatus{Alive: alive}
	if !lastPoll.IsZero() {
		status.LastPoll = lastPoll.UTC().Format(time.RFC3339)
	}
	return status
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
