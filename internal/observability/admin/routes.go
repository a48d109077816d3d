package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"autosched/internal/automation"
	"autosched/internal/eventbus"
	"autosched/internal/schedule"
	"autosched/internal/trigger"
	"autosched/internal/view"
	logx "autosched/pkg/logx"
)

// Handler builds the router for the current config.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.logRequests, authMiddleware(cur.Token))
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/schedules", s.handleSchedules).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/trigger", s.handleTrigger).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{ref}/run", s.handleRunJob).Methods(http.MethodPost)
	api.HandleFunc("/automations/{ref}/enable", s.handleSetEnabled(true)).Methods(http.MethodPost)
	api.HandleFunc("/automations/{ref}/disable", s.handleSetEnabled(false)).Methods(http.MethodPost)
	api.HandleFunc("/events/sync-completed", s.handleSyncCompleted).Methods(http.MethodPost)

	if cur.Pprof {
		api.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		api.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		api.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		api.HandleFunc("/debug/pprof/trace", hpprof.Trace)
		api.PathPrefix("/debug/pprof/").HandlerFunc(hpprof.Index)
	}
	return r
}

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("admin request", logx.String("method", r.Method), logx.String("path", r.URL.Path), logx.Duration("took", time.Since(start)))
	})
}

// authMiddleware accepts "Authorization: Bearer <token>" or ?token=<token>.
func authMiddleware(token string) mux.MiddlewareFunc {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	respondWithError(w, http.StatusUnauthorized, "unauthorized")
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		b = []byte(`{"error":"encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, automation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trigger.ErrConcurrentRun):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{"scheduler": s.deps.Scheduler.Snapshot()}
	if s.deps.Supervisors != nil {
		out["goroutines"] = s.deps.Supervisors()
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (s *Service) handleSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f view.Filter
	for _, raw := range q["family"] {
		fam, err := schedule.ParseFamily(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Families = append(f.Families, fam)
	}
	f.ScheduledOnly = q.Get("scheduled") == "true"
	f.EnabledOnly = q.Get("enabled") == "true"
	if v := q.Get("within"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid within: "+err.Error())
			return
		}
		before := time.Now().Add(d)
		f.Before = &before
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	entries, err := s.deps.View.List(r.Context(), f)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (s *Service) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := q.Get("ref")
	if ref != "" {
		parsed, err := automation.ParseRef(ref)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		ref = parsed.String()
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), ref, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, runs)
}

type triggerRequest struct {
	RecordIDs []string `json:"recordIds"`
}

type recordResult struct {
	RecordID string   `json:"recordId"`
	Matched  bool     `json:"matched"`
	Status   string   `json:"status"`
	Changed  []string `json:"changed,omitempty"`
	Failures []string `json:"failures,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type outcome struct {
	RunID      string         `json:"runId"`
	WorkflowID string         `json:"workflowId"`
	Signal     string         `json:"signal"`
	Status     string         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Error      string         `json:"error,omitempty"`
	Changed    []string       `json:"changedAttributeIds,omitempty"`
	LastRunAt  *time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt  *time.Time     `json:"nextRunAt,omitempty"`
	Records    []recordResult `json:"records,omitempty"`
}

func toOutcome(o trigger.Outcome) outcome {
	out := outcome{
		RunID:      o.RunID,
		WorkflowID: o.WorkflowID,
		Signal:     string(o.Signal),
		Status:     string(o.Status),
		Reason:     o.Reason,
		Changed:    o.ChangedAttributeIDs,
		LastRunAt:  o.LastRunAt,
		NextRunAt:  o.NextRunAt,
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	for _, r := range o.Records {
		rr := recordResult{RecordID: r.RecordID, Matched: r.Matched, Status: string(r.Status), Changed: r.Changed}
		for _, f := range r.Failures {
			rr.Failures = append(rr.Failures, f.Error())
		}
		if r.Err != nil {
			rr.Error = r.Err.Error()
		}
		out.Records = append(out.Records, rr)
	}
	return out
}

func (s *Service) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	o, err := s.deps.Scheduler.Trigger(r.Context(), id, req.RecordIDs)
	if err != nil {
		respondWithError(w, errorStatus(err), err.Error())
		return
	}
	code := http.StatusOK
	if errors.Is(o.Err, trigger.ErrRateLimited) {
		code = http.StatusTooManyRequests
	} else if errors.Is(o.Err, trigger.ErrConcurrentRun) {
		code = http.StatusConflict
	}
	respondWithJSON(w, code, toOutcome(o))
}

func (s *Service) handleRunJob(w http.ResponseWriter, r *http.Request) {
	ref, err := automation.ParseRef(mux.Vars(r)["ref"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Scheduler.RunJob(r.Context(), ref); err != nil {
		code := errorStatus(err)
		if ref.Family == schedule.FamilyWorkflow {
			code = http.StatusBadRequest
		}
		respondWithError(w, code, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{"ref": ref.String(), "dispatched": true})
}

func (s *Service) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := automation.ParseRef(mux.Vars(r)["ref"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		st, err := s.deps.Scheduler.SetEnabled(r.Context(), ref, enabled)
		if err != nil {
			respondWithError(w, errorStatus(err), err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]any{"ref": ref.String(), "state": st})
	}
}

func (s *Service) handleSyncCompleted(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		respondWithError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}
	var sc eventbus.SyncCompleted
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if strings.TrimSpace(sc.SourceID) == "" {
		respondWithError(w, http.StatusBadRequest, "sourceId is required")
		return
	}
	if sc.CompletedAt.IsZero() {
		sc.CompletedAt = time.Now().UTC()
	}
	s.deps.Bus.Publish(eventbus.Event{Type: eventbus.TypeSyncCompleted, Time: sc.CompletedAt, Data: sc})
	respondWithJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}
