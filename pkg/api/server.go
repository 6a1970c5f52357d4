package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peoplehub/ecsync/pkg/employee"
	"github.com/peoplehub/ecsync/pkg/extract"
	"github.com/peoplehub/ecsync/pkg/graph"
	"github.com/peoplehub/ecsync/pkg/reports"
	"github.com/peoplehub/ecsync/pkg/resolver"
	"github.com/peoplehub/ecsync/pkg/store"
	"github.com/peoplehub/ecsync/web"
)

// RunStore is the slice of the store the API reads from. Defined here so
// handlers can be tested against a mock.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*store.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*store.Run, error)
	ListBatches(ctx context.Context, runID string) ([]store.Batch, error)
	ListOutcomes(ctx context.Context, runID string, status store.OutcomeStatus) ([]store.RecordOutcome, error)
	CountOutcomes(ctx context.Context, runID string) (map[store.OutcomeStatus]int, error)
}

// Server serves run history, previews, and the embedded dashboard.
type Server struct {
	store  RunStore
	server *http.Server

	tlsCertFile string
	tlsKeyFile  string
}

// NewServer wires the routes and middleware over a run store.
func NewServer(st RunStore, addr string) *Server {
	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{store: st}

	mux.HandleFunc("/v1/runs", s.handleRuns)
	mux.HandleFunc("/v1/runs/", s.handleRun) // {id}, {id}/summary, {id}/outcomes, {id}/report
	mux.HandleFunc("/v1/preview", s.handlePreview)
	mux.HandleFunc("/v1/preview/graph", s.handlePreviewGraph)

	// Dashboard at the root. "/" is the least specific pattern, so the API
	// and metrics routes above still win.
	if assets, err := web.Assets(); err == nil {
		mux.Handle("/", http.FileServer(http.FS(assets)))
	}

	// Logging sits outermost so recovered panics still produce a line.
	handler := withLogging(withRecovery(withSecureHeaders(mux)))

	if addr == "" {
		addr = ":8090"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return s
}

// SetTLS makes Start listen with the given certificate pair.
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Start listens and serves until Stop or a listener error. Blocking.
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		fmt.Printf(`{"level":"info","msg":"server_starting_tls","addr":"%s"}`+"\n", s.server.Addr)
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); err != http.ErrServerClosed {
			return err
		}
	} else {
		fmt.Printf(`{"level":"info","msg":"server_starting","addr":"%s"}`+"\n", s.server.Addr)
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	fmt.Println(`{"level":"info","msg":"server_stopping"}`)
	return s.server.Shutdown(ctx)
}

// handleRuns lists recent runs, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	// Parse limit query param
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_list_runs","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(runs); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_encode_runs","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
	}
}

// handleRun routes /v1/runs/{id} and its sub-resources.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	parts := strings.Split(rest, "/")
	runID := parts[0]
	if runID == "" {
		http.Error(w, `{"error":"run_not_found"}`, http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1:
		s.handleRunDetail(w, r, runID)
	case len(parts) == 2 && parts[1] == "summary":
		s.handleRunSummary(w, r, runID)
	case len(parts) == 2 && parts[1] == "outcomes":
		s.handleRunOutcomes(w, r, runID)
	case len(parts) == 2 && parts[1] == "report":
		s.handleRunReport(w, r, runID)
	default:
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	}
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_get_run","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, `{"error":"run_not_found"}`, http.StatusNotFound)
		return
	}

	batches, err := s.store.ListBatches(r.Context(), runID)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_list_batches","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	counts, err := s.store.CountOutcomes(r.Context(), runID)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_count_outcomes","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	resp := RunDetailResponse{Run: run, Batches: batches, OutcomeCounts: counts}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_encode_run","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
	}
}

// handleRunSummary serves the dependency summary stored with the run.
func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_get_run","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, `{"error":"run_not_found"}`, http.StatusNotFound)
		return
	}
	if len(run.Summary) == 0 {
		http.Error(w, `{"error":"summary_not_available"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(run.Summary)
}

func (s *Server) handleRunOutcomes(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_get_run","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, `{"error":"run_not_found"}`, http.StatusNotFound)
		return
	}

	status := store.OutcomeStatus(r.URL.Query().Get("status"))
	switch status {
	case "", store.OutcomeCreated, store.OutcomeWarning, store.OutcomeFailed, store.OutcomeSkipped:
	default:
		http.Error(w, `{"error":"invalid_status","valid":["created","warning","failed","skipped"]}`, http.StatusBadRequest)
		return
	}

	outcomes, err := s.store.ListOutcomes(r.Context(), runID, status)
	if err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_list_outcomes","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if outcomes == nil {
		outcomes = []store.RecordOutcome{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(outcomes); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_encode_outcomes","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
	}
}

// handleRunReport generates and streams a report for the run.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request, runID string) {
	q := r.URL.Query()

	format := reports.ReportFormat(q.Get("format"))
	if format == "" {
		format = reports.ReportFormatCSV
	}
	if format != reports.ReportFormatCSV && format != reports.ReportFormatJSON {
		http.Error(w, `{"error":"invalid_format","valid":["csv","json"]}`, http.StatusBadRequest)
		return
	}

	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		reportType = reports.ReportTypeOutcomes
	}

	params := reports.ReportParams{
		RunID:  runID,
		Format: format,
		Status: store.OutcomeStatus(q.Get("status")),
	}

	gen, err := reports.NewGenerator(reportType, s.store)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid_report_type","details":"%v"}`, err), http.StatusBadRequest)
		return
	}

	reader, err := gen.Generate(r.Context(), params)
	if err != nil {
		if errors.Is(err, reports.ErrRunNotFound) {
			http.Error(w, `{"error":"run_not_found"}`, http.StatusNotFound)
			return
		}
		fmt.Printf(`{"level":"error","msg":"failed_to_generate_report","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"report_generation_failed"}`, http.StatusInternalServerError)
		return
	}

	if format == reports.ReportFormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
		filename := fmt.Sprintf("report_%s_%s.csv", reportType, runID)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	}

	if _, err := io.Copy(w, reader); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_stream_report","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
	}
}

// handlePreview resolves a roster into creation batches without persisting
// anything. The resolver is pure, so this endpoint is safe on any node.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}
	if len(req.Source) == 0 {
		http.Error(w, `{"error":"missing_source"}`, http.StatusBadRequest)
		return
	}

	records := make([]employee.Record, len(req.Source))
	for i, pr := range req.Source {
		records[i] = employee.Record{
			UserID:        pr.UserID,
			Manager:       pr.Manager,
			MatrixManager: pr.MatrixManager,
			HR:            pr.HR,
		}
	}

	cls := extract.Classify(records, req.TargetIDs)
	res, err := resolver.Resolve(cls.New, cls.Existing)
	if err != nil {
		if errors.Is(err, employee.ErrInvalidInput) {
			http.Error(w, fmt.Sprintf(`{"error":"invalid_input","details":"%v"}`, err), http.StatusBadRequest)
			return
		}
		fmt.Printf(`{"level":"error","msg":"failed_to_resolve_preview","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}

	resp := PreviewResponse{
		Batches:         res.BatchIDs(),
		CycleBatchIndex: res.CycleBatchIndex,
		CycleGroups:     res.CycleGroups,
		Cleared:         res.Cleared,
		Missing:         res.Missing,
		Summary:         res.Summary,
		TotalNew:        res.Summary.TotalNewEmployees,
		TotalExisting:   len(cls.Existing),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_encode_preview","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
	}
}

// handlePreviewGraph projects the same roster into a reference graph for
// dashboard rendering. Like preview, nothing is persisted.
func (s *Server) handlePreviewGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}
	if len(req.Source) == 0 {
		http.Error(w, `{"error":"missing_source"}`, http.StatusBadRequest)
		return
	}

	records := make([]employee.Record, len(req.Source))
	for i, pr := range req.Source {
		records[i] = employee.Record{
			UserID:        pr.UserID,
			Manager:       pr.Manager,
			MatrixManager: pr.MatrixManager,
			HR:            pr.HR,
		}
	}

	cls := extract.Classify(records, req.TargetIDs)
	snap, err := employee.NewSnapshot(cls.New, cls.Existing)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid_input","details":"%v"}`, err), http.StatusBadRequest)
		return
	}
	res := resolver.ResolveSnapshot(snap)

	resp := PreviewGraphResponse{
		Graph:   graph.Project(snap, res),
		Summary: res.Summary,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		fmt.Printf(`{"level":"error","msg":"failed_to_encode_preview_graph","trace_id":"%s","error":"%v"}`+"\n", getTraceID(r.Context()), err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

