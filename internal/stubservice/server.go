// Package stubservice is an in-memory stand-in for the remote generation
// service, used for offline development and by package tests.
package stubservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/role2-builder/internal/exercise"
	"github.com/kingrea/role2-builder/internal/genclient"
	"github.com/kingrea/role2-builder/internal/history"
)

// Logger is the Printf sink for request lines.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type record struct {
	summary genclient.GeneratedPackage
	bundle  bundle
}

// Server serves the generation API from memory.
type Server struct {
	settings Settings
	logger   Logger
	clock    func() time.Time

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	nextID   int64
	records  map[int64]*record
	// warnos holds drafts by exercise name until the package is generated.
	warnos    map[string]string
	generated int
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a stub server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	settings.applyLimits()
	s := &Server{
		settings: settings,
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		nextID:   1,
		records:  map[int64]*record{},
		warnos:   map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed API, usable with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /generate-name", s.handleGenerateName)
	mux.HandleFunc("POST /generate-warno", s.handleGenerateWarno)
	mux.HandleFunc("POST /generate-msel", s.handleGenerateMSEL)
	mux.HandleFunc("POST /generate-exercise", s.handleGenerateExercise)
	mux.HandleFunc("GET /exercises", s.handleListExercises)
	mux.HandleFunc("GET /exercises/{id}/download", s.handleDownload)
	mux.HandleFunc("GET /exercises/{id}/document/{docType}", s.handleDocument)
	return s.logRequests(mux)
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("stubservice: server is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("stubservice: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("stubservice: listen %s: %w", addr, err)
	}
	s.listener = listener
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("stubservice: serve error: %v", err)
		}
	}()
	s.logger.Printf("stubservice: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	count := len(s.records)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "exercises": count})
}

func (s *Server) handleGenerateName(w http.ResponseWriter, r *http.Request) {
	var req genclient.NameRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.simulateLatency(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": stubName(req)})
}

func (s *Server) handleGenerateWarno(w http.ResponseWriter, r *http.Request) {
	var req genclient.WarnoRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ExerciseName) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "exerciseName is required")
		return
	}
	if !s.simulateLatency(w, r) {
		return
	}
	cfg := exercise.Config{
		Name:         req.ExerciseName,
		Duration:     req.Duration,
		Environment:  req.AOR,
		MissionTasks: req.MissionTasks,
		Footprint:    req.Footprint,
	}
	doc := warnoText(cfg)
	s.mu.Lock()
	s.warnos[req.ExerciseName] = doc
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"document": doc})
}

func (s *Server) handleGenerateMSEL(w http.ResponseWriter, r *http.Request) {
	var req genclient.MSELRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.simulateLatency(w, r) {
		return
	}
	cfg := exercise.New()
	cfg.SetName(req.ExerciseName)
	data, err := buildXLSX(mselRows(cfg))
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "MSEL generation failed")
		return
	}
	writeBlob(w, contentTypeXLSX, data)
}

func (s *Server) handleGenerateExercise(w http.ResponseWriter, r *http.Request) {
	var cfg exercise.Config
	if !s.decode(w, r, &cfg) {
		return
	}
	if issues := cfg.Validate(); len(issues) > 0 {
		writeDetail(w, http.StatusUnprocessableEntity, issues[0].String())
		return
	}
	s.mu.Lock()
	if s.settings.Quota > 0 && s.generated >= s.settings.Quota {
		s.mu.Unlock()
		writeDetail(w, http.StatusTooManyRequests, "quota exceeded")
		return
	}
	s.generated++
	warno := s.warnos[cfg.Name]
	s.mu.Unlock()

	if !s.simulateLatency(w, r) {
		return
	}
	b, err := buildBundle(cfg, warno)
	if err != nil {
		s.logger.Printf("stubservice: build bundle: %v", err)
		writeDetail(w, http.StatusInternalServerError, "package generation failed")
		return
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	created := s.clock().UTC().Format(time.RFC3339)
	duration := cfg.Duration
	environment := cfg.Environment
	s.records[id] = &record{
		summary: genclient.GeneratedPackage{
			ID:          id,
			Name:        cfg.Name,
			CreatedAt:   &created,
			Duration:    &duration,
			Environment: &environment,
			TotalCases:  totalCases(cfg),
		},
		bundle: b,
	}
	s.mu.Unlock()
	writeBlob(w, contentTypeZip, b.archive)
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]genclient.GeneratedPackage, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.summary)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"exercises": out})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeBlob(w, contentTypeZip, rec.bundle.archive)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	doc, err := history.ParseDocType(r.PathValue("docType"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Unknown document type")
		return
	}
	contentType := contentTypeDOCX
	if doc.Extension() == "xlsx" {
		contentType = contentTypeXLSX
	}
	writeBlob(w, contentType, rec.bundle.docs[doc])
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*record, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Exercise not found")
		return nil, false
	}
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Exercise not found")
		return nil, false
	}
	return rec, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return false
		}
		writeDetail(w, http.StatusBadRequest, "unable to read body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// simulateLatency waits Settings.Latency; false means the client went away.
func (s *Server) simulateLatency(w http.ResponseWriter, r *http.Request) bool {
	if s.settings.Latency <= 0 {
		return true
	}
	timer := time.NewTimer(s.settings.Latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("stubservice: %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func stubName(req genclient.NameRequest) string {
	aor := strings.TrimSpace(req.AOR)
	if aor == "" {
		aor = "General"
	}
	words := map[string]string{
		"Urban":  "Concrete",
		"Jungle": "Verdant",
		"Desert": "Sandstorm",
		"Arctic": "Frostline",
	}
	prefix, ok := words[aor]
	if !ok {
		prefix = "Steel"
	}
	suffix := "Knight"
	if len(req.Seed) > 0 {
		suffixes := []string{"Knight", "Shield", "Lance", "Harbor"}
		suffix = suffixes[int(req.Seed[0])%len(suffixes)]
	}
	return "Operation " + prefix + " " + suffix
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeBlob(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
