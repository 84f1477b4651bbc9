// Package management provides a lightweight HTTP API for runtime
// inspection and configuration of the running proxy.
//
// Endpoints:
//
//	GET  /status               - proxy health, active profile, overrides
//	GET  /metrics              - JSON metrics snapshot
//	POST /overrides/suppress   - suppress an NER entity type {"entityType":"NAME"}
//	POST /overrides/unsuppress - stop suppressing an entity type {"entityType":"NAME"}
//	POST /overrides/comprehend - override stage-2 enablement {"enabled":true}
package management

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mcp-pii-proxy/internal/config"
	"mcp-pii-proxy/internal/logger"
	"mcp-pii-proxy/internal/metrics"
)

// Server is the management API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	overrides *OverrideRegistry
	token     string // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// persistedOverrides is the on-disk shape of an OverrideRegistry.
type persistedOverrides struct {
	SuppressedEntityTypes []string `json:"suppressedEntityTypes"`
	ComprehendOverride    *bool    `json:"comprehendOverride"`
}

// OverrideRegistry holds the mutable runtime overrides layered on top
// of the static compliance profile: entity types an operator has
// suppressed from stage-2 redaction (e.g. a type producing too many
// false positives for a given upstream tool), and an optional override
// of COMPREHEND_ENABLED. It is shared between the redaction middleware
// and the management server. Changes are persisted to disk via atomic
// file writes so they survive proxy restarts.
type OverrideRegistry struct {
	mu                 sync.RWMutex
	suppressedTypes    map[string]bool
	comprehendOverride *bool
	persistPath        string // empty = no persistence
	log                *logger.Logger
}

// NewOverrideRegistry creates an empty registry, loading persisted
// overrides from persistPath if it exists.
func NewOverrideRegistry(persistPath string, log *logger.Logger) *OverrideRegistry {
	r := &OverrideRegistry{
		suppressedTypes: make(map[string]bool),
		persistPath:     persistPath,
		log:             log,
	}
	if persistPath == "" {
		return r
	}
	loaded, err := r.loadFromDisk()
	switch {
	case err == nil:
		for _, t := range loaded.SuppressedEntityTypes {
			r.suppressedTypes[t] = true
		}
		r.comprehendOverride = loaded.ComprehendOverride
		log.Infof("overrides", "loaded overrides from %s (%d suppressed types)", persistPath, len(loaded.SuppressedEntityTypes))
	case !os.IsNotExist(err):
		log.Warnf("overrides", "failed to load %s: %v (starting with no overrides)", persistPath, err)
	}
	return r
}

// IsSuppressed reports whether entityType has been runtime-suppressed.
func (r *OverrideRegistry) IsSuppressed(entityType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.suppressedTypes[entityType]
}

// ComprehendEnabled resolves the effective stage-2 toggle: the runtime
// override if one has been set, else the configured default.
func (r *OverrideRegistry) ComprehendEnabled(configDefault bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.comprehendOverride != nil {
		return *r.comprehendOverride
	}
	return configDefault
}

// Suppress adds entityType to the suppressed set and persists.
func (r *OverrideRegistry) Suppress(entityType string) {
	r.mu.Lock()
	r.suppressedTypes[entityType] = true
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
}

// Unsuppress removes entityType from the suppressed set and persists.
func (r *OverrideRegistry) Unsuppress(entityType string) {
	r.mu.Lock()
	delete(r.suppressedTypes, entityType)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
}

// SetComprehendOverride sets (or clears, with nil) the runtime
// COMPREHEND_ENABLED override and persists.
func (r *OverrideRegistry) SetComprehendOverride(v *bool) {
	r.mu.Lock()
	r.comprehendOverride = v
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
}

// SuppressedTypes returns a sorted slice of all currently suppressed
// entity types.
func (r *OverrideRegistry) SuppressedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.suppressedTypes))
	for t := range r.suppressedTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// snapshotLocked returns the persisted shape of the registry. Caller
// must hold r.mu.
func (r *OverrideRegistry) snapshotLocked() persistedOverrides {
	types := make([]string, 0, len(r.suppressedTypes))
	for t := range r.suppressedTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return persistedOverrides{SuppressedEntityTypes: types, ComprehendOverride: r.comprehendOverride}
}

func (r *OverrideRegistry) loadFromDisk() (persistedOverrides, error) {
	data, err := os.ReadFile(r.persistPath)
	if err != nil {
		return persistedOverrides{}, err
	}
	var p persistedOverrides
	if err := json.Unmarshal(data, &p); err != nil {
		return persistedOverrides{}, fmt.Errorf("parse %s: %w", r.persistPath, err)
	}
	return p, nil
}

// persist writes the given snapshot to disk atomically (temp file then
// rename). It does not hold r.mu, so it won't block reads.
func (r *OverrideRegistry) persist(snapshot persistedOverrides) {
	if r.persistPath == "" {
		return
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		r.log.Warnf("overrides", "marshal error: %v", err)
		return
	}

	dir := filepath.Dir(r.persistPath)
	tmp, err := os.CreateTemp(dir, ".pii-overrides-*.tmp")
	if err != nil {
		r.log.Warnf("overrides", "persist error (create temp): %v", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		r.log.Warnf("overrides", "persist error (write): %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		r.log.Warnf("overrides", "persist error (close): %v", err)
		return
	}
	if err := os.Rename(tmpName, r.persistPath); err != nil {
		os.Remove(tmpName)
		r.log.Warnf("overrides", "persist error (rename): %v", err)
		return
	}
}

// New creates a management server.
func New(cfg *config.Config, overrides *OverrideRegistry, m *metrics.Metrics, token string, log *logger.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		overrides: overrides,
		token:     token,
		metrics:   m,
		log:       log,
	}
	if s.token != "" {
		log.Infof("management", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/overrides/suppress", s.handleSuppress)
	mux.HandleFunc("/overrides/unsuppress", s.handleUnsuppress)
	mux.HandleFunc("/overrides/comprehend", s.handleComprehendOverride)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("management", "unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status            string   `json:"status"`
		Uptime            string   `json:"uptime"`
		ComplianceProfile string   `json:"complianceProfile"`
		AuditEnabled      bool     `json:"auditEnabled"`
		ComprehendEnabled bool     `json:"comprehendEnabled"`
		SuppressedTypes   []string `json:"suppressedEntityTypes"`
	}

	resp := response{
		Status:            "running",
		Uptime:            time.Since(s.startTime).Round(time.Second).String(),
		ComplianceProfile: s.cfg.ComplianceProfile,
		AuditEnabled:      s.cfg.AuditEnabled,
		ComprehendEnabled: s.overrides.ComprehendEnabled(s.cfg.ComprehendEnabled),
		SuppressedTypes:   s.overrides.SuppressedTypes(),
	}
	writeJSON(w, http.StatusOK, resp, s.log)
}

func (s *Server) handleSuppress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		EntityType string `json:"entityType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntityType == "" {
		http.Error(w, `invalid request: need {"entityType":"..."}`, http.StatusBadRequest)
		return
	}
	s.overrides.Suppress(req.EntityType)
	s.log.Infof("management", "suppressed entity type: %s", req.EntityType)
	writeJSON(w, http.StatusOK, map[string]string{"suppressed": req.EntityType}, s.log)
}

func (s *Server) handleUnsuppress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		EntityType string `json:"entityType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntityType == "" {
		http.Error(w, `invalid request: need {"entityType":"..."}`, http.StatusBadRequest)
		return
	}
	s.overrides.Unsuppress(req.EntityType)
	s.log.Infof("management", "unsuppressed entity type: %s", req.EntityType)
	writeJSON(w, http.StatusOK, map[string]string{"unsuppressed": req.EntityType}, s.log)
}

func (s *Server) handleComprehendOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `invalid request: need {"enabled":true|false|null}`, http.StatusBadRequest)
		return
	}
	s.overrides.SetComprehendOverride(req.Enabled)
	s.log.Infof("management", "comprehend override set to %v", req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"comprehendOverride": req.Enabled}, s.log)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot(), s.log)
}

func writeJSON(w http.ResponseWriter, status int, v any, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("management", "JSON encode error: %v", err)
	}
}

// ListenAndServe starts the management HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.ManagementPort)
	s.log.Infof("management", "listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
