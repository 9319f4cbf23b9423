package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"
)

type auditEntry struct {
	Time           time.Time `json:"time"`
	UserID         int64     `json:"user_id"`
	OrganizationID int64     `json:"organization_id"`
	Role           string    `json:"role"`
	Path           string    `json:"path"`
	Method         string    `json:"method"`
	Status         int       `json:"status"`
	RemoteAddr     string    `json:"remote_addr,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

type auditSink interface {
	Write(entry auditEntry) error
}

// auditLog keeps the most recent organization-scoped requests in a ring and
// optionally streams them to a sink.
type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    auditSink
}

func newAuditLog(max int, sink auditSink) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{max: max, sink: sink}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		// Best-effort persistence; never let sink errors affect requests.
		_ = l.sink.Write(entry)
	}
}

func (l *auditLog) listLimit(limit int) []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	entries := l.entries
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]auditEntry, len(entries))
	copy(out, entries)
	return out
}

// middleware records every request that carries a resolved actor.
func (l *auditLog) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		actor, ok := actorFrom(r.Context())
		if !ok {
			return
		}
		l.add(auditEntry{
			Time:           time.Now().UTC(),
			UserID:         actor.UserID,
			OrganizationID: actor.OrganizationID,
			Role:           string(actor.Role),
			Path:           r.URL.Path,
			Method:         r.Method,
			Status:         rec.status,
			RemoteAddr:     r.RemoteAddr,
			UserAgent:      r.UserAgent(),
		})
	})
}

// fileAuditSink appends audit entries as JSONL.
type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileAuditSink(path string) (*fileAuditSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileAuditSink{file: f}, nil
}

func (s *fileAuditSink) Write(entry auditEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(raw, '\n'))
	return err
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
