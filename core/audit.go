package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// AuditRecord is the per-interval quality summary written to the audit sink.
type AuditRecord struct {
	Cell          int
	UE            int
	AvgThroughput float64
	AvgRSRQ       float64
	AvgRSRP       float64
}

// AuditSink receives one record per aggregated interval and an end-of-episode
// marker.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
	EndEpisode(ctx context.Context) error
}

// TextAuditSink writes human-readable audit lines to an io.Writer.
type TextAuditSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextAuditSink wraps w.
func NewTextAuditSink(w io.Writer) *TextAuditSink {
	return &TextAuditSink{w: w}
}

// OpenAuditFile opens path for appending, creating parent directories.
func OpenAuditFile(path string) (*TextAuditSink, io.Closer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit file %q: %w", path, err)
	}
	return NewTextAuditSink(f), f, nil
}

// Record writes one line.
func (s *TextAuditSink) Record(_ context.Context, rec AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "cell = %d: ue = %d: avg_throughput = %g: avg_rsrq  = %g: avg_rsrp  = %g\n",
		rec.Cell, rec.UE, rec.AvgThroughput, rec.AvgRSRQ, rec.AvgRSRP)
	return err
}

// EndEpisode writes a blank separator line.
func (s *TextAuditSink) EndEpisode(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, "\n")
	return err
}

// MemoryAuditSink keeps records in memory.
type MemoryAuditSink struct {
	mu       sync.Mutex
	Records  []AuditRecord
	Episodes int
}

// Record implements AuditSink.
func (s *MemoryAuditSink) Record(_ context.Context, rec AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, rec)
	return nil
}

// EndEpisode implements AuditSink.
func (s *MemoryAuditSink) EndEpisode(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Episodes++
	return nil
}
