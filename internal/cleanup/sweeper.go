// Package cleanup fails summaries that stopped making progress.
package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// Default per-status timeouts
const (
	DefaultInQueueTimeout            = time.Hour
	DefaultFetchingTranscriptTimeout = 2 * time.Hour
	DefaultGeneratingSummaryTimeout  = 4 * time.Hour
	DefaultTimeout                   = 2 * time.Hour

	// atRiskRatio marks summaries past this share of their timeout
	atRiskRatio = 0.75
)

// Store is the persistence the sweeper needs
type Store interface {
	ListSummariesByStatus(ctx context.Context, statuses ...types.Status) ([]types.Summary, error)
	CountSummariesByStatus(ctx context.Context) (map[types.Status]int, error)
	UpdateSummaryStatus(ctx context.Context, id string, change types.StatusChange) (bool, error)
}

// Thresholds holds how long a summary may stay in each non-terminal status
type Thresholds struct {
	InQueue            time.Duration
	FetchingTranscript time.Duration
	GeneratingSummary  time.Duration
	Default            time.Duration
}

// DefaultThresholds returns the standard timeouts
func DefaultThresholds() Thresholds {
	return Thresholds{
		InQueue:            DefaultInQueueTimeout,
		FetchingTranscript: DefaultFetchingTranscriptTimeout,
		GeneratingSummary:  DefaultGeneratingSummaryTimeout,
		Default:            DefaultTimeout,
	}
}

// For returns the timeout for status
func (t Thresholds) For(status types.Status) time.Duration {
	var d time.Duration
	switch status {
	case types.StatusInQueue:
		d = t.InQueue
	case types.StatusFetchingTranscript:
		d = t.FetchingTranscript
	case types.StatusGeneratingSummary:
		d = t.GeneratingSummary
	}
	if d <= 0 {
		d = t.Default
	}
	if d <= 0 {
		d = DefaultTimeout
	}
	return d
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Checked  int       `json:"checked"`
	TimedOut int       `json:"timed_out"`
	Errors   int       `json:"errors"`
	At       time.Time `json:"at"`
}

// HealthReport describes the processing backlog
type HealthReport struct {
	Healthy   bool                 `json:"healthy"`
	Counts    map[types.Status]int `json:"counts"`
	AtRisk    int                  `json:"at_risk"`
	Stalled   int                  `json:"stalled"`
	CheckedAt time.Time            `json:"checked_at"`
	LastSweep *SweepResult         `json:"last_sweep,omitempty"`
}

// Sweeper periodically fails summaries that exceeded their status timeout
type Sweeper struct {
	store      Store
	thresholds Thresholds
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	lastSweep *SweepResult
	stopChan  chan struct{}
	done      chan struct{}
}

// NewSweeper creates a sweeper that runs every interval
func NewSweeper(store Store, thresholds Thresholds, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:      store,
		thresholds: thresholds,
		interval:   interval,
		logger:     logger.With(zap.String("component", "sweeper")),
		now:        time.Now,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs an initial sweep and then sweeps on every tick until Stop
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("timeout sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("in_queue", s.thresholds.For(types.StatusInQueue)),
		zap.Duration("fetching_transcript", s.thresholds.For(types.StatusFetchingTranscript)),
		zap.Duration("generating_summary", s.thresholds.For(types.StatusGeneratingSummary)))

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runSweep(ctx)
		for {
			select {
			case <-ticker.C:
				s.runSweep(ctx)
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the sweeper and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	<-s.done
	s.logger.Info("timeout sweeper stopped")
}

func (s *Sweeper) runSweep(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
}

// Sweep fails every non-terminal summary whose time in its current status
// exceeds the threshold. A failure on one summary is logged and counted and
// the sweep moves on.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	result := SweepResult{At: now}

	summaries, err := s.store.ListSummariesByStatus(ctx, types.ActiveStatuses...)
	if err != nil {
		return result, fmt.Errorf("failed to list active summaries: %w", err)
	}

	for _, sum := range summaries {
		result.Checked++
		limit := s.thresholds.For(sum.Status)
		age := now.Sub(sum.UpdatedAt)
		if age <= limit {
			continue
		}

		applied, err := s.store.UpdateSummaryStatus(ctx, sum.ID, types.StatusChange{
			From:    sum.Status,
			To:      types.StatusFailed,
			Message: fmt.Sprintf("Summary processing timed out while in %s status", sum.Status),
		})
		if err != nil {
			result.Errors++
			s.logger.Error("failed to time out summary", zap.String("summary_id", sum.ID), zap.Error(err))
			continue
		}
		if !applied {
			// Moved on since it was listed.
			continue
		}
		result.TimedOut++
		s.logger.Warn("summary timed out",
			zap.String("summary_id", sum.ID),
			zap.String("status", string(sum.Status)),
			zap.Duration("age", age.Round(time.Second)),
			zap.Duration("limit", limit))
	}

	if result.TimedOut > 0 || result.Errors > 0 {
		s.logger.Info("sweep complete",
			zap.Int("checked", result.Checked),
			zap.Int("timed_out", result.TimedOut),
			zap.Int("errors", result.Errors))
	}

	s.mu.Lock()
	s.lastSweep = &result
	s.mu.Unlock()
	return result, nil
}

// Health counts summaries by status and flags active ones that are close to
// (at risk) or past (stalled) their timeout.
func (s *Sweeper) Health(ctx context.Context) (*HealthReport, error) {
	counts, err := s.store.CountSummariesByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count summaries: %w", err)
	}
	active, err := s.store.ListSummariesByStatus(ctx, types.ActiveStatuses...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active summaries: %w", err)
	}

	now := s.now()
	report := &HealthReport{Counts: counts, CheckedAt: now}
	for _, sum := range active {
		ratio := float64(now.Sub(sum.UpdatedAt)) / float64(s.thresholds.For(sum.Status))
		switch {
		case ratio > 1:
			report.Stalled++
		case ratio > atRiskRatio:
			report.AtRisk++
		}
	}
	report.Healthy = report.Stalled == 0

	s.mu.Lock()
	if s.lastSweep != nil {
		last := *s.lastSweep
		report.LastSweep = &last
	}
	s.mu.Unlock()
	return report, nil
}
