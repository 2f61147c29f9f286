package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker logs periodic progress for long-running matching passes
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// ProgressStats is a snapshot of a tracker
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 2 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Debug("Starting operation")

	return tracker
}

// Add advances the counter and logs when the interval has elapsed
func (p *ProgressTracker) Add(delta int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += delta
	now := time.Now()
	if now.Sub(p.lastLogTime) < p.logInterval {
		return
	}
	p.lastLogTime = now

	fields := Fields{
		"operation": p.operation,
		"processed": p.current,
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.current)/float64(p.total)*100)
	}
	p.logger.WithFields(fields).Info("Progress update")
}

// Complete logs final statistics
func (p *ProgressTracker) Complete() {
	stats := p.Stats()
	p.logger.WithFields(Fields{
		"operation": stats.Operation,
		"processed": stats.Current,
		"duration":  stats.Duration.String(),
	}).Debug("Operation completed")
}

// Stats returns current progress statistics
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var percentage float64
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}

	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Current:    p.current,
		Percentage: percentage,
		Duration:   time.Since(p.startTime),
	}
}
