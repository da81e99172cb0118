// Package audit records rejected inputs to persistent storage.
package audit

import (
	"time"

	"github.com/charmbracelet/log"

	domainaudit "github.com/dshills/pathguard/pkg/domain/audit"
)

// Recorder writes rejections to an audit repository.
//
// A Recorder with a nil repository is a no-op, so callers never need to check
// whether auditing is enabled. Storage failures are logged and swallowed:
// auditing must never change the outcome of a validation.
//
// Safe for concurrent use when the repository is.
type Recorder struct {
	repository domainaudit.Repository
	policy     string
	logger     *log.Logger
}

// NewRecorder creates a recorder that tags records with the policy name.
// logger may be nil, in which case the charmbracelet default logger is used.
func NewRecorder(repo domainaudit.Repository, policy string, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		repository: repo,
		policy:     policy,
		logger:     logger,
	}
}

// Enabled reports whether records are persisted.
func (r *Recorder) Enabled() bool {
	return r != nil && r.repository != nil
}

// Record stores a rejection of input by operation. Nothing is stored when err
// is nil. It returns the stored record, or nil when nothing was stored.
func (r *Recorder) Record(operation, source, input string, err error) *domainaudit.Record {
	if !r.Enabled() || err == nil {
		return nil
	}

	rec := domainaudit.NewRecord(operation, source, r.policy, input, err)
	if saveErr := r.repository.Save(rec); saveErr != nil {
		r.logger.Warn("failed to record rejection",
			"operation", operation,
			"reason", rec.Reason,
			"error", saveErr)
		return nil
	}

	r.logger.Debug("recorded rejection",
		"id", rec.ID,
		"operation", operation,
		"kind", rec.Kind,
		"reason", rec.Reason)
	return rec
}

// List returns stored records. A disabled recorder returns an empty page.
func (r *Recorder) List(options domainaudit.ListOptions) (*domainaudit.ListResult, error) {
	if !r.Enabled() {
		return &domainaudit.ListResult{Records: []*domainaudit.Record{}, Limit: options.Limit, Offset: options.Offset}, nil
	}
	return r.repository.List(options)
}

// Stats aggregates stored records by kind and reason.
func (r *Recorder) Stats(since *time.Time) ([]domainaudit.ReasonCount, error) {
	if !r.Enabled() {
		return []domainaudit.ReasonCount{}, nil
	}
	return r.repository.CountByReason(since)
}

// Prune removes records older than maxAge and returns how many were removed.
func (r *Recorder) Prune(maxAge time.Duration) (int64, error) {
	if !r.Enabled() {
		return 0, nil
	}
	return r.repository.Prune(time.Now().UTC().Add(-maxAge))
}

// Close releases the repository.
func (r *Recorder) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.repository.Close()
}
