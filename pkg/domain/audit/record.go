// Package audit defines the rejection audit record and its repository contract.
package audit

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dshills/pathguard/pkg/validation"
)

// MaxStoredInput bounds how many bytes of a rejected input are persisted.
const MaxStoredInput = 512

// RecordID is a unique identifier for an audit record.
type RecordID string

// NewRecordID generates a new unique record ID.
func NewRecordID() RecordID {
	return RecordID(uuid.NewString())
}

// String returns the string representation of a RecordID.
func (id RecordID) String() string {
	return string(id)
}

// IsZero returns true if the RecordID is the zero value.
func (id RecordID) IsZero() bool {
	return id == ""
}

// Record is one rejected input.
type Record struct {
	ID          RecordID  `json:"id"`
	Operation   string    `json:"operation"`
	Kind        string    `json:"kind"`
	Reason      string    `json:"reason"`
	Detail      string    `json:"detail,omitempty"`
	Input       string    `json:"input"`
	InputLength int       `json:"input_length"`
	Source      string    `json:"source,omitempty"`
	Policy      string    `json:"policy,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Truncated reports whether Input holds only a prefix of the original input.
func (r *Record) Truncated() bool {
	return len(r.Input) < r.InputLength
}

// NewRecord builds a record for a rejection. Returns nil if err is nil.
//
// Operational failures that are not validation errors are recorded with
// kind "invalid" and reason "internal_error".
func NewRecord(operation, source, policy, input string, err error) *Record {
	if err == nil {
		return nil
	}

	kind := validation.KindInvalid
	reason := validation.ReasonInternalError
	detail := err.Error()
	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		kind = ve.Kind
		reason = ve.Reason
		detail = ve.Detail
	}

	return &Record{
		ID:          NewRecordID(),
		Operation:   operation,
		Kind:        kind.String(),
		Reason:      string(reason),
		Detail:      detail,
		Input:       truncate(input, MaxStoredInput),
		InputLength: len(input),
		Source:      source,
		Policy:      policy,
		CreatedAt:   time.Now().UTC(),
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ListOptions filters a record listing. Nil fields do not filter.
type ListOptions struct {
	Kind      *string
	Reason    *string
	Operation *string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// ListResult is one page of records, most recent first.
type ListResult struct {
	Records    []*Record
	TotalCount int
	Limit      int
	Offset     int
}

// ReasonCount is the number of rejections with one kind and reason.
type ReasonCount struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Repository defines the interface for persisting and querying audit records.
type Repository interface {
	// Save persists a record. Records are append-only.
	Save(record *Record) error

	// List returns records matching options, most recent first.
	List(options ListOptions) (*ListResult, error)

	// CountByReason aggregates records created at or after since (all
	// records when since is nil), largest count first.
	CountByReason(since *time.Time) ([]ReasonCount, error)

	// Prune deletes records created before cutoff and returns how many
	// were removed.
	Prune(before time.Time) (int64, error)

	// Close releases the underlying storage.
	Close() error
}
