package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/pathguard/pkg/domain/audit"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DefaultDatabaseName is the audit database file inside the config directory.
const DefaultDatabaseName = "audit.db"

// SQLiteAuditRepository implements audit.Repository using SQLite storage.
type SQLiteAuditRepository struct {
	db *sql.DB
}

var _ audit.Repository = (*SQLiteAuditRepository)(nil)

// NewSQLiteAuditRepository opens (creating if needed) the audit database at dbPath.
func NewSQLiteAuditRepository(dbPath string) (*SQLiteAuditRepository, error) {
	// Create directory if it doesn't exist
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	if err := InitializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &SQLiteAuditRepository{db: db}, nil
}

// Close closes the database connection.
func (r *SQLiteAuditRepository) Close() error {
	return r.db.Close()
}

// Save persists a rejection record.
func (r *SQLiteAuditRepository) Save(rec *audit.Record) error {
	if rec == nil {
		return fmt.Errorf("cannot save nil record")
	}
	if rec.ID.IsZero() {
		return fmt.Errorf("record must have an ID")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO rejections (
			id, operation, kind, reason, detail, input, input_length, source, policy, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		rec.ID.String(),
		rec.Operation,
		rec.Kind,
		rec.Reason,
		nullString(rec.Detail),
		rec.Input,
		rec.InputLength,
		nullString(rec.Source),
		nullString(rec.Policy),
		rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// List returns records with filtering and pagination support.
func (r *SQLiteAuditRepository) List(options audit.ListOptions) (*audit.ListResult, error) {
	if err := validateListOptions(options); err != nil {
		return nil, err
	}

	whereClause, args := buildWhereClause(options)

	// Get total count (without pagination)
	var totalCount int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM rejections"+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	dataQuery := `
		SELECT id, operation, kind, reason, detail, input, input_length, source, policy, created_at
		FROM rejections` + whereClause + `
		ORDER BY created_at DESC, id`

	if options.Limit > 0 {
		dataQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", options.Limit, options.Offset)
	} else if options.Offset > 0 {
		dataQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", options.Offset)
	}

	rows, err := r.db.Query(dataQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*audit.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return &audit.ListResult{
		Records:    records,
		TotalCount: totalCount,
		Limit:      options.Limit,
		Offset:     options.Offset,
	}, nil
}

// CountByReason aggregates records by kind and reason.
func (r *SQLiteAuditRepository) CountByReason(since *time.Time) ([]audit.ReasonCount, error) {
	query := "SELECT kind, reason, COUNT(*) FROM rejections"
	var args []interface{}
	if since != nil {
		query += " WHERE created_at >= ?"
		args = append(args, since.UnixNano())
	}
	query += " GROUP BY kind, reason ORDER BY COUNT(*) DESC, reason"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make([]audit.ReasonCount, 0)
	for rows.Next() {
		var c audit.ReasonCount
		if err := rows.Scan(&c.Kind, &c.Reason, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

// Prune deletes records created before the cutoff.
func (r *SQLiteAuditRepository) Prune(before time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM rejections WHERE created_at < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func scanRecord(rows *sql.Rows) (*audit.Record, error) {
	var (
		rec                    audit.Record
		id                     string
		detail, source, policy sql.NullString
		createdAt              int64
	)
	if err := rows.Scan(&id, &rec.Operation, &rec.Kind, &rec.Reason, &detail,
		&rec.Input, &rec.InputLength, &source, &policy, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.ID = audit.RecordID(id)
	rec.Detail = detail.String
	rec.Source = source.String
	rec.Policy = policy.String
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}

// validateListOptions validates the ListOptions parameters
func validateListOptions(options audit.ListOptions) error {
	if options.Limit < 0 {
		return fmt.Errorf("limit cannot be negative: %d", options.Limit)
	}
	if options.Offset < 0 {
		return fmt.Errorf("offset cannot be negative: %d", options.Offset)
	}
	if options.Since != nil && options.Until != nil && options.Since.After(*options.Until) {
		return fmt.Errorf("since cannot be after until")
	}
	return nil
}

// buildWhereClause constructs the WHERE clause and argument list for filtering
func buildWhereClause(options audit.ListOptions) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if options.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, *options.Kind)
	}
	if options.Reason != nil {
		conditions = append(conditions, "reason = ?")
		args = append(args, *options.Reason)
	}
	if options.Operation != nil {
		conditions = append(conditions, "operation = ?")
		args = append(args, *options.Operation)
	}
	if options.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, options.Since.UnixNano())
	}
	if options.Until != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, options.Until.UnixNano())
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
