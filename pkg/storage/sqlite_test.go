package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pathguard/pkg/domain/audit"
	"github.com/dshills/pathguard/pkg/validation"
)

func newTestAuditRepo(t *testing.T) *SQLiteAuditRepository {
	t.Helper()
	repo, err := NewSQLiteAuditRepository(filepath.Join(t.TempDir(), "nested", DefaultDatabaseName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func rejection(t *testing.T, op, input string, at time.Time) *audit.Record {
	t.Helper()
	_, err := validation.SanitizePath(input, validation.Unlimited)
	require.Error(t, err, "input %q must be rejected", input)
	rec := audit.NewRecord(op, "test", "default", input, err)
	rec.CreatedAt = at
	return rec
}

func TestInitializeDatabase_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, InitializeDatabase(db))
	require.NoError(t, InitializeDatabase(db))

	v, err := SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, MigrationVersion, v)
}

func TestSQLiteAuditRepository_SaveAndList(t *testing.T) {
	repo := newTestAuditRepo(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(rejection(t, "sanitize", "../etc/passwd", base)))
	require.NoError(t, repo.Save(rejection(t, "sanitize", "a\x00b", base.Add(time.Minute))))
	require.NoError(t, repo.Save(rejection(t, "validate", "%252e%252e/x", base.Add(2*time.Minute))))

	result, err := repo.List(audit.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalCount)
	require.Len(t, result.Records, 3)

	// Most recent first.
	assert.Equal(t, "%252e%252e/x", result.Records[0].Input)
	assert.Equal(t, "../etc/passwd", result.Records[2].Input)

	first := result.Records[2]
	assert.Equal(t, "traversal", first.Kind)
	assert.Equal(t, string(validation.ReasonParentReference), first.Reason)
	assert.Equal(t, "test", first.Source)
	assert.Equal(t, "default", first.Policy)
	assert.True(t, first.CreatedAt.Equal(base))
}

func TestSQLiteAuditRepository_ListFilters(t *testing.T) {
	repo := newTestAuditRepo(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(rejection(t, "sanitize", fmt.Sprintf("../%d", i), base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, repo.Save(rejection(t, "validate", "a\x00b", base.Add(10*time.Hour))))

	kind := "traversal"
	result, err := repo.List(audit.ListOptions{Kind: &kind})
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalCount)

	reason := string(validation.ReasonNullByte)
	result, err = repo.List(audit.ListOptions{Reason: &reason})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "validate", result.Records[0].Operation)

	op := "sanitize"
	since := base.Add(time.Hour)
	until := base.Add(3 * time.Hour)
	result, err = repo.List(audit.ListOptions{Operation: &op, Since: &since, Until: &until})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)

	result, err = repo.List(audit.ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 6, result.TotalCount)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "../4", result.Records[0].Input)

	result, err = repo.List(audit.ListOptions{Offset: 5})
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
}

func TestSQLiteAuditRepository_ListInvalidOptions(t *testing.T) {
	repo := newTestAuditRepo(t)
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name string
		opts audit.ListOptions
	}{
		{"negative limit", audit.ListOptions{Limit: -1}},
		{"negative offset", audit.ListOptions{Offset: -1}},
		{"since after until", audit.ListOptions{Since: &now, Until: &earlier}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.List(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestSQLiteAuditRepository_SaveErrors(t *testing.T) {
	repo := newTestAuditRepo(t)

	assert.Error(t, repo.Save(nil))
	assert.Error(t, repo.Save(&audit.Record{Operation: "sanitize"}))

	rec := rejection(t, "sanitize", "../x", time.Now())
	require.NoError(t, repo.Save(rec))
	assert.Error(t, repo.Save(rec), "duplicate id must fail")
}

func TestSQLiteAuditRepository_CountByReason(t *testing.T) {
	repo := newTestAuditRepo(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(rejection(t, "sanitize", "../a", base)))
	require.NoError(t, repo.Save(rejection(t, "sanitize", "../b", base.Add(time.Hour))))
	require.NoError(t, repo.Save(rejection(t, "sanitize", "x\x00", base.Add(2*time.Hour))))

	counts, err := repo.CountByReason(nil)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, audit.ReasonCount{Kind: "traversal", Reason: "parent_reference", Count: 2}, counts[0])
	assert.Equal(t, audit.ReasonCount{Kind: "invalid", Reason: "null_byte", Count: 1}, counts[1])

	since := base.Add(90 * time.Minute)
	counts, err = repo.CountByReason(&since)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, "null_byte", counts[0].Reason)
}

func TestSQLiteAuditRepository_Prune(t *testing.T) {
	repo := newTestAuditRepo(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Save(rejection(t, "sanitize", "../x", base.Add(time.Duration(i)*24*time.Hour))))
	}

	n, err := repo.Prune(base.Add(48 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	result, err := repo.List(audit.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)

	n, err = repo.Prune(base)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteAuditRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultDatabaseName)

	repo, err := NewSQLiteAuditRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Save(rejection(t, "sanitize", "../x", time.Now().UTC())))
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteAuditRepository(path)
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	result, err := repo.List(audit.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
}
