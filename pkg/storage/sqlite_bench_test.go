package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/pathguard/pkg/domain/audit"
	"github.com/dshills/pathguard/pkg/validation"
)

// BenchmarkSave measures single-record inserts.
func BenchmarkSave(b *testing.B) {
	repo, err := NewSQLiteAuditRepository(filepath.Join(b.TempDir(), "bench.db"))
	require.NoError(b, err)
	defer func() { _ = repo.Close() }()

	_, verr := validation.SanitizePath("../../etc/passwd", validation.Unlimited)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := audit.NewRecord("sanitize", "bench", "default", "../../etc/passwd", verr)
		if err := repo.Save(rec); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkList_Small lists a page from 100 records.
func BenchmarkList_Small(b *testing.B) {
	benchmarkList(b, 100)
}

// BenchmarkList_Large lists a page from 5000 records.
func BenchmarkList_Large(b *testing.B) {
	benchmarkList(b, 5000)
}

func benchmarkList(b *testing.B, count int) {
	repo, err := NewSQLiteAuditRepository(filepath.Join(b.TempDir(), "bench.db"))
	require.NoError(b, err)
	defer func() { _ = repo.Close() }()

	base := time.Now().UTC()
	for i := 0; i < count; i++ {
		input := fmt.Sprintf("../%d", i)
		_, verr := validation.SanitizePath(input, validation.Unlimited)
		rec := audit.NewRecord("sanitize", "bench", "default", input, verr)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		require.NoError(b, repo.Save(rec))
	}

	kind := "traversal"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := repo.List(audit.ListOptions{Kind: &kind, Limit: 50}); err != nil {
			b.Fatal(err)
		}
	}
}
