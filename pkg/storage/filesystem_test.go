package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pathguard/pkg/policy"
)

func newTestPolicyRepo(t *testing.T) *FilesystemPolicyRepository {
	t.Helper()
	repo, err := NewFilesystemPolicyRepository(t.TempDir())
	require.NoError(t, err)
	return repo
}

func TestFilesystemPolicyRepository_SaveLoad(t *testing.T) {
	repo := newTestPolicyRepo(t)

	p := policy.Default()
	p.Name = "uploads"
	p.BaseDir = "/srv/uploads"
	require.NoError(t, repo.Save(p))

	_, err := os.Stat(filepath.Join(repo.Dir(), "uploads.yaml"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(repo.Dir(), "uploads.yaml.tmp"))
	assert.True(t, os.IsNotExist(err))

	loaded, err := repo.Load("uploads")
	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestFilesystemPolicyRepository_Overwrite(t *testing.T) {
	repo := newTestPolicyRepo(t)

	p := &policy.Policy{Name: "strict", Platform: "unix"}
	require.NoError(t, repo.Save(p))
	p.RequireSegment = true
	require.NoError(t, repo.Save(p))

	loaded, err := repo.Load("strict")
	require.NoError(t, err)
	assert.True(t, loaded.RequireSegment)
}

func TestFilesystemPolicyRepository_RejectsUnsafeNames(t *testing.T) {
	repo := newTestPolicyRepo(t)

	for _, name := range []string{"", "../escape", "a/b", `a\b`, "has space", "-flag", "%2e%2e"} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, repo.Save(&policy.Policy{Name: name}))
			_, err := repo.Load(name)
			assert.Error(t, err)
			assert.Error(t, repo.Delete(name))
		})
	}

	entries, err := os.ReadDir(filepath.Dir(repo.Dir()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "nothing may be written beside the policies directory")
}

func TestFilesystemPolicyRepository_SaveInvalidPolicy(t *testing.T) {
	repo := newTestPolicyRepo(t)
	assert.Error(t, repo.Save(nil))
	assert.Error(t, repo.Save(&policy.Policy{Name: "bad", Platform: "plan9"}))

	names, err := repo.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFilesystemPolicyRepository_LoadMissing(t *testing.T) {
	repo := newTestPolicyRepo(t)
	_, err := repo.Load("nope")
	assert.ErrorIs(t, err, ErrPolicyNotFound)
	assert.ErrorIs(t, repo.Delete("nope"), ErrPolicyNotFound)
}

func TestFilesystemPolicyRepository_LoadCorrupt(t *testing.T) {
	repo := newTestPolicyRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo.Dir(), "broken.yaml"), []byte("name: [x"), 0o644))

	_, err := repo.Load("broken")
	assert.ErrorContains(t, err, "policy broken")
}

func TestFilesystemPolicyRepository_ListAndDelete(t *testing.T) {
	repo := newTestPolicyRepo(t)
	for _, name := range []string{"zeta", "alpha", "mid_1"} {
		require.NoError(t, repo.Save(&policy.Policy{Name: name}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(repo.Dir(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repo.Dir(), "bad name.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(repo.Dir(), "dir.yaml"), 0o755))

	names, err := repo.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid_1", "zeta"}, names)

	require.NoError(t, repo.Delete("mid_1"))
	names, err = repo.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}
