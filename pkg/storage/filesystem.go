package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/pathguard/pkg/policy"
	"github.com/dshills/pathguard/pkg/validation"
)

// ErrPolicyNotFound is returned when a named policy does not exist.
var ErrPolicyNotFound = errors.New("policy not found")

// FilesystemPolicyRepository stores named policies as YAML files in
// <config>/policies/.
type FilesystemPolicyRepository struct {
	baseDir string
}

// NewFilesystemPolicyRepository creates a repository under configDir.
// It ensures the policies directory exists.
func NewFilesystemPolicyRepository(configDir string) (*FilesystemPolicyRepository, error) {
	policiesDir := filepath.Join(configDir, "policies")

	// Create directories if they don't exist
	if err := os.MkdirAll(policiesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create policies directory: %w", err)
	}

	return &FilesystemPolicyRepository{
		baseDir: policiesDir,
	}, nil
}

// Dir returns the directory policies are stored in.
func (r *FilesystemPolicyRepository) Dir() string {
	return r.baseDir
}

// Save persists a policy, keyed by its name, as a YAML file.
func (r *FilesystemPolicyRepository) Save(p *policy.Policy) error {
	if p == nil {
		return fmt.Errorf("cannot save nil policy")
	}

	filePath, err := r.policyPath(p.Name)
	if err != nil {
		return err
	}

	data, err := policy.Marshal(p)
	if err != nil {
		return err
	}
	// Refuse to write a document Load would reject.
	if _, err := policy.Parse(data); err != nil {
		return fmt.Errorf("refusing to save invalid policy: %w", err)
	}

	// Write to file atomically using a temp file + rename
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to save policy file: %w", err)
	}

	return nil
}

// Load retrieves a policy by name.
func (r *FilesystemPolicyRepository) Load(name string) (*policy.Policy, error) {
	filePath, err := r.policyPath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	p, err := policy.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", name, err)
	}
	return p, nil
}

// Delete removes a policy.
func (r *FilesystemPolicyRepository) Delete(name string) error {
	filePath, err := r.policyPath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
		}
		return fmt.Errorf("failed to delete policy file: %w", err)
	}
	return nil
}

// List returns the names of stored policies, sorted. Files whose names are
// not valid policy names are skipped.
func (r *FilesystemPolicyRepository) List() ([]string, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policies directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		if checkPolicyName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// policyPath returns the file for name. The name is used verbatim as a
// filename, so it must already be a clean identifier.
func (r *FilesystemPolicyRepository) policyPath(name string) (string, error) {
	if err := checkPolicyName(name); err != nil {
		return "", err
	}
	return filepath.Join(r.baseDir, name+".yaml"), nil
}

func checkPolicyName(name string) error {
	clean, err := validation.ValidateProjectName(name, validation.MaxProjectNameLength)
	if err != nil {
		return fmt.Errorf("invalid policy name: %w", err)
	}
	if clean != name {
		return fmt.Errorf("invalid policy name %q: use only letters, digits, '-' and '_'", name)
	}
	return nil
}
