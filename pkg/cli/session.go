package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/dshills/pathguard/pkg/audit"
	"github.com/dshills/pathguard/pkg/policy"
	"github.com/dshills/pathguard/pkg/storage"
)

// session is the engine and audit recorder for one command invocation.
type session struct {
	policy   *policy.Policy
	engine   *policy.Engine
	recorder *audit.Recorder
}

// openSession resolves the active policy, applies flag overrides and opens
// the audit log. An audit log that cannot be opened is logged and disabled;
// it never blocks validation.
func openSession() (*session, error) {
	p, err := resolvePolicy(GlobalConfig.Policy)
	if err != nil {
		return nil, err
	}
	if GlobalConfig.Platform != "" {
		p.Platform = GlobalConfig.Platform
	}
	if GlobalConfig.BaseDir != "" {
		p.BaseDir = GlobalConfig.BaseDir
	}

	engine, err := policy.NewEngine(p)
	if err != nil {
		return nil, err
	}

	s := &session{policy: p, engine: engine}
	s.recorder = audit.NewRecorder(nil, p.Name, GlobalConfig.Logger)
	if GlobalConfig.Audit {
		repo, err := storage.NewSQLiteAuditRepository(GetAuditDBPath())
		if err != nil {
			GlobalConfig.Logger.Warn("audit log disabled", "error", err)
		} else {
			s.recorder = audit.NewRecorder(repo, p.Name, GlobalConfig.Logger)
		}
	}

	GlobalConfig.Logger.Debug("session opened",
		"policy", p.Name,
		"platform", engine.Validator().Platform(),
		"base_dir", engine.Validator().BaseDir(),
		"audit", s.recorder.Enabled())
	return s, nil
}

func (s *session) Close() {
	if err := s.recorder.Close(); err != nil {
		GlobalConfig.Logger.Warn("failed to close audit log", "error", err)
	}
}

// resolvePolicy finds a policy by reference. A reference containing a path
// separator or ending in .yaml/.yml is a file; anything else is the name of a
// stored policy. The name "default" falls back to the built-in policy when no
// stored policy overrides it.
func resolvePolicy(ref string) (*policy.Policy, error) {
	if ref == "" {
		ref = "default"
	}

	if isPolicyFile(ref) {
		path, err := homedir.Expand(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to expand policy path: %w", err)
		}
		return policy.Load(path)
	}

	repo, err := storage.NewFilesystemPolicyRepository(GetConfigDir())
	if err != nil {
		return nil, err
	}
	p, err := repo.Load(ref)
	if errors.Is(err, storage.ErrPolicyNotFound) && ref == "default" {
		return policy.Default(), nil
	}
	return p, err
}

func isPolicyFile(ref string) bool {
	return strings.ContainsAny(ref, `/\`) ||
		strings.HasSuffix(ref, ".yaml") ||
		strings.HasSuffix(ref, ".yml")
}

// openAuditSession opens the audit log for the audit commands. Unlike
// openSession, a failure to open it is an error.
func openAuditSession() (*session, error) {
	repo, err := storage.NewSQLiteAuditRepository(GetAuditDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &session{recorder: audit.NewRecorder(repo, "", GlobalConfig.Logger)}, nil
}
