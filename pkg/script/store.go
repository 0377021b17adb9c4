package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

// FileSuffix is appended to a test's base name to find its script.
const FileSuffix = ".workflow.json"

// ParseError represents a malformed script document.
type ParseError struct {
	Path    string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// PathFor returns the script path stored next to a test source:
// tests/login.txt -> tests/login.workflow.json.
func PathFor(testPath string) string {
	if strings.HasSuffix(testPath, FileSuffix) {
		return testPath
	}
	ext := filepath.Ext(testPath)
	return strings.TrimSuffix(testPath, ext) + FileSuffix
}

// BumpVersion increments the patch component of a three-part version,
// keeping a leading "v". Shorter or unparsable versions get ".1" appended,
// so "1" becomes "1.1" and "1.0" becomes "1.0.1".
func BumpVersion(v string) string {
	if v == "" {
		return InitialVersion
	}
	if strings.Count(strings.TrimPrefix(v, "v"), ".") < 2 {
		return v + ".1"
	}
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return v + ".1"
	}
	next := parsed.IncPatch()
	if strings.HasPrefix(v, "v") {
		return "v" + next.String()
	}
	return next.String()
}

// Exists reports whether a script file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads a script document.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- script path derived from user test path
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &ParseError{Path: path, Message: err.Error()}
	}
	return &s, nil
}

// Save writes the whole document to path through a temp file and rename,
// so readers never observe a partial write.
func Save(path string, s *Script) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode script: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// FileStore persists scripts on the local filesystem.
type FileStore struct {
	// Now stamps metadata. Nil = time.Now.
	Now func() time.Time
}

func (fs *FileStore) now() string {
	now := time.Now
	if fs != nil && fs.Now != nil {
		now = fs.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Load reads the script at path.
func (fs *FileStore) Load(path string) (*Script, error) {
	return Load(path)
}

// Create writes a freshly captured script, stamping creation metadata.
func (fs *FileStore) Create(path string, s *Script) error {
	ts := fs.now()
	if s.Version == "" {
		s.Version = InitialVersion
	}
	s.Metadata.CreatedAt = ts
	s.Metadata.LastUpdated = ts
	if err := Save(path, s); err != nil {
		return core.ErrScriptPersistence.WithCause(err).WithDetails(map[string]interface{}{"path": path})
	}
	return nil
}

// UpdateStep replaces step idx of the script at path: read the whole
// document, mutate in memory, write the whole document.
func (fs *FileStore) UpdateStep(path string, idx int, step Step) (*Script, error) {
	fail := func(err error) error {
		return core.ErrScriptPersistence.WithCause(err).WithDetails(map[string]interface{}{"path": path, "step": idx})
	}

	s, err := Load(path)
	if err != nil {
		return nil, fail(err)
	}
	if idx < 0 || idx >= len(s.Steps) {
		return nil, fail(fmt.Errorf("step index %d out of range (%d steps)", idx, len(s.Steps)))
	}
	if err := CheckLocators(step); err != nil {
		return nil, fail(err)
	}

	s.Steps[idx] = step
	s.Version = BumpVersion(s.Version)
	s.Metadata.LastUpdated = fs.now()
	s.Metadata.MarkUpdated(idx)

	if err := Save(path, s); err != nil {
		return nil, fail(err)
	}
	return s, nil
}

// IsNotExist reports whether err means the script file is absent.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
