package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// IndexFile is the suite index file name inside the output directory.
const IndexFile = "report.json"

// BuilderConfig contains configuration for building the report skeleton.
type BuilderConfig struct {
	OutputDir string     // Base output directory for reports
	Runner    RunnerInfo // Runner and browser information
}

// BuildSkeleton creates the initial report structure for the given test
// sources. Every test starts "pending".
func BuildSkeleton(tests []string, cfg BuilderConfig) (*Index, []TestDetail, error) {
	if len(tests) == 0 {
		return nil, nil, fmt.Errorf("no tests to report")
	}
	now := time.Now()

	index := &Index{
		Version:     Version,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Runner:      cfg.Runner,
		Summary: Summary{
			Total:   len(tests),
			Pending: len(tests),
		},
		Tests: make([]TestEntry, len(tests)),
	}

	details := make([]TestDetail, len(tests))
	for i, path := range tests {
		id := fmt.Sprintf("test-%03d", i)
		name := testName(path)

		index.Tests[i] = TestEntry{
			Index:      i,
			ID:         id,
			Name:       name,
			SourceFile: path,
			DataFile:   filepath.Join("tests", id+".json"),
			Status:     StatusPending,
		}
		details[i] = TestDetail{
			ID:         id,
			Name:       name,
			SourceFile: path,
			Status:     StatusPending,
			Steps:      []StepReport{},
		}
	}

	return index, details, nil
}

// testName is the file name without its extension.
func testName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// WriteSkeleton writes the initial skeleton to disk: report.json plus one
// pending detail file per test.
func WriteSkeleton(outputDir string, index *Index, details []TestDetail) error {
	if err := ensureDir(filepath.Join(outputDir, "tests")); err != nil {
		return fmt.Errorf("create tests dir: %w", err)
	}

	for _, d := range details {
		path := filepath.Join(outputDir, "tests", d.ID+".json")
		if err := atomicWriteJSON(path, d); err != nil {
			return fmt.Errorf("write test %s: %w", d.ID, err)
		}
	}

	if err := atomicWriteJSON(filepath.Join(outputDir, IndexFile), index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// ReadIndex loads report.json from outputDir.
func ReadIndex(outputDir string) (*Index, error) {
	var index Index
	if err := readJSON(filepath.Join(outputDir, IndexFile), &index); err != nil {
		return nil, err
	}
	return &index, nil
}

// ReadTestDetail loads the detail file an index entry points to.
func ReadTestDetail(outputDir string, entry TestEntry) (*TestDetail, error) {
	var d TestDetail
	if err := readJSON(filepath.Join(outputDir, entry.DataFile), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// atomicWriteJSON writes v to a temp file in the target directory and
// renames it into place, so pollers never read a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
