// Package validator checks script documents without a browser.
// It reports every problem it finds rather than stopping at the first.
package validator

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver"

	"github.com/devicelab-dev/hybrid-runner/pkg/script"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Step    int // -1 for document-level problems
	Message string
}

func (e *ValidationError) Error() string {
	if e.Step >= 0 {
		return fmt.Sprintf("%s: step %d: %s", e.File, e.Step, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of script paths that were checked.
	Files []string
	// Errors make a script unusable for replay.
	Errors []error
	// Warnings are replayable but suspicious.
	Warnings []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates script documents.
type Validator struct {
	// Strict turns warnings into errors.
	Strict bool
}

// New creates a new Validator.
func New(strict bool) *Validator {
	return &Validator{Strict: strict}
}

// Validate validates a script file, a test source (its script is checked)
// or a directory of scripts.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, docError(path, fmt.Sprintf("cannot access: %v", err)))
		return result
	}

	var files []string
	if info.IsDir() {
		files, err = collectScripts(path)
		if err != nil {
			result.Errors = append(result.Errors, docError(path, fmt.Sprintf("failed to scan directory: %v", err)))
			return result
		}
	} else {
		files = []string{script.PathFor(path)}
	}

	for _, file := range files {
		v.validateFile(file, result)
	}
	if v.Strict {
		result.Errors = append(result.Errors, result.Warnings...)
		result.Warnings = nil
	}
	return result
}

// collectScripts finds all script documents under dir.
func collectScripts(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, script.FileSuffix) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// document is the loose form of a script, decoded step by step so one
// bad step does not hide the others.
type document struct {
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Steps       []json.RawMessage   `json:"steps"`
	InputSchema []script.InputField `json:"input_schema"`
}

func (v *Validator) validateFile(file string, result *Result) {
	result.Files = append(result.Files, file)

	data, err := os.ReadFile(file) //#nosec G304 -- user-supplied script path
	if err != nil {
		result.Errors = append(result.Errors, docError(file, fmt.Sprintf("cannot read: %v", err)))
		return
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		result.Errors = append(result.Errors, docError(file, fmt.Sprintf("parse error: %v", err)))
		return
	}

	switch {
	case doc.Version == "":
		result.Errors = append(result.Errors, docError(file, "missing version"))
	default:
		if _, err := semver.NewVersion(doc.Version); err != nil {
			result.Warnings = append(result.Warnings, docError(file, fmt.Sprintf("version %q is not semver; updates will append .1", doc.Version)))
		}
	}
	if len(doc.Steps) == 0 {
		result.Warnings = append(result.Warnings, docError(file, "no steps; the next run will use the agent"))
	}

	declared := make(map[string]bool)
	for i, f := range doc.InputSchema {
		switch {
		case f.Name == "":
			result.Errors = append(result.Errors, docError(file, fmt.Sprintf("input_schema[%d] has no name", i)))
		case declared[f.Name]:
			result.Errors = append(result.Errors, docError(file, fmt.Sprintf("input %q declared twice", f.Name)))
		}
		declared[f.Name] = true
	}

	for i, raw := range doc.Steps {
		step, err := script.DecodeStep(raw)
		if err != nil {
			result.Errors = append(result.Errors, stepError(file, i, err.Error()))
			continue
		}
		if err := script.CheckLocators(step); err != nil {
			result.Errors = append(result.Errors, stepError(file, i, fmt.Sprintf("%s step has no locator", step.Type())))
		}
		if l, ok := step.(script.Locatable); ok && l.Bundle() != nil && l.Bundle().IsProvisional() {
			result.Warnings = append(result.Warnings, stepError(file, i, "locator is index-based and may not survive page changes"))
		}
		if nav, ok := step.(*script.NavigationStep); ok {
			if msg := checkURL(nav.URL); msg != "" {
				result.Errors = append(result.Errors, stepError(file, i, msg))
			}
		}
		for _, name := range placeholders(step) {
			if !declared[name] {
				result.Warnings = append(result.Warnings, stepError(file, i, fmt.Sprintf("${%s} is not declared in input_schema", name)))
			}
		}
	}
}

func checkURL(raw string) string {
	if raw == "" {
		return "navigation step has no url"
	}
	if strings.Contains(raw, "${") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Sprintf("navigation url %q is not an absolute http(s) url", raw)
	}
	return ""
}

// placeholders returns the plain ${name} references in a step's values.
// Expressions other than a bare identifier are skipped.
func placeholders(step script.Step) []string {
	var text string
	switch s := step.(type) {
	case *script.NavigationStep:
		text = s.URL
	case *script.InputStep:
		text = s.Value
	case *script.SelectOptionStep:
		text = s.SelectedText
	}
	return placeholdersIn(text)
}

func placeholdersIn(text string) []string {
	var names []string
	for {
		start := strings.Index(text, "${")
		if start < 0 {
			return names
		}
		end := strings.Index(text[start:], "}")
		if end < 0 {
			return names
		}
		name := strings.TrimSpace(text[start+2 : start+end])
		if isIdent(name) {
			names = append(names, name)
		}
		text = text[start+end+1:]
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func docError(file, msg string) error {
	return &ValidationError{File: file, Step: -1, Message: msg}
}

func stepError(file string, step int, msg string) error {
	return &ValidationError{File: file, Step: step, Message: msg}
}
