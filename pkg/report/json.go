package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFile is the name of the serialized report tree.
const JSONFile = "report.json"

// WriteJSON writes run to <dir>/report.json. Image bytes are not included.
func WriteJSON(dir string, run *Run) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	return atomicWriteJSON(filepath.Join(dir, JSONFile), run)
}

// ReadJSON reads <dir>/report.json and restores the tree's back-references.
func ReadJSON(dir string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(dir, JSONFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", JSONFile, err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse %s: %w", JSONFile, err)
	}
	if run.Suites == nil {
		run.Suites = []*Suite{}
	}
	run.relink()
	return &run, nil
}

// atomicWriteJSON writes v to a temp file and renames it over path so readers
// never observe a partial document.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
