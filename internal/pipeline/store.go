// Package pipeline persists generation runs on disk, one directory per run,
// with a run.json state file and per-attempt artifact files alongside it.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/lucasnoah/ordpilot/internal/stage"
)

// Store manages run state on disk.
type Store struct {
	baseDir string // defaults to ~/.ordpilot/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.ordpilot/runs, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".ordpilot", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Run IDs become directory names and arrive over HTTP, so anything that
// could escape the base directory is rejected outright.
var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func checkID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("invalid run id %q", id)
	}
	return nil
}

// runDir returns the directory path for a given run.
func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

// runPath returns the path to the run.json file for a run.
func (s *Store) runPath(id string) string {
	return filepath.Join(s.runDir(id), "run.json")
}

// attemptDir returns the artifact directory for a generation attempt.
func (s *Store) attemptDir(id string, n int) string {
	return filepath.Join(s.runDir(id), "attempts", fmt.Sprintf("attempt-%d", n))
}

// Create initialises a new run on disk.
func (s *Store) Create(id, query string) (*RunState, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	dir := s.runDir(id)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("run %s already exists", id)
	}

	if err := os.MkdirAll(filepath.Join(dir, "attempts"), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir attempts: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	st := &RunState{
		ID:        id,
		Query:     query,
		Status:    StatusPending,
		Attempts:  []Attempt{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := writeJSON(s.runPath(id), st); err != nil {
		return nil, fmt.Errorf("write run.json: %w", err)
	}
	return st, nil
}

// Get reads the state of a run.
func (s *Store) Get(id string) (*RunState, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var st RunState
	if err := readJSON(s.runPath(id), &st); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, err
	}
	return &st, nil
}

// Update performs an atomic read-modify-write of the run state.
func (s *Store) Update(id string, fn func(*RunState)) (*RunState, error) {
	st, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	fn(st)
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := writeJSON(s.runPath(id), st); err != nil {
		return nil, err
	}
	return st, nil
}

// List returns all runs, newest first, optionally filtered by status.
// Pass "" for statusFilter to return all runs.
func (s *Store) List(statusFilter string) ([]RunState, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []RunState
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		st, err := s.Get(entry.Name())
		if err != nil {
			continue // skip broken or foreign entries
		}
		if statusFilter == "" || st.Status == statusFilter {
			runs = append(runs, *st)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt != runs[j].CreatedAt {
			return runs[i].CreatedAt > runs[j].CreatedAt
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

// Delete removes all data for a run.
func (s *Store) Delete(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	dir := s.runDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s not found", id)
	}
	return os.RemoveAll(dir)
}

// SavePrompt writes the rendered prompt markdown for an attempt.
func (s *Store) SavePrompt(id string, n int, prompt string) error {
	return writeAtomic(filepath.Join(s.attemptDir(id, n), "prompt.md"), []byte(prompt))
}

// SaveAttemptSource writes the candidate source produced by an attempt.
func (s *Store) SaveAttemptSource(id string, n int, source string) error {
	return writeAtomic(filepath.Join(s.attemptDir(id, n), "candidate.ord"), []byte(source))
}

// GetAttemptSource reads the candidate source of an attempt.
func (s *Store) GetAttemptSource(id string, n int) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(s.attemptDir(id, n), "candidate.ord"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveFixSource writes the edited source after a layout-fix round.
func (s *Store) SaveFixSource(id string, n, round int, source string) error {
	name := fmt.Sprintf("fix-%d.ord", round)
	return writeAtomic(filepath.Join(s.attemptDir(id, n), name), []byte(source))
}

// SaveReport writes the validation report JSON for an attempt.
func (s *Store) SaveReport(id string, n int, rep *stage.Report) error {
	return writeJSON(filepath.Join(s.attemptDir(id, n), "report.json"), rep)
}

// GetReport reads the validation report JSON for an attempt.
func (s *Store) GetReport(id string, n int) (*stage.Report, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var rep stage.Report
	if err := readJSON(filepath.Join(s.attemptDir(id, n), "report.json"), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// SaveSVG writes the rendered schematic for an attempt.
func (s *Store) SaveSVG(id string, n int, svg string) error {
	return writeAtomic(s.svgPath(id, n), []byte(svg))
}

// SVGPath returns the on-disk path of an attempt's rendered schematic.
// It fails if no schematic has been saved for that attempt.
func (s *Store) SVGPath(id string, n int) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	p := s.svgPath(id, n)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("no schematic for attempt %d: %w", n, err)
	}
	return p, nil
}

func (s *Store) svgPath(id string, n int) string {
	return filepath.Join(s.attemptDir(id, n), "out.svg")
}

// writeAtomic writes data to a file atomically by writing to a temp file
// in the same directory, then renaming. Parent directories are created as
// needed.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up temp file on any error path.
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = "" // prevent deferred removal
	return nil
}

// writeJSON writes v as pretty-printed JSON to path atomically.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(path, data)
}

// readJSON reads a JSON file at path into v. Missing files surface the raw
// os error so callers can branch on os.IsNotExist.
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
