package state

import (
	"encoding/json" // For JSON encoding and decoding of the journal file
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"arch-setup/internal/logger"
	"arch-setup/internal/steps"
)

// JournalPath is where the journal is written, relative to the target root.
const JournalPath = "var/log/arch-setup/journal.json"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StepRecord is the saved outcome of one post-install step.
type StepRecord struct {
	Name     string        `json:"name"`
	Status   steps.Status  `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Journal records one installation run: which steps ran, how long they took
// and how the run ended.
type Journal struct {
	RunID      string       `json:"run_id"`
	Hostname   string       `json:"hostname,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitempty"`
	Status     string       `json:"status"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepRecord `json:"steps"`
}

// NewJournal starts a journal for a fresh run.
func NewJournal(hostname string) *Journal {
	return &Journal{
		RunID:     uuid.New().String(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
		Steps:     []StepRecord{},
	}
}

// Record appends step outcomes to the journal.
func (j *Journal) Record(outcomes []steps.Outcome) {
	for _, o := range outcomes {
		rec := StepRecord{Name: o.Name, Status: o.Status, Duration: o.Duration}
		if o.Err != nil {
			rec.Error = o.Err.Error()
		}
		j.Steps = append(j.Steps, rec)
	}
}

// Finish closes the journal with the final run error (nil on success).
func (j *Journal) Finish(err error) {
	j.FinishedAt = time.Now().UTC()
	if err != nil {
		j.Status = StatusFailed
		j.Error = err.Error()
		return
	}
	j.Status = StatusCompleted
}

// LoadJournal loads a journal from a JSON file. A missing or unreadable file
// yields an empty journal (no RunID) rather than an error.
func LoadJournal(path string) *Journal {
	file, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("[DEBUG] No journal at %s: %v\n", path, err)
		return &Journal{Steps: []StepRecord{}}
	}

	var j Journal
	if err := json.Unmarshal(file, &j); err != nil {
		logger.Warn("[WARN] Ignoring unreadable journal %s: %v\n", path, err)
		return &Journal{Steps: []StepRecord{}}
	}
	if j.Steps == nil {
		j.Steps = []StepRecord{}
	}
	return &j
}

// SaveJournal writes the journal as indented JSON, creating parent directories.
func SaveJournal(path string, j *Journal) error {
	file, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	logger.Debug("[DEBUG] Writing journal to %s:\n%s\n", path, string(file))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, file, 0644); err != nil {
		return fmt.Errorf("failed to write journal %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write journal %s: %w", path, err)
	}
	return nil
}
