// Package stepindex persists per-step execution records so a crashed or
// interrupted workflow run can resume mid-step. Each record is stored as
// its own JSON file under the workspace's control directory and updated
// via a write-to-temp-then-rename so readers never observe a partial write.
package stepindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Record is the persisted state of a single step.
type Record struct {
	StepIndex       int        `json:"stepIndex"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	SessionID       string     `json:"sessionId,omitempty"`
	MonitoringID    int        `json:"monitoringId,omitempty"`
	CompletedChains []int      `json:"completedChains"`
}

// IsResumable reports whether r has an active session but never finished.
func IsResumable(r *Record) bool {
	return r != nil && r.SessionID != "" && r.CompletedAt == nil
}

// Index is the durable, per-step record store rooted at dir.
type Index struct {
	dir string

	mu      sync.Mutex
	records map[int]*Record
}

// Open loads (or initializes) the step index rooted at dir. dir is created
// if it does not exist.
func Open(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("stepindex: create dir %s: %w", dir, err)
	}

	idx := &Index{dir: dir, records: make(map[int]*Record)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("stepindex: read dir %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("stepindex: read record %s: %w", e.Name(), err)
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("stepindex: parse record %s: %w", e.Name(), err)
		}
		idx.records[r.StepIndex] = &r
	}

	return idx, nil
}

func (idx *Index) recordPath(stepIndex int) string {
	return filepath.Join(idx.dir, fmt.Sprintf("step-%04d.json", stepIndex))
}

// writeLocked atomically persists a record. Caller must hold idx.mu.
func (idx *Index) writeLocked(r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("stepindex: marshal record %d: %w", r.StepIndex, err)
	}

	path := idx.recordPath(r.StepIndex)
	tmp, err := os.CreateTemp(idx.dir, fmt.Sprintf(".step-%04d-*.tmp", r.StepIndex))
	if err != nil {
		return fmt.Errorf("stepindex: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("stepindex: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("stepindex: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("stepindex: rename into place: %w", err)
	}

	idx.records[r.StepIndex] = r
	return nil
}

// GetStepData returns a copy of the record for stepIndex, or nil if absent.
func (idx *Index) GetStepData(stepIndex int) *Record {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r, ok := idx.records[stepIndex]
	if !ok {
		return nil
	}
	cp := *r
	cp.CompletedChains = append([]int(nil), r.CompletedChains...)
	return &cp
}

func (idx *Index) getOrCreateLocked(stepIndex int) *Record {
	r, ok := idx.records[stepIndex]
	if !ok {
		r = &Record{StepIndex: stepIndex}
		idx.records[stepIndex] = r
	}
	return r
}

// MarkStepStarted sets StartedAt to now. Idempotent: an existing
// StartedAt is retained.
func (idx *Index) MarkStepStarted(stepIndex int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r := idx.getOrCreateLocked(stepIndex)
	if r.StartedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	r.StartedAt = &now
	return idx.writeLocked(r)
}

// InitStepSession sets sessionId/monitoringId on a step the caller
// guarantees has already been started.
func (idx *Index) InitStepSession(stepIndex int, sessionID string, monitoringID int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r := idx.getOrCreateLocked(stepIndex)
	r.SessionID = sessionID
	r.MonitoringID = monitoringID
	return idx.writeLocked(r)
}

// UpdateStepSession overwrites sessionId/monitoringId, e.g. because the
// session migrated across a retry.
func (idx *Index) UpdateStepSession(stepIndex int, sessionID string, monitoringID int) error {
	return idx.InitStepSession(stepIndex, sessionID, monitoringID)
}

// MarkChainCompleted appends chainIndex to CompletedChains if absent,
// keeping the slice sorted and free of duplicates.
func (idx *Index) MarkChainCompleted(stepIndex, chainIndex int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r := idx.getOrCreateLocked(stepIndex)
	for _, c := range r.CompletedChains {
		if c == chainIndex {
			return nil
		}
	}
	r.CompletedChains = append(r.CompletedChains, chainIndex)
	sort.Ints(r.CompletedChains)
	return idx.writeLocked(r)
}

// MarkStepCompleted sets CompletedAt. No-op if already set.
func (idx *Index) MarkStepCompleted(stepIndex int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r := idx.getOrCreateLocked(stepIndex)
	if r.CompletedAt != nil {
		return nil
	}
	if r.StartedAt == nil {
		now := time.Now().UTC()
		r.StartedAt = &now
	}
	now := time.Now().UTC()
	r.CompletedAt = &now
	return idx.writeLocked(r)
}

// GetResumeStartIndex returns the lowest step index whose record lacks
// CompletedAt, or totalSteps if every known step up to it is complete.
func (idx *Index) GetResumeStartIndex(totalSteps int) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i := 0; i < totalSteps; i++ {
		r, ok := idx.records[i]
		if !ok || r.CompletedAt == nil {
			return i
		}
	}
	return totalSteps
}

// ChainResumeInfo is the result of GetChainResumeInfo: which step to
// resume, its monitoring id, and the next chain index to feed.
type ChainResumeInfo struct {
	StepIndex       int
	MonitoringID    int
	NextChainIndex  int
	Found           bool
}

// GetChainResumeInfo scans all records for the earliest started-but-not-
// completed step with an active session, and reports the smallest chain
// index not yet in CompletedChains.
func (idx *Index) GetChainResumeInfo() ChainResumeInfo {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var candidates []int
	for i, r := range idx.records {
		if r.StartedAt != nil && r.CompletedAt == nil && r.SessionID != "" {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return ChainResumeInfo{}
	}
	sort.Ints(candidates)
	best := candidates[0]
	r := idx.records[best]

	completed := make(map[int]bool, len(r.CompletedChains))
	for _, c := range r.CompletedChains {
		completed[c] = true
	}
	next := 0
	for completed[next] {
		next++
	}

	return ChainResumeInfo{
		StepIndex:      best,
		MonitoringID:   r.MonitoringID,
		NextChainIndex: next,
		Found:          true,
	}
}

// RemoveFromNotCompleted is a deliberate no-op: the not-completed list is
// derived from records on demand (CompletedAndNotCompleted), so there is
// nothing to separately retract once a step's CompletedAt is set.
func (idx *Index) RemoveFromNotCompleted(stepIndex int) {}

// CompletedAndNotCompleted returns the derived fast-lookup lists used by
// the run index: which step indices (of the given totalSteps) are
// complete, and which are not.
func (idx *Index) CompletedAndNotCompleted(totalSteps int) (completed, notCompleted []int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i := 0; i < totalSteps; i++ {
		r, ok := idx.records[i]
		if ok && r.CompletedAt != nil {
			completed = append(completed, i)
		} else {
			notCompleted = append(notCompleted, i)
		}
	}
	return completed, notCompleted
}
