// Package journal keeps an append-only JSONL record of mutating
// operations. A begin entry is written before the server touches disk
// or metadata, and a commit or fail entry after, so a crash mid-handler
// leaves a detectable unfinished operation instead of a silent
// inconsistency. The log is never rewritten, only appended.
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"drivesync/pkg/log"
)

const journalPerm = 0644

// Entry phases.
const (
	PhaseBegin  = "begin"
	PhaseCommit = "commit"
	PhaseFail   = "fail"
)

// Entry is a single journal line.
type Entry struct {
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Phase     string   `json:"phase"`
	Action    string   `json:"action"`
	Targets   []string `json:"targets,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Journal appends operation entries to a JSONL file.
type Journal struct {
	path string
	mu   sync.Mutex
}

// New creates a journal backed by the given file path.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Begin records the intent to perform an operation and returns the
// entry id the matching Commit or Fail must carry. Journal write
// failures are logged, never propagated: the journal exists to detect
// inconsistencies, not to create new failure modes.
func (j *Journal) Begin(action string, targets ...string) string {
	id := uuid.NewString()
	j.append(Entry{
		ID:        id,
		Timestamp: time.Now().Format(time.RFC3339),
		Phase:     PhaseBegin,
		Action:    action,
		Targets:   targets,
	})
	return id
}

// Commit records that the operation identified by id completed.
func (j *Journal) Commit(id, action string) {
	j.append(Entry{
		ID:        id,
		Timestamp: time.Now().Format(time.RFC3339),
		Phase:     PhaseCommit,
		Action:    action,
	})
}

// Fail records that the operation identified by id failed.
func (j *Journal) Fail(id, action string, opErr error) {
	entry := Entry{
		ID:        id,
		Timestamp: time.Now().Format(time.RFC3339),
		Phase:     PhaseFail,
		Action:    action,
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	j.append(entry)
}

// Unfinished scans the journal and returns begin entries that never
// received a commit or fail entry. These are the operations a crash
// may have left half-applied.
func (j *Journal) Unfinished() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	begins := make(map[string]Entry)
	var order []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn trailing line from a crash mid-append is expected;
			// skip it rather than failing the whole scan.
			log.Warn().Err(err).Str("path", j.path).Msg("Skipping unparseable journal line")
			continue
		}

		switch entry.Phase {
		case PhaseBegin:
			begins[entry.ID] = entry
			order = append(order, entry.ID)
		case PhaseCommit, PhaseFail:
			delete(begins, entry.ID)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var unfinished []Entry
	for _, id := range order {
		if entry, ok := begins[id]; ok {
			unfinished = append(unfinished, entry)
		}
	}

	return unfinished, nil
}

// append writes one entry as a JSON line, creating the file if needed.
func (j *Journal) append(entry Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, journalPerm)
	if err != nil {
		log.Error().Err(err).Str("path", j.path).Msg("Failed to open journal")
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal journal entry")
		return
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Error().Err(err).Str("path", j.path).Msg("Failed to write journal entry")
	}
}
