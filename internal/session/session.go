// Package session serializes engine state to a workspace-local file and
// rehydrates it on resume. The file is self-describing JSON with a version
// tag; unknown versions load read-only.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"codeforge/internal/logging"
	"codeforge/internal/types"
)

// Version is the current state-file format tag.
const Version = "codeforge/1"

// FileName is the state file, relative to the workspace root.
const FileName = ".codeforge_session.json"

// State is the on-disk session shape.
type State struct {
	Version   string    `json:"version"`
	SessionID string    `json:"session_id"`
	Workspace string    `json:"workspace"`
	Request   string    `json:"request"`
	SavedAt   time.Time `json:"saved_at"`

	Complexity types.Complexity `json:"complexity,omitempty"`
	Size       types.Size       `json:"size,omitempty"`

	ArchitectureSummary string            `json:"architecture_summary,omitempty"`
	TechStack           []string          `json:"tech_stack,omitempty"`
	FileIndex           map[string]string `json:"file_index,omitempty"`
	Spec                types.SpecSlots   `json:"spec,omitempty"`

	Tasks      []types.TaskNode               `json:"tasks,omitempty"`
	Histories  map[types.Role][]types.Message `json:"histories,omitempty"`
	Failures   []types.FailureRecord          `json:"failures,omitempty"`
	Embeddings []types.FileEmbedding          `json:"embeddings,omitempty"`
	Hashes     map[string]string              `json:"hashes,omitempty"`

	// ReadOnly marks a state loaded from an unknown version; it must not be
	// saved back.
	ReadOnly bool `json:"-"`
}

// NewState creates an empty state for a fresh session.
func NewState(workspace, request string) *State {
	return &State{
		Version:   Version,
		SessionID: uuid.NewString(),
		Workspace: workspace,
		Request:   request,
	}
}

// Store reads and writes session state for one workspace.
type Store struct {
	path string
}

// NewStore creates a store for the workspace's state file.
func NewStore(workspace string) *Store {
	return &Store{path: filepath.Join(workspace, FileName)}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Save writes the state atomically: temp sibling, then rename.
func (s *Store) Save(st *State) error {
	if st.ReadOnly {
		return fmt.Errorf("refusing to overwrite state from unknown version %q", st.Version)
	}
	st.Version = Version
	st.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	logging.Session("saved %d tasks to %s", len(st.Tasks), s.path)
	return nil
}

// Load reads the state file. Tasks that were IN_PROGRESS at save time are
// downgraded to PENDING: generation is not transactional. Missing file
// returns (nil, nil).
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	if st.Version != Version {
		logging.Session("unknown state version %q, loading read-only", st.Version)
		st.ReadOnly = true
	}

	for i := range st.Tasks {
		if st.Tasks[i].Status == types.TaskInProgress {
			st.Tasks[i].Status = types.TaskPending
		}
	}

	logging.Session("restored %d tasks from %s", len(st.Tasks), s.path)
	return &st, nil
}

// Plan reconstructs the task DAG from a loaded state.
func (st *State) Plan() *types.Plan {
	plan := &types.Plan{
		ArchitectureSummary: st.ArchitectureSummary,
		TechStack:           st.TechStack,
		FileIndex:           st.FileIndex,
		Spec:                st.Spec,
	}
	for i := range st.Tasks {
		t := st.Tasks[i]
		plan.Tasks = append(plan.Tasks, &t)
	}
	return plan
}

// SetPlan captures a plan's DAG into the state.
func (st *State) SetPlan(plan *types.Plan) {
	st.ArchitectureSummary = plan.ArchitectureSummary
	st.TechStack = plan.TechStack
	st.FileIndex = plan.FileIndex
	st.Spec = plan.Spec
	st.Tasks = st.Tasks[:0]
	for _, t := range plan.Tasks {
		st.Tasks = append(st.Tasks, *t)
	}
}
