package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"chronosync/internal/config"
	appLog "chronosync/internal/log"
	"chronosync/internal/model"
)

// SlotCount is the fixed number of dashboard positions.
const SlotCount = 8

// StateVersion is the layout version of the persisted state file.
const StateVersion = 1

var (
	ErrSlotIndex     = fmt.Errorf("slot index must be between 0 and %d", SlotCount-1)
	ErrDashboardFull = fmt.Errorf("you can only have %d calendars on your dashboard", SlotCount)
	ErrStateVersion  = errors.New("unsupported state file version")
)

// Slot is one dashboard position. Source is nil when the slot is empty.
type Slot struct {
	Index  int                `json:"index"`
	Source *model.EventSource `json:"source,omitempty"`
}

type state struct {
	Version  int                           `json:"version"`
	Slots    [SlotCount]*model.EventSource `json:"slots"`
	DarkMode bool                          `json:"dark_mode"`
}

// Slots holds the dashboard assignments and local preferences. Every
// mutation rewrites the whole state file; when that fails the in-memory
// state is left as it was before the call.
type Slots struct {
	mu    sync.RWMutex
	path  string
	state state
}

// OpenSlots loads the state file at path. A missing file yields an empty
// dashboard. An empty path keeps state in memory only.
func OpenSlots(path string) (*Slots, error) {
	s := &Slots{path: path, state: state{Version: StateVersion}}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("state file %s: %w", path, err)
	}
	if st.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrStateVersion, st.Version)
	}
	for i, src := range st.Slots {
		if src != nil && src.Validate() != nil {
			appLog.Warn("dropping invalid dashboard slot", "index", i, "source", src.Key())
			st.Slots[i] = nil
		}
	}
	s.state = st
	return s, nil
}

func (s *Slots) Assign(index int, src model.EventSource) error {
	if err := checkIndex(index); err != nil {
		return err
	}
	if err := src.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutate(func(st *state) { st.Slots[index] = &src })
}

func (s *Slots) Clear(index int) error {
	if err := checkIndex(index); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Slots[index] == nil {
		return nil
	}
	return s.mutate(func(st *state) { st.Slots[index] = nil })
}

// AssignFirstFree puts src into the lowest empty slot and returns its index.
func (s *Slots) AssignFirstFree(src model.EventSource) (int, error) {
	if err := src.Validate(); err != nil {
		return -1, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.state.Slots {
		if cur == nil {
			return i, s.mutate(func(st *state) { st.Slots[i] = &src })
		}
	}
	return -1, ErrDashboardFull
}

func (s *Slots) Slot(index int) (Slot, error) {
	if err := checkIndex(index); err != nil {
		return Slot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slotAt(&s.state, index), nil
}

// All returns the eight slots in index order, empty ones included.
func (s *Slots) All() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Slot, SlotCount)
	for i := range out {
		out[i] = slotAt(&s.state, i)
	}
	return out
}

// Assigned returns the occupied slots in index order.
func (s *Slots) Assigned() []Slot {
	all := s.All()
	out := all[:0]
	for _, sl := range all {
		if sl.Source != nil {
			out = append(out, sl)
		}
	}
	return out
}

func (s *Slots) DarkMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.DarkMode
}

func (s *Slots) SetDarkMode(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutate(func(st *state) { st.DarkMode = on })
}

// mutate applies fn to a copy, persists the copy and only then swaps it in.
// Callers hold s.mu.
func (s *Slots) mutate(fn func(*state)) error {
	next := s.state
	fn(&next)
	if err := s.save(&next); err != nil {
		return fmt.Errorf("save dashboard state: %w", err)
	}
	s.state = next
	return nil
}

func (s *Slots) save(st *state) error {
	if s.path == "" {
		return nil
	}
	st.Version = StateVersion
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(s.path, data, ".chronosync-state-*.tmp")
}

func slotAt(st *state, i int) Slot {
	sl := Slot{Index: i}
	if src := st.Slots[i]; src != nil {
		cp := *src
		sl.Source = &cp
	}
	return sl
}

func checkIndex(i int) error {
	if i < 0 || i >= SlotCount {
		return ErrSlotIndex
	}
	return nil
}
