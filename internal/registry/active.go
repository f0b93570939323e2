package registry

import (
	"sync"

	"chronosync/internal/model"
)

// ActiveSet is the set of sources shown by the month view. It is replaced
// wholesale; every replacement bumps Token so in-flight work for an older
// set can be recognized.
type ActiveSet struct {
	mu      sync.RWMutex
	sources []model.EventSource
	token   uint64
}

// SetActiveSources replaces the set. Duplicates (by Key) are dropped,
// keeping the first occurrence and the given order.
func (a *ActiveSet) SetActiveSources(sources []model.EventSource) (uint64, error) {
	seen := make(map[string]bool, len(sources))
	next := make([]model.EventSource, 0, len(sources))
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return 0, err
		}
		if seen[src.Key()] {
			continue
		}
		seen[src.Key()] = true
		next = append(next, src)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources = next
	a.token++
	return a.token, nil
}

func (a *ActiveSet) PickSingle(src model.EventSource) (uint64, error) {
	return a.SetActiveSources([]model.EventSource{src})
}

// PickFromDashboard activates the sources of the given dashboard slots.
// Empty slots are skipped.
func (a *ActiveSet) PickFromDashboard(slots []Slot, indexes []int) (uint64, error) {
	byIndex := make(map[int]Slot, len(slots))
	for _, sl := range slots {
		byIndex[sl.Index] = sl
	}
	picked := make([]model.EventSource, 0, len(indexes))
	for _, i := range indexes {
		if err := checkIndex(i); err != nil {
			return 0, err
		}
		if sl, ok := byIndex[i]; ok && sl.Source != nil {
			picked = append(picked, *sl.Source)
		}
	}
	return a.SetActiveSources(picked)
}

func (a *ActiveSet) Sources() []model.EventSource {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.EventSource, len(a.sources))
	copy(out, a.sources)
	return out
}

func (a *ActiveSet) Token() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}
