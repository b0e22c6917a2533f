package rdcore

import (
	"sort"
	"sync"
)

// ReaderState is a known card presence of a single reader.
type ReaderState struct {
	// Name is a unique reader name.
	Name string

	// CardPresent is true if the card is seated in the reader.
	CardPresent bool

	// JustAttached is true from the moment the reader is first seen until its
	// first initialization settles the card presence.
	JustAttached bool
}

// Registry maps reader names to their card presence.
//
// Remarks:
//   - Can be used by multiple goroutines.
//   - Every decision is made under the same lock as the mutation it gates.
type Registry struct {
	mu      sync.Mutex
	readers map[string]*ReaderState
}

// NewRegistry is an initialization of Registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[string]*ReaderState),
	}
}

// Upsert adds the reader with no card and the just-attached mark.
//
// Remarks:
//   - No-op if the reader is already known, returns true if the reader was added.
func (r *Registry) Upsert(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.readers[name]; ok {
		return false
	}

	r.readers[name] = &ReaderState{
		Name:         name,
		JustAttached: true,
	}

	return true
}

// Remove deletes the reader, returns true if the card was present at removal time.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.readers[name]
	if !ok {
		return false
	}

	delete(r.readers, name)

	return state.CardPresent
}

// SetPresent updates card presence and clears the just-attached mark.
//
// Remarks:
//   - Returns false if the reader is unknown.
func (r *Registry) SetPresent(name string, present bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.readers[name]
	if !ok {
		return false
	}

	state.CardPresent = present
	state.JustAttached = false

	return true
}

// Transition changes card presence only if it differs from the known one.
//
// Remarks:
//   - Returns true if the presence was changed, the caller which gets true owns
//     the dispatching of the corresponding action.
//   - Unknown readers are never changed.
func (r *Registry) Transition(name string, present bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.readers[name]
	if !ok || state.CardPresent == present {
		return false
	}

	state.CardPresent = present
	state.JustAttached = false

	return true
}

// Initialize settles the reader presence reported by the monitor initialization.
//
// Remarks:
//   - Returns true if the insert action is owed: the card is present, the reader
//     was just attached and the card wasn't known to be present.
//   - The just-attached mark is always cleared.
func (r *Registry) Initialize(name string, present bool) (fireInsert bool, known bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.readers[name]
	if !ok {
		return false, false
	}

	fireInsert = present && state.JustAttached && !state.CardPresent

	state.CardPresent = present
	state.JustAttached = false

	return fireInsert, true
}

// AnyPresent returns true if any reader holds a card.
func (r *Registry) AnyPresent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, state := range r.readers {
		if state.CardPresent {
			return true
		}
	}

	return false
}

// Get returns a copy of the reader state.
func (r *Registry) Get(name string) (ReaderState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.readers[name]
	if !ok {
		return ReaderState{}, false
	}

	return *state, true
}

// Names returns sorted names of all known readers.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.readers))
	for name := range r.readers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Drain forgets all readers, returns sorted names of the readers which held a card.
func (r *Registry) Drain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var present []string
	for name, state := range r.readers {
		if state.CardPresent {
			present = append(present, name)
		}
	}

	clear(r.readers)

	sort.Strings(present)

	return present
}

// Clear forgets all readers.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.readers)
}

// Len returns the number of known readers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.readers)
}
