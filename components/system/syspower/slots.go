package syspower

import "sync"

// slotTable maps stable integer slots to live hooks, the OS only ever sees the slot.
type slotTable struct {
	mu    sync.Mutex
	next  uintptr
	hooks map[uintptr]*Hook
}

var slots = &slotTable{
	hooks: make(map[uintptr]*Hook),
}

func (t *slotTable) add(hook *Hook) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.hooks[t.next] = hook

	return t.next
}

func (t *slotTable) remove(slot uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.hooks, slot)
}

func (t *slotTable) get(slot uintptr) *Hook {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.hooks[slot]
}
