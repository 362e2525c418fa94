package hub

import "sync"

// dedup remembers the last size keys in insertion order.
type dedup struct {
	mu   sync.Mutex
	size int
	set  map[string]struct{}
	ring []string
	next int
}

func newDedup(size int) *dedup {
	return &dedup{size: size, set: make(map[string]struct{}, size), ring: make([]string, size)}
}

// add reports true when key was not in the window.
func (d *dedup) add(key string) bool {
	if d.size <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.set[key]; ok {
		return false
	}
	if old := d.ring[d.next]; old != "" {
		delete(d.set, old)
	}
	d.ring[d.next] = key
	d.set[key] = struct{}{}
	d.next = (d.next + 1) % d.size
	return true
}
