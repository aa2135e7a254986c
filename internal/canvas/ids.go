package canvas

import (
	"fmt"
	"strconv"
	"sync"
)

// NodeIDPrefix prefixes every generated node id.
const NodeIDPrefix = "node-"

// IDCounter hands out node ids from a monotonic per-canvas counter.
type IDCounter struct {
	mu   sync.Mutex
	next int64
}

// NewIDCounter returns a counter whose first id uses next (minimum 1).
func NewIDCounter(next int64) *IDCounter {
	return &IDCounter{next: max(next, 1)}
}

// Next returns a fresh node id.
func (c *IDCounter) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return FormatNodeID(id)
}

// Peek returns the value the next id will use.
func (c *IDCounter) Peek() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Seed moves the counter forward to at least next. It never moves backwards.
func (c *IDCounter) Seed(next int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next > c.next {
		c.next = next
	}
}

// FormatNodeID renders a counter value as a node id.
func FormatNodeID(n int64) string { return fmt.Sprintf("%s%d", NodeIDPrefix, n) }

// NumericSuffix extracts the trailing integer of an id such as "node-12" or
// "text_7". ok is false when the id has no numeric suffix.
func NumericSuffix(id string) (int64, bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return 0, false
	}
	n, err := strconv.ParseInt(id[i:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SeedFrom returns the counter value to resume from for a loaded snapshot:
// its persisted NextNodeID, raised past every numeric id suffix present so
// legacy records without a counter cannot collide.
func SeedFrom(s Snapshot) int64 {
	next := max(s.NextNodeID, 1)
	for _, n := range s.Nodes {
		if v, ok := NumericSuffix(n.ID); ok && v+1 > next {
			next = v + 1
		}
	}
	return next
}
