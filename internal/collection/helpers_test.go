package collection

import "time"

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func (c *Controller[T, Q]) generationForTest() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
