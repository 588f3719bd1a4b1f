package transport

// correlator assigns monotonically increasing per-turn command identifiers
// and matches response events back to the step that issued the command.
type correlator struct {
	next    int64
	pending map[int64]string
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[int64]string)}
}

// track allocates the next command id and records the step awaiting its
// response.
func (c *correlator) track(step string) int64 {
	c.next++
	c.pending[c.next] = step
	return c.next
}

// resolve consumes the pending completion for id, reporting the step that
// issued it. The second return is false for untracked responses.
func (c *correlator) resolve(id int64) (string, bool) {
	step, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return step, ok
}
