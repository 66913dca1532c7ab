package htmlconv

import (
	"time"

	"github.com/rickcrawford/markdowninthemiddle/internal/mderrors"
)

// checkpointCadence is the number of visited DOM nodes between cooperative
// timeout checks (spec.md §4.14).
const checkpointCadence = 100

// maxNestingDepth is the default structural depth limit (spec.md §4.7).
const maxNestingDepth = 1000

// Context is the Conversion Context (C14): it owns the timeout budget and
// the node counter the emitter polls cooperatively. There is no
// preemption; callers must call Tick() at well-defined points.
type Context struct {
	start     time.Time
	timeout   time.Duration // 0 = disabled
	nodeCount int
}

// NewContext starts a Context with the given timeout (0 disables it).
func NewContext(timeout time.Duration) *Context {
	return &Context{start: now(), timeout: timeout}
}

// now is a seam so tests can avoid depending on wall-clock flakiness if
// ever needed; production always uses the real clock.
var now = time.Now

// Tick registers one visited node. Every checkpointCadence nodes it checks
// the elapsed time against the timeout, returning a Timeout error if
// exceeded. Detection latency is therefore bounded by the cadence, not
// instantaneous.
func (c *Context) Tick() error {
	c.nodeCount++
	if c.timeout <= 0 {
		return nil
	}
	if c.nodeCount%checkpointCadence != 0 {
		return nil
	}
	if time.Since(c.start) > c.timeout {
		return mderrors.New(mderrors.Timeout, "conversion exceeded timeout")
	}
	return nil
}

// NodeCount returns the number of nodes ticked so far.
func (c *Context) NodeCount() int { return c.nodeCount }
