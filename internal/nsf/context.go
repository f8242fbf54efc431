package nsf

import "math/rand"

// Context carries the per-call state of one forward pass: the random source
// for initial phases and noise, and the mini-variant phase origin. A Context
// must not be shared between concurrent calls.
type Context struct {
	Rand *rand.Rand

	// PhaseOffset is the mini-variant phase, in cycles, at the first frame.
	PhaseOffset float64
	// PhaseCarry receives the phase, in cycles in [0,1), just after the last
	// frame. Feed it into the next call's PhaseOffset to stay continuous.
	PhaseCarry float64
}

// NewContext returns a Context with a deterministic random source.
func NewContext(seed int64) *Context {
	return &Context{Rand: rand.New(rand.NewSource(seed))}
}

func (c *Context) rng() *rand.Rand {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(0))
	}

	return c.Rand
}
