// Package gpu is the GPU execution strategy: the volume is uploaded to a
// device once, every frame is one compute dispatch into the write half of a
// ping-pong pair, and the display reads the half written last.
package gpu

// Handle names a device buffer
type Handle uint32

// PingPong is a pair of buffers where one half is read by the display while
// the other receives the next dispatch. After N dispatches, each followed by
// Swap, Read returns the buffer written by dispatch N.
type PingPong[B any] struct {
	bufs [2]B
	read int
	gen  uint64
}

// NewPingPong creates a pair; a is the initial read buffer
func NewPingPong[B any](a, b B) *PingPong[B] {
	return &PingPong[B]{bufs: [2]B{a, b}}
}

// Read returns the buffer holding the latest finished frame
func (p *PingPong[B]) Read() B { return p.bufs[p.read] }

// Write returns the buffer the next dispatch writes into
func (p *PingPong[B]) Write() B { return p.bufs[1-p.read] }

// Swap promotes the write buffer to read after a dispatch
func (p *PingPong[B]) Swap() {
	p.read = 1 - p.read
	p.gen++
}

// Generation returns the number of swaps performed
func (p *PingPong[B]) Generation() uint64 { return p.gen }

// Buffers returns both halves in allocation order
func (p *PingPong[B]) Buffers() (B, B) { return p.bufs[0], p.bufs[1] }
