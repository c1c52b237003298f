package stacking

import (
	"sync/atomic"

	"github.com/raymyers/ralph-ra/pkg/loc"
	"tlog.app/go/errors"
)

// ErrSpillExhaustion is returned when the static spill area has no room
// left. It is the only allocation failure that aborts compilation.
var ErrSpillExhaustion = errors.New("static spill area exhausted")

// StaticPool is the module-wide bump allocator for the static spill area.
// Addresses are never reused within one compilation. Alloc is safe for
// concurrent use.
type StaticPool struct {
	base int
	size int
	next atomic.Int64 // bytes handed out so far
}

// NewStaticPool creates a pool covering [base, base+size)
func NewStaticPool(base, size int) *StaticPool {
	return &StaticPool{base: base, size: size}
}

// Alloc hands out size bytes of static memory
func (p *StaticPool) Alloc(size int) (loc.A, error) {
	for {
		used := p.next.Load()
		end := used + int64(size)
		if end > int64(p.size) {
			return loc.A{}, errors.Wrap(ErrSpillExhaustion, "need %d bytes, %d of %d used", size, used, p.size)
		}
		if p.next.CompareAndSwap(used, end) {
			return loc.A{Addr: p.base + int(used), Size: size}, nil
		}
	}
}

// Used returns the number of bytes handed out
func (p *StaticPool) Used() int {
	return int(p.next.Load())
}

// Base returns the first address of the pool
func (p *StaticPool) Base() int {
	return p.base
}
