// Package goroutineid identifies goroutines, so that code can tell whether it
// is running on a specific goroutine, such as a toolkit's dispatch goroutine.
package goroutineid

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// Get returns the ID of the calling goroutine, parsed from the header of
// runtime.Stack, or 0 if it could not be determined.
func Get() int64 {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)
	buf := *bp
	n := runtime.Stack(buf, false)
	return parse(buf[:n])
}

// parse extracts the ID from a stack header of the form
// "goroutine 123 [running]:". It does not allocate.
func parse(stack []byte) int64 {
	const prefix = "goroutine "
	if len(stack) <= len(prefix) || string(stack[:len(prefix)]) != prefix {
		return 0
	}
	var id int64
	for _, b := range stack[len(prefix):] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + int64(b-'0')
	}
	return id
}

// Binding remembers one goroutine. The zero value is unbound.
type Binding struct {
	id atomic.Int64
}

// Bind records the calling goroutine, replacing any previous binding.
func (b *Binding) Bind() {
	b.id.Store(Get())
}

// Unbind clears the binding.
func (b *Binding) Unbind() {
	b.id.Store(0)
}

// ID returns the bound goroutine ID, or 0 if unbound.
func (b *Binding) ID() int64 {
	return b.id.Load()
}

// IsCurrent reports whether the calling goroutine is the bound one. An
// unbound Binding matches no goroutine.
func (b *Binding) IsCurrent() bool {
	id := b.id.Load()
	return id > 0 && id == Get()
}
