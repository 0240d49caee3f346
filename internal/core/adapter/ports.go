package adapter

import (
	"fmt"
	"net"
	"sync"

	"github.com/aidb-dev/aidb/internal/aidberr"
)

// PortAllocator hands out loopback TCP ports for spawned adapter
// processes, starting at a language's default port and scanning its
// fallback range when that port is already in use. A port remains
// reserved (excluded from future allocation) until Release is called,
// even though the OS itself only reserves the port while the listener
// probe is open — concurrent Allocate calls must not race each other
// onto the same number.
type PortAllocator struct {
	mu        sync.Mutex
	reserved  map[int]bool
}

// NewPortAllocator returns an allocator with nothing reserved yet.
func NewPortAllocator() *PortAllocator {
	return &PortAllocator{reserved: make(map[int]bool)}
}

// Allocate reserves a free port, preferring defaultPort, then scanning
// [fallbackStart, fallbackEnd] in order. Returns PortExhausted if
// nothing in range is free.
func (p *PortAllocator) Allocate(defaultPort, fallbackStart, fallbackEnd int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if defaultPort > 0 && !p.reserved[defaultPort] && p.probe(defaultPort) {
		p.reserved[defaultPort] = true
		return defaultPort, nil
	}

	for port := fallbackStart; port <= fallbackEnd; port++ {
		if p.reserved[port] {
			continue
		}
		if p.probe(port) {
			p.reserved[port] = true
			return port, nil
		}
	}

	return 0, &aidberr.PortExhausted{Start: fallbackStart, End: fallbackEnd}
}

// probe reports whether port is currently free by briefly binding a
// listener to it. Must be called with p.mu held.
func (p *PortAllocator) probe(port int) bool {
	ln, err := net.Listen("tcp4", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// Release returns port to the pool.
func (p *PortAllocator) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.reserved, port)
}
