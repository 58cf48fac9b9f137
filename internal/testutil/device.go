package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/shaderhunt/internal/ir"
)

// Program is a program object held by Device.
type Program struct {
	Kind     ir.ProgramKind
	Bytecode []byte
}

// Device is an in-memory host device. It issues increasing handles and
// records every release so tests can check for leaks and double releases.
//
// Thread-safety: All methods are safe for concurrent use.
type Device struct {
	mu       sync.Mutex
	next     ir.Handle
	live     map[ir.Handle]Program
	released map[ir.Handle]int
	creates  int

	// CreateErr, when set, fails every CreateProgram call.
	CreateErr error
}

// NewDevice creates a device whose first handle is 0x1000.
func NewDevice() *Device {
	return &Device{
		next:     0x1000,
		live:     make(map[ir.Handle]Program),
		released: make(map[ir.Handle]int),
	}
}

// CreateProgram creates a program object.
func (d *Device) CreateProgram(kind ir.ProgramKind, bytecode []byte) (ir.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CreateErr != nil {
		return 0, d.CreateErr
	}
	h := d.next
	d.next++
	d.live[h] = Program{Kind: kind, Bytecode: append([]byte(nil), bytecode...)}
	d.creates++
	return h, nil
}

// ReleaseProgram releases a program. Releasing an unknown or already
// released handle is an error and is still counted.
func (d *Device) ReleaseProgram(h ir.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released[h]++
	if _, ok := d.live[h]; !ok {
		return fmt.Errorf("release of dead handle %#x", uint64(h))
	}
	delete(d.live, h)
	return nil
}

// ReuseHandle makes the next CreateProgram return h again, simulating the
// host allocator recycling an address.
func (d *Device) ReuseHandle(h ir.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next = h
}

// Program returns the live program for h.
func (d *Device) Program(h ir.Handle) (Program, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.live[h]
	return p, ok
}

// ReleaseCount returns how many times h was released.
func (d *Device) ReleaseCount(h ir.Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released[h]
}

// LiveCount returns the number of unreleased programs.
func (d *Device) LiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Creates returns the number of successful CreateProgram calls.
func (d *Device) Creates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creates
}

// Linkage is a reference-counted attachment that counts releases.
type Linkage struct {
	releases atomic.Int32
}

// Release drops one reference.
func (l *Linkage) Release() {
	l.releases.Add(1)
}

// Releases returns how many times Release was called.
func (l *Linkage) Releases() int {
	return int(l.releases.Load())
}
