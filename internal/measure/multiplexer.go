package measure

import (
	"context"
	"fmt"
	"sync"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// DefaultVirtualModules is the chain length of a default virtual multiplexer.
const DefaultVirtualModules = 3

// VirtualMultiplexer is an in-memory multiplexer built from type A modules.
type VirtualMultiplexer struct {
	mu        sync.Mutex
	id        string
	chain     []ModuleType
	connected *board.MultiplexerOutput
}

// NewVirtualMultiplexer creates a virtual multiplexer with the given number
// of type A modules. modules <= 0 selects DefaultVirtualModules.
func NewVirtualMultiplexer(id string, modules int) *VirtualMultiplexer {
	if modules <= 0 {
		modules = DefaultVirtualModules
	}
	chain := make([]ModuleType, modules)
	for i := range chain {
		chain[i] = ModuleTypeA
	}
	return &VirtualMultiplexer{id: id, chain: chain}
}

// ID implements Multiplexer.
func (m *VirtualMultiplexer) ID() string { return m.id }

// Info implements Multiplexer.
func (m *VirtualMultiplexer) Info() DeviceInfo {
	return DeviceInfo{
		ID:           m.id,
		Kind:         KindMultiplexer,
		Manufacturer: "EPC MSU",
		Product:      "Virtual analog multiplexer",
		Controller:   "Virtual controller name",
		Firmware:     [3]int{1, 2, 3},
		Hardware:     [3]int{4, 5, 6},
		Serial:       "123456789",
	}
}

// Chain implements Multiplexer.
func (m *VirtualMultiplexer) Chain() []ModuleType {
	return append([]ModuleType(nil), m.chain...)
}

// Connect implements Multiplexer.
func (m *VirtualMultiplexer) Connect(_ context.Context, out board.MultiplexerOutput) error {
	if out.ModuleNumber < 1 || out.ModuleNumber > len(m.chain) {
		return fmt.Errorf("invalid module number %d (chain has %d modules)", out.ModuleNumber, len(m.chain))
	}
	if out.ChannelNumber < board.MinChannelNumber || out.ChannelNumber > board.MaxChannelNumber {
		return fmt.Errorf("invalid channel number %d", out.ChannelNumber)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = &board.MultiplexerOutput{ModuleNumber: out.ModuleNumber, ChannelNumber: out.ChannelNumber}
	return nil
}

// Connected implements Multiplexer. It returns nil when nothing is connected.
func (m *VirtualMultiplexer) Connected(context.Context) (*board.MultiplexerOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected == nil {
		return nil, nil
	}
	out := *m.connected
	return &out, nil
}

// DisconnectAll implements Multiplexer.
func (m *VirtualMultiplexer) DisconnectAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = nil
	return nil
}
