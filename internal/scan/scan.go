package scan

import (
	"fmt"
	"sync"

	"chiptest-go/internal/common/logging"
	"chiptest-go/internal/fpga"
)

// command byte that tells the FPGA firmware to shift the scan chain
const cmdScanWrite = 0x10

// Chain holds the shadow state of one scan chain: an ordered list of scan
// buses, each with a value and a width in bits. The chain content is shifted
// through the FPGA with WriteTwice; everything else operates on the shadow
// copy.
type Chain struct {
	conn fpga.Conn

	mu        sync.Mutex
	order     []string
	value     map[string]int
	numbits   map[string]int
	index     map[string]int
	nbits     int
	nbytes    int
	preBytes  int
	postBytes int
	preData   []byte
	postData  []byte
	callbacks []func()
}

// New builds a chain from the bit-definition file and shifts the default
// values into the hardware.
func New(conn fpga.Conn, fname string, preBytes, postBytes int) (*Chain, error) {
	chain := &Chain{
		conn:      conn,
		value:     map[string]int{},
		numbits:   map[string]int{},
		index:     map[string]int{},
		preBytes:  preBytes,
		postBytes: postBytes,
	}

	buses, err := readDefinitionFile(fname)
	if err != nil {
		return nil, err
	}

	cur := 0
	for _, bus := range buses {
		if _, ok := chain.value[bus.name]; ok {
			return nil, fmt.Errorf("scan: duplicate bus %q in %s", bus.name, fname)
		}
		chain.order = append(chain.order, bus.name)
		chain.value[bus.name] = bus.value
		chain.numbits[bus.name] = bus.numbits
		chain.index[bus.name] = cur
		cur += bus.numbits
	}
	chain.nbits = cur
	chain.nbytes = (cur + 7) / 8

	if err := chain.WriteTwice(); err != nil {
		return nil, err
	}
	return chain, nil
}

// Names returns the bus names in scan-in order.
func (c *Chain) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Set updates the shadow value of the given bus. The hardware is not touched
// until the next WriteTwice.
func (c *Chain) Set(name string, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	numbits, ok := c.numbits[name]
	if !ok {
		return fmt.Errorf("scan: unknown bus %q", name)
	}
	if value < 0 || value >= 1<<numbits {
		return fmt.Errorf("scan: value %d does not fit in %d bits", value, numbits)
	}
	logging.Log(logging.Info, "Scan: setting %s to %d", name, value)
	c.value[name] = value
	return nil
}

// Get returns the shadow value of the given bus.
func (c *Chain) Get(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.value[name]
	if !ok {
		return 0, fmt.Errorf("scan: unknown bus %q", name)
	}
	return value, nil
}

// NumBits returns the width of the given bus.
func (c *Chain) NumBits(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	numbits, ok := c.numbits[name]
	if !ok {
		return 0, fmt.Errorf("scan: unknown bus %q", name)
	}
	return numbits, nil
}

// PreBytesData returns the bytes read before the chain content on the last
// update.
func (c *Chain) PreBytesData() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.preData...)
}

// PostBytesData returns the bytes read after the chain content on the last
// update.
func (c *Chain) PostBytesData() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.postData...)
}

// AddCallback registers a function invoked after every chain update.
func (c *Chain) AddCallback(fun func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fun)
}

// ToBytes packs the shadow values into bytes, MSB bus first. A trailing
// partial byte holds the remaining bits right-aligned.
func (c *Chain) ToBytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toBytes()
}

func (c *Chain) toBytes() []byte {
	bits := make([]byte, 0, c.nbits)
	for _, name := range c.order {
		value := c.value[name]
		for i := c.numbits[name] - 1; i >= 0; i-- {
			bits = append(bits, byte(value>>i)&1)
		}
	}

	out := make([]byte, 0, c.nbytes)
	for i := 0; i < len(bits); i += 8 {
		end := i + 8
		if end > len(bits) {
			end = len(bits)
		}
		var b byte
		for _, bit := range bits[i:end] {
			b = b<<1 | bit
		}
		out = append(out, b)
	}
	return out
}

func (c *Chain) fromBytes(barr []byte) error {
	if len(barr) != c.nbytes {
		return fmt.Errorf("scan: bytearray length %d != %d", len(barr), c.nbytes)
	}

	bits := make([]byte, 0, len(barr)*8)
	for _, b := range barr {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>i)&1)
		}
	}

	for _, name := range c.order {
		idx := c.index[name]
		value := 0
		for _, bit := range bits[idx : idx+c.numbits[name]] {
			value = value<<1 | int(bit)
		}
		if old := c.value[name]; old != value {
			logging.Log(logging.Debug, "Scan bus %s changed from %d to %d", name, old, value)
			c.value[name] = value
		}
	}
	return nil
}

// WriteTwice shifts the shadow content into the chain twice and updates the
// shadow copy from the second readback. Shifting twice pushes the chain
// content all the way around, so the readback reflects what the chip latched.
func (c *Chain) WriteTwice() error {
	c.mu.Lock()

	payload := c.toBytes()
	frame := append([]byte{cmdScanWrite}, payload...)
	total := len(payload) + c.preBytes + c.postBytes

	for pass := 0; pass < 2; pass++ {
		if err := c.conn.WriteBytes(frame); err != nil {
			c.mu.Unlock()
			return err
		}
		out, err := c.conn.ReadBytes(total)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		if pass == 0 {
			continue
		}
		c.preData = out[:c.preBytes]
		c.postData = out[len(out)-c.postBytes:]
		if err := c.fromBytes(out[c.preBytes : len(out)-c.postBytes]); err != nil {
			c.mu.Unlock()
			return err
		}
	}

	callbacks := append([]func(){}, c.callbacks...)
	c.mu.Unlock()

	for _, fun := range callbacks {
		fun()
	}
	return nil
}
