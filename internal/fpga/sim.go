package fpga

import (
	"fmt"
	"sync"

	"chiptest-go/internal/common/logging"
)

// SimParams configures the loopback simulator. PreBytes and PostBytes should
// match the scan section so that simulated readback has the same shape as the
// real controller's.
type SimParams struct {
	PreBytes  int `yaml:"pre_bytes"`
	PostBytes int `yaml:"post_bytes"`
}

// Sim is a loopback FPGA used for bench-less development. Scan writes are
// echoed back on the next read, so scan-out always equals scan-in.
type Sim struct {
	mu      sync.Mutex
	params  SimParams
	payload []byte
}

func NewSim(params SimParams) *Sim {
	logging.Log(logging.Info, "FPGA running in simulation mode")
	return &Sim{params: params}
}

func (s *Sim) WriteBytes(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(data) < 1 {
		return fmt.Errorf("fpga: empty write")
	}
	// first byte is the command, the rest is the scan payload
	s.payload = append([]byte(nil), data[1:]...)
	return nil
}

func (s *Sim) ReadBytes(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := s.params.PreBytes + len(s.payload) + s.params.PostBytes
	if n != want {
		return nil, fmt.Errorf("fpga: simulator has %d bytes pending, read asked for %d", want, n)
	}

	out := make([]byte, n)
	copy(out[s.params.PreBytes:], s.payload)
	return out, nil
}

func (s *Sim) Close() error {
	return nil
}
