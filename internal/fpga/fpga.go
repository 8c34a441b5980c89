package fpga

import "time"

// Conn is a byte-level link to the FPGA test controller. The controller
// protocol is a plain byte stream: commands and scan payloads go out, scan
// readback comes in, nothing is framed beyond what the caller writes.
type Conn interface {
	WriteBytes(data []byte) error
	ReadBytes(n int) ([]byte, error)
	Close() error
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

