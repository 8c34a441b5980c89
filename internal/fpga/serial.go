package fpga

import (
	"fmt"

	"chiptest-go/internal/common/logging"

	"go.bug.st/serial"
)

// SerialParams configures a direct serial connection to the FPGA, usually a
// USB UART.
type SerialParams struct {
	Port     string  `yaml:"port"`
	BaudRate int     `yaml:"baud_rate"`
	Timeout  float64 `yaml:"timeout"`
	FlowCtrl string  `yaml:"flow_ctrl"`
}

type Serial struct {
	port serial.Port
}

// OpenSerial opens the serial port named in the parameters. FlowCtrl selects
// between "hardware" (RTS/CTS) and "software" (XON/XOFF) flow control.
func OpenSerial(params SerialParams) (*Serial, error) {
	if params.Port == "" {
		return nil, fmt.Errorf("fpga: missing parameter: port")
	}
	if params.BaudRate <= 0 {
		params.BaudRate = 500000
	}
	if params.Timeout <= 0 {
		params.Timeout = 10.0
	}
	switch params.FlowCtrl {
	case "", "hardware", "software":
	default:
		return nil, fmt.Errorf("fpga: invalid flow_ctrl %q", params.FlowCtrl)
	}

	mode := &serial.Mode{
		BaudRate: params.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(params.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("fpga: open %s: %w", params.Port, err)
	}

	if err := port.SetReadTimeout(secondsToDuration(params.Timeout)); err != nil {
		port.Close()
		return nil, err
	}

	if params.FlowCtrl != "software" {
		// assert RTS, leave DTR down, same line state the bench firmware expects
		if err := port.SetRTS(true); err != nil {
			port.Close()
			return nil, err
		}
		if err := port.SetDTR(false); err != nil {
			port.Close()
			return nil, err
		}
	}

	logging.Log(logging.Info, "Opened FPGA serial port %s at %d baud", params.Port, params.BaudRate)

	return &Serial{port: port}, nil
}

func (s *Serial) WriteBytes(data []byte) error {
	logging.Log(logging.Debug, "FPGA write: % x", data)
	_, err := s.port.Write(data)
	return err
}

func (s *Serial) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	total := 0
	for total < n {
		m, err := s.port.Read(buf[total:])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			return nil, fmt.Errorf("fpga: read timed out after %d of %d bytes", total, n)
		}
		total += m
	}
	logging.Log(logging.Debug, "FPGA read: % x", buf)
	return buf, nil
}

func (s *Serial) Close() error {
	return s.port.Close()
}
