package gpib

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"chiptest-go/internal/common/logging"
)

// SocketParams configures an instrument that speaks SCPI over a raw TCP
// socket.
type SocketParams struct {
	IPAddr     string `yaml:"ip_addr"`
	Port       int    `yaml:"port"`
	Timeout    uint   `yaml:"timeout_ms"`
	BufferSize int    `yaml:"buffer_size"`
}

type Socket struct {
	conn    net.Conn
	addr    string
	timeout time.Duration
	buf     []byte
}

// DialSocket connects to the instrument at ip_addr:port.
func DialSocket(params SocketParams) (*Socket, error) {
	if params.IPAddr == "" {
		return nil, errors.New("gpib: missing parameter: ip_addr")
	}
	if params.Port <= 0 {
		return nil, errors.New("gpib: missing parameter: port")
	}
	if params.Timeout == 0 {
		params.Timeout = 10000
	}
	if params.BufferSize <= 0 {
		params.BufferSize = 1024
	}

	addr := net.JoinHostPort(params.IPAddr, strconv.Itoa(params.Port))
	timeout := time.Duration(params.Timeout) * time.Millisecond

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}

	logging.Log(logging.Info, "Connected to instrument at %s", addr)

	return &Socket{
		conn:    conn,
		addr:    addr,
		timeout: timeout,
		buf:     make([]byte, params.BufferSize),
	}, nil
}

func (s *Socket) Write(cmd string) error {
	logging.Log(logging.Debug, "Sending command %s to %s", cmd, s.addr)
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte(cmd + "\n"))
	return err
}

func (s *Socket) Query(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return "", err
	}

	var response strings.Builder
	for {
		n, err := s.conn.Read(s.buf)
		if n > 0 {
			response.Write(s.buf[:n])
			if s.buf[n-1] == '\n' {
				break
			}
			continue
		}
		if err != nil {
			return "", fmt.Errorf("gpib: query %q to %s: %w", cmd, s.addr, err)
		}
	}

	out := strings.TrimRight(response.String(), "\r\n")
	logging.Log(logging.Debug, "Receive output %s from %s", out, s.addr)
	return out, nil
}

func (s *Socket) Close() error {
	return s.conn.Close()
}
