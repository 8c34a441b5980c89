package fpga

import (
	"errors"
	"fmt"
	"time"

	"chiptest-go/internal/common/logging"

	"github.com/gorilla/websocket"
)

// WebsocketParams configures an FPGA reached through a serial-to-websocket
// bridge, for benches where the controlling host has no direct serial port.
type WebsocketParams struct {
	Host    string `yaml:"host"`
	Timeout uint   `yaml:"timeout_ms"`
}

type Websocket struct {
	conn    *websocket.Conn
	timeout time.Duration
	pending []byte
}

// DialWebsocket connects to the bridge at the given host.
func DialWebsocket(params WebsocketParams) (*Websocket, error) {
	if params.Host == "" {
		return nil, errors.New("fpga: missing parameter: host")
	}
	if params.Timeout == 0 {
		params.Timeout = 10000
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+params.Host, nil)
	if err != nil {
		return nil, err
	}

	logging.Log(logging.Info, "Connected to FPGA bridge at %s", params.Host)

	return &Websocket{
		conn:    conn,
		timeout: time.Duration(params.Timeout) * time.Millisecond,
	}, nil
}

func (w *Websocket) WriteBytes(data []byte) error {
	logging.Log(logging.Debug, "FPGA write: % x", data)
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *Websocket) ReadBytes(n int) ([]byte, error) {
	deadline := time.Now().Add(w.timeout)
	for len(w.pending) < n {
		if err := w.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		messageType, frame, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.BinaryMessage {
			return nil, fmt.Errorf("fpga: unexpected message type %d from bridge", messageType)
		}
		w.pending = append(w.pending, frame...)
	}

	out := w.pending[:n]
	w.pending = w.pending[n:]
	logging.Log(logging.Debug, "FPGA read: % x", out)
	return out, nil
}

func (w *Websocket) Close() error {
	return w.conn.Close()
}
