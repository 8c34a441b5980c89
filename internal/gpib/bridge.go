package gpib

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"chiptest-go/internal/common/logging"
)

// BridgeEnv names one or more GPIB-LAN bridge addresses, comma separated and
// indexed by board ID.
const BridgeEnv = "CHIPTEST_GPIB_BRIDGE"

const defaultBridgePort = "1234"

// BridgeParams configures an instrument behind a Prologix-style GPIB-LAN
// bridge. Bid selects the bridge, Pad the primary address on its bus.
// UseVisa switches the reply handling to VISA semantics, where the
// termination character is consumed by the bridge.
type BridgeParams struct {
	Bid     int    `yaml:"bid"`
	Pad     int    `yaml:"pad"`
	Timeout uint   `yaml:"timeout_ms"`
	UseVisa bool   `yaml:"use_visa"`
	Host    string `yaml:"host"`
}

type Bridge struct {
	conn    net.Conn
	pad     int
	timeout time.Duration
	useVisa bool
	buf     []byte
}

// DialBridge connects to the bridge for the given board ID and addresses the
// instrument. The bridge host comes from the host parameter, or from the
// CHIPTEST_GPIB_BRIDGE environment variable when unset.
func DialBridge(params BridgeParams) (*Bridge, error) {
	if params.Timeout == 0 {
		params.Timeout = 10000
	}

	host := params.Host
	if host == "" {
		var err error
		host, err = bridgeHost(params.Bid)
		if err != nil {
			return nil, err
		}
	}
	if !strings.Contains(host, ":") {
		host = net.JoinHostPort(host, defaultBridgePort)
	}

	timeout := time.Duration(params.Timeout) * time.Millisecond
	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return nil, err
	}

	bridge := &Bridge{
		conn:    conn,
		pad:     params.Pad,
		timeout: timeout,
		useVisa: params.UseVisa,
		buf:     make([]byte, 2048),
	}

	// controller mode, fixed listen address, read-after-write
	setup := []string{
		"++mode 1",
		fmt.Sprintf("++addr %d", params.Pad),
		"++auto 1",
	}
	for _, cmd := range setup {
		if err := bridge.send(cmd); err != nil {
			conn.Close()
			return nil, err
		}
	}

	logging.Log(logging.Info, "Connected to GPIB device (%d, %d) via %s", params.Bid, params.Pad, host)

	return bridge, nil
}

func bridgeHost(bid int) (string, error) {
	env := os.Getenv(BridgeEnv)
	if env == "" {
		return "", fmt.Errorf("gpib: no bridge host given and %s is unset", BridgeEnv)
	}
	hosts := strings.Split(env, ",")
	if bid < 0 || bid >= len(hosts) {
		return "", fmt.Errorf("gpib: board ID %d out of range, %s lists %d bridges", bid, BridgeEnv, len(hosts))
	}
	return strings.TrimSpace(hosts[bid]), nil
}

func (b *Bridge) send(cmd string) error {
	if err := b.conn.SetWriteDeadline(time.Now().Add(b.timeout)); err != nil {
		return err
	}
	_, err := b.conn.Write([]byte(cmd + "\n"))
	return err
}

func (b *Bridge) Write(cmd string) error {
	logging.Log(logging.Debug, "Sending command %s to device %d", cmd, b.pad)
	return b.send(cmd)
}

func (b *Bridge) Query(cmd string) (string, error) {
	if err := b.Write(cmd); err != nil {
		return "", err
	}

	if err := b.conn.SetReadDeadline(time.Now().Add(b.timeout)); err != nil {
		return "", err
	}

	var response strings.Builder
	for {
		n, err := b.conn.Read(b.buf)
		if n > 0 {
			response.Write(b.buf[:n])
			if b.buf[n-1] == '\n' {
				break
			}
			if b.useVisa && err == nil {
				// VISA-style bridges strip the terminator, stop on a
				// short read instead
				break
			}
			continue
		}
		if err != nil {
			return "", fmt.Errorf("gpib: query %q to device %d: %w", cmd, b.pad, err)
		}
	}

	out := strings.TrimRight(response.String(), "\r\n")
	logging.Log(logging.Debug, "Receive output %s from device %d", out, b.pad)
	return out, nil
}

func (b *Bridge) Close() error {
	return b.conn.Close()
}
