package gpib

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// scpiServer answers queries from a canned response table and records every
// line it receives.
func scpiServer(t *testing.T, responses map[string]string) (net.Conn, chan string) {
	server, client := net.Pipe()
	received := make(chan string, 16)

	go func() {
		reader := bufio.NewReader(server)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			received <- line
			if response, ok := responses[line]; ok {
				if _, err := server.Write([]byte(response + "\n")); err != nil {
					return
				}
			}
		}
	}()

	return client, received
}

func TestSocketQuery(t *testing.T) {
	client, received := scpiServer(t, map[string]string{
		"*IDN?":      "Agilent Technologies,81142A,DE44C00123,1.0",
		":OUTP:DEL?": "1.2e-10\r",
	})

	socket := &Socket{
		conn:    client,
		addr:    "169.254.122.10:5025",
		timeout: time.Second,
		buf:     make([]byte, 16),
	}
	defer socket.Close()

	idn, err := socket.Query("*IDN?")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	assert.Equal(t, "Agilent Technologies,81142A,DE44C00123,1.0", idn)

	delay, err := socket.Query(":OUTP:DEL?")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	assert.Equal(t, "1.2e-10", delay, "carriage return should be stripped")

	if err := socket.Write(":OUTP:DEL 1e-9"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var lines []string
	for len(lines) < 3 {
		select {
		case line := <-received:
			lines = append(lines, line)
		case <-time.After(time.Second):
			t.Fatalf("Server did not receive all commands, got %v", lines)
		}
	}
	assert.Contains(t, lines, ":OUTP:DEL 1e-9")
}

func TestSocketQueryTimeout(t *testing.T) {
	client, _ := scpiServer(t, nil)

	socket := &Socket{
		conn:    client,
		addr:    "169.254.122.10:5025",
		timeout: 20 * time.Millisecond,
		buf:     make([]byte, 16),
	}
	defer socket.Close()

	_, err := socket.Query(":TIMEBASE:RANGE?")
	assert.Error(t, err)

	var netErr net.Error
	assert.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestDialSocketParamValidation(t *testing.T) {
	testCases := []struct {
		name   string
		params SocketParams
	}{
		{
			name:   "missing_ip_addr",
			params: SocketParams{Port: 5025},
		},
		{
			name:   "missing_port",
			params: SocketParams{IPAddr: "169.254.122.10"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DialSocket(tc.params)
			assert.Error(t, err)
		})
	}
}

func TestBridgeAddressing(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Could not listen: %v", err)
	}
	defer listener.Close()

	received := make(chan string, 16)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			received <- line
			if line == "*IDN?" {
				conn.Write([]byte("Agilent Technologies,54855A\n"))
			}
		}
	}()

	bridge, err := DialBridge(BridgeParams{
		Bid:     0,
		Pad:     7,
		Timeout: 1000,
		Host:    listener.Addr().String(),
	})
	if err != nil {
		t.Fatalf("Could not dial bridge: %v", err)
	}
	defer bridge.Close()

	idn, err := bridge.Query("*IDN?")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	assert.Equal(t, "Agilent Technologies,54855A", idn)

	var lines []string
	for len(received) > 0 {
		lines = append(lines, <-received)
	}
	assert.Equal(t, []string{"++mode 1", "++addr 7", "++auto 1", "*IDN?"}, lines)
}

// visaServer answers queries without a terminating newline, the way a
// VISA-style bridge hands back replies after consuming the terminator.
func visaServer(t *testing.T, responses map[string]string) net.Conn {
	server, client := net.Pipe()

	go func() {
		reader := bufio.NewReader(server)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			if response, ok := responses[line]; ok {
				if _, err := server.Write([]byte(response)); err != nil {
					return
				}
			}
		}
	}()

	return client
}

func TestBridgeQueryVisaTermination(t *testing.T) {
	responses := map[string]string{":measure:vmax? channel1": "3.5e-01"}

	bridge := &Bridge{
		conn:    visaServer(t, responses),
		pad:     7,
		timeout: time.Second,
		useVisa: true,
		buf:     make([]byte, 16),
	}
	defer bridge.Close()

	out, err := bridge.Query(":measure:vmax? channel1")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	assert.Equal(t, "3.5e-01", out, "reply without a terminator should still complete")
}

func TestBridgeQueryMissingTerminator(t *testing.T) {
	// without use_visa an unterminated reply is a timeout, not a result
	responses := map[string]string{":measure:vmax? channel1": "3.5e-01"}

	bridge := &Bridge{
		conn:    visaServer(t, responses),
		pad:     7,
		timeout: 20 * time.Millisecond,
		buf:     make([]byte, 16),
	}
	defer bridge.Close()

	_, err := bridge.Query(":measure:vmax? channel1")
	assert.Error(t, err)

	var netErr net.Error
	assert.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestBridgeHostFromEnv(t *testing.T) {
	t.Setenv(BridgeEnv, "bench-gpib-0, bench-gpib-1:2345")

	testCases := []struct {
		name         string
		bid          int
		expectedHost string
		wantError    bool
	}{
		{
			name:         "first_bridge",
			bid:          0,
			expectedHost: "bench-gpib-0",
		},
		{
			name:         "second_bridge",
			bid:          1,
			expectedHost: "bench-gpib-1:2345",
		},
		{
			name:      "out_of_range",
			bid:       2,
			wantError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			host, err := bridgeHost(tc.bid)
			if tc.wantError {
				assert.Error(t, err)
				return
			}
			if err != nil {
				t.Fatalf("bridgeHost failed: %v", err)
			}
			assert.Equal(t, tc.expectedHost, host)
		})
	}
}

func TestBridgeHostUnset(t *testing.T) {
	t.Setenv(BridgeEnv, "")
	_, err := bridgeHost(0)
	assert.Error(t, err)
}
