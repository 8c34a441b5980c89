package gpib

import (
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Pinger is implemented by connections that can check instrument
// reachability without disturbing its measurement state.
type Pinger interface {
	Ping() error
}

// Ping sends one ICMP echo request to the instrument and waits for any
// reply.
func (s *Socket) Ping() error {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return err
	}
	return ping(host, s.timeout, nil)
}

func ping(host string, timeout time.Duration, conn net.PacketConn) error {
	var err error
	if conn == nil {
		conn, err = icmp.ListenPacket("ip4:icmp", "0.0.0.0")
		if err != nil {
			return err
		}
	}
	defer conn.Close()

	ipAddr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return err
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:  os.Getpid() & 0xffff,
			Seq: 1,
		},
	}

	msgBytes, err := msg.Marshal(nil)
	if err != nil {
		return err
	}

	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.WriteTo(msgBytes, ipAddr); err != nil {
		return err
	}

	response := make([]byte, 1500)
	_, _, err = conn.ReadFrom(response)
	return err
}
