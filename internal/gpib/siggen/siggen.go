// Package siggen drives an Agilent 81142A signal generator.
package siggen

import (
	"fmt"
	"strconv"
	"strings"

	"chiptest-go/internal/gpib"
)

type AG81142A struct {
	conn gpib.Conn
}

func New(conn gpib.Conn) *AG81142A {
	return &AG81142A{conn: conn}
}

// OutputDelay returns the output delay, in seconds.
func (s *AG81142A) OutputDelay() (float64, error) {
	raw, err := s.conn.Query("OUTP:DEL?")
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("siggen: OUTP:DEL? returned %q: %w", raw, err)
	}
	return value, nil
}

// SetOutputDelay sets the output delay, in seconds.
func (s *AG81142A) SetOutputDelay(delay float64) error {
	return s.conn.Write(fmt.Sprintf("OUTP:DEL %.6e", delay))
}
