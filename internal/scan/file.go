package scan

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio"
)

type busDef struct {
	name    string
	value   int
	numbits int
}

// readDefinitionFile parses a scan chain bit-definition file. Each line holds
// a bus name, its default value and its width, whitespace separated. Blank
// lines and '#' comments are skipped.
func readDefinitionFile(fname string) ([]busDef, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buses []busDef
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 3 {
			return nil, fmt.Errorf("scan: %s:%d: expected 3 fields, got %d", fname, lineNo, len(parts))
		}
		value, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("scan: %s:%d: bad value %q", fname, lineNo, parts[1])
		}
		numbits, err := strconv.Atoi(parts[2])
		if err != nil || numbits <= 0 {
			return nil, fmt.Errorf("scan: %s:%d: bad bit count %q", fname, lineNo, parts[2])
		}
		buses = append(buses, busDef{name: parts[0], value: value, numbits: numbits})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(buses) == 0 {
		return nil, fmt.Errorf("scan: %s holds no bus definitions", fname)
	}
	return buses, nil
}

// SetFromFile updates bus values from a saved state file, then shifts the new
// content into the chain. Lines name buses that must already exist.
func (c *Chain) SetFromFile(fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	updates := map[string]int{}
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return fmt.Errorf("scan: %s:%d: expected name and value", fname, lineNo)
		}
		value, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("scan: %s:%d: bad value %q", fname, lineNo, parts[1])
		}
		updates[parts[0]] = value
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	for name, value := range updates {
		if _, ok := c.value[name]; !ok {
			c.mu.Unlock()
			return fmt.Errorf("scan: unknown bus %q in %s", name, fname)
		}
		c.value[name] = value
	}
	c.mu.Unlock()

	return c.WriteTwice()
}

// SaveToFile writes the current chain content in bit-definition format. The
// write is atomic so a half-written state file never clobbers a good one.
func (c *Chain) SaveToFile(fname string) error {
	c.mu.Lock()
	var buf bytes.Buffer
	for _, name := range c.order {
		fmt.Fprintf(&buf, "%s\t%d\t%d\n", name, c.value[name], c.numbits[name])
	}
	c.mu.Unlock()

	return renameio.WriteFile(fname, buf.Bytes(), 0o644)
}
