// Package controller turns a validated configuration document into live
// instrument drivers.
package controller

import (
	"fmt"
	"sort"

	"chiptest-go/internal/common/config"
	"chiptest-go/internal/common/logging"
	"chiptest-go/internal/fpga"
	"chiptest-go/internal/gpib"
	"chiptest-go/internal/scan"
)

// Controller owns the FPGA link, the scan chain built on top of it, and the
// GPIB device table. In simulation mode the GPIB devices are never dialed and
// their table entries stay nil, matching how the bench software behaves when
// run away from the bench.
type Controller struct {
	fpgaConn  fpga.Conn
	chain     *scan.Chain
	devices   map[string]gpib.Conn
	classes   map[string]string
	simulated bool
}

// New instantiates every binding in the document through the driver
// registries.
func New(cfg *config.Config) (*Controller, error) {
	fpgaFactory, ok := fpgaRegistry[cfg.Fpga.Key()]
	if !ok {
		return nil, unknownBindingError("fpga", &cfg.Fpga, registeredKeys(fpgaRegistry))
	}
	fpgaConn, err := fpgaFactory(&cfg.Fpga, cfg.Scan)
	if err != nil {
		return nil, fmt.Errorf("controller: fpga: %w", err)
	}

	chain, err := scan.New(fpgaConn, cfg.Scan.Fname, cfg.Scan.PreBytes, cfg.Scan.PostBytes)
	if err != nil {
		fpgaConn.Close()
		return nil, err
	}

	ctrl := &Controller{
		fpgaConn:  fpgaConn,
		chain:     chain,
		devices:   map[string]gpib.Conn{},
		classes:   map[string]string{},
		simulated: cfg.Fpga.Key() == "fpga.Sim",
	}

	for name, binding := range cfg.Gpib {
		binding := binding
		gpibFactory, ok := gpibRegistry[binding.Key()]
		if !ok {
			ctrl.Close()
			return nil, unknownBindingError("gpib", &binding, registeredKeys(gpibRegistry))
		}
		ctrl.classes[name] = binding.Key()
		if ctrl.simulated {
			ctrl.devices[name] = nil
			continue
		}
		conn, err := gpibFactory(&binding)
		if err != nil {
			ctrl.Close()
			return nil, fmt.Errorf("controller: gpib device %q: %w", name, err)
		}
		ctrl.devices[name] = conn
		logging.Log(logging.Info, "Found device \"%s\"", name)
	}

	return ctrl, nil
}

// Fpga returns the FPGA link.
func (c *Controller) Fpga() fpga.Conn {
	return c.fpgaConn
}

// Scan returns the scan chain.
func (c *Controller) Scan() *scan.Chain {
	return c.chain
}

// Simulated reports whether the controller runs against the FPGA simulator.
func (c *Controller) Simulated() bool {
	return c.simulated
}

// DeviceNames returns the configured GPIB device names, sorted.
func (c *Controller) DeviceNames() []string {
	names := make([]string, 0, len(c.devices))
	for name := range c.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Device returns the GPIB connection for the given name. In simulation mode
// the connection is nil.
func (c *Controller) Device(name string) (gpib.Conn, error) {
	conn, ok := c.devices[name]
	if !ok {
		return nil, fmt.Errorf("controller: no gpib device named %q", name)
	}
	return conn, nil
}

// DeviceClass returns the registry key the named device was built from,
// e.g. "gpib.AG54855A".
func (c *Controller) DeviceClass(name string) (string, error) {
	key, ok := c.classes[name]
	if !ok {
		return "", fmt.Errorf("controller: no gpib device named %q", name)
	}
	return key, nil
}

// Close shuts down every device and the FPGA link.
func (c *Controller) Close() error {
	var firstErr error
	for name, conn := range c.devices {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("controller: close %s: %w", name, err)
		}
	}
	if err := c.fpgaConn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
