package controller

import (
	"fmt"
	"sort"
	"strings"

	"chiptest-go/internal/common/config"
	"chiptest-go/internal/fpga"
	"chiptest-go/internal/gpib"
)

// The registries are the fixed allow-list of constructible drivers. A
// binding's module and class name a registry entry; anything else is
// rejected, there is no dynamic loading.

type fpgaFactory func(binding *config.Binding, scanCfg config.Scan) (fpga.Conn, error)

type gpibFactory func(binding *config.Binding) (gpib.Conn, error)

var fpgaRegistry = map[string]fpgaFactory{
	"fpga.Serial":    newSerialFpga,
	"fpga.Websocket": newWebsocketFpga,
	"fpga.Sim":       newSimFpga,
}

var gpibRegistry = map[string]gpibFactory{
	"gpib.AG54855A": newBridgeConn,
	"gpib.AG81142A": newSocketConn,
}

func newSerialFpga(binding *config.Binding, _ config.Scan) (fpga.Conn, error) {
	params := fpga.SerialParams{}
	if err := binding.DecodeParams(&params); err != nil {
		return nil, err
	}
	return fpga.OpenSerial(params)
}

func newWebsocketFpga(binding *config.Binding, _ config.Scan) (fpga.Conn, error) {
	params := fpga.WebsocketParams{}
	if err := binding.DecodeParams(&params); err != nil {
		return nil, err
	}
	return fpga.DialWebsocket(params)
}

func newSimFpga(binding *config.Binding, scanCfg config.Scan) (fpga.Conn, error) {
	// readback shape follows the scan section unless overridden
	params := fpga.SimParams{
		PreBytes:  scanCfg.PreBytes,
		PostBytes: scanCfg.PostBytes,
	}
	if err := binding.DecodeParams(&params); err != nil {
		return nil, err
	}
	return fpga.NewSim(params), nil
}

func newBridgeConn(binding *config.Binding) (gpib.Conn, error) {
	params := gpib.BridgeParams{}
	if err := binding.DecodeParams(&params); err != nil {
		return nil, err
	}
	return gpib.DialBridge(params)
}

func newSocketConn(binding *config.Binding) (gpib.Conn, error) {
	params := gpib.SocketParams{}
	if err := binding.DecodeParams(&params); err != nil {
		return nil, err
	}
	return gpib.DialSocket(params)
}

func registeredKeys[F any](registry map[string]F) string {
	keys := make([]string, 0, len(registry))
	for key := range registry {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func unknownBindingError(kind string, binding *config.Binding, known string) error {
	return fmt.Errorf("controller: unknown %s binding %q, registered: %s", kind, binding.Key(), known)
}
