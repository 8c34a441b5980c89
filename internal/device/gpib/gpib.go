// Package gpib exposes the GPIB device table over HTTP. Every device gets a
// raw write/query endpoint, which is what the bench frontend uses to poke
// instruments interactively, plus the measurement operations of its typed
// driver.
package gpib

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"chiptest-go/internal/controller"
	device "chiptest-go/internal/device/common"
	gpibconn "chiptest-go/internal/gpib"
	"chiptest-go/internal/gpib/oscope"
	"chiptest-go/internal/gpib/siggen"
	router "chiptest-go/internal/router/common"

	"github.com/gorilla/schema"
)

type base struct {
	ctrl *controller.Controller
}

// opFunc runs one driver operation for a request and returns its result.
type opFunc func(request device.Request) (any, error)

type instrument struct {
	name string
	ctrl *controller.Controller
	ops  map[string]opFunc
}

type Device struct{}

func (d *Device) Routes(ctrl *controller.Controller) ([]router.Route, error) {
	_, routes, err := routes(ctrl)
	return routes, err
}

func routes(ctrl *controller.Controller) (*base, []router.Route, error) {
	base := base{ctrl: ctrl}
	routes := []router.Route{
		{
			Path:    "/gpib",
			Handler: base.handler,
		},
		{
			Path:    "/gpib/",
			Handler: base.handler,
		},
	}

	for _, name := range ctrl.DeviceNames() {
		conn, err := ctrl.Device(name)
		if err != nil {
			return nil, []router.Route{}, err
		}
		class, err := ctrl.DeviceClass(name)
		if err != nil {
			return nil, []router.Route{}, err
		}
		instrument := instrument{name: name, ctrl: ctrl, ops: driverOps(class, conn)}
		routes = append(routes, router.Route{
			Path:    "/gpib/" + name,
			Handler: instrument.handler,
		})
	}

	return &base, routes, nil
}

// invalidParam is returned by ops whose request is missing or carries an
// unusable parameter, so the handler can answer 400 instead of 500.
type invalidParam string

func (e invalidParam) Error() string {
	return "Invalid Parameter: " + string(e)
}

func channelNumber(request device.Request) (int, error) {
	ch, err := request.Value.Int64()
	if err != nil {
		return 0, invalidParam("value")
	}
	return int(ch), nil
}

func floatValue(request device.Request) (float64, error) {
	value, err := request.Value.Float64()
	if err != nil {
		return 0, invalidParam("value")
	}
	return value, nil
}

// channelPair parses the cmd parameter as "ch1,ch2".
func channelPair(cmd string) (int, int, error) {
	parts := strings.Split(cmd, ",")
	if len(parts) != 2 {
		return 0, 0, invalidParam("cmd")
	}
	ch1, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	ch2, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, invalidParam("cmd")
	}
	return ch1, ch2, nil
}

// driverOps builds the operation table for the typed driver behind a registry
// class. Unrecognised classes fall back to the raw write/query surface only.
func driverOps(class string, conn gpibconn.Conn) map[string]opFunc {
	switch class {
	case "gpib.AG54855A":
		scope := oscope.New(conn)
		return map[string]opFunc{
			"time_delta": func(request device.Request) (any, error) {
				ch1, ch2, err := channelPair(request.Cmd)
				if err != nil {
					return nil, err
				}
				return scope.TimeDelta(ch1, ch2)
			},
			"vrms": func(request device.Request) (any, error) {
				ch, err := channelNumber(request)
				if err != nil {
					return nil, err
				}
				return scope.VRms(ch)
			},
			"vmax": func(request device.Request) (any, error) {
				ch, err := channelNumber(request)
				if err != nil {
					return nil, err
				}
				return scope.VMax(ch)
			},
			"vmin": func(request device.Request) (any, error) {
				ch, err := channelNumber(request)
				if err != nil {
					return nil, err
				}
				return scope.VMin(ch)
			},
			"full_scale": func(request device.Request) (any, error) {
				ch, err := channelNumber(request)
				if err != nil {
					return nil, err
				}
				return scope.FullScale(ch)
			},
			"display_range": func(request device.Request) (any, error) {
				return scope.DisplayRange()
			},
			"set_display_range": func(request device.Request) (any, error) {
				trange, err := floatValue(request)
				if err != nil {
					return nil, err
				}
				return nil, scope.SetDisplayRange(trange)
			},
		}
	case "gpib.AG81142A":
		gen := siggen.New(conn)
		return map[string]opFunc{
			"output_delay": func(request device.Request) (any, error) {
				return gen.OutputDelay()
			},
			"set_output_delay": func(request device.Request) (any, error) {
				delay, err := floatValue(request)
				if err != nil {
					return nil, err
				}
				return nil, gen.SetOutputDelay(delay)
			},
		}
	}
	return nil
}

// codes lists the request codes the instrument accepts: the raw transport
// codes first, then the driver operations.
func (i *instrument) codes() []string {
	codes := []string{"write", "query", "status"}
	names := make([]string, 0, len(i.ops))
	for name := range i.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(codes, names...)
}

func (b *base) handler(w http.ResponseWriter, r *http.Request) {
	var jsonResponse []byte
	var httpCode int

	defer func() {
		device.JSONResponse(w, httpCode, jsonResponse)
	}()

	if r.Method == http.MethodGet {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", b.ctrl.DeviceNames())
		return
	}

	httpCode, jsonResponse = device.SetJSONResponse(http.StatusMethodNotAllowed, "Method Not Allowed", nil)
}

func (i *instrument) handler(w http.ResponseWriter, r *http.Request) {
	var jsonResponse []byte
	var httpCode int

	defer func() {
		device.JSONResponse(w, httpCode, jsonResponse)
	}()

	if r.Method == http.MethodGet {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", i.codes())
		return
	}

	if r.Method != http.MethodPost {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	conn, err := i.ctrl.Device(i.name)
	if err != nil {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusNotFound, "Not Found", nil)
		return
	}
	if conn == nil {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusServiceUnavailable, "Simulation Mode", nil)
		return
	}

	request := device.Request{}
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Malformed Or Empty JSON Body", nil)
			return
		}
	} else {
		decoder := schema.NewDecoder()
		decoder.IgnoreUnknownKeys(true)
		if err := decoder.Decode(&request, r.URL.Query()); err != nil {
			httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Malformed or empty query string", nil)
			return
		}
	}

	switch request.Code {
	case "write":
		if request.Cmd == "" {
			httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Invalid Parameter: cmd", nil)
			return
		}
		if err := conn.Write(request.Cmd); err != nil {
			httpCode, jsonResponse = device.SetJSONResponse(http.StatusInternalServerError, "Internal Server Error", nil)
			return
		}
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", nil)

	case "query":
		if request.Cmd == "" {
			httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Invalid Parameter: cmd", nil)
			return
		}
		output, err := conn.Query(request.Cmd)
		if err != nil {
			httpCode, jsonResponse = device.SetJSONResponse(http.StatusInternalServerError, "Internal Server Error", nil)
			return
		}
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", output)

	case "status":
		pinger, ok := conn.(gpibconn.Pinger)
		if !ok {
			httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", "unknown")
			return
		}
		if err := pinger.Ping(); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", "off")
			} else {
				httpCode, jsonResponse = device.SetJSONResponse(http.StatusInternalServerError, "Internal Server Error", nil)
			}
			return
		}
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", "on")

	default:
		op, ok := i.ops[request.Code]
		if !ok {
			httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Invalid Parameter: code", nil)
			return
		}
		data, err := op(request)
		if err != nil {
			var bad invalidParam
			if errors.As(err, &bad) {
				httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, err.Error(), nil)
			} else {
				httpCode, jsonResponse = device.SetJSONResponse(http.StatusInternalServerError, "Internal Server Error", nil)
			}
			return
		}
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", data)
	}
}
