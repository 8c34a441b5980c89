// Package scan exposes the scan chain over HTTP.
package scan

import (
	"encoding/json"
	"errors"
	"net/http"

	"chiptest-go/internal/controller"
	device "chiptest-go/internal/device/common"
	router "chiptest-go/internal/router/common"
	scanchain "chiptest-go/internal/scan"

	"github.com/gorilla/schema"
)

type base struct {
	chain *scanchain.Chain
}

type bus struct {
	name  string
	chain *scanchain.Chain
}

type Device struct{}

func (d *Device) Routes(ctrl *controller.Controller) ([]router.Route, error) {
	_, routes, err := routes(ctrl)
	return routes, err
}

func routes(ctrl *controller.Controller) (*base, []router.Route, error) {
	chain := ctrl.Scan()
	if chain == nil {
		return nil, []router.Route{}, errors.New("no scan chain configured")
	}

	base := base{chain: chain}
	routes := []router.Route{
		{
			Path:    "/scan",
			Handler: base.handler,
		},
		{
			Path:    "/scan/",
			Handler: base.handler,
		},
		{
			Path:    "/scan/update",
			Handler: base.updateHandler,
		},
		{
			Path:    "/scan/save",
			Handler: base.fileHandler,
		},
		{
			Path:    "/scan/load",
			Handler: base.fileHandler,
		},
	}

	for _, name := range chain.Names() {
		bus := bus{name: name, chain: chain}
		routes = append(routes, router.Route{
			Path:    "/scan/" + name,
			Handler: bus.handler,
		})
	}

	return &base, routes, nil
}

func decodeRequest(r *http.Request, request *device.Request) error {
	if r.Header.Get("Content-Type") == "application/json" {
		return json.NewDecoder(r.Body).Decode(request)
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return decoder.Decode(request, r.URL.Query())
}

func (b *base) handler(w http.ResponseWriter, r *http.Request) {
	var jsonResponse []byte
	var httpCode int

	defer func() {
		device.JSONResponse(w, httpCode, jsonResponse)
	}()

	if r.Method == http.MethodGet {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", b.chain.Names())
		return
	}

	httpCode, jsonResponse = device.SetJSONResponse(http.StatusMethodNotAllowed, "Method Not Allowed", nil)
}

func (b *base) updateHandler(w http.ResponseWriter, r *http.Request) {
	var jsonResponse []byte
	var httpCode int

	defer func() {
		device.JSONResponse(w, httpCode, jsonResponse)
	}()

	if r.Method != http.MethodPost {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	if err := b.chain.WriteTwice(); err != nil {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", map[string]any{
		"pre_bytes":  byteValues(b.chain.PreBytesData()),
		"post_bytes": byteValues(b.chain.PostBytesData()),
	})
}

// byteValues widens a byte slice so it serialises as a JSON array rather
// than a base64 string.
func byteValues(data []byte) []int {
	values := make([]int, len(data))
	for i, b := range data {
		values[i] = int(b)
	}
	return values
}

func (b *base) fileHandler(w http.ResponseWriter, r *http.Request) {
	var jsonResponse []byte
	var httpCode int

	defer func() {
		device.JSONResponse(w, httpCode, jsonResponse)
	}()

	if r.Method != http.MethodPost {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	request := device.Request{}
	if err := decodeRequest(r, &request); err != nil {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Malformed Or Empty Request", nil)
		return
	}

	if request.Fname == "" {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Invalid Parameter: fname", nil)
		return
	}

	var err error
	switch r.URL.Path[len(r.URL.Path)-4:] {
	case "save":
		err = b.chain.SaveToFile(request.Fname)
	case "load":
		err = b.chain.SetFromFile(request.Fname)
	}
	if err != nil {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", nil)
}

func (u *bus) handler(w http.ResponseWriter, r *http.Request) {
	var jsonResponse []byte
	var httpCode int

	defer func() {
		device.JSONResponse(w, httpCode, jsonResponse)
	}()

	if r.Method == http.MethodGet {
		value, err := u.chain.Get(u.name)
		if err != nil {
			httpCode, jsonResponse = device.SetJSONResponse(http.StatusInternalServerError, "Internal Server Error", nil)
			return
		}
		numbits, _ := u.chain.NumBits(u.name)
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", map[string]any{
			"value":   value,
			"numbits": numbits,
		})
		return
	}

	if r.Method != http.MethodPost {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	request := device.Request{}
	if err := decodeRequest(r, &request); err != nil {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Malformed Or Empty Request", nil)
		return
	}

	if request.Code != "set" {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Invalid Parameter: code", nil)
		return
	}

	value, err := request.Value.Int64()
	if err != nil {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, "Invalid Parameter: value", nil)
		return
	}

	if err := u.chain.Set(u.name, int(value)); err != nil {
		httpCode, jsonResponse = device.SetJSONResponse(http.StatusBadRequest, err.Error(), nil)
		return
	}

	httpCode, jsonResponse = device.SetJSONResponse(http.StatusOK, "OK", nil)
}
