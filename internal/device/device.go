package device

import (
	"errors"
	"net/http"
	"strings"

	"chiptest-go/internal/controller"
	common "chiptest-go/internal/device/common"
	"chiptest-go/internal/device/gpib"
	"chiptest-go/internal/device/scan"
	router "chiptest-go/internal/router/common"
)

type Device interface {
	Routes(ctrl *controller.Controller) ([]router.Route, error)
}

type Devices struct {
	routes []router.Route
}

var (
	devices = []Device{
		&scan.Device{},
		&gpib.Device{},
	}
)

func (d *Devices) Routes(ctrl *controller.Controller, apiVersion string) ([]router.Route, error) {
	for _, device := range devices {
		tmpRoutes, err := device.Routes(ctrl)
		if err != nil {
			return []router.Route{}, err
		}

		// Prepend API version to route paths
		for i, r := range tmpRoutes {
			tmpRoutes[i].Path = "/" + apiVersion + r.Path
		}

		d.routes = append(d.routes, tmpRoutes...)
	}

	if len(d.routes) == 0 {
		return []router.Route{}, errors.New("no routes generated from controller")
	}

	d.routes = append(d.routes, router.Route{
		Path:    "/" + apiVersion,
		Handler: d.handler,
	})

	d.routes = append(d.routes, router.Route{
		Path:    "/" + apiVersion + "/",
		Handler: d.handler,
	})

	return d.routes, nil
}

// Use the number of '/' characters present in the route Paths to extract top level path names
func (d *Devices) getTopLevelRouteNames() []string {
	topLevelNames := []string{}
	for _, r := range d.routes {
		parts := strings.Split(r.Path, "/")

		if len(parts) == 3 && parts[2] != "" {
			topLevelNames = append(topLevelNames, parts[2])
		}
	}
	return topLevelNames
}

func (d *Devices) handler(w http.ResponseWriter, r *http.Request) {
	var jsonResponse []byte
	var httpCode int

	defer func() {
		common.JSONResponse(w, httpCode, jsonResponse)
	}()

	if r.Method != http.MethodGet {
		httpCode, jsonResponse = common.SetJSONResponse(http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	httpCode, jsonResponse = common.SetJSONResponse(http.StatusOK, "OK", d.getTopLevelRouteNames())
}
