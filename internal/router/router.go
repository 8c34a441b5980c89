package router

import (
	"chiptest-go/internal/controller"
	"chiptest-go/internal/device"

	"github.com/gorilla/mux"
)

const apiVersion = "v1"

// NewRouter builds the HTTP router for a live controller.
func NewRouter(ctrl *controller.Controller) (*mux.Router, error) {
	devices := device.Devices{}

	routes, err := devices.Routes(ctrl, apiVersion)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	for _, route := range routes {
		r.HandleFunc(route.Path, route.Handler)
	}

	return r, nil
}
