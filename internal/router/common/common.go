package common

import "net/http"

// Route pairs a path with its handler. Device modules return these and the
// router wires them into mux.
type Route struct {
	Path    string
	Handler http.HandlerFunc
}
