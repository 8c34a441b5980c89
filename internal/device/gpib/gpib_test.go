package gpib

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"chiptest-go/internal/common/config"
	"chiptest-go/internal/common/logging"
	"chiptest-go/internal/controller"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

// setupScanBridge echoes scan payloads over a websocket so the controller can
// come up against a fake FPGA.
func setupScanBridge(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("Failed to upgrade connection to WebSocket: %v", err)
		}
		defer conn.Close()

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if len(frame) < 1 {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame[1:]); err != nil {
				return
			}
		}
	}))
}

// setupInstrument answers SCPI queries from a canned response table, line by
// line on a raw TCP socket, and swallows everything else (including the
// bridge addressing preamble).
func setupInstrument(t *testing.T, responses map[string]string) (string, int) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Could not listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				reader := bufio.NewReader(conn)
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						return
					}
					if response, ok := responses[strings.TrimSpace(line)]; ok {
						conn.Write([]byte(response + "\n"))
					}
				}
			}(conn)
		}
	}()

	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func setupRouter(t *testing.T, cfg *config.Config) *mux.Router {
	ctrl, err := controller.New(cfg)
	if err != nil {
		t.Fatalf("Could not build controller: %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })

	device := Device{}
	routes, err := device.Routes(ctrl)
	if err != nil {
		t.Fatalf("Routes returned an error: %v", err)
	}

	router := mux.NewRouter()
	for _, r := range routes {
		router.HandleFunc(r.Path, r.Handler)
	}
	return router
}

func simConfig() *config.Config {
	return &config.Config{
		Fpga: config.Binding{Module: "fpga", Class: "Sim", Params: map[string]any{}},
		Scan: config.Scan{Fname: "testdata/scan_chain.txt"},
		Gpib: map[string]config.Binding{
			"oscope": {
				Module: "gpib",
				Class:  "AG54855A",
				Params: map[string]any{"bid": 0, "pad": 7},
			},
			"siggen": {
				Module: "gpib",
				Class:  "AG81142A",
				Params: map[string]any{"ip_addr": "169.254.122.10", "port": 5025},
			},
		},
	}
}

func TestRoutes(t *testing.T) {
	logging.SetLogLevel(logging.Error)

	ctrl, err := controller.New(simConfig())
	if err != nil {
		t.Fatalf("Could not build controller: %v", err)
	}
	defer ctrl.Close()

	device := Device{}
	routes, err := device.Routes(ctrl)
	if err != nil {
		t.Fatalf("Routes returned an error: %v", err)
	}

	// base, trailing slash plus one route per instrument
	assert.Equal(t, 4, len(routes))
}

func TestHandlersSimulated(t *testing.T) {
	logging.SetLogLevel(logging.Error)

	testCases := []struct {
		name         string
		method       string
		url          string
		data         []byte
		expectedCode int
		expectedBody string
	}{
		{
			name:         "get_device_names",
			method:       "GET",
			url:          "/gpib",
			data:         nil,
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":["oscope","siggen"]}`,
		},
		{
			name:         "get_oscope_codes",
			method:       "GET",
			url:          "/gpib/oscope",
			data:         nil,
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":["write","query","status","display_range","full_scale","set_display_range","time_delta","vmax","vmin","vrms"]}`,
		},
		{
			name:         "get_siggen_codes",
			method:       "GET",
			url:          "/gpib/siggen",
			data:         nil,
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":["write","query","status","output_delay","set_output_delay"]}`,
		},
		{
			name:         "query_in_simulation",
			method:       "POST",
			url:          "/gpib/oscope?code=query&cmd=*IDN?",
			data:         nil,
			expectedCode: 503,
			expectedBody: `{"message":"Simulation Mode"}`,
		},
		{
			name:         "write_in_simulation",
			method:       "POST",
			url:          "/gpib/siggen",
			data:         []byte(`{"code": "write", "cmd": "OUTP:DEL 0"}`),
			expectedCode: 503,
			expectedBody: `{"message":"Simulation Mode"}`,
		},
		{
			name:         "driver_op_in_simulation",
			method:       "POST",
			url:          "/gpib/oscope?code=vmax&value=1",
			data:         nil,
			expectedCode: 503,
			expectedBody: `{"message":"Simulation Mode"}`,
		},
		{
			name:         "unknown_device",
			method:       "POST",
			url:          "/gpib/multimeter?code=query&cmd=*IDN?",
			data:         nil,
			expectedCode: 404,
			expectedBody: "404 page not found\n",
		},
		{
			name:         "unsupported_base_method",
			method:       "POST",
			url:          "/gpib",
			data:         nil,
			expectedCode: 405,
			expectedBody: `{"message":"Method Not Allowed"}`,
		},
		{
			name:         "unsupported_device_method",
			method:       "DELETE",
			url:          "/gpib/oscope",
			data:         nil,
			expectedCode: 405,
			expectedBody: `{"message":"Method Not Allowed"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupRouter(t, simConfig())

			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(tc.method, tc.url, bytes.NewReader(tc.data))
			if tc.data != nil {
				request.Header.Set("Content-Type", "application/json")
			}

			router.ServeHTTP(recorder, request)

			if recorder.Code != tc.expectedCode {
				t.Fatalf("Unexpected HTTP status code. Expected: %d, Got: %d", tc.expectedCode, recorder.Code)
			}

			if recorder.Body.String() != tc.expectedBody {
				t.Fatalf("Unexpected response body. Expected: %s, Got: %s", tc.expectedBody, recorder.Body.String())
			}
		})
	}
}

func TestHandlersLive(t *testing.T) {
	logging.SetLogLevel(logging.Error)

	bridge := setupScanBridge(t)
	defer bridge.Close()
	host, port := setupInstrument(t, map[string]string{
		"*IDN?":                                 "Agilent Technologies,81142A",
		"OUTP:DEL?":                             "1.25e-10",
		":measure:vmax? channel1":               "0.35",
		":measure:deltatime? channel1,channel2": "4.2e-11",
		":timebase:range?":                      "2e-08",
	})

	cfg := &config.Config{
		Fpga: config.Binding{
			Module: "fpga",
			Class:  "Websocket",
			Params: map[string]any{
				"host":       strings.TrimPrefix(bridge.URL, "http://"),
				"timeout_ms": 1000,
			},
		},
		Scan: config.Scan{Fname: "testdata/scan_chain.txt"},
		Gpib: map[string]config.Binding{
			"oscope": {
				Module: "gpib",
				Class:  "AG54855A",
				Params: map[string]any{
					"host":       net.JoinHostPort(host, strconv.Itoa(port)),
					"pad":        7,
					"timeout_ms": 1000,
				},
			},
			"siggen": {
				Module: "gpib",
				Class:  "AG81142A",
				Params: map[string]any{
					"ip_addr":    host,
					"port":       port,
					"timeout_ms": 1000,
				},
			},
		},
	}
	router := setupRouter(t, cfg)

	testCases := []struct {
		name         string
		method       string
		url          string
		data         []byte
		expectedCode int
		expectedBody string
	}{
		{
			name:         "query_identity",
			method:       "POST",
			url:          "/gpib/siggen?code=query&cmd=*IDN?",
			data:         nil,
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":"Agilent Technologies,81142A"}`,
		},
		{
			name:         "query_identity_via_bridge",
			method:       "POST",
			url:          "/gpib/oscope",
			data:         []byte(`{"code": "query", "cmd": "*IDN?"}`),
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":"Agilent Technologies,81142A"}`,
		},
		{
			name:         "write_command",
			method:       "POST",
			url:          "/gpib/siggen?code=write&cmd=OUTP:DEL+0",
			data:         nil,
			expectedCode: 200,
			expectedBody: `{"message":"OK"}`,
		},
		{
			name:         "status_without_pinger",
			method:       "POST",
			url:          "/gpib/oscope?code=status",
			data:         nil,
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":"unknown"}`,
		},
		{
			name:         "oscope_vmax",
			method:       "POST",
			url:          "/gpib/oscope?code=vmax&value=1",
			data:         nil,
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":0.35}`,
		},
		{
			name:         "oscope_time_delta",
			method:       "POST",
			url:          "/gpib/oscope",
			data:         []byte(`{"code": "time_delta", "cmd": "1,2"}`),
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":4.2e-11}`,
		},
		{
			name:         "oscope_display_range",
			method:       "POST",
			url:          "/gpib/oscope?code=display_range",
			data:         nil,
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":2e-8}`,
		},
		{
			name:         "siggen_output_delay",
			method:       "POST",
			url:          "/gpib/siggen",
			data:         []byte(`{"code": "output_delay"}`),
			expectedCode: 200,
			expectedBody: `{"message":"OK","data":1.25e-10}`,
		},
		{
			name:         "siggen_set_output_delay",
			method:       "POST",
			url:          "/gpib/siggen",
			data:         []byte(`{"code": "set_output_delay", "value": 2.5e-10}`),
			expectedCode: 200,
			expectedBody: `{"message":"OK"}`,
		},
		{
			name:         "vmax_missing_channel",
			method:       "POST",
			url:          "/gpib/oscope?code=vmax",
			data:         nil,
			expectedCode: 400,
			expectedBody: `{"message":"Invalid Parameter: value"}`,
		},
		{
			name:         "time_delta_bad_channel_pair",
			method:       "POST",
			url:          "/gpib/oscope",
			data:         []byte(`{"code": "time_delta", "cmd": "1"}`),
			expectedCode: 400,
			expectedBody: `{"message":"Invalid Parameter: cmd"}`,
		},
		{
			name:         "query_missing_cmd",
			method:       "POST",
			url:          "/gpib/siggen?code=query",
			data:         nil,
			expectedCode: 400,
			expectedBody: `{"message":"Invalid Parameter: cmd"}`,
		},
		{
			name:         "unsupported_code_variable",
			method:       "POST",
			url:          "/gpib/siggen?code=monkey",
			data:         nil,
			expectedCode: 400,
			expectedBody: `{"message":"Invalid Parameter: code"}`,
		},
		{
			name:         "malformed_json_body",
			method:       "POST",
			url:          "/gpib/siggen",
			data:         []byte(`not_json`),
			expectedCode: 400,
			expectedBody: `{"message":"Malformed Or Empty JSON Body"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(tc.method, tc.url, bytes.NewReader(tc.data))
			if tc.data != nil {
				request.Header.Set("Content-Type", "application/json")
			}

			router.ServeHTTP(recorder, request)

			if recorder.Code != tc.expectedCode {
				t.Fatalf("Unexpected HTTP status code. Expected: %d, Got: %d", tc.expectedCode, recorder.Code)
			}

			if recorder.Body.String() != tc.expectedBody {
				t.Fatalf("Unexpected response body. Expected: %s, Got: %s", tc.expectedBody, recorder.Body.String())
			}
		})
	}
}
