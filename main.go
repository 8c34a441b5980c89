package main

import (
	"flag"
	"log"
	"net/http"
	"os"

	"chiptest-go/internal/common/config"
	"chiptest-go/internal/common/logging"
	"chiptest-go/internal/controller"
	"chiptest-go/internal/router"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHIPTESTCONFIG"), "path to the controller configuration document")
	listenAddr := flag.String("listen", ":8080", "listen address")
	debug := flag.Bool("debug", false, "log instrument traffic")
	flag.Parse()

	if *debug {
		logging.SetLogLevel(logging.Debug)
	}

	if *configPath == "" {
		log.Fatal("no configuration document given (use -config or CHIPTESTCONFIG)")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("could not load %s: %v", *configPath, err)
	}

	ctrl, err := controller.New(cfg)
	if err != nil {
		log.Fatalf("could not build controller: %v", err)
	}
	defer ctrl.Close()

	r, err := router.NewRouter(ctrl)
	if err != nil {
		log.Fatalf("failed to create router: %v", err)
	}

	log.Println("Server listening on " + *listenAddr)
	log.Fatal(http.ListenAndServe(*listenAddr, logging.RequestLogger(r)))
}
