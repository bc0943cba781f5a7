package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chadiek/live-demo/internal/config"
	"github.com/chadiek/live-demo/internal/session"
)

// Headless entrypoint: runs a single live session on the local mic,
// speaker and camera until interrupted. The browser-controlled server
// lives in cmd/server.
func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	configPath := flag.String("config", "", "path to the session config YAML (overrides CONFIG_PATH)")
	mediaPath := flag.String("media", "", "path to the media config YAML (overrides MEDIA_PATH)")
	flag.Parse()

	cfg := config.Load()
	if *configPath != "" {
		cfg.ConfigPath = *configPath
	}
	if *mediaPath != "" {
		cfg.MediaPath = *mediaPath
	}

	mgr := session.NewManager(cfg)

	status, err := mgr.Start()
	if err != nil {
		log.Fatalf("session start failed: %v", err)
	}
	log.Printf("session: %s", status)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("shutdown signal received: %v", sig)

	log.Printf("session: %s", mgr.Stop())
}
