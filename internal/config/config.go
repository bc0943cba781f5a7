package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration read from the environment.
// The Gemini API key is deliberately not part of it: the session manager
// reads GEMINI_API_KEY at session-start time so a key added after boot
// is picked up without a restart.
type Config struct {
	HTTPAddress     string
	ControlPassword string
	ConfigPath      string
	MediaPath       string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	password := os.Getenv("CONTROL_PASSWORD")
	if password == "" {
		log.Println("Warning: CONTROL_PASSWORD not set - control API is open")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	mediaPath := os.Getenv("MEDIA_PATH")
	if mediaPath == "" {
		mediaPath = "media.yaml"
	}

	log.Printf("config: HTTP_ADDRESS=%s CONFIG_PATH=%s MEDIA_PATH=%s", addr, configPath, mediaPath)
	return Config{
		HTTPAddress:     addr,
		ControlPassword: password,
		ConfigPath:      configPath,
		MediaPath:       mediaPath,
	}
}
