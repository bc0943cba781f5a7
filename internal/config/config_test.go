package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("CONTROL_PASSWORD", "")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("MEDIA_PATH", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.ConfigPath != "config.yaml" {
		t.Fatalf("expected default config path, got %q", cfg.ConfigPath)
	}
	if cfg.MediaPath != "media.yaml" {
		t.Fatalf("expected default media path, got %q", cfg.MediaPath)
	}

	t.Setenv("HTTP_ADDRESS", ":9999")
	t.Setenv("CONFIG_PATH", "/tmp/c.yaml")
	cfg = Load()
	if cfg.HTTPAddress != ":9999" {
		t.Fatalf("expected env http address, got %q", cfg.HTTPAddress)
	}
	if cfg.ConfigPath != "/tmp/c.yaml" {
		t.Fatalf("expected env config path, got %q", cfg.ConfigPath)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSettings_MergeAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	mediaPath := writeFile(t, dir, "media.yaml", `
MIC_TYPE: computer_mic
INPUT_SAMPLE_RATE: 16000
OUTPUT_SAMPLE_RATE: 24000
VIDEO_CAPTURE_INTERVAL: 1.0
THUMBNAIL_MAX_SIZE: [1024, 768]
VOICE_NAME: FromMedia
`)
	configPath := writeFile(t, dir, "config.yaml", `
GEMINI_MODEL: gemini-2.0-flash-exp
VOICE_NAME: Leda
INSTRUCTIONS_FILE: instructions.txt
`)

	st, err := LoadSettings(configPath, mediaPath)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if st.MicType != "computer_mic" {
		t.Fatalf("expected media key to survive, got %q", st.MicType)
	}
	if st.GeminiModel != "gemini-2.0-flash-exp" {
		t.Fatalf("expected config key to survive, got %q", st.GeminiModel)
	}
	// config.yaml overrides media.yaml on conflict
	if st.VoiceName != "Leda" {
		t.Fatalf("expected config to win on conflict, got %q", st.VoiceName)
	}
	if st.InputSampleRate != 16000 || st.OutputSampleRate != 24000 {
		t.Fatalf("unexpected sample rates: %d/%d", st.InputSampleRate, st.OutputSampleRate)
	}
	if w, h := st.ThumbnailBounds(); w != 1024 || h != 768 {
		t.Fatalf("unexpected thumbnail bounds %dx%d", w, h)
	}
	// channels default to mono when unset
	if st.AudioChannels != 1 {
		t.Fatalf("expected default 1 channel, got %d", st.AudioChannels)
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.yaml", "GEMINI_MODEL: m\n")
	if _, err := LoadSettings(configPath, filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing media file")
	}
	mediaPath := writeFile(t, dir, "media.yaml", "MIC_TYPE: computer_mic\n")
	if _, err := LoadSettings(filepath.Join(dir, "missing.yaml"), mediaPath); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestThumbnailBounds_Default(t *testing.T) {
	var st Settings
	if w, h := st.ThumbnailBounds(); w != 1024 || h != 1024 {
		t.Fatalf("expected 1024x1024 default, got %dx%d", w, h)
	}
	st.ThumbnailMaxSize = []int{512}
	if w, h := st.ThumbnailBounds(); w != 1024 || h != 1024 {
		t.Fatalf("expected default for short slice, got %dx%d", w, h)
	}
}

func TestLoadInstruction(t *testing.T) {
	dir := t.TempDir()

	// Missing key
	if _, err := LoadInstruction(Settings{}); err == nil {
		t.Fatalf("expected error when INSTRUCTIONS_FILE unset")
	}

	// Missing file
	if _, err := LoadInstruction(Settings{InstructionsFile: filepath.Join(dir, "nope.txt")}); err == nil {
		t.Fatalf("expected error for missing instruction file")
	}

	// Whitespace-only file
	emptyPath := writeFile(t, dir, "empty.txt", "  \n\t\n")
	if _, err := LoadInstruction(Settings{InstructionsFile: emptyPath}); err == nil {
		t.Fatalf("expected error for empty instruction file")
	}

	// Valid file is trimmed
	okPath := writeFile(t, dir, "ok.txt", "  be brief\n")
	text, err := LoadInstruction(Settings{InstructionsFile: okPath})
	if err != nil {
		t.Fatalf("LoadInstruction: %v", err)
	}
	if text != "be brief" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
}
