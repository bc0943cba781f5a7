package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// HTTPOptions carries HTTP-level options for the Gemini client.
type HTTPOptions struct {
	APIVersion string `yaml:"api_version"`
}

// Settings is the merged runtime configuration for one media session.
// Keys mirror the settings files: media.yaml holds A/V parameters,
// config.yaml holds session parameters and overrides media.yaml on
// conflict. The struct is loaded once per session start and treated as
// immutable afterwards.
type Settings struct {
	MicType              string      `yaml:"MIC_TYPE"`
	AudioChannels        int         `yaml:"AUDIO_CHANNELS"`
	InputSampleRate      int         `yaml:"INPUT_SAMPLE_RATE"`
	OutputSampleRate     int         `yaml:"OUTPUT_SAMPLE_RATE"`
	VideoCaptureInterval float64     `yaml:"VIDEO_CAPTURE_INTERVAL"`
	ThumbnailMaxSize     []int       `yaml:"THUMBNAIL_MAX_SIZE"`
	GeminiModel          string      `yaml:"GEMINI_MODEL"`
	GeminiHTTPOptions    HTTPOptions `yaml:"GEMINI_HTTP_OPTIONS"`
	ResponseModalities   []string    `yaml:"GEMINI_RESPONSE_MODALITIES"`
	VoiceName            string      `yaml:"VOICE_NAME"`
	InstructionsFile     string      `yaml:"INSTRUCTIONS_FILE"`
	WebUITitle           string      `yaml:"WEB_UI_TITLE"`
}

// ThumbnailBounds returns the max width/height for frame thumbnails,
// falling back to 1024x1024 when the settings omit them.
func (s Settings) ThumbnailBounds() (w, h int) {
	if len(s.ThumbnailMaxSize) >= 2 && s.ThumbnailMaxSize[0] > 0 && s.ThumbnailMaxSize[1] > 0 {
		return s.ThumbnailMaxSize[0], s.ThumbnailMaxSize[1]
	}
	return 1024, 1024
}

// LoadSettings reads both settings files and merges them, with keys from
// configPath taking precedence over mediaPath.
func LoadSettings(configPath, mediaPath string) (Settings, error) {
	media, err := readYAMLMap(mediaPath)
	if err != nil {
		return Settings{}, fmt.Errorf("media settings: %w", err)
	}
	dev, err := readYAMLMap(configPath)
	if err != nil {
		return Settings{}, fmt.Errorf("session settings: %w", err)
	}
	for k, v := range dev {
		media[k] = v
	}

	merged, err := yaml.Marshal(media)
	if err != nil {
		return Settings{}, fmt.Errorf("merge settings: %w", err)
	}
	var st Settings
	if err := yaml.Unmarshal(merged, &st); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if st.AudioChannels == 0 {
		st.AudioChannels = 1
	}
	return st, nil
}

func readYAMLMap(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadInstruction reads the system instruction text named by the
// settings. A missing path key, a missing file, or a file that is empty
// after trimming whitespace are all startup errors.
func LoadInstruction(st Settings) (string, error) {
	if st.InstructionsFile == "" {
		return "", fmt.Errorf("INSTRUCTIONS_FILE not set in configuration")
	}
	raw, err := os.ReadFile(st.InstructionsFile)
	if err != nil {
		return "", fmt.Errorf("instruction file: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("instruction file is empty: %s", st.InstructionsFile)
	}
	return text, nil
}
