package gemini

import "github.com/chadiek/live-demo/internal/media"

// clientMessage is the envelope for everything sent to the server.
// Exactly one field is set per message.
type clientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtime_input,omitempty"`
}

// Setup is the first message of a session (BidiGenerateContentSetup).
type Setup struct {
	Model                    string                    `json:"model"`
	GenerationConfig         *GenerationConfig         `json:"generationConfig,omitempty"`
	SystemInstruction        *Content                  `json:"systemInstruction,omitempty"`
	SessionResumption        *SessionResumption        `json:"sessionResumption,omitempty"`
	ContextWindowCompression *ContextWindowCompression `json:"contextWindowCompression,omitempty"`
}

// GenerationConfig selects response modalities and the synthesis voice.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig wraps the voice selection for audio responses.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

// VoiceConfig selects a prebuilt voice.
type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

// PrebuiltVoiceConfig names a prebuilt voice (e.g. "Leda").
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName,omitempty"`
}

// Content is a role-tagged sequence of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// SessionResumption requests resumption of a prior conversation. An
// empty handle starts fresh while still opting in to handle updates.
type SessionResumption struct {
	Handle string `json:"handle,omitempty"`
}

// ContextWindowCompression enables sliding-window context compression.
type ContextWindowCompression struct {
	SlidingWindow *SlidingWindow `json:"slidingWindow,omitempty"`
}

// SlidingWindow is an empty marker object per the API schema.
type SlidingWindow struct{}

// RealtimeInput streams tagged media payloads into the session.
type RealtimeInput struct {
	MediaChunks []media.Blob `json:"media_chunks"`
}

// ServerMessage is one inbound frame (BidiGenerateContentServerMessage).
type ServerMessage struct {
	SetupComplete           *SetupComplete           `json:"setupComplete,omitempty"`
	ServerContent           *ServerContent           `json:"serverContent,omitempty"`
	SessionResumptionUpdate *SessionResumptionUpdate `json:"sessionResumptionUpdate,omitempty"`
}

// SetupComplete acknowledges the setup message (empty object per docs).
type SetupComplete struct{}

// SessionResumptionUpdate carries a fresh resumption handle.
type SessionResumptionUpdate struct {
	NewHandle string `json:"newHandle,omitempty"`
	Resumable bool   `json:"resumable,omitempty"`
}

// ServerContent is the model output portion of a server message.
type ServerContent struct {
	ModelTurn    *ModelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
}

// ModelTurn is one increment of the model's response.
type ModelTurn struct {
	Parts []Part `json:"parts,omitempty"`
}

// Part is a content part: text or inline media. Note the server uses
// camelCase for inlineData/mimeType.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is base64-encoded inline media.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}
