package session

// Wire-level message shapes for the live endpoint. A client message
// carries exactly one of its payload fields; the server likewise. The
// transport is the only component that marshals these.

// MediaBlob is a base64-encoded media payload with its MIME type.
type MediaBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ClientMessage is the tagged union sent to the endpoint.
type ClientMessage struct {
	Setup         *SetupPayload  `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ClientContent *ClientContent `json:"clientContent,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// SetupPayload configures the session immediately after connect.
type SetupPayload struct {
	Model             string            `json:"model"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []ToolDeclaration `json:"tools,omitempty"`
}

// GenerationConfig selects response modality and voice.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig selects the synthesized voice.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

// VoiceConfig names a prebuilt voice.
type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

// PrebuiltVoiceConfig is the voice name wrapper.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// ToolDeclaration advertises callable functions in the setup message.
type ToolDeclaration struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// FunctionDeclaration describes one callable function.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// RealtimeInput streams captured media to the endpoint.
type RealtimeInput struct {
	MediaChunks []MediaBlob `json:"mediaChunks"`
}

// ClientContent injects out-of-band user turns (text).
type ClientContent struct {
	Turns        []Content `json:"turns,omitempty"`
	TurnComplete bool      `json:"turnComplete"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is one piece of content: text or inline media.
type Part struct {
	Text       string     `json:"text,omitempty"`
	InlineData *MediaBlob `json:"inlineData,omitempty"`
}

// ToolResponse resolves previously issued function calls.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// FunctionResponse is the correlated result for one function call.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Response map[string]any `json:"response"`
}

// ServerMessage is the tagged union received from the endpoint.
type ServerMessage struct {
	SetupComplete        *SetupComplete        `json:"setupComplete,omitempty"`
	ServerContent        *ServerContent        `json:"serverContent,omitempty"`
	ToolCall             *ToolCallPayload      `json:"toolCall,omitempty"`
	ToolCallCancellation *ToolCallCancellation `json:"toolCallCancellation,omitempty"`
}

// SetupComplete acknowledges the setup message.
type SetupComplete struct{}

// ServerContent carries synthesized audio, text, and control flags.
type ServerContent struct {
	ModelTurn    *Content `json:"modelTurn,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
}

// ToolCallPayload is a batch of function calls issued by the server.
type ToolCallPayload struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// FunctionCall is one server-issued call to a registered tool.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolCallCancellation withdraws previously issued calls.
type ToolCallCancellation struct {
	IDs []string `json:"ids,omitempty"`
}

// MIME types used on the wire.
const (
	MimePCM16k   = "audio/pcm;rate=16000"
	MimePCM24k   = "audio/pcm;rate=24000"
	MimeJPEG     = "image/jpeg"
	MimePNG      = "image/png"
	mimePCMPlain = "audio/pcm"
)

// IsPCM reports whether a MIME type is a linear PCM audio payload.
func IsPCM(mimeType string) bool {
	switch mimeType {
	case mimePCMPlain, MimePCM16k, MimePCM24k:
		return true
	}
	return false
}
