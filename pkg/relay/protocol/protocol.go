// Package protocol defines the wire shapes a relay call speaks: the
// closed set of upstream realtime events the relay reacts to, the
// control frames it sends upstream, and the frames it originates
// toward the browser client.
//
// Both relay directions are passthrough by default. Classification
// never rejects a frame; anything outside the closed set is Opaque and
// is forwarded untouched.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cxbuddy/voicerelay/pkg/core"
)

// Upstream event types the relay inspects. Everything else passes
// through opaquely.
const (
	EventFunctionCallDone    = "response.function_call_arguments.done"
	EventAgentTranscriptDone = "response.audio_transcript.done"
	// GA surface renamed the transcript event; both spellings are live.
	EventAgentTranscriptDoneGA = "response.output_audio_transcript.done"
	EventUserTranscriptDone    = "conversation.item.input_audio_transcription.completed"
	EventSpeechStarted         = "input_audio_buffer.speech_started"
	EventError                 = "error"
	EventItemCreated           = "conversation.item.created"
	EventResponseDone          = "response.done"
)

type FunctionCallDone struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type AgentTranscriptDone struct {
	Transcript string `json:"transcript"`
}

type UserTranscriptDone struct {
	Transcript string `json:"transcript"`
}

type SpeechStarted struct{}

type UpstreamError struct {
	Error json.RawMessage `json:"error"`
}

// Lifecycle covers events the relay only logs.
type Lifecycle struct {
	Type string
}

// Opaque marks frames the relay forwards without interpretation,
// including frames that are not valid JSON.
type Opaque struct{}

// ClassifyUpstream maps one upstream text frame onto the closed event
// set. It never fails: malformed JSON and unknown types are Opaque.
func ClassifyUpstream(data []byte) any {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Opaque{}
	}

	switch envelope.Type {
	case EventFunctionCallDone:
		var msg FunctionCallDone
		if err := json.Unmarshal(data, &msg); err != nil {
			return Opaque{}
		}
		if strings.TrimSpace(msg.Arguments) == "" {
			msg.Arguments = "{}"
		}
		return msg
	case EventAgentTranscriptDone, EventAgentTranscriptDoneGA:
		var msg AgentTranscriptDone
		if err := json.Unmarshal(data, &msg); err != nil {
			return Opaque{}
		}
		return msg
	case EventUserTranscriptDone:
		var msg UserTranscriptDone
		if err := json.Unmarshal(data, &msg); err != nil {
			return Opaque{}
		}
		return msg
	case EventSpeechStarted:
		return SpeechStarted{}
	case EventError:
		var msg UpstreamError
		if err := json.Unmarshal(data, &msg); err != nil {
			return Opaque{}
		}
		return msg
	case EventItemCreated, EventResponseDone:
		return Lifecycle{Type: envelope.Type}
	default:
		return Opaque{}
	}
}

// ExtractUserTexts pulls typed user text out of a client-origin frame
// for transcript logging. Only conversation.item.create frames with a
// user message item carry any; audio and unknown frames return nil.
func ExtractUserTexts(data []byte) []string {
	var frame struct {
		Type string `json:"type"`
		Item struct {
			Type    string `json:"type"`
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"item"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil
	}
	if frame.Type != "conversation.item.create" || frame.Item.Type != "message" || frame.Item.Role != "user" {
		return nil
	}
	var texts []string
	for _, c := range frame.Item.Content {
		if c.Type == "input_text" && c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	return texts
}

// Turn detection defaults match the tuned production values; they are
// applied to every session regardless of persona.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

type InputAudioTranscription struct {
	Model string `json:"model"`
}

type SessionSettings struct {
	Modalities              []string                `json:"modalities"`
	Instructions            string                  `json:"instructions"`
	Voice                   string                  `json:"voice"`
	InputAudioFormat        string                  `json:"input_audio_format"`
	OutputAudioFormat       string                  `json:"output_audio_format"`
	InputAudioTranscription InputAudioTranscription `json:"input_audio_transcription"`
	TurnDetection           TurnDetection           `json:"turn_detection"`
	Temperature             float64                 `json:"temperature"`
	MaxResponseOutputTokens int                     `json:"max_response_output_tokens"`
	Tools                   []core.Tool             `json:"tools,omitempty"`
}

type SessionUpdate struct {
	Type    string          `json:"type"`
	Session SessionSettings `json:"session"`
}

func NewSessionUpdate(voice, instructions string, tools []core.Tool) SessionUpdate {
	return SessionUpdate{
		Type: "session.update",
		Session: SessionSettings{
			Modalities:              []string{"text", "audio"},
			Instructions:            instructions,
			Voice:                   voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: InputAudioTranscription{Model: "whisper-1"},
			TurnDetection: TurnDetection{
				Type:              "server_vad",
				Threshold:         0.6,
				PrefixPaddingMS:   200,
				SilenceDurationMS: 400,
				CreateResponse:    true,
			},
			Temperature:             0.8,
			MaxResponseOutputTokens: 4096,
			Tools:                   tools,
		},
	}
}

type ResponseCreate struct {
	Type string `json:"type"`
}

func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: "response.create"}
}

type FunctionCallOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type ConversationItemCreate struct {
	Type string                 `json:"type"`
	Item FunctionCallOutputItem `json:"item"`
}

func NewFunctionCallOutput(callID, output string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: "conversation.item.create",
		Item: FunctionCallOutputItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

// AgentHandoff tells the browser to tear down and reconnect as the
// target persona. ContextID lets the next call claim the parked
// conversation history.
type AgentHandoff struct {
	Type        string `json:"type"`
	TargetAgent string `json:"target_agent"`
	Message     string `json:"message"`
	ContextID   string `json:"context_id,omitempty"`
}

func NewAgentHandoff(target, title, contextID string) AgentHandoff {
	return AgentHandoff{
		Type:        "agent.handoff",
		TargetAgent: target,
		Message:     fmt.Sprintf("Transferring to %s...", title),
		ContextID:   contextID,
	}
}

// RelayError is a relay-origin error frame, distinct from upstream
// error events which pass through verbatim.
type RelayError struct {
	Type      string         `json:"type"`
	Scope     string         `json:"scope,omitempty"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Close     bool           `json:"close,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

const (
	ScopeCall     = "call"
	ScopeUpstream = "upstream"
)

func NewRelayError(scope, code, message string) RelayError {
	return RelayError{Type: "relay.error", Scope: scope, Code: code, Message: message}
}
