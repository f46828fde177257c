package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// client -> server
	TypeClientAudioChunk     MessageType = "client_audio_chunk"
	TypeClientStartListening MessageType = "client_start_listening"
	TypeClientStopListening  MessageType = "client_stop_listening"
	TypeClientTypedText      MessageType = "client_typed_text"
	TypeClientHumanText      MessageType = "client_human_text"
	TypeClientTakeover       MessageType = "client_takeover"
	TypeClientEndCall        MessageType = "client_end_call"

	// server -> client
	TypeCallState        MessageType = "call_state"
	TypeListeningStarted MessageType = "listening_started"
	TypeListeningEnded   MessageType = "listening_ended"
	TypePartialSpeech    MessageType = "partial_speech"
	TypeTranscriptEntry  MessageType = "transcript_entry"
	TypeTelemetryUpdate  MessageType = "telemetry_update"
	TypeSpeakingStarted  MessageType = "speaking_started"
	TypeSpeakingAudio    MessageType = "speaking_audio"
	TypeSpeakingEnded    MessageType = "speaking_ended"
	TypeTakeoverStarted  MessageType = "takeover_started"
	TypeDurationTick     MessageType = "duration_tick"
	TypeCallEnded        MessageType = "call_ended"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	CallID      string      `json:"call_id"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
}

type ClientStartListening struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
}

type ClientStopListening struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
}

// ClientTypedText is the keyboard path: the operator types on behalf of the
// customer instead of speaking.
type ClientTypedText struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Text   string      `json:"text"`
}

// ClientHumanText carries a human agent's line while the call is in takeover.
type ClientHumanText struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Text   string      `json:"text"`
}

type ClientTakeover struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Reason string      `json:"reason,omitempty"`
}

type ClientEndCall struct {
	Type    MessageType `json:"type"`
	CallID  string      `json:"call_id"`
	Outcome string      `json:"outcome,omitempty"`
}

// CallState announces status changes; sent once on connect and after every
// transition.
type CallState struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Status string      `json:"status"`
}

type ListeningStarted struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
}

type ListeningEnded struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Reason string      `json:"reason,omitempty"`
}

type PartialSpeech struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Text   string      `json:"text"`
}

type TranscriptEntry struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	Role      string      `json:"role"`
	Text      string      `json:"text"`
	Label     string      `json:"label"`
	Timestamp int64       `json:"ts_ms"`
}

type TelemetryUpdate struct {
	Type            MessageType `json:"type"`
	CallID          string      `json:"call_id"`
	AIConfidence    float64     `json:"ai_confidence"`
	SentimentScore  float64     `json:"sentiment_score"`
	Intent          string      `json:"intent,omitempty"`
	ModelDiscussed  string      `json:"model_discussed,omitempty"`
	FunctionsCalled []string    `json:"functions_called,omitempty"`
}

type SpeakingStarted struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Engine string      `json:"engine"`
	Text   string      `json:"text"`
}

type SpeakingAudio struct {
	Type        MessageType `json:"type"`
	CallID      string      `json:"call_id"`
	MIME        string      `json:"mime"`
	SampleRate  int         `json:"sample_rate"`
	AudioBase64 string      `json:"audio_base64"`
	DurationMS  int64       `json:"duration_ms"`
}

type SpeakingEnded struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Reason string      `json:"reason,omitempty"`
}

type TakeoverStarted struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Reason string      `json:"reason,omitempty"`
}

type DurationTick struct {
	Type           MessageType `json:"type"`
	CallID         string      `json:"call_id"`
	ElapsedSeconds int         `json:"elapsed_seconds"`
	Label          string      `json:"label"`
}

type CallEnded struct {
	Type            MessageType `json:"type"`
	CallID          string      `json:"call_id"`
	Outcome         string      `json:"outcome"`
	DurationSeconds int         `json:"duration_seconds"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	CallID    string      `json:"call_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail,omitempty"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientStartListening:
		var msg ClientStartListening
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" {
			return nil, errors.New("invalid client_start_listening")
		}
		return msg, nil
	case TypeClientStopListening:
		var msg ClientStopListening
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" {
			return nil, errors.New("invalid client_stop_listening")
		}
		return msg, nil
	case TypeClientTypedText:
		var msg ClientTypedText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || msg.Text == "" {
			return nil, errors.New("invalid client_typed_text")
		}
		return msg, nil
	case TypeClientHumanText:
		var msg ClientHumanText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || msg.Text == "" {
			return nil, errors.New("invalid client_human_text")
		}
		return msg, nil
	case TypeClientTakeover:
		var msg ClientTakeover
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" {
			return nil, errors.New("invalid client_takeover")
		}
		return msg, nil
	case TypeClientEndCall:
		var msg ClientEndCall
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" {
			return nil, errors.New("invalid client_end_call")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
