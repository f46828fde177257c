package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageVariants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want MessageType
	}{
		{"audio", `{"type":"client_audio_chunk","call_id":"c1","pcm16_base64":"AAAA","sample_rate":16000}`, TypeClientAudioChunk},
		{"start listening", `{"type":"client_start_listening","call_id":"c1"}`, TypeClientStartListening},
		{"stop listening", `{"type":"client_stop_listening","call_id":"c1"}`, TypeClientStopListening},
		{"typed text", `{"type":"client_typed_text","call_id":"c1","text":"hi"}`, TypeClientTypedText},
		{"human text", `{"type":"client_human_text","call_id":"c1","text":"taking over"}`, TypeClientHumanText},
		{"takeover", `{"type":"client_takeover","call_id":"c1","reason":"manual"}`, TypeClientTakeover},
		{"end call", `{"type":"client_end_call","call_id":"c1","outcome":"completed"}`, TypeClientEndCall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := ParseClientMessage([]byte(tc.raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			var got MessageType
			switch m := msg.(type) {
			case ClientAudioChunk:
				got = m.Type
			case ClientStartListening:
				got = m.Type
			case ClientStopListening:
				got = m.Type
			case ClientTypedText:
				got = m.Type
			case ClientHumanText:
				got = m.Type
			case ClientTakeover:
				got = m.Type
			case ClientEndCall:
				got = m.Type
			default:
				t.Fatalf("unexpected variant %T", msg)
			}
			if got != tc.want {
				t.Fatalf("type = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestParseClientMessageRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"garbage", `{`},
		{"unknown type", `{"type":"telemetry_update","call_id":"c1"}`},
		{"audio without call id", `{"type":"client_audio_chunk","pcm16_base64":"AAAA","sample_rate":16000}`},
		{"typed text without text", `{"type":"client_typed_text","call_id":"c1"}`},
		{"audio bad sample rate", `{"type":"client_audio_chunk","call_id":"c1","pcm16_base64":"AAAA","sample_rate":0}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseClientMessage([]byte(tc.raw)); err == nil {
				t.Fatal("parse succeeded")
			}
		})
	}
}

func TestParseClientMessageUnsupportedType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"call_state","call_id":"c1"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
}
