package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autocrm/dealervoice/internal/audio"
)

// Built-in ElevenLabs voices by friendly name.
var elevenVoiceIDs = map[string]string{
	"rachel": "21m00Tcm4TlvDq8ikWAM",
	"domi":   "AZnzlk1XvdvUeBnXmlld",
	"bella":  "EXAVITQu4vr4xnSDxMaL",
	"josh":   "TxGEqnHWrfWFTfGW9XjX",
	"arnold": "VR6AewLTigWG4xSOukaG",
	"adam":   "pNInz6obpnDSqx8Tnw8t",
}

type ElevenLabsConfig struct {
	APIKey     string
	BaseURL    string
	WSBaseURL  string
	Voice      string
	ModelID    string
	STTModelID string
}

// ElevenLabsSynthesizer requests PCM speech over the REST API.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = "rachel"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	return &ElevenLabsSynthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *ElevenLabsSynthesizer) Name() string { return "elevenlabs" }

// Probe lists voices, which validates both reachability and the API key.
func (s *ElevenLabsSynthesizer) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.cfg.BaseURL, "/")+"/v1/voices", nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe elevenlabs: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("probe elevenlabs: status %d", res.StatusCode)
	}
	return nil
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text, language string) (AudioClip, error) {
	voiceID := s.cfg.Voice
	if id, ok := elevenVoiceIDs[strings.ToLower(voiceID)]; ok {
		voiceID = id
	}

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": s.cfg.ModelID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return AudioClip{}, fmt.Errorf("marshal request: %w", err)
	}

	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "?output_format=pcm_16000"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return AudioClip{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return AudioClip{}, fmt.Errorf("synthesize: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return AudioClip{}, fmt.Errorf("elevenlabs status %d: %s", res.StatusCode, string(body))
	}

	pcm, err := io.ReadAll(res.Body)
	if err != nil {
		return AudioClip{}, fmt.Errorf("read audio: %w", err)
	}

	return AudioClip{
		Data:       pcm,
		MIME:       "audio/pcm",
		SampleRate: 16000,
		Duration:   audio.PCM16Duration(pcm, 16000),
	}, nil
}

// ElevenLabsRecognizer streams audio to the realtime speech-to-text
// websocket.
type ElevenLabsRecognizer struct {
	cfg ElevenLabsConfig
}

func NewElevenLabsRecognizer(cfg ElevenLabsConfig) *ElevenLabsRecognizer {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.STTModelID) == "" {
		cfg.STTModelID = "scribe_v1"
	}
	return &ElevenLabsRecognizer{cfg: cfg}
}

func (r *ElevenLabsRecognizer) Start(ctx context.Context, language string) (RecognitionSession, error) {
	u, err := url.Parse(strings.TrimRight(r.cfg.WSBaseURL, "/") + "/v1/speech-to-text/realtime")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model_id", r.cfg.STTModelID)
	q.Set("commit_strategy", "vad")
	if language != "" {
		q.Set("language_code", language)
	}
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", r.cfg.APIKey)

	conn, res, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		kind := KindNetwork
		if res != nil && (res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden) {
			kind = KindPermissionDenied
		}
		return nil, &RecognitionError{Kind: kind, Detail: err.Error()}
	}

	s := &elevenRecognitionSession{
		conn:   conn,
		events: make(chan RecognitionEvent, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

type elevenRecognitionSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	events    chan RecognitionEvent
}

func (s *elevenRecognitionSession) Push(_ context.Context, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	payload := map[string]any{
		"message_type":  "input_audio_chunk",
		"audio_base_64": base64.StdEncoding.EncodeToString(pcm),
		"sample_rate":   sampleRate,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *elevenRecognitionSession) Events() <-chan RecognitionEvent { return s.events }

// readLoop is the only writer and the only closer of the events channel.
// Close tears the conn down and signals via done; the read error that
// produces must not be reported as a recognition failure.
func (s *elevenRecognitionSession) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				var netErr net.Error
				kind := KindAborted
				if ok := isNetError(err, &netErr); ok {
					kind = KindNetwork
				}
				s.emit(RecognitionEvent{Type: RecognitionFailed, Err: &RecognitionError{Kind: kind, Detail: err.Error()}})
			}
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		switch asString(raw["message_type"]) {
		case "partial_transcript":
			s.emit(RecognitionEvent{Type: RecognitionPartial, Text: asString(raw["text"])})
		case "committed_transcript", "committed_transcript_with_timestamps":
			text := strings.TrimSpace(asString(raw["text"]))
			if text == "" {
				s.emit(RecognitionEvent{Type: RecognitionFailed, Err: &RecognitionError{Kind: KindNoSpeech}})
				return
			}
			s.emit(RecognitionEvent{Type: RecognitionFinal, Text: text, Confidence: asFloat(raw["confidence"], 0.9)})
			return
		case "session_started", "", "input_audio_chunk":
			// ignore control traffic
		default:
			s.emit(RecognitionEvent{
				Type: RecognitionFailed,
				Err:  &RecognitionError{Kind: KindOther, Detail: asString(raw["error"])},
			})
			return
		}
	}
}

// emit never blocks past Close: a consumer that stopped draining after
// calling Close must not wedge the read loop.
func (s *elevenRecognitionSession) emit(ev RecognitionEvent) {
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

func (s *elevenRecognitionSession) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		close(s.done)
		retErr = s.conn.Close()
	})
	return retErr
}

func isNetError(err error, target *net.Error) bool {
	if ne, ok := err.(net.Error); ok {
		*target = ne
		return true
	}
	return false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any, def float64) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return def
}
