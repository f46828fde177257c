package voice

import (
	"context"
	"time"
)

// RecognitionKind classifies recognition failures. The orchestrator treats
// no-speech, network and other as retryable by reprompting; permission
// denials and aborts end the listen attempt for good.
type RecognitionKind string

const (
	KindNoSpeech         RecognitionKind = "no-speech"
	KindPermissionDenied RecognitionKind = "permission-denied"
	KindNetwork          RecognitionKind = "network"
	KindAborted          RecognitionKind = "aborted"
	KindOther            RecognitionKind = "other"
)

type RecognitionError struct {
	Kind   RecognitionKind
	Detail string
}

func (e *RecognitionError) Error() string {
	if e.Detail == "" {
		return "recognition: " + string(e.Kind)
	}
	return "recognition: " + string(e.Kind) + ": " + e.Detail
}

type RecognitionEventType string

const (
	RecognitionPartial RecognitionEventType = "partial"
	RecognitionFinal   RecognitionEventType = "final"
	RecognitionFailed  RecognitionEventType = "error"
)

type RecognitionEvent struct {
	Type       RecognitionEventType
	Text       string
	Confidence float64
	Err        *RecognitionError
}

// RecognitionSession is one open listen. Push feeds captured PCM16 audio;
// results arrive on the event channel, which closes when the session ends.
type RecognitionSession interface {
	Push(ctx context.Context, pcm []byte, sampleRate int) error
	Events() <-chan RecognitionEvent
	Close() error
}

type Recognizer interface {
	Start(ctx context.Context, language string) (RecognitionSession, error)
}

// AudioClip is one synthesized utterance ready to ship to the client.
type AudioClip struct {
	Data       []byte
	MIME       string
	SampleRate int
	Duration   time.Duration
}

// Synthesizer turns text into audio. Probe is a cheap liveness check used
// once per process to pick between engines.
type Synthesizer interface {
	Name() string
	Probe(ctx context.Context) error
	Synthesize(ctx context.Context, text, language string) (AudioClip, error)
}
