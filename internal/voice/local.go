package voice

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/autocrm/dealervoice/internal/audio"
)

// LocalSynthesizer is the on-box fallback engine. With a CLI configured
// (typically espeak-ng) it shells out for real speech; without one it
// produces a placeholder tone sized to natural speaking pace so the rest of
// the pipeline still carries audio of sensible duration.
type LocalSynthesizer struct {
	cli        string
	sampleRate int
}

func NewLocalSynthesizer(cli string, sampleRate int) *LocalSynthesizer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &LocalSynthesizer{cli: strings.TrimSpace(cli), sampleRate: sampleRate}
}

func (s *LocalSynthesizer) Name() string { return "local" }

func (s *LocalSynthesizer) Probe(ctx context.Context) error {
	if s.cli == "" {
		return nil
	}
	if _, err := exec.LookPath(s.cli); err != nil {
		return fmt.Errorf("probe %s: %w", s.cli, err)
	}
	return nil
}

func (s *LocalSynthesizer) Synthesize(ctx context.Context, text, language string) (AudioClip, error) {
	if s.cli != "" {
		return s.synthesizeCLI(ctx, text, language)
	}
	return s.synthesizeTone(text), nil
}

func (s *LocalSynthesizer) synthesizeCLI(ctx context.Context, text, language string) (AudioClip, error) {
	args := []string{"--stdout", "-s", "160"}
	if language != "" {
		// espeak wants a bare language tag, not a locale.
		if i := strings.IndexByte(language, '-'); i > 0 {
			language = language[:i]
		}
		args = append(args, "-v", language)
	}
	args = append(args, text)

	out, err := exec.CommandContext(ctx, s.cli, args...).Output()
	if err != nil {
		return AudioClip{}, fmt.Errorf("run %s: %w", s.cli, err)
	}
	return AudioClip{
		Data:       out,
		MIME:       "audio/wav",
		SampleRate: s.sampleRate,
		Duration:   wavDuration(out, s.sampleRate, estimateSpeechDuration(text)),
	}, nil
}

// synthesizeTone emits a quiet sine placeholder lasting as long as a person
// would take to say the text.
func (s *LocalSynthesizer) synthesizeTone(text string) AudioClip {
	dur := estimateSpeechDuration(text)
	samples := int(float64(s.sampleRate) * dur.Seconds())
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(2000 * math.Sin(2*math.Pi*220*float64(i)/float64(s.sampleRate)))
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}
	wav, _ := audio.EncodeWAVPCM16LE(pcm, s.sampleRate)
	return AudioClip{
		Data:       wav,
		MIME:       "audio/wav",
		SampleRate: s.sampleRate,
		Duration:   dur,
	}
}

// estimateSpeechDuration assumes roughly 150 words per minute.
func estimateSpeechDuration(text string) time.Duration {
	words := 0
	inWord := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			words++
			inWord = true
		}
	}
	if words == 0 {
		words = 1
	}
	return time.Duration(float64(words)/2.5*float64(time.Second) + float64(300*time.Millisecond))
}

func wavDuration(wav []byte, sampleRate int, fallback time.Duration) time.Duration {
	const header = 44
	if len(wav) <= header {
		return fallback
	}
	return audio.PCM16Duration(wav[header:], sampleRate)
}
