package app

import (
	"fmt"
	"strings"

	"github.com/autocrm/dealervoice/internal/config"
	"github.com/autocrm/dealervoice/internal/voice"
)

type voiceSetup struct {
	recognizer       voice.Recognizer
	newOutput        func() *voice.OutputController
	resolvedProvider string
	detail           string
	cleanup          func() error
}

func resolveVoice(cfg config.Config) (voiceSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if mode == "" {
		mode = "auto"
	}

	local := voice.NewLocalSynthesizer(cfg.LocalSynthCLI, cfg.LocalSynthSampleRate)

	buildElevenLabs := func() (voiceSetup, bool) {
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			return voiceSetup{}, false
		}
		elCfg := voice.ElevenLabsConfig{
			APIKey:     cfg.ElevenLabsAPIKey,
			BaseURL:    cfg.ElevenLabsBaseURL,
			WSBaseURL:  cfg.ElevenLabsWSBaseURL,
			Voice:      cfg.ElevenLabsVoice,
			ModelID:    cfg.ElevenLabsModel,
			STTModelID: cfg.ElevenLabsSTTModel,
		}
		primary := voice.NewElevenLabsSynthesizer(elCfg)
		return voiceSetup{
			recognizer: voice.NewElevenLabsRecognizer(elCfg),
			newOutput: func() *voice.OutputController {
				return voice.NewOutputController(primary, local)
			},
			resolvedProvider: "elevenlabs",
			detail:           "elevenlabs (local fallback)",
		}, true
	}

	localSetup := func(detail string) voiceSetup {
		return voiceSetup{
			recognizer: voice.NewMockRecognizer(),
			newOutput: func() *voice.OutputController {
				return voice.NewOutputController(local, local)
			},
			resolvedProvider: "local",
			detail:           detail,
		}
	}

	switch mode {
	case "elevenlabs":
		if setup, ok := buildElevenLabs(); ok {
			return setup, nil
		}
		return voiceSetup{}, fmt.Errorf("VOICE_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
	case "local":
		return localSetup("local synthesis, typed input only"), nil
	case "mock":
		mock := voice.NewMockRecognizer()
		return voiceSetup{
			recognizer: mock,
			newOutput: func() *voice.OutputController {
				return voice.NewOutputController(local, local)
			},
			resolvedProvider: "mock",
			detail:           "mock",
		}, nil
	case "auto":
		if setup, ok := buildElevenLabs(); ok {
			return setup, nil
		}
		return localSetup("local (no elevenlabs key)"), nil
	default:
		return voiceSetup{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|elevenlabs|local|mock)", cfg.VoiceProvider)
	}
}
