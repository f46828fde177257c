package voice

import (
	"context"
	"testing"
)

func TestSanitizeSpeechText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "The EMI works out to 14,500 per month.", "The EMI works out to 14,500 per month."},
		{"markdown emphasis", "This is *really* _important_", "This is really important"},
		{"fenced code", "Before ```SELECT 1``` after", "Before after"},
		{"inline code", "run `go test` now", "run now"},
		{"link keeps label", "see [our offers](https://dealer.example) today", "see our offers today"},
		{"bare url", "visit https://dealer.example now", "visit now"},
		{"rupee amounts", "The Nexon starts at ₹8.10 lakh", "The Nexon starts at rupees 8.10 lakh"},
		{"percent rates", "finance from 8.5% interest", "finance from 8.5 percent interest"},
		{"whitespace collapse", "too   many\n\nspaces", "too many spaces"},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeSpeechText(tc.in); got != tc.want {
				t.Fatalf("sanitizeSpeechText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestLocalSynthesizerToneDuration(t *testing.T) {
	s := NewLocalSynthesizer("", 16000)
	clip, err := s.Synthesize(context.Background(), "book a test drive for tomorrow morning", "en-IN")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if clip.Duration <= 0 {
		t.Fatalf("duration = %v", clip.Duration)
	}
	if clip.MIME != "audio/wav" || len(clip.Data) < 44 {
		t.Fatalf("clip = %+v", clip)
	}
	// Seven words at conversational pace lands in single-digit seconds.
	if sec := clip.Duration.Seconds(); sec < 1 || sec > 10 {
		t.Fatalf("duration %.1fs outside plausible range", sec)
	}
}
