package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	pcm := make([]byte, 320) // 10ms at 16kHz
	out, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(out) != 44+len(pcm) {
		t.Fatalf("len(out) = %d, want %d", len(out), 44+len(pcm))
	}
	if !bytes.Equal(out[0:4], []byte("RIFF")) || !bytes.Equal(out[8:12], []byte("WAVE")) {
		t.Fatalf("missing RIFF/WAVE markers")
	}
	rate := binary.LittleEndian.Uint32(out[24:28])
	if rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	dataSize := binary.LittleEndian.Uint32(out[40:44])
	if int(dataSize) != len(pcm) {
		t.Fatalf("data size = %d, want %d", dataSize, len(pcm))
	}
}

func TestPCM16Duration(t *testing.T) {
	pcm := make([]byte, 32000) // one second at 16kHz mono PCM16
	if d := PCM16Duration(pcm, 16000); d != time.Second {
		t.Fatalf("PCM16Duration = %v, want 1s", d)
	}
}
