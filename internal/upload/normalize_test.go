package upload

import (
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{1500.7, 1501},
		{1500.4, 1500},
		{0, 0},
		{-20, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
		{0.5, 1},
		{1e19, math.MaxInt64},
		{1e300, math.MaxInt64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDuration(tt.in), "input %v", tt.in)
	}
}

func TestNormalizeWaveform(t *testing.T) {
	assert.Equal(t, []int{255, 0, 11}, NormalizeWaveform([]float64{300, -5, 10.6, math.NaN()}))
	assert.Nil(t, NormalizeWaveform(nil))
	assert.Nil(t, NormalizeWaveform([]float64{}))
	assert.Nil(t, NormalizeWaveform([]float64{math.NaN(), math.Inf(1)}))
	assert.Equal(t, []int{0, 128, 255}, NormalizeWaveform([]float64{0, 127.5, 255}))
}

func TestNormalizeWaveform_KeepsLastSamples(t *testing.T) {
	samples := make([]float64, 200)
	for i := range samples {
		samples[i] = float64(i)
	}

	got := NormalizeWaveform(samples)

	assert.Len(t, got, MaxWaveformSamples)
	assert.Equal(t, 72, got[0])
	assert.Equal(t, 199, got[len(got)-1])
}

func TestExtensionForMIME(t *testing.T) {
	tests := map[string]string{
		"audio/webm;codecs=opus": "webm",
		"audio/mp4;codecs=mp4a":  "mp4",
		"video/mp4":              "mp4",
		"audio/mpeg":             "mp3",
		"audio/MP3":              "mp3",
		"audio/ogg; codecs=opus": "ogg",
		"audio/wav":              "wav",
		"audio/x-m4a":            "x-m4a",
		"audio/aac;rate=44100":   "aac",
		"garbage":                "webm",
		"":                       "webm",
		"audio/":                 "webm",
	}
	for mime, want := range tests {
		assert.Equal(t, want, ExtensionForMIME(mime), "mime %q", mime)
	}
}

func TestStoragePath(t *testing.T) {
	at := time.UnixMilli(1714557600123)
	got := StoragePath("owner-1", "conv-9", at, ExtensionForMIME("audio/mp4;codecs=mp4a.40.2"))
	assert.Equal(t, "owner-1/conv-9/1714557600123.mp4", got)
	assert.Regexp(t, regexp.MustCompile(`^owner-1/conv-9/\d+\.mp4$`), got)
}
