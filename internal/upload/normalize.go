// ABOUTME: Input normalization for audio uploads: duration, waveform, file extension, storage path
// ABOUTME: Pure functions so the pipeline steps stay testable without storage

package upload

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MaxWaveformSamples is how many trailing amplitude samples are kept.
const MaxWaveformSamples = 128

// DefaultExtension is used when the MIME type tells us nothing.
const DefaultExtension = "webm"

// NormalizeDuration rounds ms to a non-negative integer. NaN and infinities
// become 0; values past the int64 range saturate at math.MaxInt64.
func NormalizeDuration(ms float64) int64 {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
		return 0
	}
	if ms >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Round(ms))
}

// NormalizeWaveform keeps the last MaxWaveformSamples samples, drops
// non-finite ones, and clamps and rounds the rest into [0, 255]. It returns
// nil when nothing is left.
func NormalizeWaveform(samples []float64) []int {
	if len(samples) > MaxWaveformSamples {
		samples = samples[len(samples)-MaxWaveformSamples:]
	}

	var out []int
	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v = math.Max(0, math.Min(255, v))
		out = append(out, int(math.Round(v)))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ExtensionForMIME picks a file extension for an audio MIME type.
func ExtensionForMIME(mime string) string {
	m := strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.Contains(m, "webm"):
		return "webm"
	case strings.Contains(m, "mp4"):
		return "mp4"
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return "mp3"
	case strings.Contains(m, "ogg"):
		return "ogg"
	}

	_, subtype, ok := strings.Cut(m, "/")
	if !ok {
		return DefaultExtension
	}
	if i := strings.IndexAny(subtype, ";+ "); i >= 0 {
		subtype = subtype[:i]
	}
	subtype = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, subtype)
	if subtype == "" {
		return DefaultExtension
	}
	return subtype
}

// StoragePath composes {owner}/{conversation}/{epochMillis}.{ext}.
func StoragePath(ownerID, conversationID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%s/%d.%s", ownerID, conversationID, at.UnixMilli(), ext)
}
