package audio

import (
	"log/slog"
	"sync"
)

// FormatConverter converts frames to a target format. It logs a warning the
// first time it sees a mismatched or corrupt frame. Create one per stream;
// it is not safe for concurrent use.
type FormatConverter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame in the target format. A frame that already matches
// is returned as is. Frames with an odd byte count cannot be int16 PCM and
// come back empty, stamped with the target format. Resampling happens before
// channel conversion.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"format", Format{frame.SampleRate, frame.Channels},
			)
		})
		return AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio: format mismatch, converting",
			"from", Format{frame.SampleRate, frame.Channels},
			"to", c.Target,
		)
	})

	pcm := Resample16(frame.Data, frame.Channels, frame.SampleRate, c.Target.SampleRate)
	switch {
	case frame.Channels == 1 && c.Target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case frame.Channels == 2 && c.Target.Channels == 1:
		pcm = StereoToMono(pcm)
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream converts every frame from in on a new goroutine. The returned
// channel has the same capacity as in and is closed when in closes. Frames
// that convert to nothing are dropped.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			if converted := conv.Convert(frame); len(converted.Data) > 0 {
				out <- converted
			}
		}
	}()
	return out
}
