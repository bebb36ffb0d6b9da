package audio_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/museguide/pkg/audio"
)

func TestInt16RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	got := audio.BytesToInt16s(audio.Int16sToBytes(samples))
	if !slices.Equal(got, samples) {
		t.Errorf("round trip = %v, want %v", got, samples)
	}

	// Trailing odd byte is ignored.
	if got := audio.BytesToInt16s([]byte{0x64, 0x00, 0xFF}); !slices.Equal(got, []int16{100}) {
		t.Errorf("odd input = %v, want [100]", got)
	}
}

func TestMonoToStereo(t *testing.T) {
	stereo := audio.MonoToStereo(audio.Int16sToBytes([]int16{100, 200, 300}))
	want := []int16{100, 100, 200, 200, 300, 300}
	if got := audio.BytesToInt16s(stereo); !slices.Equal(got, want) {
		t.Errorf("MonoToStereo = %v, want %v", got, want)
	}
}

func TestMonoToStereo_OddLengthInput(t *testing.T) {
	// 5 bytes = 2 complete samples + 1 trailing byte.
	stereo := audio.MonoToStereo([]byte{0x64, 0x00, 0xC8, 0x00, 0xFF})
	if len(stereo) != 8 {
		t.Fatalf("expected 8 bytes for 2 complete mono samples, got %d", len(stereo))
	}
	want := []int16{100, 100, 200, 200}
	if got := audio.BytesToInt16s(stereo); !slices.Equal(got, want) {
		t.Errorf("MonoToStereo = %v, want %v", got, want)
	}
}

func TestStereoToMono(t *testing.T) {
	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{"average", []int16{100, 200, -100, -200}, []int16{150, -150}},
		{"max positive", []int16{32767, 32767}, []int16{32767}},
		{"max negative", []int16{-32768, -32768}, []int16{-32768}},
		{"partial frame dropped", []int16{10, 20, 30}, []int16{15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.BytesToInt16s(audio.StereoToMono(audio.Int16sToBytes(tt.in)))
			if !slices.Equal(got, tt.want) {
				t.Errorf("StereoToMono(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResample16_SameRate(t *testing.T) {
	pcm := audio.Int16sToBytes([]int16{100, 200, 300})
	out := audio.Resample16(pcm, 1, 48000, 48000)
	if &out[0] != &pcm[0] {
		t.Error("expected input slice back for matching rates")
	}
}

func TestResample16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	got := audio.BytesToInt16s(audio.Resample16(audio.Int16sToBytes([]int16{1000, 2000}), 1, 16000, 48000))
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	if last := got[len(got)-1]; last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResample16_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x)
	got := audio.BytesToInt16s(audio.Resample16(audio.Int16sToBytes([]int16{100, 200, 300, 400, 500, 600}), 1, 48000, 16000))
	if want := []int16{100, 400}; !slices.Equal(got, want) {
		t.Errorf("downsampled = %v, want %v", got, want)
	}
}

func TestResample16_Stereo(t *testing.T) {
	// 2 stereo frames at 16kHz → 6 stereo frames (12 samples) at 48kHz.
	got := audio.BytesToInt16s(audio.Resample16(audio.Int16sToBytes([]int16{100, -100, 400, -400}), 2, 16000, 48000))
	if len(got) != 12 {
		t.Fatalf("expected 12 samples, got %d", len(got))
	}
	// Channels stay independent: left is positive, right is its mirror.
	for i := 0; i < len(got); i += 2 {
		if got[i] != -got[i+1] {
			t.Errorf("frame %d: L=%d R=%d, channels bled into each other", i/2, got[i], got[i+1])
		}
	}
}

func TestResample16_InvalidRates(t *testing.T) {
	pcm := audio.Int16sToBytes([]int16{100, 200})
	for _, rates := range [][2]int{{0, 48000}, {48000, 0}, {-1, 48000}} {
		if out := audio.Resample16(pcm, 1, rates[0], rates[1]); len(out) != len(pcm) {
			t.Errorf("Resample16(%d→%d) len = %d, want unchanged %d", rates[0], rates[1], len(out), len(pcm))
		}
	}
}

func TestAudioFrame_Duration(t *testing.T) {
	f := audio.AudioFrame{Data: make([]byte, 16000*2*2), SampleRate: 16000, Channels: 2}
	if got := f.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	if got := (audio.AudioFrame{Data: []byte{1, 2}}).Duration(); got != 0 {
		t.Errorf("Duration without format = %v, want 0", got)
	}
}

func TestFormat_Validate(t *testing.T) {
	tests := []struct {
		f       audio.Format
		wantErr bool
	}{
		{audio.Format{SampleRate: 16000, Channels: 1}, false},
		{audio.Format{SampleRate: 48000, Channels: 2}, false},
		{audio.Format{SampleRate: 0, Channels: 1}, true},
		{audio.Format{SampleRate: 16000, Channels: 3}, true},
		{audio.Format{SampleRate: 16000, Channels: 0}, true},
	}
	for _, tt := range tests {
		if err := tt.f.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%v.Validate() error = %v, wantErr %v", tt.f, err, tt.wantErr)
		}
	}
	if got := (audio.Format{SampleRate: 48000, Channels: 2}).String(); got != "48000Hz stereo" {
		t.Errorf("String() = %q", got)
	}
}

func TestFormatConverter_NoOp(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	frame := audio.AudioFrame{Data: audio.Int16sToBytes([]int16{100, 200}), SampleRate: 48000, Channels: 2}
	result := conv.Convert(frame)
	if &result.Data[0] != &frame.Data[0] {
		t.Error("expected same slice (zero allocation) for matching format")
	}
}

func TestFormatConverter_StereoToMonoDownsample(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := audio.AudioFrame{
		Data:       audio.Int16sToBytes([]int16{100, 300, 100, 300, 100, 300}),
		SampleRate: 48000,
		Channels:   2,
		Timestamp:  time.Second,
	}
	result := conv.Convert(frame)
	if result.SampleRate != 16000 || result.Channels != 1 || result.Timestamp != time.Second {
		t.Errorf("unexpected frame header: %dHz %dch @%v", result.SampleRate, result.Channels, result.Timestamp)
	}
	if got := audio.BytesToInt16s(result.Data); !slices.Equal(got, []int16{200}) {
		t.Errorf("samples = %v, want [200]", got)
	}
}

func TestFormatConverter_OddByteCount(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 1}}

	for _, rate := range []int{22050, 48000} {
		result := conv.Convert(audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: rate, Channels: 1})
		if len(result.Data) != 0 {
			t.Errorf("rate %d: expected empty data for odd byte count, got %d bytes", rate, len(result.Data))
		}
		if result.SampleRate != 48000 || result.Channels != 1 {
			t.Errorf("rate %d: dropped frame carries %dHz %dch, want target format", rate, result.SampleRate, result.Channels)
		}
	}
}

func TestConvertStream(t *testing.T) {
	in := make(chan audio.AudioFrame, 3)
	out := audio.ConvertStream(in, audio.Format{SampleRate: 48000, Channels: 2})

	in <- audio.AudioFrame{Data: audio.Int16sToBytes([]int16{100, 200}), SampleRate: 48000, Channels: 1}
	in <- audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 48000, Channels: 1}
	in <- audio.AudioFrame{Data: audio.Int16sToBytes([]int16{500, 600, 700, 800}), SampleRate: 48000, Channels: 2}
	close(in)

	var results []audio.AudioFrame
	for frame := range out {
		results = append(results, frame)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 frames (odd frame dropped), got %d", len(results))
	}
	if got, want := audio.BytesToInt16s(results[0].Data), []int16{100, 100, 200, 200}; !slices.Equal(got, want) {
		t.Errorf("frame 0 = %v, want %v", got, want)
	}
	if got, want := audio.BytesToInt16s(results[1].Data), []int16{500, 600, 700, 800}; !slices.Equal(got, want) {
		t.Errorf("frame 1 = %v, want %v", got, want)
	}
}

func TestDrain(t *testing.T) {
	ch := make(chan audio.AudioFrame, 4)
	for range 4 {
		ch <- audio.AudioFrame{}
	}
	close(ch)
	audio.Drain(ch)
	if len(ch) != 0 {
		t.Errorf("Drain left %d frames", len(ch))
	}
}
