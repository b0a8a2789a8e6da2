package transcode

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag; float and compressed WAVs go through ffmpeg
const wavFormatPCM = 1

// DecodeWAVFile reads an integer PCM WAV file and downmixes it to mono
func DecodeWAVFile(path string) (*AudioData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	defer file.Close()

	audio, err := DecodeWAV(file)
	if err != nil {
		return nil, err
	}
	audio.Metadata.Path = path
	return audio, nil
}

// DecodeWAV decodes integer PCM WAV data from r. Samples are scaled by the
// source bit depth into [-1, 1] and channels are averaged.
func DecodeWAV(r io.ReadSeeker) (*AudioData, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrDecodeFailed)
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: unsupported WAV format tag %d", ErrDecodeFailed, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: reading samples: %w", ErrDecodeFailed, err)
	}

	channels := int(decoder.NumChans)
	bitDepth := int(decoder.BitDepth)
	sampleRate := int(decoder.SampleRate)
	if channels <= 0 || bitDepth <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: bad WAV header (channels=%d, bit depth=%d, rate=%d)",
			ErrDecodeFailed, channels, bitDepth, sampleRate)
	}

	maxVal := float64(int64(1) << (uint(bitDepth) - 1))
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) / maxVal
	}

	return &AudioData{
		PCM:        samples,
		SampleRate: sampleRate,
		Channels:   1,
		Duration:   samplesDuration(frames, sampleRate),
		Timestamp:  time.Now(),
		Metadata: &SourceMetadata{
			Format:     "wav",
			Codec:      "pcm",
			SampleRate: sampleRate,
			Channels:   channels,
			BitDepth:   bitDepth,
		},
	}, nil
}
