package chroma

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestChromaSTFTFoldsToPitchClass(t *testing.T) {
	const sampleRate = 22050
	cs := NewChromaSTFTDefault(sampleRate)

	// A4 plus E5 at lower level
	signal := sine(440.0, sampleRate, sampleRate)
	e5 := sine(659.26, sampleRate, sampleRate)
	for i := range signal {
		signal[i] += 0.5 * e5[i]
	}

	result, err := cs.ComputeChroma(signal, 4096, 2048)
	require.NoError(t, err)
	require.NotEmpty(t, result.Frames)
	assert.InDelta(t, 2048.0/sampleRate, result.FrameDuration, 1e-12)

	profile, err := ProfileChromagram(result.Frames)
	require.NoError(t, err)
	assert.Equal(t, 9, int(profile.Strongest()), "A should dominate")
	assert.Greater(t, profile[4], profile[2], "E should outweigh D")
}

func TestChromaSTFTTuning(t *testing.T) {
	const sampleRate = 22050
	// 415 Hz is A4 under baroque tuning, G#4 under standard tuning
	signal := sine(415.0, sampleRate, sampleRate/2)

	standard, err := NewChromaSTFTDefault(sampleRate).ComputeChroma(signal, 4096, 1024)
	require.NoError(t, err)
	p, err := ProfileChromagram(standard.Frames)
	require.NoError(t, err)
	assert.Equal(t, 8, int(p.Strongest()))

	baroque, err := NewChromaSTFT(sampleRate, 415.0).ComputeChroma(signal, 4096, 1024)
	require.NoError(t, err)
	p, err = ProfileChromagram(baroque.Frames)
	require.NoError(t, err)
	assert.Equal(t, 9, int(p.Strongest()))
}

func TestChromaSTFTShortSignal(t *testing.T) {
	cs := NewChromaSTFTDefault(8000)

	result, err := cs.ComputeChroma(nil, 1024, 512)
	require.NoError(t, err)
	assert.Empty(t, result.Frames)

	result, err = cs.ComputeChroma(sine(261.63, 8000, 300), 1024, 512)
	require.NoError(t, err)
	assert.Len(t, result.Frames, 1)

	assert.Error(t, cs.SetFrequencyRange(500, 100))
}

func TestTonnetz(t *testing.T) {
	var silent PitchClassProfile
	assert.Equal(t, TonalCentroid{}, Tonnetz(silent))

	triad := func(pcs ...int) PitchClassProfile {
		var p PitchClassProfile
		for _, pc := range pcs {
			p[pc] = 1
		}
		return p
	}

	cMajor := Tonnetz(triad(0, 4, 7))
	aMinor := Tonnetz(triad(9, 0, 4))
	fSharp := Tonnetz(triad(6, 10, 1))

	assert.Less(t, cMajor.Distance(aMinor), cMajor.Distance(fSharp),
		"relative minor should sit closer than the tritone major")

	// scaling a profile does not move its centroid
	loud := Tonnetz(triad(0, 4, 7).Add(triad(0, 4, 7)))
	assert.InDelta(t, 0.0, cMajor.Distance(loud), 1e-12)

	mean, err := MeanTonnetz([][]float64{
		{1, 0, 0, 0, 1, 0, 0, 1, 0, 0, 0, 0},
		{1, 0, 0, 0, 1, 0, 0, 1, 0, 0, 0, 0},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, cMajor.Distance(mean), 1e-12)
}
