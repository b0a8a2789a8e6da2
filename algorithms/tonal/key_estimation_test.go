package tonal

import (
	"testing"

	"github.com/RyanBlaney/sonido-harmony/algorithms/chroma"
	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profileOf(weights map[pitch.PitchClass]float64) chroma.PitchClassProfile {
	var p chroma.PitchClassProfile
	for pc, w := range weights {
		p[pc] = w
	}
	return p
}

func TestAllKeysOrder(t *testing.T) {
	keys := AllKeys()
	require.Len(t, keys, 24)
	assert.Equal(t, Key{Tonic: 0, Mode: KeyModeMajor}, keys[0])
	assert.Equal(t, Key{Tonic: 11, Mode: KeyModeMajor}, keys[11])
	assert.Equal(t, Key{Tonic: 0, Mode: KeyModeMinor}, keys[12])
	assert.Equal(t, Key{Tonic: 11, Mode: KeyModeMinor}, keys[23])
}

func TestTemplateRotation(t *testing.T) {
	d := KeyProfileKrumhansl.Template(Key{Tonic: 2, Mode: KeyModeMajor})
	assert.Equal(t, 6.35, d[2], "tonic weight lands on D")
	assert.Equal(t, 5.19, d[9], "dominant weight lands on A")
	assert.Equal(t, 2.88, d[1], "leading tone weight lands on C#")

	a := KeyProfileKrumhansl.Template(Key{Tonic: 9, Mode: KeyModeMinor})
	assert.Equal(t, 6.33, a[9])
	assert.Equal(t, 5.38, a[0], "minor third of A is C")
}

func TestEstimateSelfConsistency(t *testing.T) {
	for _, profile := range []KeyProfile{KeyProfileKrumhansl, KeyProfileTemperley, KeyProfileAardenEssen, KeyProfileDiatonic} {
		ke := NewKeyEstimator(profile)
		for _, key := range AllKeys() {
			template := profile.Template(key)
			estimate, err := ke.Estimate(chroma.PitchClassProfile(template))
			require.NoError(t, err, "%s %s", profile, key)
			assert.Equal(t, key, estimate.Key, "%s %s", profile, key)
			assert.InDelta(t, 1.0, estimate.Correlation, 1e-9)
			assert.Equal(t, key.String(), estimate.Name)
			require.Len(t, estimate.Candidates, 24)
			assert.Equal(t, key, estimate.Candidates[0].Key)
		}
	}
}

func TestEstimateMajorScale(t *testing.T) {
	ke := NewKeyEstimator(KeyProfileKrumhansl)

	// C major melody weighted toward the tonic triad
	estimate, err := ke.Estimate(profileOf(map[pitch.PitchClass]float64{
		0: 4, 2: 1, 4: 2, 5: 1, 7: 3, 9: 1, 11: 1,
	}))
	require.NoError(t, err)
	assert.Equal(t, Key{Tonic: 0, Mode: KeyModeMajor}, estimate.Key)
	assert.Equal(t, "krumhansl", estimate.Profile)
	assert.Greater(t, estimate.Clarity, 0.0)
	assert.LessOrEqual(t, estimate.Correlation, 1.0)
	assert.GreaterOrEqual(t, estimate.Correlation, -1.0)

	for i := 1; i < len(estimate.Candidates); i++ {
		assert.GreaterOrEqual(t, estimate.Candidates[i-1].Correlation, estimate.Candidates[i].Correlation)
	}
}

func TestEstimateTransposition(t *testing.T) {
	ke := NewKeyEstimator(KeyProfileKrumhansl)
	base := profileOf(map[pitch.PitchClass]float64{9: 4, 11: 1, 0: 2, 2: 1, 4: 3, 5: 1, 8: 1})

	estimate, err := ke.Estimate(base)
	require.NoError(t, err)
	require.Equal(t, Key{Tonic: 9, Mode: KeyModeMinor}, estimate.Key)

	for shift := 1; shift < 12; shift++ {
		moved, err := ke.Estimate(base.Transpose(shift))
		require.NoError(t, err)
		assert.Equal(t, estimate.Key.Tonic.Transpose(shift), moved.Key.Tonic)
		assert.Equal(t, KeyModeMinor, moved.Key.Mode)
		assert.InDelta(t, estimate.Correlation, moved.Correlation, 1e-9)
	}
}

func TestEstimateScaleInvariance(t *testing.T) {
	ke := NewKeyEstimator(KeyProfileKrumhansl)
	gMajor := Key{Tonic: 7, Mode: KeyModeMajor}
	template := KeyProfileKrumhansl.Template(gMajor)

	for _, scale := range []float64{1, 1e-6, 1e-10, 1e-14, 1e6} {
		var profile chroma.PitchClassProfile
		for pc, v := range template {
			profile[pc] = v * scale
		}
		estimate, err := ke.Estimate(profile)
		require.NoError(t, err, "scale %g", scale)
		assert.Equal(t, gMajor, estimate.Key, "scale %g", scale)
		assert.InDelta(t, 1.0, estimate.Correlation, 1e-9, "scale %g", scale)
	}
}

func TestEstimateUndetermined(t *testing.T) {
	ke := NewKeyEstimator(KeyProfileKrumhansl)

	_, err := ke.Estimate(chroma.PitchClassProfile{})
	assert.ErrorIs(t, err, ErrUndeterminedKey)

	var flat chroma.PitchClassProfile
	for pc := range flat {
		flat[pc] = 2.5
	}
	_, err = ke.Estimate(flat)
	assert.ErrorIs(t, err, ErrUndeterminedKey)
}

func TestBestCandidateTieBreak(t *testing.T) {
	keys := AllKeys()
	candidates := make([]KeyCandidate, len(keys))
	for i, k := range keys {
		candidates[i] = KeyCandidate{Key: k, Correlation: 0.1}
	}
	// C# major and C# minor tie at the top
	candidates[1].Correlation = 0.8
	candidates[13].Correlation = 0.8
	assert.Equal(t, 1, bestCandidate(candidates), "major wins an exact tie")

	candidates[1].Correlation = 0.5
	candidates[15].Correlation = 0.8
	assert.Equal(t, 13, bestCandidate(candidates), "lower tonic wins among minors")
}

func TestEstimateWindows(t *testing.T) {
	ke := NewKeyEstimator(KeyProfileKrumhansl)
	windows := []chroma.PitchClassProfile{
		chroma.PitchClassProfile(KeyProfileKrumhansl.Template(Key{Tonic: 7, Mode: KeyModeMajor})),
		{},
		chroma.PitchClassProfile(KeyProfileKrumhansl.Template(Key{Tonic: 2, Mode: KeyModeMinor})),
	}

	keys := ke.EstimateWindows(windows)
	require.Len(t, keys, 3)

	require.NoError(t, keys[0].Err)
	assert.Equal(t, Key{Tonic: 7, Mode: KeyModeMajor}, keys[0].Estimate.Key)
	assert.Nil(t, keys[0].Estimate.Candidates)

	assert.ErrorIs(t, keys[1].Err, ErrUndeterminedKey)
	assert.Nil(t, keys[1].Estimate)

	require.NoError(t, keys[2].Err)
	assert.Equal(t, Key{Tonic: 2, Mode: KeyModeMinor}, keys[2].Estimate.Key)
	assert.Equal(t, 2, keys[2].Index)
}

func TestKeyRelations(t *testing.T) {
	c := Key{Tonic: 0, Mode: KeyModeMajor}
	a := Key{Tonic: 9, Mode: KeyModeMinor}

	assert.Equal(t, a, c.Relative())
	assert.Equal(t, c, a.Relative())
	assert.Equal(t, Key{Tonic: 0, Mode: KeyModeMinor}, c.Parallel())
	assert.Equal(t, Key{Tonic: 7, Mode: KeyModeMajor}, c.Dominant())
	assert.Equal(t, Key{Tonic: 5, Mode: KeyModeMajor}, c.Subdominant())
	assert.True(t, c.IsCloselyRelated(a))
	assert.False(t, c.IsCloselyRelated(Key{Tonic: 6, Mode: KeyModeMajor}))
}

func TestParseKey(t *testing.T) {
	cases := map[string]Key{
		"C major":  {Tonic: 0, Mode: KeyModeMajor},
		"d minor":  {Tonic: 2, Mode: KeyModeMinor},
		"F# minor": {Tonic: 6, Mode: KeyModeMinor},
		"Bb":       {Tonic: 10, Mode: KeyModeMajor},
		"Am":       {Tonic: 9, Mode: KeyModeMinor},
		"Ebm":      {Tonic: 3, Mode: KeyModeMinor},
	}
	for in, want := range cases {
		got, err := ParseKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "H major", "C dorian", "C major extra"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestParseKeyProfile(t *testing.T) {
	for _, name := range GetSupportedProfiles() {
		p, err := ParseKeyProfile(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.String())
	}
	p, err := ParseKeyProfile("EDMA")
	require.NoError(t, err)
	assert.Equal(t, KeyProfileAardenEssen, p)

	_, err = ParseKeyProfile("bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
