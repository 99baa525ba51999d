package volume

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/rulebook/internal/llm"
	"github.com/hyperjump/rulebook/internal/metrics"
	"github.com/hyperjump/rulebook/internal/retrieval"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeVolumes() []Descriptor {
	return []Descriptor{
		{Name: "V1", Number: "1", Files: []string{"rulebook_vol1.pdf"}},
		{Name: "V2", Number: "2", Files: []string{"rulebook_vol2.pdf"}},
		{Name: "V3", Number: "3", Files: []string{"rulebook_vol3.pdf"}},
	}
}

// byName answers each prompt with the score scripted for the volume it names.
func byName(scores map[string]string) *llm.MockCompleter {
	return &llm.MockCompleter{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		for name, s := range scores {
			if strings.Contains(prompt, "Volume: "+name+"\n") {
				return s, nil
			}
		}
		return "", nil
	}}
}

func names(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Descriptor.Name
	}
	return out
}

func TestRegistry(t *testing.T) {
	r := Registry()
	require.Len(t, r, 8)
	assert.Equal(t, "Volume 1: Conventional Banks", r[0].Name)
	assert.Equal(t, []string{"rulebook_vol1.pdf"}, r[0].Files)
	assert.Equal(t, "Common Volume", r[7].Name)
	assert.Empty(t, r[7].Number)
	assert.Equal(t, []string{CommonVolumeFile}, r[7].Files)

	r[0].Files[0] = "changed"
	assert.Equal(t, "rulebook_vol1.pdf", Registry()[0].Files[0])
}

func TestSelect_PrunesBelowCeilingWhenPerfectScore(t *testing.T) {
	for _, conc := range []int{1, 4} {
		s := NewSelector(byName(map[string]string{"V1": "1.0", "V2": "0.5", "V3": "0.9"}),
			WithVolumes(threeVolumes()), WithConcurrency(conc))
		got, err := s.Select(context.Background(), "q", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"V1", "V3"}, names(got))
		assert.Equal(t, 1.0, got[0].Score)
		assert.Equal(t, 0.9, got[1].Score)
	}
}

func TestSelect_NoPerfectScoreKeepsLowScores(t *testing.T) {
	s := NewSelector(byName(map[string]string{"V1": "0.2", "V2": "0.5", "V3": "0.9"}), WithVolumes(threeVolumes()))
	got, err := s.Select(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"V3", "V2", "V1"}, names(got))
}

func TestSelect_TiesKeepRegistryOrder(t *testing.T) {
	s := NewSelector(byName(map[string]string{"V1": "0.4", "V2": "0.8", "V3": "0.8"}), WithVolumes(threeVolumes()))
	got, err := s.Select(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"V2", "V3"}, names(got))
}

func TestSelect_BeamWidth(t *testing.T) {
	s := NewSelector(&llm.MockCompleter{Responses: []string{"0.5"}})
	got, err := s.Select(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Select(context.Background(), "q", 20)
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestSelect_ParseFailureDefaultsToZero(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := NewSelector(byName(map[string]string{"V1": "no idea", "V2": "Score: 0.6", "V3": "7"}),
		WithVolumes(threeVolumes()), WithMetrics(m))
	got, err := s.Select(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"V3", "V2", "V1"}, names(got))
	assert.Equal(t, []float64{7, 0.6, 0}, []float64{got[0].Score, got[1].Score, got[2].Score})
	assert.Equal(t, 3.0, testutil.ToFloat64(m.VolumeScoringCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VolumeParseFailures))
}

func TestSelect_ScoreAboveOneDoesNotPrune(t *testing.T) {
	s := NewSelector(byName(map[string]string{"V1": "0.0", "V2": "0.6", "V3": "1.5"}), WithVolumes(threeVolumes()))
	got, err := s.Select(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"V3", "V2", "V1"}, names(got))
	assert.Equal(t, 1.5, got[0].Score)
}

func TestSelect_CompletionErrorPropagates(t *testing.T) {
	boom := errors.New("llm down")
	for _, conc := range []int{1, 3} {
		s := NewSelector(&llm.MockCompleter{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", boom
		}}, WithVolumes(threeVolumes()), WithConcurrency(conc))
		_, err := s.Select(context.Background(), "q", 2)
		assert.ErrorIs(t, err, boom)
	}
}

func TestSelect_PromptCarriesQueryAndDescriptor(t *testing.T) {
	mock := &llm.MockCompleter{Responses: []string{"0.3"}}
	_, err := NewSelector(mock).Select(context.Background(), "client money rules", 3)
	require.NoError(t, err)
	prompts := mock.Prompts()
	require.Len(t, prompts, 8)
	assert.Contains(t, prompts[2], "client money rules")
	assert.Contains(t, prompts[2], "Volume: Volume 3: Insurance")
	assert.Contains(t, prompts[2], "Takaful principles")
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"0.85", 0.85, true},
		{"Score: .5 because", 0.5, true},
		{"1", 1, true},
		{"12.5", 12.5, true},
		{"1.5", 1.5, true},
		{"-0.4", 0.4, true},
		{"none", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseScore(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFilters(t *testing.T) {
	assert.Nil(t, Filters(nil))
	r := Registry()
	f := Filters([]Scored{{Descriptor: r[1], Score: 1}, {Descriptor: r[7], Score: 0.9}, {Descriptor: r[1]}})
	assert.Equal(t, retrieval.Filters{"filename": {"rulebook_vol2.pdf", CommonVolumeFile}}, f)
}
