package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/model"
)

func TestScoreCandidates_RanksByWeightedSignals(t *testing.T) {
	results := []model.SearchResponse{
		organic("widgets austin", "https://rival.test/a", "https://other.test", "https://www.yelp.com/biz/x"),
		organic("widget repair", "https://rival.test/b", "https://acme.test/about"),
	}

	got := ScoreCandidates(results, "acme.test", testScoring().Competitor)
	require.Len(t, got, 2)

	assert.Equal(t, "rival.test", got[0].Domain)
	assert.Equal(t, 1.0, got[0].Frequency)
	assert.Equal(t, 1.0, got[0].InvRank)
	assert.Equal(t, 1.0, got[0].Coverage)
	assert.True(t, got[0].HasSnippet)
	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, []string{"widgets austin", "widget repair"}, got[0].Keywords)

	assert.Equal(t, "other.test", got[1].Domain)
	assert.Equal(t, 0.5, got[1].Frequency)
	assert.Equal(t, 0.5, got[1].InvRank)
	assert.Equal(t, 0.5, got[1].Coverage)
	// 0.35*0.5 + 0.30*0.5 + 0.20*0.5 + 0.15*1
	assert.InDelta(t, 0.575, got[1].Score, 1e-9)
}

func TestScoreCandidates_ExcludesOwnAndDirectories(t *testing.T) {
	results := []model.SearchResponse{
		organic("q", "https://shop.acme.test", "https://facebook.com/acme", "https://en.wikipedia.org/wiki/Acme"),
	}
	assert.Empty(t, ScoreCandidates(results, "acme.test", testScoring().Competitor))
}

func TestScoreCandidates_ZeroWeightsUseDefaults(t *testing.T) {
	results := []model.SearchResponse{organic("q", "https://rival.test")}
	got := ScoreCandidates(results, "", config.CompetitorWeights{})
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Score)
}

func TestScoreCandidates_PositionFallsBackToIndex(t *testing.T) {
	results := []model.SearchResponse{{
		Query: "q",
		Organic: []model.OrganicResult{
			{Link: "https://first.test"},
			{Link: "https://second.test"},
		},
	}}
	got := ScoreCandidates(results, "", testScoring().Competitor)
	require.Len(t, got, 2)
	assert.Equal(t, "first.test", got[0].Domain)
	assert.Equal(t, 0.5, got[1].InvRank)
	assert.False(t, got[1].HasSnippet)
}

func TestScoreCandidates_Empty(t *testing.T) {
	assert.Empty(t, ScoreCandidates(nil, "acme.test", testScoring().Competitor))
}

func TestSameSite(t *testing.T) {
	assert.True(t, sameSite("acme.test", "acme.test"))
	assert.True(t, sameSite("shop.acme.test", "acme.test"))
	assert.True(t, sameSite("acme.test", "shop.acme.test"))
	assert.False(t, sameSite("notacme.test", "acme.test"))
	assert.False(t, sameSite("", "acme.test"))
}
