package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/swell-fusion/internal/domain"
)

func TestFactorWeightsSumToOne(t *testing.T) {
	sum := 0.0
	for _, w := range FactorWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestScoreConfidence_AllFactorsPresent(t *testing.T) {
	mae := 1.0
	result := ScoreConfidence(ConfidenceInput{
		ModelHeights: []float64{3.0, 3.0, 3.0},
		SourceScores: []float64{0.9, 0.8},
		PresentCategories: map[domain.SourceCategory]bool{
			domain.CategoryBuoys:  true,
			domain.CategoryModels: true,
			domain.CategoryCharts: true,
		},
		HorizonDays: 1,
		RecentMAE:   &mae,
	})

	require.Len(t, result.Factors, 5)
	assert.Equal(t, 1.0, result.Factors[FactorModelConsensus], "identical model heights are perfect consensus")
	assert.InDelta(t, 0.85, result.Factors[FactorSourceReliability], 1e-9)
	assert.InDelta(t, 0.75, result.Factors[FactorDataCompleteness], 1e-9)
	assert.InDelta(t, 0.9, result.Factors[FactorForecastHorizon], 1e-9)
	assert.InDelta(t, 0.8, result.Factors[FactorHistoricalAccuracy], 1e-9)

	want := 0.30*1.0 + 0.25*0.85 + 0.20*0.75 + 0.15*0.9 + 0.10*0.8
	assert.InDelta(t, want, result.Overall, 1e-9)
	assert.Equal(t, CategoryHigh, result.Category)
}

func TestScoreConfidence_Defaults(t *testing.T) {
	result := ScoreConfidence(ConfidenceInput{})

	assert.Equal(t, 0.5, result.Factors[FactorModelConsensus], "fewer than two models is neutral")
	assert.Equal(t, 0.5, result.Factors[FactorSourceReliability])
	assert.Equal(t, 0.0, result.Factors[FactorDataCompleteness])
	assert.Equal(t, 1.0, result.Factors[FactorForecastHorizon])
	assert.Equal(t, 0.7, result.Factors[FactorHistoricalAccuracy], "no history scores the optimistic prior")
}

func TestModelConsensus(t *testing.T) {
	t.Run("single model is neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, modelConsensus([]float64{3.0}))
	})
	t.Run("spread lowers consensus", func(t *testing.T) {
		tight := modelConsensus([]float64{3.0, 3.1, 2.9})
		loose := modelConsensus([]float64{2.0, 4.0, 6.0})
		assert.Greater(t, tight, loose)
		assert.Greater(t, tight, 0.9)
	})
}

func TestHorizon(t *testing.T) {
	assert.Equal(t, 1.0, horizon(0))
	assert.InDelta(t, 0.8, horizon(2), 1e-9)
	assert.Equal(t, 0.5, horizon(5))
	assert.Equal(t, 0.5, horizon(10), "floors at 0.5 for long-range forecasts")
	assert.Equal(t, 1.0, horizon(-1), "swell already in the water")
}

func TestCategoryBoundaries(t *testing.T) {
	assert.Equal(t, CategoryHigh, categoryFor(0.8))
	assert.Equal(t, CategoryModerate, categoryFor(0.79999))
	assert.Equal(t, CategoryModerate, categoryFor(0.6))
	assert.Equal(t, CategoryLow, categoryFor(0.59999))
	assert.Equal(t, CategoryLow, categoryFor(0.4))
	assert.Equal(t, CategoryVeryLow, categoryFor(0.39999))
}

func TestScoreConfidence_OverallInRange(t *testing.T) {
	inputs := []ConfidenceInput{
		{},
		{ModelHeights: []float64{1, 9}, SourceScores: []float64{0.1}, HorizonDays: 20},
		{
			ModelHeights: []float64{3, 3},
			SourceScores: []float64{1, 1, 1},
			PresentCategories: map[domain.SourceCategory]bool{
				domain.CategoryBuoys: true, domain.CategoryModels: true,
				domain.CategoryCharts: true, domain.CategorySatellite: true,
			},
		},
	}
	for _, in := range inputs {
		result := ScoreConfidence(in)
		assert.GreaterOrEqual(t, result.Overall, 0.0)
		assert.LessOrEqual(t, result.Overall, 1.0)
	}
}
