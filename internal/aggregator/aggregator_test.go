package aggregator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dialog-insights-go/internal/types"
)

func result(id, body string) types.AnalysisResult {
	return types.AnalysisResult{DialogID: types.StringID(id), Response: json.RawMessage(body)}
}

func TestAggregate(t *testing.T) {
	ins := Aggregate([]types.AnalysisResult{
		result("1", `{"dialogue_quality_score": 80, "dialog_theme": "Ремонт", "operator_errors": ["Не привітався"]}`),
		result("2", `{"dialogue_quality_score": "40", "dialog_theme": "Ремонт", "operator_errors": ["не привітався ", "Грубість"]}`),
		result("3", `{"dialogue_quality_score": 90, "dialog_theme": "Фінанси", "operator_errors": []}`),
		result("4", `{"dialog_theme": " "}`),
		result("5", `[1, 2]`),
	})

	assert.Equal(t, 5, ins.Dialogs)
	assert.Equal(t, 4, ins.Assessed)
	assert.InDelta(t, 70, ins.AvgQuality, 0.001)

	require.Len(t, ins.Themes, 3)
	assert.Equal(t, ThemeStat{Theme: "Ремонт", Dialogs: 2, Scored: 2, AvgScore: 60}, ins.Themes[0])
	assert.Equal(t, UnknownTheme, ins.Themes[1].Theme)
	assert.Zero(t, ins.Themes[1].Scored)
	assert.Equal(t, "Фінанси", ins.Themes[2].Theme)

	require.Len(t, ins.TopErrors, 2)
	assert.Equal(t, Count{Value: "не привітався", Count: 2}, ins.TopErrors[0])
	assert.Equal(t, Count{Value: "грубість", Count: 1}, ins.TopErrors[1])
}

func TestAggregateBucketsOffListThemes(t *testing.T) {
	ins := Aggregate([]types.AnalysisResult{
		result("1", `{"dialogue_quality_score": 50, "dialog_theme": "ремонт "}`),
		result("2", `{"dialogue_quality_score": 30, "dialog_theme": "Погода"}`),
		result("3", `{"dialogue_quality_score": 70, "dialog_theme": "Доставка піци"}`),
		result("4", `{"dialogue_quality_score": 90, "dialog_theme": "Ремонт"}`),
	})

	require.Len(t, ins.Themes, 2)
	assert.Equal(t, ThemeStat{Theme: OtherTheme, Dialogs: 2, Scored: 2, AvgScore: 50}, ins.Themes[0])
	assert.Equal(t, ThemeStat{Theme: "Ремонт", Dialogs: 2, Scored: 2, AvgScore: 70}, ins.Themes[1])
}

func TestAggregateEmpty(t *testing.T) {
	ins := Aggregate(nil)

	assert.Zero(t, ins.Dialogs)
	assert.Zero(t, ins.AvgQuality)
	assert.NotNil(t, ins.Themes)
	assert.NotNil(t, ins.TopErrors)
}

func TestParseAssessmentLenient(t *testing.T) {
	a, hasScore, err := ParseAssessment(json.RawMessage(`{
		"dialogue_quality_score": "75%",
		"dialog_theme": "Аварія",
		"keywords": "інтернет",
		"client_mood_analysis": {"start": "злий", "end": "спокійний"},
		"key_moments": ["дзвінок", 3]
	}`))
	require.NoError(t, err)

	assert.True(t, hasScore)
	assert.Equal(t, 75.0, a.QualityScore)
	assert.Equal(t, []string{"інтернет"}, a.Keywords)
	assert.JSONEq(t, `{"start":"злий","end":"спокійний"}`, a.ClientMood)
	assert.Equal(t, []string{"дзвінок", "3"}, a.KeyMoments)
	assert.Nil(t, a.OperatorErrors)

	_, hasScore, err = ParseAssessment(json.RawMessage(`{"dialogue_quality_score": "high"}`))
	require.NoError(t, err)
	assert.False(t, hasScore)

	_, _, err = ParseAssessment(json.RawMessage(`null`))
	assert.Error(t, err)
}
