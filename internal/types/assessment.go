// internal/types/assessment.go
package types

// --------------------------------------------
// Typed view of the rubric answer, used for reporting only
// --------------------------------------------
type Assessment struct {
	QualityScore   float64  `json:"dialogue_quality_score"` // 0–100
	Theme          string   `json:"dialog_theme"`
	FillerWords    []string `json:"filler_words"`
	ObsceneLexicon []string `json:"obscene_lexicon"`
	Keywords       []string `json:"keywords"`
	ClientMood     string   `json:"client_mood_analysis"`
	OperatorMood   string   `json:"operator_mood_analysis"`
	KeyMoments     []string `json:"key_moments"`
	OperatorErrors []string `json:"operator_errors"`
}

// Themes is the closed set of dialog themes the rubric allows.
var Themes = []string{
	"Фінанси",
	"Обслуговування",
	"Відключення",
	"Ремонт",
	"Повторна активація",
	"Підключення-Нове",
	"Аварія",
	"Незрозумілий звінок",
}
