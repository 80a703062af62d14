package actionable

import (
	"fmt"

	"dialog-insights-go/internal/aggregator"
)

// LowScoreThreshold marks a theme whose average quality needs attention.
const LowScoreThreshold = 60.0

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// Generate turns aggregated quality statistics into action cards. It always
// returns at least one card.
func Generate(ins aggregator.Insight) []ActionCard {
	if ins.Assessed == 0 {
		return []ActionCard{{
			Insight: fmt.Sprintf("None of %d dialogs has a readable assessment", ins.Dialogs),
			Action:  "Check the analysis output and the model answers",
			Impact:  "No quality signal available",
		}}
	}

	var cards []ActionCard

	worst := -1
	for i, t := range ins.Themes {
		if t.Scored == 0 || t.AvgScore >= LowScoreThreshold {
			continue
		}
		if worst == -1 || t.AvgScore < ins.Themes[worst].AvgScore {
			worst = i
		}
	}
	if worst >= 0 {
		t := ins.Themes[worst]
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("Low quality on %q dialogs (avg %.0f over %d)", t.Theme, t.AvgScore, t.Scored),
			Action:  "Review call scripts and run targeted coaching for this topic",
			Impact:  "Raise quality score for the weakest topic",
		})
	}

	if len(ins.TopErrors) > 0 {
		top := ins.TopErrors[0]
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("Most frequent operator error: %q (%d of %d dialogs)", top.Value, top.Count, ins.Assessed),
			Action:  "Add this check to the operator checklist and monitor it weekly",
			Impact:  "Fewer repeated operator mistakes",
		})
	}

	if len(cards) == 0 {
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("No weak topic detected (avg quality %.0f)", ins.AvgQuality),
			Action:  "Monitor and collect more data",
			Impact:  "Low immediate intervention",
		})
	}
	return cards
}
