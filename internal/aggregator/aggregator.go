package aggregator

import (
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"dialog-insights-go/internal/types"
)

const (
	// UnknownTheme groups answers without a usable dialog_theme.
	UnknownTheme = "unknown"
	// OtherTheme groups themes outside types.Themes.
	OtherTheme = "other"
)

const topErrors = 5

type ThemeStat struct {
	Theme    string  `json:"theme"`
	Dialogs  int     `json:"dialogs"`
	Scored   int     `json:"scored"`
	AvgScore float64 `json:"avg_score"`
}

type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type Insight struct {
	Dialogs    int         `json:"dialogs"`
	Assessed   int         `json:"assessed"`
	AvgQuality float64     `json:"avg_quality"`
	Themes     []ThemeStat `json:"themes"`
	TopErrors  []Count     `json:"top_operator_errors"`
}

// Aggregate summarizes an analysis file. Answers that are not a JSON object
// count as dialogs but not as assessments.
func Aggregate(results []types.AnalysisResult) Insight {
	ins := Insight{Dialogs: len(results), Themes: []ThemeStat{}, TopErrors: []Count{}}

	themes := map[string]*ThemeStat{}
	themeSum := map[string]float64{}
	errCounts := map[string]int{}
	var sum float64
	var scored int

	for _, r := range results {
		a, hasScore, err := ParseAssessment(r.Response)
		if err != nil {
			continue
		}
		ins.Assessed++

		theme := themeOf(a.Theme)
		st, ok := themes[theme]
		if !ok {
			st = &ThemeStat{Theme: theme}
			themes[theme] = st
		}
		st.Dialogs++
		if hasScore {
			st.Scored++
			themeSum[theme] += a.QualityScore
			sum += a.QualityScore
			scored++
		}

		seen := map[string]bool{}
		for _, e := range a.OperatorErrors {
			key := strings.ToLower(strings.TrimSpace(e))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			errCounts[key]++
		}
	}

	if scored > 0 {
		ins.AvgQuality = sum / float64(scored)
	}
	for name, st := range themes {
		if st.Scored > 0 {
			st.AvgScore = themeSum[name] / float64(st.Scored)
		}
		ins.Themes = append(ins.Themes, *st)
	}
	sort.Slice(ins.Themes, func(i, j int) bool {
		if ins.Themes[i].Dialogs != ins.Themes[j].Dialogs {
			return ins.Themes[i].Dialogs > ins.Themes[j].Dialogs
		}
		return ins.Themes[i].Theme < ins.Themes[j].Theme
	})

	for v, c := range errCounts {
		ins.TopErrors = append(ins.TopErrors, Count{Value: v, Count: c})
	}
	sort.Slice(ins.TopErrors, func(i, j int) bool {
		if ins.TopErrors[i].Count != ins.TopErrors[j].Count {
			return ins.TopErrors[i].Count > ins.TopErrors[j].Count
		}
		return ins.TopErrors[i].Value < ins.TopErrors[j].Value
	})
	if len(ins.TopErrors) > topErrors {
		ins.TopErrors = ins.TopErrors[:topErrors]
	}
	return ins
}

// themeOf maps a model theme onto its rubric spelling, case-insensitively.
func themeOf(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return UnknownTheme
	}
	for _, known := range types.Themes {
		if strings.EqualFold(t, known) {
			return known
		}
	}
	return OtherTheme
}

var errNotObject = errors.New("response is not a JSON object")

// ParseAssessment reads the rubric fields from a model answer. Models drift on
// types, so scores may be strings and lists may be a single string.
// hasScore is false when dialogue_quality_score is missing or not numeric.
func ParseAssessment(raw json.RawMessage) (a types.Assessment, hasScore bool, err error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return a, false, errNotObject
	}

	a.QualityScore, hasScore = number(m["dialogue_quality_score"])
	a.Theme = text(m["dialog_theme"])
	a.FillerWords = list(m["filler_words"])
	a.ObsceneLexicon = list(m["obscene_lexicon"])
	a.Keywords = list(m["keywords"])
	a.ClientMood = text(m["client_mood_analysis"])
	a.OperatorMood = text(m["operator_mood_analysis"])
	a.KeyMoments = list(m["key_moments"])
	a.OperatorErrors = list(m["operator_errors"])
	return a, hasScore, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(n, "%")), 64)
		return f, err == nil
	}
	return 0, false
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, _ := json.Marshal(s)
		return string(b)
	}
}

func list(v any) []string {
	switch l := v.(type) {
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s := text(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if l == "" {
			return nil
		}
		return []string{l}
	}
	return nil
}
