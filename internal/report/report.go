// Package report renders an analysis file as an Excel workbook.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"dialog-insights-go/internal/actionable"
	"dialog-insights-go/internal/aggregator"
	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/metrics"
	"dialog-insights-go/internal/store"
	"dialog-insights-go/internal/types"
)

const (
	SheetDialogs = "Dialogs"
	SheetThemes  = "Themes"
	SheetActions = "Actions"
)

var (
	dialogHeader = []any{"dialog_id", "quality_score", "theme", "client_mood", "operator_mood", "operator_errors", "keywords"}
	themeHeader  = []any{"theme", "dialogs", "scored", "avg_score"}
	actionHeader = []any{"insight", "action", "impact"}
)

// Summary is what a report run produced.
type Summary struct {
	Insight aggregator.Insight
	Cards   []actionable.ActionCard
}

// Run reads the analysis file, aggregates it and writes the workbook.
func Run(cfg config.ReportConfig, log *logrus.Entry, m *metrics.Stage) (*Summary, error) {
	log = log.WithField("component", "report")

	var results []types.AnalysisResult
	if err := store.ReadJSON(cfg.InputPath, &results); err != nil {
		return nil, err
	}

	ins := aggregator.Aggregate(results)
	cards := actionable.Generate(ins)
	if err := Write(cfg.OutputPath, results, ins, cards); err != nil {
		return nil, err
	}
	m.SetWritten(len(results))

	log.WithFields(logrus.Fields{
		"dialogs":     ins.Dialogs,
		"assessed":    ins.Assessed,
		"avg_quality": fmt.Sprintf("%.1f", ins.AvgQuality),
		"cards":       len(cards),
		"output":      cfg.OutputPath,
	}).Info("report saved")
	return &Summary{Insight: ins, Cards: cards}, nil
}

// Write creates the workbook at path, replacing any existing file.
func Write(path string, results []types.AnalysisResult, ins aggregator.Insight, cards []actionable.ActionCard) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetDialogs); err != nil {
		return err
	}
	for _, s := range []string{SheetThemes, SheetActions} {
		if _, err := f.NewSheet(s); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	dialogs := make([][]any, 0, len(results))
	for _, r := range results {
		row := []any{r.DialogID.String()}
		a, hasScore, err := aggregator.ParseAssessment(r.Response)
		switch {
		case err != nil:
			row = append(row, "", "", "", "", "", "")
		default:
			var score any = ""
			if hasScore {
				score = a.QualityScore
			}
			row = append(row, score, a.Theme, a.ClientMood, a.OperatorMood,
				strings.Join(a.OperatorErrors, "; "), strings.Join(a.Keywords, ", "))
		}
		dialogs = append(dialogs, row)
	}

	themes := make([][]any, 0, len(ins.Themes))
	for _, t := range ins.Themes {
		themes = append(themes, []any{t.Theme, t.Dialogs, t.Scored, t.AvgScore})
	}

	actions := make([][]any, 0, len(cards))
	for _, c := range cards {
		actions = append(actions, []any{c.Insight, c.Action, c.Impact})
	}

	for _, s := range []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{SheetDialogs, dialogHeader, dialogs},
		{SheetThemes, themeHeader, themes},
		{SheetActions, actionHeader, actions},
	} {
		if err := writeSheet(f, s.name, s.header, s.rows, bold); err != nil {
			return fmt.Errorf("sheet %s: %w", s.name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}
