// Package report renders compliance standing across the book of entities
// into an xlsx workbook.
package report

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/store"
)

// Row pairs an entity with its latest compliance result. Result is nil when
// the entity has never been evaluated.
type Row struct {
	Entity  model.Entity
	Result  *model.ComplianceResult
	Insight string
}

// Build collects report rows for all entities matching the filter.
func Build(ctx context.Context, st store.Store, filter store.EntityFilter) ([]Row, error) {
	entities, err := st.ListEntities(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "report: list entities")
	}

	rows := make([]Row, 0, len(entities))
	for _, entity := range entities {
		row := Row{Entity: entity}
		result, err := st.GetLatestResult(ctx, entity.ID)
		switch {
		case err == nil:
			row.Result = result
			row.Insight = compliance.GenerateInsight(*result)
		case errors.Is(err, store.ErrNotFound):
			// Never evaluated; reported with an empty status.
		default:
			return nil, eris.Wrapf(err, "report: load result for entity %s", entity.ID)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var summaryHeader = []string{
	"Entity ID", "Name", "Category", "Risk Level", "Status",
	"Gaps", "Expiring Soon", "Evaluated At", "Insight",
}

var gapsHeader = []string{
	"Entity ID", "Name", "Coverage", "Reason", "Required", "Actual", "Advisory",
}

// WriteWorkbook writes the report to an xlsx file with a summary sheet and
// a per-gap detail sheet.
func WriteWorkbook(path string, rows []Row) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	writeRow(summary, summaryHeader)

	gaps, err := f.AddSheet("Gaps")
	if err != nil {
		return eris.Wrap(err, "report: add gaps sheet")
	}
	writeRow(gaps, gapsHeader)

	gapCount := 0
	for _, row := range rows {
		writeRow(summary, summaryCells(row))

		if row.Result == nil {
			continue
		}
		for _, gap := range row.Result.Gaps {
			writeRow(gaps, []string{
				row.Entity.ID,
				row.Entity.Name,
				gap.Coverage.Display(),
				string(gap.Reason),
				gap.Required,
				gap.Actual,
				strconv.FormatBool(gap.Advisory),
			})
			gapCount++
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save workbook")
	}

	zap.L().Info("workbook written",
		zap.String("component", "report"),
		zap.String("path", path),
		zap.Int("entities", len(rows)),
		zap.Int("gaps", gapCount),
	)
	return nil
}

func summaryCells(row Row) []string {
	status := ""
	gapCount := ""
	expiring := ""
	evaluatedAt := ""
	if row.Result != nil {
		status = string(row.Result.OverallStatus)
		gapCount = strconv.Itoa(len(row.Result.Gaps))
		expiring = joinCoverages(row.Result.ExpiringSoon)
		evaluatedAt = row.Result.EvaluatedAt.Format("2006-01-02 15:04:05")
	}
	return []string{
		row.Entity.ID,
		row.Entity.Name,
		string(row.Entity.Category),
		string(row.Entity.RiskLevel),
		status,
		gapCount,
		expiring,
		evaluatedAt,
		row.Insight,
	}
}

func joinCoverages(types []model.CoverageType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Display()
	}
	return strings.Join(names, ", ")
}

func writeRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().Value = c
	}
}
