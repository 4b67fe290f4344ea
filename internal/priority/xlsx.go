package priority

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ExportXLSXFilename is the suggested download name for ExportXLSX output.
const ExportXLSXFilename = "greengap_priorities.xlsx"

var priorityHeader = []string{
	"Rank", "ID", "Name", "Vegetation percentile", "Park access %",
	"Deficit score", "Severity", "Recommended action",
	"Access boost (pts)", "Cost (USD)", "ROI per resident",
}

// ExportXLSX writes a workbook with the ranked list on one sheet and the
// impact projection on another.
func ExportXLSX(filtered []AreaRecord, w io.Writer) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Priorities")
	if err != nil {
		return eris.Wrap(err, "priority: add priorities sheet")
	}
	addStringRow(sheet, priorityHeader)

	for i, r := range filtered {
		imp := SimulateIntervention(r)
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.Name)
		row.AddCell().SetFloat(r.VegetationIndex * 100)
		row.AddCell().SetFloat(r.ParkAccessPercent)
		row.AddCell().SetFloat(r.DeficitScore)
		row.AddCell().SetString(Severity(r.DeficitScore))
		row.AddCell().SetString(string(r.RecommendedAction))
		row.AddCell().SetFloat(imp.AccessBoostPoints)
		row.AddCell().SetFloat(imp.CostUSD)
		row.AddCell().SetFloat(imp.ROIPerResident)
	}

	proj, err := f.AddSheet("Projection")
	if err != nil {
		return eris.Wrap(err, "priority: add projection sheet")
	}
	addStringRow(proj, []string{"Year", "Coverage %", "Cumulative cost (USD)"})
	for _, p := range ProjectImpact(filtered) {
		row := proj.AddRow()
		row.AddCell().SetInt(p.Year)
		row.AddCell().SetFloat(p.Coverage)
		row.AddCell().SetFloat(p.Cost)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "priority: write xlsx")
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
