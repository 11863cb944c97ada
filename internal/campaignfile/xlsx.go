package campaignfile

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// readXLSX reads the first sheet. Row 1 holds column names matching the
// YAML keys; blank rows are skipped.
func readXLSX(path string) ([]Entry, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "campaignfile: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("campaignfile: xlsx has no sheets")
	}
	sheet := f.Sheets[0]

	var header []string
	var out []Entry
	for _, row := range sheet.Rows {
		cells := rowToStrings(row)
		if header == nil {
			for _, h := range cells {
				header = append(header, strings.ToLower(strings.TrimSpace(h)))
			}
			continue
		}
		if blank(cells) {
			continue
		}
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(cells) {
				rec[h] = strings.TrimSpace(cells[i])
			}
		}
		e, err := entryFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
