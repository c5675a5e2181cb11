package extract

import (
	"strings"

	"github.com/xuri/excelize/v2"

	"docqa/internal/domain"
)

// extractXLSX renders every sheet as one page: a header line with the sheet
// name followed by its non-empty rows, cells separated by tabs.
func extractXLSX(path string) (domain.ExtractedText, error) {
	x, err := excelize.OpenFile(path)
	if err != nil {
		return domain.ExtractedText{}, err
	}
	defer x.Close()

	var pb pageBuilder
	for i, sheet := range x.GetSheetList() {
		rows, err := x.GetRows(sheet)
		if err != nil {
			return domain.ExtractedText{}, err
		}
		lines := []string{"Sheet: " + sheet}
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line != "" {
				lines = append(lines, line)
			}
		}
		pb.addPage(i+1, strings.Join(lines, "\n"))
	}
	return pb.result(), nil
}
