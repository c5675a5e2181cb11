package extract

import (
	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
)

func extractPDF(path string) (domain.ExtractedText, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return domain.ExtractedText{}, err
	}
	defer f.Close()

	var pb pageBuilder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return domain.ExtractedText{}, err
		}
		pb.addPage(i, text)
	}
	return pb.result(), nil
}
