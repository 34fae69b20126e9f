package content

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFInfo summarises a validated PDF.
type PDFInfo struct {
	Pages int `json:"pages"`
}

// ValidatePDF checks that data is a well-formed PDF and reports its page
// count. Print output that fails validation is not worth handing to the
// caller.
func ValidatePDF(data []byte) (PDFInfo, error) {
	if len(data) == 0 {
		return PDFInfo{}, fmt.Errorf("content: empty pdf")
	}
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return PDFInfo{}, fmt.Errorf("content: validate pdf: %w", err)
	}
	return PDFInfo{Pages: ctx.PageCount}, nil
}
