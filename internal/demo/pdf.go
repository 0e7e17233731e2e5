package demo

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// watermarkDesc configures the stamp pdfcpu lays over every page of a
// downloaded document.
const watermarkDesc = "fontname:Helvetica, points:48, rotation:45, opacity:0.3, scalefactor:0.8 rel"

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// pageCount validates data as a PDF and counts its pages.
func pageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), pdfConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

// watermark stamps text onto every page of data.
func watermark(data []byte, text string) ([]byte, error) {
	var out bytes.Buffer
	if err := api.AddTextWatermarks(bytes.NewReader(data), &out, nil, true, text, watermarkDesc, pdfConfig()); err != nil {
		return nil, fmt.Errorf("failed to watermark: %w", err)
	}
	return out.Bytes(), nil
}
