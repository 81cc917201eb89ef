package transform

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/atmikgoswami/mediaforge/internal/domain"
)

// PDF work is pure computation on the input bytes: any failure repeats
// on redelivery, so everything here classifies as permanent.

type PDFCompress struct{}

func (*PDFCompress) Kind() domain.Kind { return domain.KindPDFCompress }

func (*PDFCompress) Apply(_ context.Context, inputs [][]byte, p domain.Params) (*Output, error) {
	switch p.CompressionLevel {
	case "", "low", "medium", "high":
	default:
		return nil, domain.Permanent(fmt.Errorf("invalid compression level %q", p.CompressionLevel))
	}

	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(inputs[0]), &buf, nil); err != nil {
		return nil, domain.Permanent(fmt.Errorf("optimize pdf: %w", err))
	}
	return pdfOutput(buf.Bytes()), nil
}

type PDFMerge struct{}

func (*PDFMerge) Kind() domain.Kind { return domain.KindPDFMerge }

func (*PDFMerge) Apply(_ context.Context, inputs [][]byte, _ domain.Params) (*Output, error) {
	if len(inputs) < 2 {
		return nil, domain.Permanent(fmt.Errorf("merge needs at least 2 documents, got %d", len(inputs)))
	}

	readers := make([]io.ReadSeeker, len(inputs))
	for i, in := range inputs {
		readers[i] = bytes.NewReader(in)
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, nil); err != nil {
		return nil, domain.Permanent(fmt.Errorf("merge pdfs: %w", err))
	}
	return pdfOutput(buf.Bytes()), nil
}

type PDFExtract struct{}

func (*PDFExtract) Kind() domain.Kind { return domain.KindPDFExtract }

func (*PDFExtract) Apply(_ context.Context, inputs [][]byte, p domain.Params) (*Output, error) {
	if p.StartPage < 1 || p.EndPage < p.StartPage {
		return nil, domain.Permanent(fmt.Errorf("invalid page range %d-%d", p.StartPage, p.EndPage))
	}

	pages := []string{fmt.Sprintf("%d-%d", p.StartPage, p.EndPage)}
	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(inputs[0]), &buf, pages, nil); err != nil {
		return nil, domain.Permanent(fmt.Errorf("extract pages %d-%d: %w", p.StartPage, p.EndPage, err))
	}
	return pdfOutput(buf.Bytes()), nil
}

func pdfOutput(data []byte) *Output {
	return &Output{Data: data, ContentType: "application/pdf", Ext: ".pdf"}
}
