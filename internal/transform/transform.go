package transform

import (
	"context"

	"github.com/atmikgoswami/mediaforge/internal/domain"
)

// Output is the processed artifact ready for the sink.
type Output struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Transformer executes one kind of media transform. Implementations
// classify their own failures with domain.Transient / domain.Permanent;
// nothing upstream guesses from message text.
type Transformer interface {
	Kind() domain.Kind
	Apply(ctx context.Context, inputs [][]byte, p domain.Params) (*Output, error)
}

type Registry map[domain.Kind]Transformer

func NewRegistry() Registry {
	r := Registry{}
	for _, t := range []Transformer{
		&ImageCompress{},
		&ImageResize{},
		&ImageConvert{},
		&PDFCompress{},
		&PDFMerge{},
		&PDFExtract{},
	} {
		r[t.Kind()] = t
	}
	return r
}

func (r Registry) Lookup(k domain.Kind) (Transformer, bool) {
	t, ok := r[k]
	return t, ok
}
