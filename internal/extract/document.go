package extract

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/normanking/visemekit/internal/timeline"
)

// DocumentID is the extractor id of the document adapter.
const DocumentID = "document"

// Document reads a timeline document that another tool already produced,
// such as an alignment service export. The path passed to Extract is the
// document itself.
type Document struct{}

// NewDocument creates the adapter.
func NewDocument() *Document { return &Document{} }

func (d *Document) ID() string                { return DocumentID }
func (d *Document) Config() map[string]string { return nil }

func (d *Document) Health(ctx context.Context) error { return nil }

func (d *Document) Extract(ctx context.Context, path string) (*timeline.Timeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoInput, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	tl, err := timeline.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExtraction, path, err)
	}
	return tl, nil
}

// New returns the extractor registered under id.
func New(id string, rhubarb RhubarbConfig) (Extractor, error) {
	switch id {
	case RhubarbID, "":
		return NewRhubarb(rhubarb), nil
	case DocumentID:
		return NewDocument(), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", id)
	}
}
