package pipeline

import (
	"context"

	"finstat/internal"
	"finstat/internal/extractor"
)

// RunFile extracts metrics from a file without touching the document index.
func RunFile(ctx context.Context, opts extractor.Options, schema []internal.MetricDefinition, kind internal.DocumentKind, path string) (internal.ExtractionResult, error) {
	pages, err := LoadPages(kind, path)
	if err != nil {
		return internal.ExtractionResult{}, err
	}
	return extractor.New(opts).Extract(ctx, pages, schema)
}

// RunFile is the one-shot path bound to the service configuration.
func (s *ProcessingService) RunFile(ctx context.Context, path string, kind internal.DocumentKind) (internal.ExtractionResult, error) {
	pages, err := LoadPages(kind, path)
	if err != nil {
		return internal.ExtractionResult{}, err
	}
	return s.engine.Extract(ctx, pages, s.schema)
}

// ExtractPages runs the configured engine over page text supplied by the
// caller.
func (s *ProcessingService) ExtractPages(ctx context.Context, pages []string, schema []internal.MetricDefinition) (internal.ExtractionResult, error) {
	if len(schema) == 0 {
		schema = s.schema
	}
	return s.engine.Extract(ctx, pages, schema)
}
