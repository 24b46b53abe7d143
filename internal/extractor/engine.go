package extractor

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"finstat/internal"
	"finstat/internal/util"
)

// ErrMalformedInput is returned when there is nothing meaningful to extract
// from: missing page text or an empty or invalid schema.
var ErrMalformedInput = eris.New("malformed input")

type Options struct {
	// DefaultDollar is the currency assigned to a bare "$".
	DefaultDollar string
	// FuzzyThreshold enables the similarity fallback of the label locator
	// when above zero.
	FuzzyThreshold float64
	// KeepAlternates retains every per-page candidate for audit.
	KeepAlternates bool
	// BalanceTolerance is the relative gap allowed for
	// assets = liabilities + equity.
	BalanceTolerance float64
}

func DefaultOptions() Options {
	return Options{DefaultDollar: "USD", BalanceTolerance: 0.05}
}

type Engine struct {
	opts       Options
	locator    Locator
	inferencer *Inferencer
	checker    CrossChecker
}

func New(opts Options) *Engine {
	return &Engine{
		opts:       opts,
		locator:    Locator{FuzzyThreshold: opts.FuzzyThreshold},
		inferencer: NewInferencer(opts.DefaultDollar),
		checker:    CrossChecker{Tolerance: opts.BalanceTolerance},
	}
}

// Extract runs the engine with default options.
func Extract(pages []string, schema []internal.MetricDefinition) (internal.ExtractionResult, error) {
	return New(DefaultOptions()).Extract(context.Background(), pages, schema)
}

// scan accumulates candidates for one Extract call. Each metric owns one
// slot, so metric scans never share state.
type scan struct {
	pages      [][]string
	candidates [][]internal.ExtractedMetric
}

// Extract locates every schema metric in the pages. Page i of the input is
// reported as source_page i+1. Output depends only on the inputs.
func (e *Engine) Extract(ctx context.Context, pages []string, schema []internal.MetricDefinition) (internal.ExtractionResult, error) {
	if pages == nil {
		return internal.ExtractionResult{}, eris.Wrap(ErrMalformedInput, "page texts are missing")
	}
	if err := ValidateSchema(schema); err != nil {
		return internal.ExtractionResult{}, err
	}

	s := &scan{
		pages:      make([][]string, len(pages)),
		candidates: make([][]internal.ExtractedMetric, len(schema)),
	}
	for i, text := range pages {
		s.pages[i] = util.SplitLines(text)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, def := range schema {
		i, def := i, def
		g.Go(func() error {
			found, err := e.scanMetric(gctx, s.pages, def)
			if err != nil {
				return err
			}
			s.candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return internal.ExtractionResult{}, eris.Wrap(err, "extract")
	}

	return e.assemble(s, schema), nil
}

// scanMetric walks pages in order and keeps at most one candidate per page:
// the first label line that yields a number. Without alternates it stops at
// the first high confidence candidate.
func (e *Engine) scanMetric(ctx context.Context, pages [][]string, def internal.MetricDefinition) ([]internal.ExtractedMetric, error) {
	labels := prepareLabels(def.CandidateLabels)
	var out []internal.ExtractedMetric
	for pageIndex, lines := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, match := range e.locator.locateLines(pageIndex, lines, labels) {
			metric, ok := e.resolve(match, def)
			if !ok {
				continue
			}
			out = append(out, metric)
			break
		}
		if !e.opts.KeepAlternates && len(out) > 0 && out[len(out)-1].Confidence == internal.ConfidenceHigh {
			break
		}
	}
	return out, nil
}

// resolve moves one match through number extraction, context inference,
// normalization and scoring. It reports false when the line has no number.
func (e *Engine) resolve(match internal.RawMatch, def internal.MetricDefinition) (internal.ExtractedMetric, bool) {
	nextLine := false
	raw, ok := ExtractNumber(match.LineText, match.LabelStart, match.LabelEnd)
	if !ok {
		raw, ok = extractFromValueLine(match.NextLineText)
		if !ok {
			return internal.ExtractedMetric{}, false
		}
		nextLine = true
	}

	unit, currency := e.inferencer.InferUnitsAndCurrency(contextWindow(match))
	if raw.Percent {
		u := internal.UnitPercent
		unit = &u
	}

	value := Normalize(raw.Value, unit, def.ValueKind)
	confidence, flags := Score(ScoreInput{
		Match:      match,
		Value:      value,
		Unit:       unit,
		Currency:   currency,
		Kind:       def.ValueKind,
		TokenCount: raw.TokenCount,
		NextLine:   nextLine,
	})

	return internal.ExtractedMetric{
		MetricName:   def.StandardName,
		Value:        value,
		RawValueText: raw.Text,
		Unit:         unit,
		Currency:     currency,
		SourcePage:   match.PageIndex + 1,
		Confidence:   confidence,
		Flags:        flags,
		Context: internal.MetricContext{
			Prev:    match.PrevLineText,
			Current: match.LineText,
			Next:    match.NextLineText,
		},
		MatchedLabel: match.MatchedLabel,
	}, true
}

// assemble selects one record per metric, highest confidence first and
// earliest page on ties, then runs the cross checks.
func (e *Engine) assemble(s *scan, schema []internal.MetricDefinition) internal.ExtractionResult {
	items := []internal.ExtractedMetric{}
	for i := range schema {
		candidates := s.candidates[i]
		if len(candidates) == 0 {
			continue
		}
		best := 0
		for j := 1; j < len(candidates); j++ {
			if candidates[j].Confidence.Rank() > candidates[best].Confidence.Rank() {
				best = j
			}
		}
		selected := candidates[best]
		selected.Selected = true
		items = append(items, selected)
		if !e.opts.KeepAlternates {
			continue
		}
		for j, alt := range candidates {
			if j != best {
				items = append(items, alt)
			}
		}
	}

	sanity := e.checker.Check(items, schema)
	return internal.ExtractionResult{Items: items, Sanity: sanity}
}

// ValidateSchema checks the registry invariants the engine relies on.
func ValidateSchema(schema []internal.MetricDefinition) error {
	if len(schema) == 0 {
		return eris.Wrap(ErrMalformedInput, "metric schema is empty")
	}
	seen := map[string]struct{}{}
	for i, def := range schema {
		name := strings.TrimSpace(def.StandardName)
		if name == "" {
			return eris.Wrapf(ErrMalformedInput, "metric %d has no standard_name", i)
		}
		if _, ok := seen[name]; ok {
			return eris.Wrapf(ErrMalformedInput, "duplicate standard_name %q", name)
		}
		seen[name] = struct{}{}
		if len(prepareLabels(def.CandidateLabels)) == 0 {
			return eris.Wrapf(ErrMalformedInput, "metric %q has no candidate labels", name)
		}
		if !def.ValueKind.Valid() {
			return eris.Wrapf(ErrMalformedInput, "metric %q has invalid value_kind %q", name, def.ValueKind)
		}
	}
	return nil
}
