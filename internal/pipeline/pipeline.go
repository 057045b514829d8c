// Package pipeline orchestrates a full comparable-ranking run: ingest,
// target identification, duplicate resolution, enrichment, ranking and
// output.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/comps-engine/internal/config"
	"github.com/comps-engine/internal/dedupe"
	"github.com/comps-engine/internal/epc"
	"github.com/comps-engine/internal/geo"
	"github.com/comps-engine/internal/ingest"
	"github.com/comps-engine/internal/output"
	"github.com/comps-engine/internal/ranking"
	"github.com/comps-engine/internal/record"
	"github.com/comps-engine/internal/review"
	"github.com/comps-engine/internal/selector"
	"github.com/comps-engine/internal/target"
)

// Geocoder resolves postcodes to coordinates.
type Geocoder interface {
	Lookup(ctx context.Context, postcode string) (geo.Point, error)
}

// CertificateResolver finds the energy certificate for a property.
type CertificateResolver interface {
	Resolve(ctx context.Context, address, postcode string, knownFloorAreaSqFt *float64) (*epc.Certificate, selector.Result, error)
}

// Config assembles a pipeline. Settings is required; nil collaborators are
// built from Settings, and Offline skips enrichment entirely.
type Config struct {
	Settings     *config.Config
	Geocoder     Geocoder
	Certificates CertificateResolver
	Offline      bool
	Now          func() time.Time
}

// Summary reports what one run did.
type Summary struct {
	RecordsIn    int
	Comparables  int
	Merged       int
	Geocoded     int
	Certificates int
	Ambiguous    int
	ReviewItems  int
}

// Pipeline runs the staged process.
type Pipeline struct {
	settings     *config.Config
	reader       *ingest.Reader
	identifier   *target.Identifier
	resolver     *dedupe.Resolver
	geocoder     Geocoder
	certificates CertificateResolver
	ranker       *ranking.Engine
	writer       *output.Writer
	now          func() time.Time
	logger       *zap.Logger
}

// New creates a Pipeline, building default collaborators for any left nil.
func New(pc Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := pc.Settings
	if settings == nil {
		settings = config.Default()
	}

	geocoder := pc.Geocoder
	certificates := pc.Certificates
	if !pc.Offline {
		if geocoder == nil {
			geocoder = geo.NewGeocoder(settings.Geocoder.BaseURL, settings.Geocoder.Timeout,
				settings.Geocoder.RequestsPerSecond, settings.Geocoder.CacheTTL, logger)
		}
		if certificates == nil {
			sel := selector.New(settings.Selector, logger)
			certificates = epc.NewClient(settings.EPC.BaseURL, settings.EPC.Timeout,
				settings.EPC.RequestsPerSecond, sel, logger)
		}
	} else {
		geocoder = nil
		certificates = nil
	}

	now := pc.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		settings:     settings,
		reader:       ingest.NewReader(logger),
		identifier:   target.NewIdentifier(settings.Target, logger),
		resolver:     dedupe.NewResolver(settings.Dedupe, logger),
		geocoder:     geocoder,
		certificates: certificates,
		ranker:       ranking.NewEngine(settings.Ranking, logger),
		writer:       output.NewWriter(logger),
		now:          now,
		logger:       logger,
	}
}

// Run processes inputPath into outputPath. When reviewPath is non-empty the
// flagged records are also written there for the review server. Target
// resolution failures abort the run; every other condition is recovered
// locally and surfaced on the affected record.
func (p *Pipeline) Run(ctx context.Context, inputPath, outputPath, reviewPath string) (*Summary, error) {
	ds, err := p.reader.ReadFile(inputPath)
	if err != nil {
		return nil, err
	}
	summary := &Summary{RecordsIn: len(ds.Records)}

	tgt, comparables, err := p.identifier.Identify(ds.Records, ds.PreHeader)
	if err != nil {
		return nil, fmt.Errorf("identify target: %w", err)
	}

	before := len(comparables)
	comparables = p.resolver.Resolve(comparables)
	summary.Merged = before - len(comparables)
	summary.Comparables = len(comparables)

	var items []review.Item
	p.enrichDistances(ctx, tgt, comparables, summary)
	items = append(items, p.enrichCertificates(ctx, tgt, comparables, summary)...)

	comparables = p.ranker.Rank(comparables, tgt, p.now())

	if err := p.writer.WriteFile(outputPath, tgt, comparables); err != nil {
		return nil, err
	}

	items = append(items, conflictItems(comparables, len(items))...)
	summary.ReviewItems = len(items)
	if reviewPath != "" && len(items) > 0 {
		if err := review.Save(reviewPath, items); err != nil {
			return nil, err
		}
	}

	p.logger.Info("pipeline complete",
		zap.Int("records_in", summary.RecordsIn),
		zap.Int("comparables", summary.Comparables),
		zap.Int("merged", summary.Merged),
		zap.Int("geocoded", summary.Geocoded),
		zap.Int("certificates", summary.Certificates),
		zap.Int("ambiguous", summary.Ambiguous),
		zap.Int("review_items", summary.ReviewItems))
	return summary, nil
}

// enrichDistances geocodes the target and each comparable and writes the
// straight-line distance. Geocoding failures leave the distance absent, so
// the proximity sub-score degrades to zero instead of failing the run.
func (p *Pipeline) enrichDistances(ctx context.Context, tgt record.PropertyRecord, comparables []record.PropertyRecord, summary *Summary) {
	if p.geocoder == nil {
		return
	}
	targetPostcode := tgt.String(record.FieldPostcode)
	if targetPostcode == "" {
		return
	}
	origin, err := p.geocoder.Lookup(ctx, targetPostcode)
	if err != nil {
		p.logger.Warn("target geocode failed", zap.String("postcode", targetPostcode), zap.Error(err))
		return
	}

	for _, c := range comparables {
		if c.Has(record.FieldDistanceMiles) {
			continue
		}
		postcode := c.String(record.FieldPostcode)
		if postcode == "" {
			continue
		}
		point, err := p.geocoder.Lookup(ctx, postcode)
		if err != nil {
			p.logger.Warn("geocode failed", zap.String("postcode", postcode), zap.Error(err))
			continue
		}
		c.Set(record.FieldDistanceMiles, geo.DistanceMiles(origin, point))
		summary.Geocoded++
	}
}

// enrichCertificates resolves an energy certificate for the target and each
// comparable. A NoMatch is a definitive "no certificate found", never
// retried with looser rules; ambiguous matches are flagged for review with
// their full candidate list.
func (p *Pipeline) enrichCertificates(ctx context.Context, tgt record.PropertyRecord, comparables []record.PropertyRecord, summary *Summary) []review.Item {
	if p.certificates == nil {
		return nil
	}

	var items []review.Item
	all := append([]record.PropertyRecord{tgt}, comparables...)
	for _, r := range all {
		addr := r.String(record.FieldAddress)
		postcode := r.String(record.FieldPostcode)
		if addr == "" || postcode == "" {
			continue
		}

		var known *float64
		if area, ok := r.FloorAreaSqFt(); ok {
			known = &area
		}

		cert, result, err := p.certificates.Resolve(ctx, addr, postcode, known)
		if err != nil {
			p.logger.Warn("certificate lookup failed", zap.String("address", addr), zap.Error(err))
			continue
		}
		if result.Kind == selector.NoMatch {
			p.logger.Info("no certificate found", zap.String("address", addr))
			continue
		}

		summary.Certificates++
		if !r.Has(record.FieldCertificateURL) {
			r.Set(record.FieldCertificateURL, cert.URL)
		}
		if _, ok := r.FloorAreaSqFt(); !ok && cert.FloorAreaSqFt > 0 {
			r.Set(record.FieldFloorAreaSqFt, cert.FloorAreaSqFt)
		}

		if result.Kind == selector.AmbiguousMatch {
			summary.Ambiguous++
			r.AppendReview(fmt.Sprintf("ambiguous certificate match: %d candidates", len(result.Candidates)))
			items = append(items, review.Item{
				ID:         len(items) + 1,
				Address:    addr,
				Postcode:   postcode,
				Reason:     "ambiguous certificate match",
				Candidates: result.Candidates,
			})
		}
	}
	return items
}

// conflictItems turns merge-conflict annotations into review items.
func conflictItems(comparables []record.PropertyRecord, nextID int) []review.Item {
	var items []review.Item
	for _, c := range comparables {
		reason := c.String(record.FieldNeedsReview)
		if reason == "" || !strings.Contains(reason, "conflict") {
			continue
		}
		nextID++
		items = append(items, review.Item{
			ID:       nextID,
			Address:  c.String(record.FieldAddress),
			Postcode: c.String(record.FieldPostcode),
			Reason:   reason,
		})
	}
	return items
}
