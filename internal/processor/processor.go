package processor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nmwangi/dukatrans/internal/catalog"
	"github.com/nmwangi/dukatrans/internal/compose"
	"github.com/nmwangi/dukatrans/internal/translate"
	"github.com/nmwangi/dukatrans/internal/vision"
)

// Gateway is the slice of the catalog API the processor needs.
type Gateway interface {
	DownloadImage(ctx context.Context, src string) ([]byte, error)
	UploadImage(ctx context.Context, itemID int64, data []byte) (*catalog.Image, error)
	DeleteImage(ctx context.Context, itemID, imageID int64) error
	UpdateItem(ctx context.Context, item *catalog.Item) error
}

// Detector locates text regions in an image.
type Detector interface {
	Detect(ctx context.Context, imageBytes []byte) ([]vision.Region, error)
}

// TextTranslator translates free-form strings and tag lists.
type TextTranslator interface {
	Text(ctx context.Context, s string) (string, error)
	Tags(ctx context.Context, csv string) (string, error)
}

// Failure describes one failed unit within an item. ImageID/ImageSrc are
// empty for item-scoped failures (field translation, final update).
type Failure struct {
	ItemID   int64
	ImageID  int64
	ImageSrc string
	Err      error
}

// Result reports the outcome of processing one item. A non-empty Failures
// slice means partial (or total) failure; the processor never aborts an item
// because one asset failed.
type Result struct {
	ItemID           int64
	TranslatedImages int
	SkippedImages    int
	Uploaded         []catalog.Image
	Failures         []Failure
}

func (r Result) Failed() bool { return len(r.Failures) > 0 }

type Config struct {
	ExchangeRate  float64
	MarkupPercent float64
}

// Processor turns one catalog item into its translated form: text fields,
// variant prices and options, then each image asset, then one final item
// update.
type Processor struct {
	gateway  Gateway
	detector Detector
	fields   TextTranslator
	cfg      Config
	logger   zerolog.Logger
}

func New(gateway Gateway, detector Detector, fields TextTranslator, cfg Config, logger zerolog.Logger) *Processor {
	return &Processor{
		gateway:  gateway,
		detector: detector,
		fields:   fields,
		cfg:      cfg,
		logger:   logger,
	}
}

// Process runs the full unit of work for one item. Asset failures degrade to
// partial success; the item update is pushed regardless of per-asset
// outcomes.
func (p *Processor) Process(ctx context.Context, item catalog.Item) Result {
	res := Result{ItemID: item.ID}
	updated := item

	if err := p.translateFields(ctx, &updated); err != nil {
		p.logger.Warn().Err(err).Int64("item_id", item.ID).Msg("field translation failed")
		res.Failures = append(res.Failures, Failure{ItemID: item.ID, Err: err})
	}

	for _, img := range item.Images {
		uploaded, skipped, err := p.processImage(ctx, item.ID, img)
		switch {
		case err != nil:
			p.logger.Warn().Err(err).
				Int64("item_id", item.ID).
				Int64("image_id", img.ID).
				Msg("image translation failed")
			res.Failures = append(res.Failures, Failure{
				ItemID:   item.ID,
				ImageID:  img.ID,
				ImageSrc: img.Src,
				Err:      err,
			})
		case skipped:
			res.SkippedImages++
		default:
			res.TranslatedImages++
			res.Uploaded = append(res.Uploaded, *uploaded)
		}
	}

	if err := p.gateway.UpdateItem(ctx, &updated); err != nil {
		res.Failures = append(res.Failures, Failure{
			ItemID: item.ID,
			Err:    fmt.Errorf("update item: %w", err),
		})
	}

	return res
}

func (p *Processor) translateFields(ctx context.Context, item *catalog.Item) error {
	title, err := p.fields.Text(ctx, item.Title)
	if err != nil {
		return fmt.Errorf("translate title: %w", err)
	}
	item.Title = title

	body, err := p.fields.Text(ctx, item.BodyHTML)
	if err != nil {
		return fmt.Errorf("translate body: %w", err)
	}
	item.BodyHTML = body

	tags, err := p.fields.Tags(ctx, item.Tags)
	if err != nil {
		return fmt.Errorf("translate tags: %w", err)
	}
	item.Tags = tags

	for i := range item.Variants {
		v := &item.Variants[i]
		v.Price = translate.ConvertPrice(v.Price, p.cfg.ExchangeRate, p.cfg.MarkupPercent)
		for _, opt := range []*string{&v.Option1, &v.Option2, &v.Option3} {
			if *opt == "" {
				continue
			}
			out, err := p.fields.Text(ctx, *opt)
			if err != nil {
				return fmt.Errorf("translate variant %d option: %w", v.ID, err)
			}
			*opt = out
		}
	}
	return nil
}

// processImage handles one asset end to end. skipped reports the zero-region
// no-op case; the superseded asset is only deleted after the replacement
// upload succeeded.
func (p *Processor) processImage(ctx context.Context, itemID int64, img catalog.Image) (uploaded *catalog.Image, skipped bool, err error) {
	data, err := p.gateway.DownloadImage(ctx, img.Src)
	if err != nil {
		return nil, false, fmt.Errorf("download: %w", err)
	}

	regions, err := p.detector.Detect(ctx, data)
	if err != nil {
		return nil, false, fmt.Errorf("detect: %w", err)
	}
	if len(regions) == 0 {
		return nil, true, nil
	}

	placements := make([]compose.Placement, 0, len(regions))
	for _, region := range regions {
		text, err := p.fields.Text(ctx, region.Text)
		if err != nil {
			return nil, false, fmt.Errorf("translate region %q: %w", region.Text, err)
		}
		placements = append(placements, compose.Placement{Region: region, Text: text})
	}

	rendered, err := compose.Render(data, placements)
	if err != nil {
		return nil, false, fmt.Errorf("compose: %w", err)
	}

	uploaded, err = p.gateway.UploadImage(ctx, itemID, rendered)
	if err != nil {
		return nil, false, fmt.Errorf("upload: %w", err)
	}

	if img.ID != 0 {
		if err := p.gateway.DeleteImage(ctx, itemID, img.ID); err != nil {
			// The replacement is already live; losing the delete only leaves
			// the stale asset behind, so it is not worth failing the asset.
			p.logger.Warn().Err(err).
				Int64("item_id", itemID).
				Int64("image_id", img.ID).
				Msg("failed to delete superseded image")
		}
	}

	return uploaded, false, nil
}
