// Package seed loads bank, card and campaign fixtures from YAML and writes
// them through the store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"card-compare-engine/internal/engine"
	"card-compare-engine/internal/normalize"
	"card-compare-engine/internal/storage"
)

type File struct {
	Banks []Bank `yaml:"banks"`
}

type Bank struct {
	Name       string `yaml:"name"`
	Slug       string `yaml:"slug"`
	Color      string `yaml:"color"`
	LogoURL    string `yaml:"logo_url"`
	WebsiteURL string `yaml:"website_url"`
	Cards      []Card `yaml:"cards"`
}

type Card struct {
	Name      string     `yaml:"name"`
	Slug      string     `yaml:"slug"`
	Type      string     `yaml:"type"`
	Campaigns []Campaign `yaml:"campaigns"`
}

// Campaign is either raw page text (discount_text, date_text) run through
// the normalizer, or structured when discount_type is set. Structured
// values win over anything parsed from the text.
type Campaign struct {
	normalize.Raw `yaml:",inline"`

	MerchantPattern string              `yaml:"merchant_pattern"`
	DiscountType    string              `yaml:"discount_type"`
	DiscountRate    decimal.Decimal     `yaml:"discount_rate"`
	MaxDiscount     decimal.NullDecimal `yaml:"max_discount"`
	MinSpend        decimal.NullDecimal `yaml:"min_spend"`
	StartDate       *time.Time          `yaml:"start_date"`
	EndDate         *time.Time          `yaml:"end_date"`
}

// Writer is the part of the store the importer needs.
type Writer interface {
	UpsertBank(ctx context.Context, b storage.BankRow) (int64, error)
	UpsertCard(ctx context.Context, c storage.CardRow) (int64, error)
	UpsertCampaigns(ctx context.Context, campaigns []storage.CampaignRow) (int, error)
	DeactivateExpired(ctx context.Context, today time.Time) (int64, error)
}

type Summary struct {
	Banks       int
	Cards       int
	Campaigns   int
	Deactivated int64
}

var ErrInvalidFile = errors.New("invalid seed file")

func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to open seed file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var out File
	if err := dec.Decode(&out); err != nil {
		return File{}, fmt.Errorf("failed to decode seed file %s: %w", path, err)
	}
	if err := out.validate(); err != nil {
		return File{}, err
	}
	return out, nil
}

func (f File) validate() error {
	seen := map[string]bool{}
	for _, b := range f.Banks {
		if b.Name == "" || b.Slug == "" {
			return fmt.Errorf("%w: bank needs name and slug", ErrInvalidFile)
		}
		for _, c := range b.Cards {
			if c.Name == "" || c.Slug == "" {
				return fmt.Errorf("%w: card of %s needs name and slug", ErrInvalidFile, b.Slug)
			}
			if seen[c.Slug] {
				return fmt.Errorf("%w: duplicate card slug %s", ErrInvalidFile, c.Slug)
			}
			seen[c.Slug] = true
		}
	}
	return nil
}

// Row builds the campaign row for cardID.
func (c Campaign) Row(cardID int64) (storage.CampaignRow, error) {
	raw := c.Raw
	raw.CardID = cardID
	row, err := normalize.Normalize(raw)
	if err != nil {
		return storage.CampaignRow{}, err
	}
	if c.MerchantPattern != "" {
		row.MerchantPattern = c.MerchantPattern
	}
	if c.StartDate != nil {
		row.StartDate = c.StartDate
	}
	if c.EndDate != nil {
		row.EndDate = c.EndDate
	}
	if c.MinSpend.Valid {
		row.MinSpend = c.MinSpend.Decimal
	}
	if c.DiscountType == "" {
		return row, nil
	}

	switch engine.DiscountType(c.DiscountType) {
	case engine.DiscountPercentage, engine.DiscountFixed:
	default:
		return storage.CampaignRow{}, fmt.Errorf("%w: campaign %q has discount type %q", ErrInvalidFile, c.Title, c.DiscountType)
	}
	row.DiscountType = c.DiscountType
	row.DiscountRate = c.DiscountRate
	row.MaxDiscount = c.MaxDiscount
	return row, nil
}

// Import upserts banks, then their cards, then the cards' campaigns, and
// finally deactivates campaigns that ended before today.
func Import(ctx context.Context, w Writer, f File, today time.Time) (Summary, error) {
	var sum Summary
	for _, b := range f.Banks {
		bankID, err := w.UpsertBank(ctx, storage.BankRow{
			Name:       b.Name,
			Slug:       b.Slug,
			Color:      b.Color,
			LogoURL:    optional(b.LogoURL),
			WebsiteURL: optional(b.WebsiteURL),
		})
		if err != nil {
			return sum, err
		}
		sum.Banks++

		for _, c := range b.Cards {
			cardType := c.Type
			if cardType == "" {
				cardType = "credit"
			}
			cardID, err := w.UpsertCard(ctx, storage.CardRow{BankID: bankID, Name: c.Name, Slug: c.Slug, Type: cardType})
			if err != nil {
				return sum, err
			}
			sum.Cards++

			rows := make([]storage.CampaignRow, 0, len(c.Campaigns))
			for _, camp := range c.Campaigns {
				row, err := camp.Row(cardID)
				if err != nil {
					return sum, fmt.Errorf("card %s: %w", c.Slug, err)
				}
				rows = append(rows, row)
			}
			n, err := w.UpsertCampaigns(ctx, rows)
			if err != nil {
				return sum, fmt.Errorf("card %s: %w", c.Slug, err)
			}
			sum.Campaigns += n
			log.Info().Str("card", c.Slug).Int("campaigns", n).Msg("card imported")
		}
	}

	deactivated, err := w.DeactivateExpired(ctx, today)
	if err != nil {
		return sum, err
	}
	sum.Deactivated = deactivated
	return sum, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
