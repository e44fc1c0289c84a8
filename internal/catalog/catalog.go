package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"card-compare-engine/internal/cache"
	"card-compare-engine/internal/engine"
	"card-compare-engine/internal/observability"
	"card-compare-engine/internal/storage"
)

// Source is the read side of the store the catalog is built from.
type Source interface {
	LoadActiveCampaigns(ctx context.Context, today time.Time) ([]storage.CampaignRow, error)
	ListBanks(ctx context.Context) ([]storage.BankRow, error)
}

type Bank struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Color      string `json:"color"`
	LogoURL    string `json:"logo_url,omitempty"`
	WebsiteURL string `json:"website_url,omitempty"`
	Cards      []Card `json:"cards"`
}

type Card struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Type string `json:"type"`
}

// indexes for fast per-card narrowing
type indexes struct {
	campaigns []engine.Campaign // backing array; byCard references this
	byCard    map[int64][]int
}

type snapshot struct {
	idx         indexes
	banks       []Bank
	suggestions []string
	version     uint64
	loadedAt    time.Time
}

// Catalog exposes read-only, lock-free views over the active campaigns.
type Catalog struct {
	snap    cache.Snapshot[snapshot]
	version atomic.Uint64

	// serializes Refresh so a slow load never overwrites a newer snapshot
	mu sync.Mutex
}

func New() *Catalog { return &Catalog{} }

// Refresh loads active campaigns and banks from src and swaps the snapshot.
// On error the previous snapshot stays in place.
func (c *Catalog) Refresh(ctx context.Context, src Source, today time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := src.LoadActiveCampaigns(ctx, today)
	if err != nil {
		observability.CatalogRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("load campaigns: %w", err)
	}
	bankRows, err := src.ListBanks(ctx)
	if err != nil {
		observability.CatalogRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("load banks: %w", err)
	}

	cs := make([]engine.Campaign, 0, len(rows))
	for _, r := range rows {
		cs = append(cs, toCampaign(r))
	}

	s := snapshot{
		idx:         buildIndexes(cs),
		banks:       toBanks(bankRows),
		suggestions: engine.Suggestions(cs),
		version:     c.version.Add(1),
		loadedAt:    time.Now(),
	}
	c.snap.Store(s)

	observability.CatalogCampaigns.Set(float64(len(cs)))
	observability.CatalogRefreshes.WithLabelValues("ok").Inc()
	log.Debug().
		Int("campaigns", len(cs)).
		Int("banks", len(s.banks)).
		Uint64("version", s.version).
		Msg("catalog refreshed")
	return nil
}

func buildIndexes(cs []engine.Campaign) indexes {
	ix := indexes{campaigns: cs, byCard: map[int64][]int{}}
	for i, c := range cs {
		ix.byCard[c.CardID] = append(ix.byCard[c.CardID], i)
	}
	return ix
}

// ForCards returns the campaigns of the given cards that have not ended
// before today, in card id order as given.
func (c *Catalog) ForCards(ids []int64, today time.Time) []engine.Campaign {
	s, ok := c.snap.Load()
	if !ok {
		return nil
	}
	day := dateOnly(today)

	var out []engine.Campaign
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, i := range s.idx.byCard[id] {
			camp := s.idx.campaigns[i]
			if camp.EndDate != nil && dateOnly(*camp.EndDate).Before(day) {
				continue
			}
			out = append(out, camp)
		}
	}
	return out
}

func (c *Catalog) Suggestions() []string {
	s, _ := c.snap.Load()
	return s.suggestions
}

func (c *Catalog) Banks() []Bank {
	s, _ := c.snap.Load()
	return s.banks
}

// Version is bumped on every successful refresh; zero means never loaded.
func (c *Catalog) Version() uint64 {
	s, _ := c.snap.Load()
	return s.version
}

func (c *Catalog) Size() int {
	s, _ := c.snap.Load()
	return len(s.idx.campaigns)
}

func (c *Catalog) LoadedAt() time.Time {
	s, _ := c.snap.Load()
	return s.loadedAt
}

func toCampaign(r storage.CampaignRow) engine.Campaign {
	return engine.Campaign{
		ID:              r.ID,
		CardID:          r.CardID,
		Title:           r.Title,
		Description:     deref(r.Description),
		MerchantName:    r.MerchantName,
		MerchantPattern: r.MerchantPattern,
		DiscountType:    engine.DiscountType(r.DiscountType),
		DiscountRate:    r.DiscountRate,
		MaxDiscount:     r.MaxDiscount,
		MinSpend:        r.MinSpend,
		Conditions:      deref(r.Conditions),
		SourceURL:       deref(r.SourceURL),
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		Card: engine.Card{
			ID:   r.CardID,
			Name: r.CardName,
			Slug: r.CardSlug,
			Bank: engine.Bank{
				ID:    r.BankID,
				Name:  r.BankName,
				Slug:  r.BankSlug,
				Color: r.BankColor,
			},
		},
	}
}

func toBanks(rows []storage.BankRow) []Bank {
	out := make([]Bank, 0, len(rows))
	for _, b := range rows {
		bank := Bank{
			ID:         b.ID,
			Name:       b.Name,
			Slug:       b.Slug,
			Color:      b.Color,
			LogoURL:    deref(b.LogoURL),
			WebsiteURL: deref(b.WebsiteURL),
			Cards:      make([]Card, 0, len(b.Cards)),
		}
		for _, k := range b.Cards {
			bank.Cards = append(bank.Cards, Card{ID: k.ID, Name: k.Name, Slug: k.Slug, Type: k.Type})
		}
		out = append(out, bank)
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
