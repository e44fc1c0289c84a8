package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-compare-engine/internal/storage"
)

type fakeWriter struct {
	banks     []storage.BankRow
	cards     []storage.CardRow
	campaigns []storage.CampaignRow
	failCard  string
}

func (f *fakeWriter) UpsertBank(_ context.Context, b storage.BankRow) (int64, error) {
	f.banks = append(f.banks, b)
	return int64(len(f.banks)), nil
}

func (f *fakeWriter) UpsertCard(_ context.Context, c storage.CardRow) (int64, error) {
	if c.Slug == f.failCard {
		return 0, errors.New("constraint violation")
	}
	f.cards = append(f.cards, c)
	return int64(100 + len(f.cards)), nil
}

func (f *fakeWriter) UpsertCampaigns(_ context.Context, rows []storage.CampaignRow) (int, error) {
	f.campaigns = append(f.campaigns, rows...)
	return len(rows), nil
}

func (f *fakeWriter) DeactivateExpired(context.Context, time.Time) (int64, error) { return 2, nil }

func TestLoad_SampleFile(t *testing.T) {
	f, err := Load(filepath.Join("..", "..", "configs", "seed.yaml"))
	require.NoError(t, err)

	require.Len(t, f.Banks, 5)
	assert.Equal(t, "Yapı Kredi", f.Banks[2].Name)
	assert.Equal(t, "akbank-axess", f.Banks[0].Cards[0].Slug)

	axess := f.Banks[0].Cards[0].Campaigns[0]
	assert.Equal(t, "percentage", axess.DiscountType)
	assert.True(t, decimal.RequireFromString("0.15").Equal(axess.DiscountRate))
	require.NotNil(t, axess.EndDate)
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), axess.EndDate.UTC())
}

func TestImport_SampleFile(t *testing.T) {
	f, err := Load(filepath.Join("..", "..", "configs", "seed.yaml"))
	require.NoError(t, err)

	w := &fakeWriter{}
	sum, err := Import(context.Background(), w, f, time.Now())
	require.NoError(t, err)

	assert.Equal(t, Summary{Banks: 5, Cards: 8, Campaigns: 9, Deactivated: 2}, sum)
	assert.Equal(t, int64(1), w.cards[0].BankID)

	byTitle := map[string]storage.CampaignRow{}
	for _, c := range w.campaigns {
		byTitle[c.Title] = c
	}

	// parsed from page text
	teknosa := byTitle["Teknosa'da %12 İndirim"]
	assert.Equal(t, "teknosa", teknosa.MerchantPattern)
	assert.Equal(t, "percentage", teknosa.DiscountType)
	assert.True(t, decimal.RequireFromString("0.12").Equal(teknosa.DiscountRate))
	assert.True(t, decimal.NewFromInt(500).Equal(teknosa.MaxDiscount.Decimal))
	assert.True(t, decimal.NewFromInt(1500).Equal(teknosa.MinSpend))
	require.NotNil(t, teknosa.StartDate)
	assert.Equal(t, time.February, teknosa.StartDate.Month())

	media := byTitle["MediaMarkt'ta 300 TL İndirim"]
	assert.Equal(t, "fixed", media.DiscountType)
	assert.True(t, decimal.NewFromInt(2000).Equal(media.MinSpend))
	assert.Equal(t, "mediamarkt", media.MerchantPattern)

	// structured
	spotify := byTitle["Spotify Premium 6 Ay Hediye"]
	assert.False(t, spotify.MaxDiscount.Valid)
	assert.True(t, spotify.MinSpend.IsZero())
	assert.Equal(t, int64(100+6), spotify.CardID)
}

func TestImport_StopsOnError(t *testing.T) {
	f := File{Banks: []Bank{{Name: "A", Slug: "a", Cards: []Card{{Name: "X", Slug: "x"}}}}}
	_, err := Import(context.Background(), &fakeWriter{failCard: "x"}, f, time.Now())
	assert.Error(t, err)
}

func TestCampaignRow_InvalidType(t *testing.T) {
	c := Campaign{DiscountType: "cashback"}
	c.Title = "x"
	_, err := c.Row(1)
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(write("unknown.yaml", "banks:\n  - name: A\n    slug: a\n    colour: red\n"))
	assert.Error(t, err)

	_, err = Load(write("dupe.yaml", "banks:\n  - name: A\n    slug: a\n    cards:\n      - {name: X, slug: x}\n      - {name: Y, slug: x}\n"))
	assert.ErrorIs(t, err, ErrInvalidFile)
}
