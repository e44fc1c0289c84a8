package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-compare-engine/internal/catalog"
	"card-compare-engine/internal/engine"
	"card-compare-engine/internal/service"
	"card-compare-engine/internal/storage"
)

type MockStore struct {
	campaigns []storage.CampaignRow
	banks     []storage.BankRow
}

func (m *MockStore) LoadActiveCampaigns(context.Context, time.Time) ([]storage.CampaignRow, error) {
	return m.campaigns, nil
}

func (m *MockStore) ListBanks(context.Context) ([]storage.BankRow, error) {
	return m.banks, nil
}

func sampleStore() *MockStore {
	return &MockStore{
		campaigns: []storage.CampaignRow{
			{
				ID: 1, CardID: 1, Title: "Trendyol'da %15 İndirim", MerchantName: "Trendyol", MerchantPattern: "trendyol",
				DiscountType: "percentage", DiscountRate: decimal.RequireFromString("0.15"),
				MaxDiscount: decimal.NewNullDecimal(decimal.RequireFromString("150")), MinSpend: decimal.RequireFromString("500"),
				IsActive: true, CardName: "Axess", CardSlug: "akbank-axess", BankID: 1, BankName: "Akbank", BankSlug: "akbank", BankColor: "#FF6600",
			},
			{
				ID: 2, CardID: 2, Title: "Trendyol'da 100 TL İndirim", MerchantName: "Trendyol", MerchantPattern: "trendyol",
				DiscountType: "fixed", DiscountRate: decimal.RequireFromString("100"), MinSpend: decimal.RequireFromString("750"),
				IsActive: true, CardName: "Bonus", CardSlug: "garanti-bonus", BankID: 2, BankName: "Garanti BBVA", BankSlug: "garanti", BankColor: "#00854A",
			},
			{
				ID: 3, CardID: 2, Title: "Migros'ta 50 TL İndirim", MerchantName: "Migros", MerchantPattern: "migros",
				DiscountType: "fixed", DiscountRate: decimal.RequireFromString("50"), MinSpend: decimal.RequireFromString("300"),
				IsActive: true, CardName: "Bonus", CardSlug: "garanti-bonus", BankID: 2, BankName: "Garanti BBVA", BankSlug: "garanti", BankColor: "#00854A",
			},
		},
		banks: []storage.BankRow{
			{ID: 1, Name: "Akbank", Slug: "akbank", Color: "#FF6600", Cards: []storage.CardRow{{ID: 1, BankID: 1, Name: "Axess", Slug: "akbank-axess", Type: "credit"}}},
			{ID: 2, Name: "Garanti BBVA", Slug: "garanti", Color: "#00854A", Cards: []storage.CardRow{{ID: 2, BankID: 2, Name: "Bonus", Slug: "garanti-bonus", Type: "credit"}}},
		},
	}
}

func newTestRouter(t *testing.T, st *MockStore) http.Handler {
	t.Helper()
	cat := catalog.New()
	if st != nil {
		require.NoError(t, cat.Refresh(context.Background(), st, time.Now()))
	}
	return Router(NewHandler(service.New(cat, engine.New())), RouterOptions{})
}

type compareEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Results       []engine.CardResult `json:"results"`
		Merchant      string              `json:"merchant"`
		Amount        decimal.Decimal     `json:"amount"`
		TotalCards    int                 `json:"totalCards"`
		MatchingCards int                 `json:"matchingCards"`
	} `json:"data"`
}

func TestCompare_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		wantSlugs  []string
	}{
		{"malformed body", `{"selectedCards":`, http.StatusBadRequest, "Geçersiz istek gövdesi.", nil},
		{"no cards", `{"selectedCards":[],"merchant":"Trendyol","amount":500}`, http.StatusBadRequest, "En az bir kart seçmelisiniz.", nil},
		{"blank merchant", `{"selectedCards":[1],"merchant":"  ","amount":500}`, http.StatusBadRequest, "Mağaza/site adı girmelisiniz.", nil},
		{"zero amount", `{"selectedCards":[1],"merchant":"Trendyol","amount":0}`, http.StatusBadRequest, "Geçerli bir harcama tutarı girmelisiniz.", nil},
		{"below min spend", `{"selectedCards":[1,2],"merchant":"Trendyol","amount":400}`, http.StatusOK, "", []string{}},
		{"ranked", `{"selectedCards":[1,2],"merchant":"trendyol","amount":1000}`, http.StatusOK, "", []string{"akbank-axess", "garanti-bonus"}},
		{"unselected card ignored", `{"selectedCards":[2],"merchant":"Trendyol","amount":1000}`, http.StatusOK, "", []string{"garanti-bonus"}},
	}

	router := newTestRouter(t, sampleStore())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)

			var got compareEnvelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			if tt.wantStatus != http.StatusOK {
				assert.False(t, got.Success)
				assert.Equal(t, tt.wantError, got.Error)
				return
			}

			assert.True(t, got.Success)
			slugs := []string{}
			for _, r := range got.Data.Results {
				slugs = append(slugs, r.CardSlug)
			}
			assert.Equal(t, tt.wantSlugs, slugs)
			assert.Equal(t, len(tt.wantSlugs), got.Data.MatchingCards)
		})
	}
}

func TestCompare_ResponseShape(t *testing.T) {
	router := newTestRouter(t, sampleStore())
	req := httptest.NewRequest(http.MethodPost, "/api/compare",
		strings.NewReader(`{"selectedCards":[1,2],"merchant":"Trendyol","amount":1000}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got compareEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Trendyol", got.Data.Merchant)
	assert.True(t, decimal.NewFromInt(1000).Equal(got.Data.Amount))
	assert.Equal(t, 2, got.Data.TotalCards)

	top := got.Data.Results[0]
	assert.Equal(t, "Akbank", top.BankName)
	assert.Equal(t, "#FF6600", top.BankColor)
	assert.True(t, decimal.NewFromInt(150).Equal(top.TotalSavings))
	require.Len(t, top.Campaigns, 1)
	assert.Equal(t, "Trendyol'da %15 İndirim", top.Campaigns[0].Title)
	assert.True(t, top.Campaigns[0].MaxDiscount.Valid)
}

func TestCompare_CatalogNotLoaded(t *testing.T) {
	router := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/compare",
		strings.NewReader(`{"selectedCards":[1],"merchant":"Trendyol","amount":1000}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Karşılaştırma yapılırken bir hata oluştu.")
}

func TestSuggestions(t *testing.T) {
	router := newTestRouter(t, sampleStore())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/compare", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, []string{"Migros", "Trendyol"}, got.Data)
}

func TestBanks(t *testing.T) {
	router := newTestRouter(t, sampleStore())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/banks", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Success bool           `json:"success"`
		Data    []catalog.Bank `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Data, 2)
	assert.Equal(t, "garanti-bonus", got.Data[1].Cards[0].Slug)
}

func TestHealthAndReady(t *testing.T) {
	tests := []struct {
		name       string
		store      *MockStore
		path       string
		wantStatus int
	}{
		{"healthz", nil, "/healthz", http.StatusOK},
		{"ready before load", nil, "/readyz", http.StatusServiceUnavailable},
		{"ready after load", sampleStore(), "/readyz", http.StatusOK},
		{"suggestions before load", nil, "/api/compare", http.StatusInternalServerError},
		{"metrics", nil, "/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newTestRouter(t, tt.store).ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestReadyStatus(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t, sampleStore()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got service.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Ready)
	assert.Equal(t, uint64(1), got.Version)
	require.NotNil(t, got.LoadedAt)
	assert.False(t, got.LoadedAt.IsZero())

	w = httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	got = service.Status{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.False(t, got.Ready)
	assert.Nil(t, got.LoadedAt)
}

func TestCORS(t *testing.T) {
	router := newTestRouter(t, sampleStore())
	req := httptest.NewRequest(http.MethodOptions, "/api/compare", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
