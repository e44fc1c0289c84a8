package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Bank struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color"`
}

type Card struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Bank Bank   `json:"bank"`
}

// Campaign is one active offer, already joined with its card and bank.
// DiscountRate is a fraction for percentage campaigns and a currency
// amount for fixed ones.
type Campaign struct {
	ID              int64               `json:"id"`
	CardID          int64               `json:"card_id"`
	Title           string              `json:"title"`
	Description     string              `json:"description,omitempty"`
	MerchantName    string              `json:"merchant_name"`
	MerchantPattern string              `json:"merchant_pattern"`
	DiscountType    DiscountType        `json:"discount_type"`
	DiscountRate    decimal.Decimal     `json:"discount_rate"`
	MaxDiscount     decimal.NullDecimal `json:"max_discount"`
	MinSpend        decimal.Decimal     `json:"min_spend"`
	Conditions      string              `json:"conditions,omitempty"`
	SourceURL       string              `json:"source_url,omitempty"`
	StartDate       *time.Time          `json:"start_date,omitempty"`
	EndDate         *time.Time          `json:"end_date,omitempty"`
	Card            Card                `json:"card"`
}

// CampaignResult is a matched campaign with the savings it yields.
type CampaignResult struct {
	CampaignID   int64               `json:"campaign_id"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	MerchantName string              `json:"merchant_name"`
	DiscountType DiscountType        `json:"discount_type"`
	DiscountRate decimal.Decimal     `json:"discount_rate"`
	MaxDiscount  decimal.NullDecimal `json:"max_discount"`
	MinSpend     decimal.Decimal     `json:"min_spend"`
	Conditions   string              `json:"conditions,omitempty"`
	SourceURL    string              `json:"source_url,omitempty"`
	Savings      decimal.Decimal     `json:"savings"`
}

type CardResult struct {
	CardID       int64            `json:"card_id"`
	CardName     string           `json:"card_name"`
	CardSlug     string           `json:"card_slug"`
	BankName     string           `json:"bank_name"`
	BankSlug     string           `json:"bank_slug"`
	BankColor    string           `json:"bank_color"`
	TotalSavings decimal.Decimal  `json:"total_savings"`
	Campaigns    []CampaignResult `json:"campaigns"`
}

func newCampaignResult(c Campaign, savings decimal.Decimal) CampaignResult {
	return CampaignResult{
		CampaignID:   c.ID,
		Title:        c.Title,
		Description:  c.Description,
		MerchantName: c.MerchantName,
		DiscountType: c.DiscountType,
		DiscountRate: c.DiscountRate,
		MaxDiscount:  c.MaxDiscount,
		MinSpend:     c.MinSpend,
		Conditions:   c.Conditions,
		SourceURL:    c.SourceURL,
		Savings:      savings,
	}
}
