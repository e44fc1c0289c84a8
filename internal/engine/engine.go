package engine

import (
	"slices"
	"sort"

	"github.com/shopspring/decimal"
)

// Engine ranks cards by the campaign savings they offer for a purchase.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	matcher Matcher
}

type Option func(*Engine)

func WithMatcher(m Matcher) Option {
	return func(e *Engine) {
		if m != nil {
			e.matcher = m
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{matcher: SubstringMatcher{}}
	for _, o := range opts {
		o(e)
	}
	return e
}

var defaultEngine = New()

// Compare runs the default substring engine.
func Compare(campaigns []Campaign, merchant string, amount decimal.Decimal) []CardResult {
	return defaultEngine.Compare(campaigns, merchant, amount)
}

// Compare groups the campaigns matching merchant by card, sums their savings
// at amount and returns the cards best first. Several campaigns on one card
// are all counted.
func (e *Engine) Compare(campaigns []Campaign, merchant string, amount decimal.Decimal) []CardResult {
	out := []CardResult{}
	if len(campaigns) == 0 {
		return out
	}

	byCard := map[int64]int{}
	for _, c := range campaigns {
		if !e.matcher.Match(merchant, c.MerchantPattern) {
			continue
		}
		savings := Savings(c, amount)
		if !savings.IsPositive() {
			continue
		}

		i, ok := byCard[c.CardID]
		if !ok {
			i = len(out)
			byCard[c.CardID] = i
			out = append(out, CardResult{
				CardID:       c.CardID,
				CardName:     c.Card.Name,
				CardSlug:     c.Card.Slug,
				BankName:     c.Card.Bank.Name,
				BankSlug:     c.Card.Bank.Slug,
				BankColor:    c.Card.Bank.Color,
				TotalSavings: decimal.Zero,
			})
		}
		out[i].Campaigns = append(out[i].Campaigns, newCampaignResult(c, savings))
		out[i].TotalSavings = out[i].TotalSavings.Add(savings)
	}

	for i := range out {
		out[i].TotalSavings = out[i].TotalSavings.Round(2)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalSavings.GreaterThan(out[j].TotalSavings)
	})
	return out
}

// Suggestions returns the distinct merchant names of the campaigns, sorted.
func Suggestions(campaigns []Campaign) []string {
	names := make([]string, len(campaigns))
	for i, c := range campaigns {
		names[i] = c.MerchantName
	}
	return SuggestionsFromNames(names)
}

func SuggestionsFromNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
