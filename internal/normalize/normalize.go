// Package normalize turns the free-text fields of a bank's campaign page
// (Turkish discount, minimum spend and date phrases) into structured rows.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"card-compare-engine/internal/engine"
	"card-compare-engine/internal/storage"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 500
	maxConditionsLen  = 500

	UnknownMerchant = "Bilinmeyen"
)

var ErrMissingCard = errors.New("campaign has no card")

// Raw is a campaign as it appears on a bank's page.
type Raw struct {
	CardID       int64  `yaml:"card_id"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	MerchantName string `yaml:"merchant_name"`
	DiscountText string `yaml:"discount_text"`
	DateText     string `yaml:"date_text"`
	Conditions   string `yaml:"conditions"`
	SourceURL    string `yaml:"source_url"`
}

var months = map[string]time.Month{
	"ocak":    time.January,
	"şubat":   time.February,
	"subat":   time.February,
	"mart":    time.March,
	"nisan":   time.April,
	"mayıs":   time.May,
	"mayis":   time.May,
	"haziran": time.June,
	"temmuz":  time.July,
	"ağustos": time.August,
	"agustos": time.August,
	"eylül":   time.September,
	"eylul":   time.September,
	"ekim":    time.October,
	"kasım":   time.November,
	"kasim":   time.November,
	"aralık":  time.December,
	"aralik":  time.December,
}

const number = `(\d+(?:[.,]\d+)*)`

var (
	rePercent = regexp.MustCompile(`%\s*` + number)
	reCap     = regexp.MustCompile(`(?i)(?:maks(?:imum)?|en fazla|max)\s*[:.]?\s*` + number + `\s*TL`)
	reFixed   = regexp.MustCompile(`(?i)` + number + `\s*TL`)
	reReward  = regexp.MustCompile(`(?i)` + number + `\s*TL(?:'?(?:ye|ya) varan)?\s+(?:indirim|iade|hediye|puan|bonus|chip-para|maxipuan|worldpuan|paraf)`)

	reMinSpend = []*regexp.Regexp{
		regexp.MustCompile(`(?i)` + number + `\s*TL\s*(?:ve\s+)?(?:üzeri|üstü|üzerinde)`),
		regexp.MustCompile(`(?i)(?:minimum|min\.?|en az)\s*` + number + `\s*TL`),
	}

	reNumericDate = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{4})`)
	reMonthDate   = regexp.MustCompile(`(\d{1,2})\s+(` + monthAlternation() + `)(?:\s+(\d{4}))?`)
	reThousands   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)

	reSuffix     = regexp.MustCompile(`['’](?:da|de|ta|te|nda|nde)$`)
	reDomain     = regexp.MustCompile(`\.com(?:\.tr)?$`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

func monthAlternation() string {
	names := make([]string, 0, len(months))
	for name := range months {
		names = append(names, regexp.QuoteMeta(name))
	}
	return strings.Join(names, "|")
}

// Normalize converts a raw campaign into a row ready for UpsertCampaigns.
func Normalize(r Raw) (storage.CampaignRow, error) {
	if r.CardID == 0 {
		return storage.CampaignRow{}, fmt.Errorf("%w: %q", ErrMissingCard, r.Title)
	}

	discountText := r.DiscountText
	if strings.TrimSpace(discountText) == "" {
		discountText = r.Title
	}
	kind, rate, maxDiscount := ParseDiscount(discountText)
	start, end := ParseDates(r.DateText)

	merchant := strings.TrimSpace(r.MerchantName)
	pattern := MerchantPattern(merchant)
	if merchant == "" {
		merchant = UnknownMerchant
	}

	return storage.CampaignRow{
		CardID:          r.CardID,
		Title:           truncate(r.Title, maxTitleLen),
		Description:     optional(truncate(r.Description, maxDescriptionLen)),
		MerchantName:    merchant,
		MerchantPattern: pattern,
		DiscountType:    string(kind),
		DiscountRate:    rate,
		MaxDiscount:     maxDiscount,
		MinSpend:        ParseMinSpend(r.Description + " " + r.DiscountText),
		Conditions:      optional(truncate(r.Conditions, maxConditionsLen)),
		SourceURL:       optional(r.SourceURL),
		StartDate:       start,
		EndDate:         end,
		IsActive:        true,
	}, nil
}

// ParseDiscount reads "%15 indirim", "%10 indirim (maks 75 TL)" or
// "100 TL indirim". Percentages come back as fractions; a fixed amount is
// its own cap. Unrecognised text is a zero percentage.
func ParseDiscount(text string) (engine.DiscountType, decimal.Decimal, decimal.NullDecimal) {
	text = strings.ToLower(text)
	if m := rePercent.FindStringSubmatch(text); m != nil {
		pct, ok := parseAmount(m[1])
		if !ok {
			return engine.DiscountPercentage, decimal.Zero, decimal.NullDecimal{}
		}
		var capAmount decimal.NullDecimal
		if c := reCap.FindStringSubmatch(text); c != nil {
			if v, ok := parseAmount(c[1]); ok {
				capAmount = decimal.NewNullDecimal(v)
			}
		}
		return engine.DiscountPercentage, pct.Div(decimal.NewFromInt(100)), capAmount
	}

	// "500 TL ve üzeri 50 TL indirim": prefer the amount tied to the reward
	for _, re := range []*regexp.Regexp{reReward, reFixed} {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, ok := parseAmount(m[1]); ok {
				return engine.DiscountFixed, v, decimal.NewNullDecimal(v)
			}
		}
	}
	return engine.DiscountPercentage, decimal.Zero, decimal.NullDecimal{}
}

// ParseMinSpend finds phrases like "500 TL ve üzeri", "1000 TL üstü",
// "minimum 750 TL" or "en az 200 TL". Zero when none is present.
func ParseMinSpend(text string) decimal.Decimal {
	text = strings.ToLower(text)
	for _, re := range reMinSpend {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, ok := parseAmount(m[1]); ok {
				return v
			}
		}
	}
	return decimal.Zero
}

// ParseDates understands "15.02.2026 - 28.02.2026" and
// "1 Şubat - 31 Mart 2026". A lone date is taken as the end date; a start
// date without a year borrows the end date's year.
func ParseDates(text string) (start, end *time.Time) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if ms := reNumericDate.FindAllStringSubmatch(text, 2); len(ms) > 0 {
		var dates []*time.Time
		for _, m := range ms {
			dates = append(dates, makeDate(m[3], m[2], m[1]))
		}
		if len(dates) == 1 {
			return nil, dates[0]
		}
		return dates[0], dates[1]
	}

	ms := reMonthDate.FindAllStringSubmatch(strings.ToLower(text), 2)
	switch len(ms) {
	case 0:
		return nil, nil
	case 1:
		if ms[0][3] == "" {
			return nil, nil
		}
		return nil, monthDate(ms[0], ms[0][3])
	}
	year := ms[1][3]
	if year == "" {
		return nil, nil
	}
	startYear := ms[0][3]
	if startYear == "" {
		startYear = year
	}
	return monthDate(ms[0], startYear), monthDate(ms[1], year)
}

func monthDate(m []string, year string) *time.Time {
	month := months[m[2]]
	return makeDate(year, strconv.Itoa(int(month)), m[1])
}

func makeDate(year, month, day string) *time.Time {
	y, err1 := strconv.Atoi(year)
	mo, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil || mo < 1 || mo > 12 || d < 1 || d > 31 {
		return nil
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return nil // 31.02 and friends
	}
	return &t
}

// MerchantPattern derives the lowercase search pattern stored with a
// campaign: "Trendyol'da" -> "trendyol", "Hepsiburada.com" -> "hepsiburada".
func MerchantPattern(name string) string {
	p := strings.ToLower(strings.TrimSpace(name))
	if p == "" {
		return ""
	}
	p = reSuffix.ReplaceAllString(p, "")
	p = reDomain.ReplaceAllString(p, "")
	return strings.TrimSpace(reWhitespace.ReplaceAllString(p, " "))
}

// parseAmount accepts "15", "7,5", "12.5" and "1.500" (thousands).
func parseAmount(s string) (decimal.Decimal, bool) {
	switch {
	case reThousands.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case strings.Count(s, ",")+strings.Count(s, ".") > 1:
		return decimal.Zero, false
	default:
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
