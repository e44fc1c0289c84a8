package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"card-compare-engine/internal/cache"
	"card-compare-engine/internal/catalog"
	"card-compare-engine/internal/engine"
	"card-compare-engine/internal/observability"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrCatalogNotReady = errors.New("campaign catalog not loaded")
)

// ValidationError carries the user-facing message of the first failed rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

var messages = map[string]string{
	"SelectedCards": "En az bir kart seçmelisiniz.",
	"Merchant":      "Mağaza/site adı girmelisiniz.",
	"Amount":        "Geçerli bir harcama tutarı girmelisiniz.",
}

type CompareRequest struct {
	SelectedCards []int64         `json:"selectedCards" validate:"required,min=1"`
	Merchant      string          `json:"merchant" validate:"notblank"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
}

type CompareResponse struct {
	Results       []engine.CardResult `json:"results"`
	Merchant      string              `json:"merchant"`
	Amount        decimal.Decimal     `json:"amount"`
	TotalCards    int                 `json:"totalCards"`
	MatchingCards int                 `json:"matchingCards"`
}

// Catalog is the read view the service compares against.
type Catalog interface {
	ForCards(ids []int64, today time.Time) []engine.Campaign
	Suggestions() []string
	Banks() []catalog.Bank
	Version() uint64
	LoadedAt() time.Time
}

type Service struct {
	cat      Catalog
	eng      *engine.Engine
	results  cache.Results
	ttl      time.Duration
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Service)

func WithResultCache(results cache.Results, ttl time.Duration) Option {
	return func(s *Service) {
		if results != nil {
			s.results = results
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(cat Catalog, eng *engine.Engine, opts ...Option) *Service {
	if eng == nil {
		eng = engine.New()
	}
	s := &Service{
		cat:      cat,
		eng:      eng,
		results:  cache.Noop{},
		validate: newValidator(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Compare ranks the selected cards for a purchase of amount at merchant.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (CompareResponse, error) {
	ctx, span := observability.Tracer().Start(ctx, "service.Compare")
	defer span.End()

	if err := s.validateRequest(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return CompareResponse{}, err
	}
	version := s.cat.Version()
	if version == 0 {
		span.SetStatus(codes.Error, ErrCatalogNotReady.Error())
		return CompareResponse{}, ErrCatalogNotReady
	}

	today := s.now()
	key := cacheKey(version, today, req)

	var resp CompareResponse
	err := cache.GetJSON(ctx, s.results, key, &resp)
	switch {
	case err == nil:
		observability.ResultCache.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return resp, nil
	case errors.Is(err, cache.ErrNotFound):
		observability.ResultCache.WithLabelValues("miss").Inc()
	default:
		observability.ResultCache.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("result cache get")
	}

	campaigns := s.cat.ForCards(req.SelectedCards, today)
	results := s.eng.Compare(campaigns, req.Merchant, req.Amount)
	resp = CompareResponse{
		Results:       results,
		Merchant:      req.Merchant,
		Amount:        req.Amount,
		TotalCards:    len(req.SelectedCards),
		MatchingCards: len(results),
	}

	observability.CompareResults.Observe(float64(len(results)))
	span.SetAttributes(
		attribute.Int("campaigns", len(campaigns)),
		attribute.Int("matching_cards", len(results)),
	)
	log.Debug().
		Str("merchant", req.Merchant).
		Str("amount", req.Amount.String()).
		Int("cards", len(req.SelectedCards)).
		Int("matching", len(results)).
		Msg("compare")

	if err := cache.SetJSON(ctx, s.results, key, resp, s.ttl); err != nil {
		log.Warn().Err(err).Msg("result cache set")
	}
	return resp, nil
}

func (s *Service) Suggestions(_ context.Context) []string {
	out := s.cat.Suggestions()
	if out == nil {
		return []string{}
	}
	return out
}

func (s *Service) Banks(_ context.Context) []catalog.Bank {
	out := s.cat.Banks()
	if out == nil {
		return []catalog.Bank{}
	}
	return out
}

func (s *Service) validateRequest(req CompareRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	field := verrs[0].StructField()
	return &ValidationError{Field: field, Message: messages[field]}
}

// cache key: catalog version, day, card ids in request order (ties rank in
// that order), merchant, amount
func cacheKey(version uint64, today time.Time, req CompareRequest) string {
	ids := make([]int64, 0, len(req.SelectedCards))
	for _, id := range req.SelectedCards {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	var b strings.Builder
	b.WriteString("v")
	b.WriteString(strconv.FormatUint(version, 10))
	b.WriteString(":")
	b.WriteString(today.Format("2006-01-02"))
	b.WriteString(":")
	for i, id := range ids {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteString(":")
	b.WriteString(strconv.Itoa(len(req.SelectedCards)))
	b.WriteString(":")
	b.WriteString(req.Merchant)
	b.WriteString(":")
	b.WriteString(req.Amount.String())
	return b.String()
}

// Ready reports whether the catalog has been loaded at least once.
func (s *Service) Ready() bool { return s.cat.Version() > 0 }

// Status describes the catalog behind /readyz.
type Status struct {
	Ready    bool       `json:"ready"`
	Version  uint64     `json:"version"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

func (s *Service) Status() Status {
	st := Status{Version: s.cat.Version()}
	st.Ready = st.Version > 0
	if st.Ready {
		at := s.cat.LoadedAt()
		st.LoadedAt = &at
	}
	return st
}
