package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"card-compare-engine/internal/config"
)

const (
	defaultChannel = "campaign_data_change"
	queryTimeout   = 5 * time.Second
)

var ErrNoPool = errors.New("pgx pool is nil")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type Store struct {
	db      DB
	pool    *pgxpool.Pool
	channel string
}

// CampaignRow is a campaign joined with its card and bank.
type CampaignRow struct {
	ID              int64
	CardID          int64
	Title           string
	Description     *string
	MerchantName    string
	MerchantPattern string
	DiscountType    string
	DiscountRate    decimal.Decimal
	MaxDiscount     decimal.NullDecimal
	MinSpend        decimal.Decimal
	Conditions      *string
	SourceURL       *string
	StartDate       *time.Time
	EndDate         *time.Time
	IsActive        bool

	CardName  string
	CardSlug  string
	BankID    int64
	BankName  string
	BankSlug  string
	BankColor string
}

type BankRow struct {
	ID         int64
	Name       string
	Slug       string
	Color      string
	LogoURL    *string
	WebsiteURL *string
	Cards      []CardRow
}

type CardRow struct {
	ID     int64
	BankID int64
	Name   string
	Slug   string
	Type   string
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewWithDB(pool, cfg.Listener.Channel)
	s.pool = pool
	return s, nil
}

// NewWithDB wraps an existing connection, e.g. a pgxmock pool in tests.
func NewWithDB(db DB, channel string) *Store {
	if channel == "" {
		channel = defaultChannel
	}
	return &Store{db: db, channel: channel}
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// LoadActiveCampaigns returns active campaigns whose end date is not before
// today, joined with card and bank, ordered by card then campaign id.
func (s *Store) LoadActiveCampaigns(ctx context.Context, today time.Time) ([]CampaignRow, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query, args, err := psql.
		Select(
			"c.id", "c.card_id", "c.title", "c.description", "c.merchant_name", "c.merchant_pattern",
			"c.discount_type", "c.discount_rate", "c.max_discount", "c.min_spend",
			"c.conditions", "c.source_url", "c.start_date", "c.end_date", "c.is_active",
			"k.name", "k.slug", "b.id", "b.name", "b.slug", "b.color",
		).
		From("campaigns c").
		Join("cards k ON k.id = c.card_id").
		Join("banks b ON b.id = k.bank_id").
		Where(sq.Eq{"c.is_active": true}).
		Where(sq.Or{sq.Eq{"c.end_date": nil}, sq.GtOrEq{"c.end_date": dateOnly(today)}}).
		OrderBy("c.card_id", "c.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build campaigns query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []CampaignRow
	for rows.Next() {
		var c CampaignRow
		if err := rows.Scan(
			&c.ID, &c.CardID, &c.Title, &c.Description, &c.MerchantName, &c.MerchantPattern,
			&c.DiscountType, &c.DiscountRate, &c.MaxDiscount, &c.MinSpend,
			&c.Conditions, &c.SourceURL, &c.StartDate, &c.EndDate, &c.IsActive,
			&c.CardName, &c.CardSlug, &c.BankID, &c.BankName, &c.BankSlug, &c.BankColor,
		); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return out, nil
}

// ListBanks returns every bank with its cards, banks ordered by name.
func (s *Store) ListBanks(ctx context.Context) ([]BankRow, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query, args, err := psql.
		Select("b.id", "b.name", "b.slug", "b.color", "b.logo_url", "b.website_url",
			"k.id", "k.name", "k.slug", "k.type").
		From("banks b").
		LeftJoin("cards k ON k.bank_id = b.id").
		OrderBy("b.name", "b.id", "k.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build banks query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query banks: %w", err)
	}
	defer rows.Close()

	var out []BankRow
	for rows.Next() {
		var (
			b                            BankRow
			cardID                       *int64
			cardName, cardSlug, cardType *string
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug, &b.Color, &b.LogoURL, &b.WebsiteURL,
			&cardID, &cardName, &cardSlug, &cardType); err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != b.ID {
			b.Cards = []CardRow{}
			out = append(out, b)
		}
		if cardID != nil {
			last := &out[len(out)-1]
			last.Cards = append(last.Cards, CardRow{
				ID:     *cardID,
				BankID: b.ID,
				Name:   deref(cardName),
				Slug:   deref(cardSlug),
				Type:   deref(cardType),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate banks: %w", err)
	}
	return out, nil
}

// UpsertBank inserts or updates a bank keyed by slug and returns its id.
func (s *Store) UpsertBank(ctx context.Context, b BankRow) (int64, error) {
	query, args, err := psql.
		Insert("banks").
		Columns("name", "slug", "color", "logo_url", "website_url").
		Values(b.Name, b.Slug, b.Color, b.LogoURL, b.WebsiteURL).
		Suffix(`ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name, color = EXCLUDED.color,
			logo_url = EXCLUDED.logo_url, website_url = EXCLUDED.website_url
			RETURNING id`).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build bank upsert: %w", err)
	}
	var id int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert bank %s: %w", b.Slug, err)
	}
	return id, nil
}

// UpsertCard inserts or updates a card keyed by slug and returns its id.
func (s *Store) UpsertCard(ctx context.Context, c CardRow) (int64, error) {
	query, args, err := psql.
		Insert("cards").
		Columns("bank_id", "name", "slug", "type").
		Values(c.BankID, c.Name, c.Slug, c.Type).
		Suffix(`ON CONFLICT (slug) DO UPDATE SET
			bank_id = EXCLUDED.bank_id, name = EXCLUDED.name, type = EXCLUDED.type
			RETURNING id`).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build card upsert: %w", err)
	}
	var id int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert card %s: %w", c.Slug, err)
	}
	return id, nil
}

// UpsertCampaigns writes campaigns in one transaction. A campaign with the
// same card and title as an existing one replaces it.
func (s *Store) UpsertCampaigns(ctx context.Context, campaigns []CampaignRow) (int, error) {
	if len(campaigns) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	saved := 0
	for _, c := range campaigns {
		query, args, err := psql.
			Insert("campaigns").
			Columns("card_id", "title", "description", "merchant_name", "merchant_pattern",
				"discount_type", "discount_rate", "max_discount", "min_spend",
				"start_date", "end_date", "conditions", "source_url", "is_active", "scraped_at").
			Values(c.CardID, c.Title, c.Description, c.MerchantName, c.MerchantPattern,
				c.DiscountType, c.DiscountRate, c.MaxDiscount, c.MinSpend,
				c.StartDate, c.EndDate, c.Conditions, c.SourceURL, c.IsActive, sq.Expr("now()")).
			Suffix(`ON CONFLICT ON CONSTRAINT unique_card_campaign DO UPDATE SET
				description = EXCLUDED.description, merchant_name = EXCLUDED.merchant_name,
				merchant_pattern = EXCLUDED.merchant_pattern, discount_type = EXCLUDED.discount_type,
				discount_rate = EXCLUDED.discount_rate, max_discount = EXCLUDED.max_discount,
				min_spend = EXCLUDED.min_spend, start_date = EXCLUDED.start_date,
				end_date = EXCLUDED.end_date, conditions = EXCLUDED.conditions,
				source_url = EXCLUDED.source_url, is_active = EXCLUDED.is_active,
				scraped_at = EXCLUDED.scraped_at`).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("build campaign upsert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("upsert campaign %q: %w", c.Title, err)
		}
		saved++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// DeactivateExpired flips campaigns whose end date has passed to inactive.
func (s *Store) DeactivateExpired(ctx context.Context, today time.Time) (int64, error) {
	query, args, err := psql.
		Update("campaigns").
		Set("is_active", false).
		Where(sq.Eq{"is_active": true}).
		Where(sq.Lt{"end_date": dateOnly(today)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build deactivate: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired campaigns: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ActiveCampaignCount(ctx context.Context) (int64, error) {
	query, args, err := psql.Select("count(*)").From("campaigns").Where(sq.Eq{"is_active": true}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return n, nil
}

func (s *Store) ListenChannel() string {
	return s.channel
}

func (s *Store) PgxPool() (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, ErrNoPool
	}
	return s.pool, nil
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
