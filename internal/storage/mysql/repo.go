package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"pisos/internal/domain"
)

const errDuplicateEntry = 1062

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valKind(p *domain.Kind) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
func f64Ptr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

// mapErr turns driver errors the domain cares about into domain errors.
func mapErr(err error) error {
	var me *gomysql.MySQLError
	if errors.As(err, &me) && me.Number == errDuplicateEntry {
		return fmt.Errorf("%w: %s", domain.ErrConflict, me.Message)
	}
	return err
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repo) CreateListing(ctx context.Context, l domain.Listing) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertListingSQL,
		valStr(l.Title),
		string(l.Kind),
		l.Price,
		valF64(l.Surface),
		valInt(l.Rooms),
		l.Link,
		valF64(l.ProfitabilityRate),
		valStr(l.Neighborhood),
		valStr(l.City),
		valStr(l.Province),
		valStr(l.PublishedAddress),
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

func (r *Repo) UpdateListing(ctx context.Context, id int64, p domain.ListingPatch) (domain.Listing, error) {
	if _, err := r.db.ExecContext(ctx, updateListingSQL,
		valStr(p.Title),
		valF64(p.Price),
		valF64(p.Surface),
		valStr(p.Link),
		valF64(p.ProfitabilityRate),
		valKind(p.Kind),
		valStr(p.Neighborhood),
		valStr(p.City),
		id,
	); err != nil {
		return domain.Listing{}, mapErr(err)
	}
	// RowsAffected is 0 for an unchanged row too; read back to tell them apart.
	return r.GetListing(ctx, id)
}

func (r *Repo) DeleteListing(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteListingSQL, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) UpsertNeighborhood(ctx context.Context, n domain.Neighborhood) error {
	_, err := r.db.ExecContext(ctx, upsertNeighborhoodSQL, n.Name, valStr(n.Province))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(s scanner) (domain.Listing, error) {
	var (
		l                                      domain.Listing
		kind                                   string
		title, hood, city, province, published sql.NullString
		surface, profitability                 sql.NullFloat64
		rooms                                  sql.NullInt64
	)
	if err := s.Scan(
		&l.ID,
		&title,
		&kind,
		&l.Price,
		&surface,
		&rooms,
		&l.Link,
		&profitability,
		&hood,
		&city,
		&province,
		&published,
		&l.CreatedAt,
	); err != nil {
		return domain.Listing{}, err
	}
	l.Kind = domain.Kind(kind)
	l.Title = strPtr(title)
	l.Surface = f64Ptr(surface)
	if rooms.Valid {
		n := int(rooms.Int64)
		l.Rooms = &n
	}
	l.ProfitabilityRate = f64Ptr(profitability)
	l.Neighborhood = strPtr(hood)
	l.City = strPtr(city)
	l.Province = strPtr(province)
	l.PublishedAddress = strPtr(published)
	return l, nil
}

func (r *Repo) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx, getListingSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, err
	}
	return l, nil
}

func (r *Repo) ExistsByLink(ctx context.Context, link string) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, existsByLinkSQL, link).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// buildListingsQuery appends one predicate per criteria field that is set.
func buildListingsQuery(c domain.Criteria) (string, []any) {
	var b strings.Builder
	b.WriteString(listListingsPrefix)
	var args []any
	if c.Kind != domain.KindAny {
		b.WriteString("\n  AND type = ?")
		args = append(args, string(c.Kind))
	}
	if c.Neighborhood != nil {
		b.WriteString("\n  AND neighborhood = ?")
		args = append(args, *c.Neighborhood)
	}
	if c.Province != nil {
		b.WriteString("\n  AND province = ?")
		args = append(args, *c.Province)
	}
	if c.MaxPrice != nil {
		b.WriteString("\n  AND price <= ?")
		args = append(args, *c.MaxPrice)
	}
	b.WriteString(listListingsOrder)
	return b.String(), args
}

func (r *Repo) ListListings(ctx context.Context, c domain.Criteria) ([]domain.Listing, error) {
	q, args := buildListingsQuery(c)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListNeighborhoods(ctx context.Context, q domain.NeighborhoodQuery) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q.All {
		prov := valStr(q.Province)
		rows, err = r.db.QueryContext(ctx, registeredNeighborhoodsSQL, prov, prov)
	} else {
		rows, err = r.db.QueryContext(ctx, listingNeighborhoodsSQL, string(q.Kind), string(q.Kind))
	}
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r *Repo) ListProvinces(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, provincesSQL)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r *Repo) Counts(ctx context.Context) (domain.CatalogCounts, error) {
	var c domain.CatalogCounts
	if err := r.db.QueryRowContext(ctx, countsSQL).Scan(&c.Listings, &c.Neighborhoods); err != nil {
		return domain.CatalogCounts{}, err
	}
	return c, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
