package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository is the pgx backed product, brand and family store.
// Every error it returns is a *StoreError.
type Repository struct {
	db dbtx
}

// NewRepository constructs a Repository on top of the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const productColumns = `id, code, original_code, description, application, stock, retail_price, wholesale_price,
brand_id, family_id, category, is_offer, is_new, is_active, created_at, updated_at`

// FindProductsByCodes returns every product whose code is in codes.
func (r *Repository) FindProductsByCodes(ctx context.Context, codes []string) ([]Product, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, wrap("find products", err)
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.OriginalCode, &p.Description, &p.Application, &p.Stock, &p.RetailPrice,
			&p.WholesalePrice, &p.BrandID, &p.FamilyID, &p.Category, &p.IsOffer, &p.IsNew, &p.IsActive,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, wrap("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("find products", err)
	}
	return products, nil
}

// InsertProducts creates products in one statement, silently skipping codes that already exist.
// It returns the number of rows actually inserted.
func (r *Repository) InsertProducts(ctx context.Context, products []Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}
	n := len(products)
	var (
		codes        = make([]string, n)
		originals    = make([]string, n)
		descriptions = make([]string, n)
		applications = make([]string, n)
		stocks       = make([]int64, n)
		retail       = make([]float64, n)
		wholesale    = make([]*float64, n)
		brands       = make([]*int64, n)
		families     = make([]*int64, n)
		categories   = make([]string, n)
		offers       = make([]bool, n)
		news         = make([]bool, n)
		actives      = make([]bool, n)
	)
	for i, p := range products {
		codes[i] = p.Code
		originals[i] = p.OriginalCode
		descriptions[i] = p.Description
		applications[i] = p.Application
		stocks[i] = p.Stock
		retail[i] = p.RetailPrice
		wholesale[i] = p.WholesalePrice
		brands[i] = p.BrandID
		families[i] = p.FamilyID
		categories[i] = p.Category
		offers[i] = p.IsOffer
		news[i] = p.IsNew
		actives[i] = p.IsActive
	}
	const insert = `INSERT INTO products (code, original_code, description, application, stock, retail_price, wholesale_price,
    brand_id, family_id, category, is_offer, is_new, is_active, created_at, updated_at)
SELECT u.code, u.original_code, u.description, u.application, u.stock, u.retail_price, u.wholesale_price,
    u.brand_id, u.family_id, u.category, u.is_offer, u.is_new, u.is_active, NOW(), NOW()
FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::bigint[], $6::numeric[], $7::numeric[],
    $8::bigint[], $9::bigint[], $10::text[], $11::bool[], $12::bool[], $13::bool[])
    AS u(code, original_code, description, application, stock, retail_price, wholesale_price,
         brand_id, family_id, category, is_offer, is_new, is_active)
ON CONFLICT (code) DO NOTHING`
	tag, err := r.db.Exec(ctx, insert, codes, originals, descriptions, applications, stocks, retail, wholesale,
		brands, families, categories, offers, news, actives)
	if err != nil {
		return 0, wrap("insert products", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateProduct overwrites the product identified by p.Code. Empty text fields and nil
// references keep the stored value.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	const update = `UPDATE products SET
    original_code = COALESCE(NULLIF($2, ''), original_code),
    description = COALESCE(NULLIF($3, ''), description),
    application = COALESCE(NULLIF($4, ''), application),
    stock = $5,
    retail_price = $6,
    wholesale_price = COALESCE($7, wholesale_price),
    brand_id = COALESCE($8, brand_id),
    family_id = COALESCE($9, family_id),
    category = COALESCE(NULLIF($10, ''), category),
    is_offer = $11,
    is_new = $12,
    is_active = $13,
    updated_at = NOW()
WHERE code = $1`
	_, err := r.db.Exec(ctx, update, p.Code, p.OriginalCode, p.Description, p.Application, p.Stock, p.RetailPrice,
		p.WholesalePrice, p.BrandID, p.FamilyID, p.Category, p.IsOffer, p.IsNew, p.IsActive)
	return wrap(fmt.Sprintf("update product %s", p.Code), err)
}

// DeactivateByCodes flags the given codes inactive and returns how many rows matched.
func (r *Repository) DeactivateByCodes(ctx context.Context, codes []string) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE code = ANY($1)`, codes)
	if err != nil {
		return 0, wrap("deactivate products", err)
	}
	return tag.RowsAffected(), nil
}

// DeactivateAll flags every active product inactive.
func (r *Repository) DeactivateAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE is_active`)
	if err != nil {
		return 0, wrap("deactivate all products", err)
	}
	return tag.RowsAffected(), nil
}

// FindBrandsByNames returns brands whose name is in names.
func (r *Repository) FindBrandsByNames(ctx context.Context, names []string) ([]Brand, error) {
	var brands []Brand
	err := r.findNamed(ctx, "brands", names, func(id int64, name string) {
		brands = append(brands, Brand{ID: id, Name: name})
	})
	return brands, err
}

// InsertBrands creates the named brands, ignoring names that already exist.
func (r *Repository) InsertBrands(ctx context.Context, names []string) error {
	return r.insertNamed(ctx, "brands", names)
}

// FindFamiliesByNames returns families whose name is in names.
func (r *Repository) FindFamiliesByNames(ctx context.Context, names []string) ([]Family, error) {
	var families []Family
	err := r.findNamed(ctx, "families", names, func(id int64, name string) {
		families = append(families, Family{ID: id, Name: name})
	})
	return families, err
}

// InsertFamilies creates the named families, ignoring names that already exist.
func (r *Repository) InsertFamilies(ctx context.Context, names []string) error {
	return r.insertNamed(ctx, "families", names)
}

// table is always one of the two constant names above.
func (r *Repository) findNamed(ctx context.Context, table string, names []string, add func(int64, string)) error {
	if len(names) == 0 {
		return nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, name FROM `+table+` WHERE name = ANY($1)`, names)
	if err != nil {
		return wrap("find "+table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return wrap("scan "+table, err)
		}
		add(id, name)
	}
	return wrap("find "+table, rows.Err())
}

func (r *Repository) insertNamed(ctx context.Context, table string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `INSERT INTO `+table+` (name) SELECT unnest($1::text[]) ON CONFLICT (name) DO NOTHING`, names)
	return wrap("insert "+table, err)
}
