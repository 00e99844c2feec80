package pgdb

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/DRSN-tech/brand-images/internal/domain"
	"github.com/DRSN-tech/brand-images/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn возвращает транзакцию из контекста, если она есть, иначе пул.
func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, err := tr.TxFromCtx(ctx); err == nil {
		return tx
	}
	return pool
}

const productColumns = `
	sku, name, manufacturer, rate::text, stock, image_sources,
	images, image_count, has_images, normalized_manufacturer, last_updated
`

// ProductRepo реализует репозиторий продуктов поверх PostgreSQL.
type ProductRepo struct {
	pool *pgxpool.Pool
	conv converter.ProductConverter
}

func NewProductRepo(pool *pgxpool.Pool, conv converter.ProductConverter) *ProductRepo {
	return &ProductRepo{
		pool: pool,
		conv: conv,
	}
}

// FindBySku возвращает продукт по SKU или e.ErrProductNotFound.
func (p *ProductRepo) FindBySku(ctx context.Context, sku string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE sku = $1`

	model, err := scanProduct(conn(ctx, p.pool).QueryRow(ctx, query, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
		}
		return nil, classify(whereami.WhereAmI(), err)
	}

	product, err := p.conv.ToEntity(model)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return product, nil
}

// UpsertImages обновляет только поля изображений. Отсутствующая запись создаётся
// с пустыми остальными полями.
func (p *ProductRepo) UpsertImages(ctx context.Context, sku string, fields *domain.ImageFields) error {
	model, err := p.conv.ToImageFieldsModel(fields)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		INSERT INTO products (sku, images, image_count, has_images, normalized_manufacturer, last_updated)
		VALUES ($1, $2::jsonb, $3, $4, $5, $6)
		ON CONFLICT (sku)
		DO UPDATE SET
			images = EXCLUDED.images,
			image_count = EXCLUDED.image_count,
			has_images = EXCLUDED.has_images,
			normalized_manufacturer = EXCLUDED.normalized_manufacturer,
			last_updated = EXCLUDED.last_updated
	`

	if _, err := conn(ctx, p.pool).Exec(ctx, query,
		sku,
		model.Images,
		model.ImageCount,
		model.HasImages,
		model.NormalizedManufacturer,
		model.LastUpdated,
	); err != nil {
		return classify(whereami.WhereAmI(), err)
	}

	return nil
}

// ListWithoutImages возвращает до limit продуктов без изображений в порядке SKU.
func (p *ProductRepo) ListWithoutImages(ctx context.Context, limit int) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE has_images = FALSE ORDER BY sku LIMIT $1`

	rows, err := conn(ctx, p.pool).Query(ctx, query, limit)
	if err != nil {
		return nil, classify(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		model, err := scanProduct(rows)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		product, err := p.conv.ToEntity(model)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		result = append(result, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(whereami.WhereAmI(), err)
	}

	return result, nil
}

func scanProduct(row pgx.Row) (*converter.ProductModel, error) {
	var model converter.ProductModel
	err := row.Scan(
		&model.SKU, &model.Name, &model.Manufacturer, &model.Rate, &model.Stock, &model.ImageSources,
		&model.Images, &model.ImageCount, &model.HasImages, &model.NormalizedManufacturer, &model.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	return &model, nil
}

// classify помечает недоступность базы как фатальную ошибку.
func classify(where string, err error) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return e.Fatal(where, fmt.Errorf("%w: %v", e.ErrStorageUnavailable, err))
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return e.Fatal(where, fmt.Errorf("%w: %v", e.ErrStorageUnavailable, err))
	}

	return e.Wrap(where, err)
}
