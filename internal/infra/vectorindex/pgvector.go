package vectorindex

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PGVector searches passage embeddings stored in Postgres with pgvector.
type PGVector struct {
	pool  *pgxpool.Pool
	table string
	dim   int
	count int
}

// NewPGVector inspects the table and returns a ready index.
func NewPGVector(ctx context.Context, pool *pgxpool.Pool, table string, dim int) (*PGVector, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("vectorindex: invalid table name %q", table)
	}
	var count int
	if err := pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&count); err != nil {
		return nil, fmt.Errorf("vectorindex: count %s: %w", table, err)
	}
	return &PGVector{pool: pool, table: table, dim: dim, count: count}, nil
}

// Search orders rows by negative inner product, the pgvector <#> operator.
func (p *PGVector) Search(ctx context.Context, vector []float32, k int) ([]healthbot.IndexHit, error) {
	if k <= 0 || p.count == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT position, -(embedding <#> $1) AS score
		FROM %s
		ORDER BY embedding <#> $1, position
		LIMIT $2`, p.table)
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: pgvector search: %w", err)
	}
	defer rows.Close()

	var hits []healthbot.IndexHit
	for rows.Next() {
		var hit healthbot.IndexHit
		if err := rows.Scan(&hit.Position, &hit.Score); err != nil {
			return nil, fmt.Errorf("vectorindex: scan hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Len reports the row count observed at construction.
func (p *PGVector) Len() int {
	return p.count
}

// Dimension reports the configured embedding size.
func (p *PGVector) Dimension() int {
	return p.dim
}

// ReplacePGVector rewrites the table with rows in position order.
func ReplacePGVector(ctx context.Context, pool *pgxpool.Pool, table string, dim int, rows [][]float32) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("vectorindex: invalid table name %q", table)
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		stmts := []string{
			`CREATE EXTENSION IF NOT EXISTS vector`,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (position INTEGER PRIMARY KEY, embedding vector(%d) NOT NULL)`, table, dim),
			fmt.Sprintf(`TRUNCATE %s`, table),
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("vectorindex: prepare %s: %w", table, err)
			}
		}
		batch := &pgx.Batch{}
		insert := fmt.Sprintf(`INSERT INTO %s (position, embedding) VALUES ($1, $2)`, table)
		for pos, row := range rows {
			batch.Queue(insert, pos, pgvector.NewVector(row))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

var _ healthbot.VectorIndex = (*PGVector)(nil)
