// Package pgvector stores needs and offers in PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/index"
	"github.com/spigell/skillmatch/internal/profile"
	"github.com/spigell/skillmatch/internal/vecmath"
)

const defaultTable = "skill_vectors"

// Store owns the connection pool. Use Index to get a per-kind view.
type Store struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
	logger    *zap.Logger
}

type Option func(*Store)

func WithTable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.table = name
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open connects to dsn, creates the schema if needed and returns a Store.
func Open(ctx context.Context, dsn string, dimension int, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s, err := New(ctx, pool, dimension, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an existing pool and ensures the schema exists.
func New(ctx context.Context, pool *pgxpool.Pool, dimension int, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if dimension <= 0 {
		dimension = vecmath.DefaultDimension
	}

	s := &Store{
		pool:      pool,
		table:     defaultTable,
		dimension: dimension,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			skill_id TEXT NOT NULL DEFAULT '',
			source_text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_kind_owner_idx ON %s (kind, owner_id)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	s.logger.Debug("pgvector schema ready", zap.String("table", s.table), zap.Int("dimension", s.dimension))
	return nil
}

// Pair returns need and offer views over the same table.
func (s *Store) Pair() index.Pair {
	return index.Pair{
		Needs:  s.Index(profile.KindNeed),
		Offers: s.Index(profile.KindOffer),
	}
}

// Index returns a view restricted to one record kind.
func (s *Store) Index(kind profile.Kind) index.Index {
	return &view{store: s, kind: kind}
}

func (s *Store) Close() {
	s.pool.Close()
}

type view struct {
	store *Store
	kind  profile.Kind
}

func (v *view) Upsert(ctx context.Context, entries ...index.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	for _, e := range entries {
		if e.Kind != v.kind {
			return fmt.Errorf("entry %s has kind %q, index holds %q", e.ID, e.Kind, v.kind)
		}
		if len(e.Embedding) != v.store.dimension {
			return fmt.Errorf("entry %s: %w: got %d, want %d", e.ID, vecmath.ErrDimensionMismatch, len(e.Embedding), v.store.dimension)
		}
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, kind, owner_id, skill_id, source_text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`, v.store.table)

	batch := &pgx.Batch{}
	for _, e := range entries {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(query, e.ID, string(e.Kind), e.OwnerID, e.SkillID, e.Text, pgv.NewVector(e.Embedding), createdAt)
	}

	results := v.store.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, e := range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert %s: %w", e.ID, err)
		}
	}

	return nil
}

func (v *view) Query(ctx context.Context, q index.Query) ([]index.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if len(q.Vector) != v.store.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", vecmath.ErrDimensionMismatch, len(q.Vector), v.store.dimension)
	}

	query := fmt.Sprintf(`SELECT id, owner_id, source_text, embedding, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE kind = $2 AND ($3 = '' OR owner_id = $3)
		ORDER BY embedding <=> $1, created_at, id
		LIMIT $4`, v.store.table)

	rows, err := v.store.pool.Query(ctx, query, pgv.NewVector(q.Vector), string(v.kind), q.OwnerID, q.Limit())
	if err != nil {
		return nil, fmt.Errorf("query %s index: %w", v.kind, err)
	}
	defer rows.Close()

	var matches []index.Match
	for rows.Next() {
		var (
			m   index.Match
			vec pgv.Vector
		)
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Text, &vec, &m.Score); err != nil {
			return nil, fmt.Errorf("scan %s match: %w", v.kind, err)
		}
		m.Embedding = vecmath.Embedding(vec.Slice())
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s matches: %w", v.kind, err)
	}

	return matches, nil
}
