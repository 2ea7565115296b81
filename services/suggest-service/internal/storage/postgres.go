package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotsuggest/libs/db"
)

// PostgresStore keeps the documents of one corpus in the documents table.
type PostgresStore struct {
	pool   *db.Pool
	corpus string
}

func NewPostgresStore(pool *db.Pool, corpus string) *PostgresStore {
	return &PostgresStore{pool: pool, corpus: corpus}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			corpus TEXT NOT NULL,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (corpus, name)
		)
	`)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, name string, content []byte) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (id, corpus, name, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (corpus, name)
		DO UPDATE SET content = EXCLUDED.content, updated_at = now()
	`, uuid.NewString(), s.corpus, name, string(content))
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, content
		FROM documents
		WHERE corpus = $1
		ORDER BY name
	`, s.corpus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Name, &d.Content); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
