package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/MingHacker/AIKnowledgeBase/types"
)

// VectorEntry is one embedded chunk with the attributes retrieval needs
// without a round trip back to the relational tables.
type VectorEntry struct {
	ChunkID          uuid.UUID
	DocumentID       uuid.UUID
	UserID           uuid.UUID
	Content          string
	PageNumber       int
	ChunkIndex       int
	DocumentFilename string
	Embedding        []float32
}

// VectorFilter narrows a similarity query. Zero-valued fields do not
// constrain: nil DocumentIDs means all documents, uuid.Nil UserID means
// all users.
type VectorFilter struct {
	DocumentIDs []uuid.UUID
	UserID      uuid.UUID
}

// SearchResult is one nearest neighbor. Similarity is cosine, higher is
// closer.
type SearchResult struct {
	ChunkID          uuid.UUID
	DocumentID       uuid.UUID
	Content          string
	PageNumber       int
	ChunkIndex       int
	DocumentFilename string
	Similarity       float64
}

// VectorIndex stores chunk embeddings and answers nearest-neighbor
// queries with filters pushed down to the index.
type VectorIndex interface {
	Upsert(ctx context.Context, entry VectorEntry) (string, error)
	Query(ctx context.Context, embedding []float32, limit int, filter VectorFilter) ([]SearchResult, error)
	Delete(ctx context.Context, chunkID uuid.UUID) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

// PgVectorIndex keeps embeddings in a pgvector table next to the
// relational data, so document deletes and vector deletes share one
// database.
type PgVectorIndex struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPgVectorIndex(pool *pgxpool.Pool, dim int) *PgVectorIndex {
	return &PgVectorIndex{pool: pool, dim: dim}
}

func (idx *PgVectorIndex) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunk_embeddings (
		chunk_id UUID PRIMARY KEY,
		document_id UUID NOT NULL,
		user_id UUID NOT NULL,
		content TEXT NOT NULL,
		page_number INT NOT NULL DEFAULT 1,
		chunk_index INT NOT NULL DEFAULT 0,
		document_filename TEXT NOT NULL DEFAULT '',
		embedding VECTOR(%d) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_document_id ON chunk_embeddings(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_user_id ON chunk_embeddings(user_id);
	CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_embedding ON chunk_embeddings
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
	`, idx.dim)

	_, err := idx.pool.Exec(ctx, query)
	return err
}

// Upsert writes the entry keyed by chunk ID and returns the external
// embedding id recorded on the chunk row.
func (idx *PgVectorIndex) Upsert(ctx context.Context, entry VectorEntry) (string, error) {
	if len(entry.Embedding) != idx.dim {
		return "", &types.EmbeddingError{
			Err: fmt.Errorf("expected %d dimensions, got %d", idx.dim, len(entry.Embedding)),
		}
	}

	_, err := idx.pool.Exec(ctx,
		`INSERT INTO chunk_embeddings
		 (chunk_id, document_id, user_id, content, page_number, chunk_index, document_filename, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (chunk_id) DO UPDATE SET
			content = EXCLUDED.content,
			page_number = EXCLUDED.page_number,
			chunk_index = EXCLUDED.chunk_index,
			document_filename = EXCLUDED.document_filename,
			embedding = EXCLUDED.embedding`,
		entry.ChunkID, entry.DocumentID, entry.UserID, entry.Content,
		entry.PageNumber, entry.ChunkIndex, entry.DocumentFilename,
		pgvector.NewVector(entry.Embedding))
	if err != nil {
		return "", err
	}
	return entry.ChunkID.String(), nil
}

// Query returns up to limit nearest neighbors ordered by descending
// cosine similarity. Filters apply before the limit, so a filtered
// query still fills its budget from the matching subset.
func (idx *PgVectorIndex) Query(ctx context.Context, embedding []float32, limit int, filter VectorFilter) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	docIDs := uuidStrings(filter.DocumentIDs)
	var userID *uuid.UUID
	if filter.UserID != uuid.Nil {
		userID = &filter.UserID
	}

	rows, err := idx.pool.Query(ctx,
		`SELECT chunk_id, document_id, content, page_number, chunk_index, document_filename,
		        1 - (embedding <=> $1) AS similarity
		 FROM chunk_embeddings
		 WHERE ($2::uuid[] IS NULL OR document_id = ANY($2::uuid[]))
		   AND ($3::uuid IS NULL OR user_id = $3::uuid)
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(embedding), docIDs, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &r.PageNumber,
			&r.ChunkIndex, &r.DocumentFilename, &r.Similarity); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (idx *PgVectorIndex) Delete(ctx context.Context, chunkID uuid.UUID) error {
	_, err := idx.pool.Exec(ctx,
		`DELETE FROM chunk_embeddings WHERE chunk_id = $1`, chunkID)
	return err
}

func (idx *PgVectorIndex) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := idx.pool.Exec(ctx,
		`DELETE FROM chunk_embeddings WHERE document_id = $1`, documentID)
	return err
}
