package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
)

// ChunkRepository stores semantic memory chunks in clara_chunks with a
// pgvector embedding column.
type ChunkRepository struct {
	BaseRepository
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{BaseRepository: NewBaseRepository(pool)}
}

func (r *ChunkRepository) Insert(ctx context.Context, chunk *models.SemanticChunk) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO clara_chunks (chunk_id, source, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	var embedding *pgvector.Vector
	if len(chunk.Embedding) > 0 {
		v := pgvector.NewVector(chunk.Embedding)
		embedding = &v
	}

	_, err := r.conn(ctx).Exec(ctx, query,
		chunk.ChunkID,
		chunk.Source,
		chunk.Text,
		embedding,
		chunk.CreatedAt,
	)
	return err
}

func (r *ChunkRepository) GetByID(ctx context.Context, chunkID string) (*models.SemanticChunk, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT chunk_id, source, text, embedding, created_at
		FROM clara_chunks
		WHERE chunk_id = $1`

	var chunk models.SemanticChunk
	var embedding *pgvector.Vector
	err := r.conn(ctx).QueryRow(ctx, query, chunkID).Scan(
		&chunk.ChunkID,
		&chunk.Source,
		&chunk.Text,
		&embedding,
		&chunk.CreatedAt,
	)
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	if embedding != nil {
		chunk.Embedding = embedding.Slice()
	}
	return &chunk, nil
}

// SearchSimilar returns the topK chunks closest to embedding by cosine
// distance. An empty sourcePrefix searches all sources.
func (r *ChunkRepository) SearchSimilar(ctx context.Context, embedding []float32, topK int, sourcePrefix string) ([]*models.ScoredChunk, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if len(embedding) == 0 {
		return nil, domain.Errorf(domain.KindApplication, "search embedding cannot be empty")
	}
	if topK <= 0 {
		topK = 5
	}

	vector := pgvector.NewVector(embedding)

	query := `
		SELECT chunk_id, source, text, created_at,
			   1 - (embedding <=> $1) as similarity
		FROM clara_chunks
		WHERE embedding IS NOT NULL`
	args := []interface{}{vector}

	if sourcePrefix != "" {
		query += fmt.Sprintf(` AND source LIKE $%d`, len(args)+1)
		args = append(args, sourcePrefix+"%")
	}

	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT $%d`, len(args)+1)
	args = append(args, topK)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		if err := rows.Scan(
			&sc.ChunkID,
			&sc.Source,
			&sc.Text,
			&sc.CreatedAt,
			&sc.Similarity,
		); err != nil {
			return nil, err
		}
		results = append(results, &sc)
	}
	return results, rows.Err()
}

func (r *ChunkRepository) DeleteBySource(ctx context.Context, source string) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `DELETE FROM clara_chunks WHERE source = $1`

	tag, err := r.conn(ctx).Exec(ctx, query, source)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
