package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

// embeddingDims is fixed by the analysis_memories schema (vector(1536)).
const embeddingDims = 1536

// AnalysisMemory is one remembered consensus analysis: what the engine
// concluded for a coin, in which regime, and later how it resolved.
// Rows are written after AI refinement and recalled into refinement
// prompts for the same coin by embedding similarity.
type AnalysisMemory struct {
	ID          int64      `json:"id"`
	Coin        string     `json:"coin"`
	RunID       *uuid.UUID `json:"run_id,omitempty"`
	Summary     string     `json:"summary"`
	Regime      string     `json:"regime"`
	Direction   string     `json:"direction"`
	Confidence  float64    `json:"confidence"`
	OutcomeNote *string    `json:"outcome_note,omitempty"`
	Embedding   []float32  `json:"-"`

	// Distance is the cosine distance to the query vector. Only set on
	// rows returned by FindSimilar.
	Distance float32 `json:"distance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Resolved reports whether the outcome tracker has annotated this
// memory with how the recommendation played out.
func (m *AnalysisMemory) Resolved() bool {
	return m.OutcomeNote != nil && *m.OutcomeNote != ""
}

// Age returns how old this memory is.
func (m *AnalysisMemory) Age() time.Duration {
	return time.Since(m.CreatedAt)
}

// Pool is the slice of pgxpool.Pool the store needs. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type Pool interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store persists analysis memories in PostgreSQL with pgvector search.
type Store struct {
	pool Pool
}

// NewStore creates a memory store over an existing pool.
func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

// Save inserts a memory row. ID and CreatedAt are assigned by the
// database and written back. A nil embedding is stored as NULL so the
// row is still recallable by recency.
func (s *Store) Save(ctx context.Context, mem *AnalysisMemory) error {
	if mem.Coin == "" {
		return fmt.Errorf("analysis memory requires a coin symbol")
	}
	if mem.Embedding != nil && len(mem.Embedding) != embeddingDims {
		return fmt.Errorf("embedding must be %d dimensions, got %d", embeddingDims, len(mem.Embedding))
	}

	var embedding any
	if mem.Embedding != nil {
		embedding = pgvector.NewVector(mem.Embedding)
	}

	query := `
		INSERT INTO analysis_memories (
			coin, run_id, summary, market_regime, consensus_direction,
			avg_confidence, outcome_note, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := s.pool.QueryRow(
		ctx,
		query,
		mem.Coin,
		mem.RunID,
		mem.Summary,
		mem.Regime,
		mem.Direction,
		mem.Confidence,
		mem.OutcomeNote,
		embedding,
	).Scan(&mem.ID, &mem.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store analysis memory: %w", err)
	}

	log.Debug().
		Int64("id", mem.ID).
		Str("coin", mem.Coin).
		Str("direction", mem.Direction).
		Bool("embedded", mem.Embedding != nil).
		Msg("Stored analysis memory")

	return nil
}

// FindSimilar returns the memories nearest to the given embedding by
// cosine distance, closest first. Rows without an embedding are never
// returned here; use Recent for those.
func (s *Store) FindSimilar(ctx context.Context, embedding []float32, limit int, filters ...Filter) ([]*AnalysisMemory, error) {
	if len(embedding) != embeddingDims {
		return nil, fmt.Errorf("embedding must be %d dimensions, got %d", embeddingDims, len(embedding))
	}

	vec := pgvector.NewVector(embedding)

	whereClause := "WHERE embedding IS NOT NULL"
	args := []interface{}{vec, limit}
	argIndex := 3

	for _, filter := range filters {
		clause, filterArgs := filter.SQL(argIndex)
		if clause != "" {
			whereClause += " AND " + clause
			args = append(args, filterArgs...)
			argIndex += len(filterArgs)
		}
	}

	query := fmt.Sprintf(`
		SELECT
			id, coin, run_id, summary, market_regime, consensus_direction,
			avg_confidence, outcome_note, created_at,
			embedding <=> $1 AS distance
		FROM analysis_memories
		%s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, whereClause)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar memories: %w", err)
	}
	defer rows.Close()

	var memories []*AnalysisMemory
	for rows.Next() {
		var mem AnalysisMemory
		err := rows.Scan(
			&mem.ID,
			&mem.Coin,
			&mem.RunID,
			&mem.Summary,
			&mem.Regime,
			&mem.Direction,
			&mem.Confidence,
			&mem.OutcomeNote,
			&mem.CreatedAt,
			&mem.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis memory: %w", err)
		}
		memories = append(memories, &mem)
	}

	log.Debug().
		Int("count", len(memories)).
		Int("limit", limit).
		Msg("Found similar analysis memories")

	return memories, rows.Err()
}

// Recent returns the latest memories for a coin, newest first. This is
// the recall path when no query embedding is available.
func (s *Store) Recent(ctx context.Context, coin string, limit int) ([]*AnalysisMemory, error) {
	query := `
		SELECT
			id, coin, run_id, summary, market_regime, consensus_direction,
			avg_confidence, outcome_note, created_at
		FROM analysis_memories
		WHERE coin = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, coin, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent memories: %w", err)
	}
	defer rows.Close()

	var memories []*AnalysisMemory
	for rows.Next() {
		var mem AnalysisMemory
		err := rows.Scan(
			&mem.ID,
			&mem.Coin,
			&mem.RunID,
			&mem.Summary,
			&mem.Regime,
			&mem.Direction,
			&mem.Confidence,
			&mem.OutcomeNote,
			&mem.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis memory: %w", err)
		}
		memories = append(memories, &mem)
	}

	return memories, rows.Err()
}

// ForRun returns the memories written during one scan run.
func (s *Store) ForRun(ctx context.Context, runID uuid.UUID) ([]*AnalysisMemory, error) {
	query := `
		SELECT
			id, coin, run_id, summary, market_regime, consensus_direction,
			avg_confidence, outcome_note, created_at
		FROM analysis_memories
		WHERE run_id = $1
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run memories: %w", err)
	}
	defer rows.Close()

	var memories []*AnalysisMemory
	for rows.Next() {
		var mem AnalysisMemory
		err := rows.Scan(
			&mem.ID,
			&mem.Coin,
			&mem.RunID,
			&mem.Summary,
			&mem.Regime,
			&mem.Direction,
			&mem.Confidence,
			&mem.OutcomeNote,
			&mem.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis memory: %w", err)
		}
		memories = append(memories, &mem)
	}

	return memories, rows.Err()
}

// AnnotateOutcome records how a remembered analysis resolved, so future
// recalls of the same setup carry the result alongside the conclusion.
func (s *Store) AnnotateOutcome(ctx context.Context, id int64, note string) error {
	query := `
		UPDATE analysis_memories
		SET outcome_note = $2
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query, id, note)
	if err != nil {
		return fmt.Errorf("failed to annotate memory outcome: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("analysis memory %d not found", id)
	}

	log.Debug().
		Int64("id", id).
		Str("note", note).
		Msg("Annotated analysis memory outcome")

	return nil
}

// AnnotateRunOutcomes applies one outcome note to every memory written
// for a coin during a run. Returns the number of rows annotated.
func (s *Store) AnnotateRunOutcomes(ctx context.Context, runID uuid.UUID, coin, note string) (int, error) {
	query := `
		UPDATE analysis_memories
		SET outcome_note = $3
		WHERE run_id = $1 AND coin = $2 AND outcome_note IS NULL
	`

	result, err := s.pool.Exec(ctx, query, runID, coin, note)
	if err != nil {
		return 0, fmt.Errorf("failed to annotate run memories: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// PruneOlderThan deletes memories past the retention window and
// returns how many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	result, err := s.pool.Exec(ctx, `DELETE FROM analysis_memories WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune analysis memories: %w", err)
	}

	count := result.RowsAffected()
	if count > 0 {
		log.Info().
			Int64("count", count).
			Time("cutoff", cutoff).
			Msg("Pruned old analysis memories")
	}

	return int(count), nil
}

// Filter narrows a similarity query.
type Filter interface {
	SQL(argIndex int) (clause string, args []interface{})
}

// CoinFilter restricts recall to one coin symbol.
type CoinFilter struct {
	Coin string
}

func (f CoinFilter) SQL(argIndex int) (string, []interface{}) {
	return fmt.Sprintf("coin = $%d", argIndex), []interface{}{f.Coin}
}

// RegimeFilter restricts recall to analyses made in one market regime.
type RegimeFilter struct {
	Regime string
}

func (f RegimeFilter) SQL(argIndex int) (string, []interface{}) {
	return fmt.Sprintf("market_regime = $%d", argIndex), []interface{}{f.Regime}
}

// DirectionFilter restricts recall to one consensus direction.
type DirectionFilter struct {
	Direction string
}

func (f DirectionFilter) SQL(argIndex int) (string, []interface{}) {
	return fmt.Sprintf("consensus_direction = $%d", argIndex), []interface{}{f.Direction}
}

// MinConfidenceFilter drops low-conviction memories from recall.
type MinConfidenceFilter struct {
	MinConfidence float64
}

func (f MinConfidenceFilter) SQL(argIndex int) (string, []interface{}) {
	return fmt.Sprintf("avg_confidence >= $%d", argIndex), []interface{}{f.MinConfidence}
}

// SinceFilter drops memories older than a point in time.
type SinceFilter struct {
	Since time.Time
}

func (f SinceFilter) SQL(argIndex int) (string, []interface{}) {
	return fmt.Sprintf("created_at >= $%d", argIndex), []interface{}{f.Since}
}

// ResolvedOnlyFilter keeps only memories whose outcome is known, so
// prompts can cite how similar setups actually played out.
type ResolvedOnlyFilter struct{}

func (f ResolvedOnlyFilter) SQL(argIndex int) (string, []interface{}) {
	return "outcome_note IS NOT NULL", nil
}
