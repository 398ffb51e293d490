package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/oeaw/storyscout/internal/db"
	"github.com/oeaw/storyscout/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot per-record writes.
var preparedStatements = map[string]string{
	"update_enrichment": `UPDATE publications SET
		enrichment_status = $1, enriched_abstract = $2, enriched_keywords = $3,
		enriched_journal = $4, enriched_source = $5, full_text_snippet = $6,
		word_count = $7, updated_at = $8 WHERE id = $9`,
	"mark_analysis_status": `UPDATE publications SET analysis_status = $1, updated_at = $2 WHERE id = $3`,
	"stats": `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE enrichment_status = 'enriched'),
		COUNT(*) FILTER (WHERE analysis_status = 'analyzed'),
		AVG(press_score),
		COUNT(*) FILTER (WHERE press_score >= 0.7)
		FROM publications`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS publications (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	title                  TEXT NOT NULL,
	authors                TEXT,
	abstract               TEXT,
	doi                    TEXT,
	url                    TEXT,
	published_at           TEXT,
	publication_type       TEXT,
	institute              TEXT,
	open_access            BOOLEAN NOT NULL DEFAULT false,
	oa_type                TEXT,
	citation               TEXT,
	csv_uid                TEXT,
	import_batch           TEXT,

	enrichment_status      TEXT NOT NULL DEFAULT 'pending',
	enriched_abstract      TEXT,
	enriched_keywords      JSONB,
	enriched_journal       TEXT,
	enriched_source        TEXT,
	full_text_snippet      TEXT,
	word_count             INTEGER NOT NULL DEFAULT 0,

	analysis_status        TEXT NOT NULL DEFAULT 'pending',
	press_score            DOUBLE PRECISION,
	public_accessibility   DOUBLE PRECISION,
	societal_relevance     DOUBLE PRECISION,
	novelty_factor         DOUBLE PRECISION,
	storytelling_potential DOUBLE PRECISION,
	media_timeliness       DOUBLE PRECISION,
	pitch_suggestion       TEXT,
	target_audience        TEXT,
	suggested_angle        TEXT,
	reasoning              TEXT,
	llm_model              TEXT,
	analysis_cost          DOUBLE PRECISION,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_publications_enrichment_status ON publications(enrichment_status);
CREATE INDEX IF NOT EXISTS idx_publications_analysis_status ON publications(analysis_status);
CREATE INDEX IF NOT EXISTS idx_publications_created_at ON publications(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_publications_press_score ON publications(press_score DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListForEnrichment(ctx context.Context, filter EnrichmentFilter) ([]model.Publication, error) {
	limit := clampLimit(filter.Limit, maxEnrichmentLimit)
	statuses := filter.Statuses()

	query := `SELECT ` + publicationColumns + ` FROM publications
		WHERE doi IS NOT NULL AND doi != ''
		AND enrichment_status = ANY($1)
		ORDER BY created_at DESC LIMIT $2`

	pubs, err := s.queryPublications(ctx, query, statuses, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list for enrichment")
	}

	if filter.IncludeNoDOI {
		remaining := limit - len(pubs)
		if remaining > 0 {
			query = `SELECT ` + publicationColumns + ` FROM publications
				WHERE (doi IS NULL OR doi = '')
				AND (url LIKE '%.pdf' OR abstract IS NOT NULL)
				AND enrichment_status = ANY($1)
				ORDER BY created_at DESC LIMIT $2`
			noDOI, err := s.queryPublications(ctx, query, statuses, remaining)
			if err != nil {
				return nil, eris.Wrap(err, "postgres: list no-doi for enrichment")
			}
			pubs = append(pubs, noDOI...)
		}
	}
	return pubs, nil
}

func (s *PostgresStore) ListForAnalysis(ctx context.Context, filter AnalysisFilter) ([]model.Publication, error) {
	limit := clampLimit(filter.Limit, maxAnalysisLimit)

	query := `SELECT ` + publicationColumns + ` FROM publications WHERE true`
	args := []any{}
	argIdx := 1

	if !filter.ForceReanalyze {
		query += fmt.Sprintf(` AND analysis_status = $%d`, argIdx)
		args = append(args, string(model.AnalysisPending))
		argIdx++
	}
	if filter.MinWordCount > 0 {
		query += fmt.Sprintf(` AND word_count >= $%d`, argIdx)
		args = append(args, filter.MinWordCount)
		argIdx++
	}
	if statuses := filter.EnrichmentStatuses(); statuses != nil {
		query += fmt.Sprintf(` AND enrichment_status = ANY($%d)`, argIdx)
		args = append(args, statuses)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limit)

	pubs, err := s.queryPublications(ctx, query, args...)
	return pubs, eris.Wrap(err, "postgres: list for analysis")
}

func (s *PostgresStore) UpdateEnrichment(ctx context.Context, id string, u model.EnrichmentUpdate) error {
	keywordsJSON, err := marshalKeywords(u.Keywords)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal keywords")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE publications SET
			enrichment_status = $1, enriched_abstract = $2, enriched_keywords = $3,
			enriched_journal = $4, enriched_source = $5, full_text_snippet = $6,
			word_count = $7, updated_at = $8 WHERE id = $9`,
		string(u.Status), u.Abstract, keywordsJSON, u.Journal, u.Source,
		u.FullTextSnippet, u.WordCount, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update enrichment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("publication not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateAnalysis(ctx context.Context, id string, u model.AnalysisUpdate) error {
	var rowsAffected int64

	if u.Status == model.AnalysisAnalyzed {
		tag, err := s.pool.Exec(ctx,
			`UPDATE publications SET
				analysis_status = $1, press_score = $2, public_accessibility = $3,
				societal_relevance = $4, novelty_factor = $5, storytelling_potential = $6,
				media_timeliness = $7, pitch_suggestion = $8, target_audience = $9,
				suggested_angle = $10, reasoning = $11, llm_model = $12, analysis_cost = $13,
				updated_at = $14 WHERE id = $15`,
			string(u.Status), u.PressScore, u.PublicAccessibility,
			u.SocietalRelevance, u.NoveltyFactor, u.StorytellingPotential,
			u.MediaTimeliness, u.PitchSuggestion, u.TargetAudience,
			u.SuggestedAngle, u.Reasoning, u.LLMModel, u.AnalysisCost,
			time.Now().UTC(), id,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update analysis %s", id)
		}
		rowsAffected = tag.RowsAffected()
	} else {
		tag, err := s.pool.Exec(ctx,
			`UPDATE publications SET analysis_status = $1, updated_at = $2 WHERE id = $3`,
			string(u.Status), time.Now().UTC(), id,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: mark analysis %s", id)
		}
		rowsAffected = tag.RowsAffected()
	}

	if rowsAffected == 0 {
		return eris.Errorf("publication not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListScored(ctx context.Context) ([]model.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications
		WHERE analysis_status = $1 AND press_score IS NOT NULL
		ORDER BY press_score DESC`
	pubs, err := s.queryPublications(ctx, query, string(model.AnalysisAnalyzed))
	return pubs, eris.Wrap(err, "postgres: list scored")
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	var avg *float64

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE enrichment_status = 'enriched'),
			COUNT(*) FILTER (WHERE analysis_status = 'analyzed'),
			AVG(press_score),
			COUNT(*) FILTER (WHERE press_score >= 0.7)
		 FROM publications`,
	).Scan(&st.Total, &st.Enriched, &st.Analyzed, &avg, &st.HighScoreCount)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	st.AvgScore = avg
	return &st, nil
}

func (s *PostgresStore) queryPublications(ctx context.Context, query string, args ...any) ([]model.Publication, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pubs []model.Publication
	for rows.Next() {
		p, err := scanPostgresPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, *p)
	}
	return pubs, rows.Err()
}

func scanPostgresPublication(rows pgx.Rows) (*model.Publication, error) {
	var p model.Publication
	var keywordsJSON []byte

	err := rows.Scan(
		&p.ID, &p.Title, &p.Authors, &p.Abstract, &p.DOI, &p.URL, &p.PublishedAt,
		&p.PublicationType, &p.Institute, &p.OpenAccess, &p.OAType, &p.Citation, &p.CSVUID, &p.ImportBatch,
		&p.EnrichmentStatus, &p.EnrichedAbstract, &keywordsJSON, &p.EnrichedJournal,
		&p.EnrichedSource, &p.FullTextSnippet, &p.WordCount,
		&p.AnalysisStatus, &p.PressScore, &p.PublicAccessibility, &p.SocietalRelevance,
		&p.NoveltyFactor, &p.StorytellingPotential, &p.MediaTimeliness, &p.PitchSuggestion,
		&p.TargetAudience, &p.SuggestedAngle, &p.Reasoning, &p.LLMModel, &p.AnalysisCost,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan publication")
	}

	if len(keywordsJSON) > 0 {
		if err := json.Unmarshal(keywordsJSON, &p.EnrichedKeywords); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal keywords")
		}
	}
	return &p, nil
}
