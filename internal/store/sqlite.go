package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/oeaw/storyscout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS publications (
	id                     TEXT PRIMARY KEY,
	title                  TEXT NOT NULL,
	authors                TEXT,
	abstract               TEXT,
	doi                    TEXT,
	url                    TEXT,
	published_at           TEXT,
	publication_type       TEXT,
	institute              TEXT,
	open_access            INTEGER NOT NULL DEFAULT 0,
	oa_type                TEXT,
	citation               TEXT,
	csv_uid                TEXT,
	import_batch           TEXT,

	enrichment_status      TEXT NOT NULL DEFAULT 'pending',
	enriched_abstract      TEXT,
	enriched_keywords      TEXT,
	enriched_journal       TEXT,
	enriched_source        TEXT,
	full_text_snippet      TEXT,
	word_count             INTEGER NOT NULL DEFAULT 0,

	analysis_status        TEXT NOT NULL DEFAULT 'pending',
	press_score            REAL,
	public_accessibility   REAL,
	societal_relevance     REAL,
	novelty_factor         REAL,
	storytelling_potential REAL,
	media_timeliness       REAL,
	pitch_suggestion       TEXT,
	target_audience        TEXT,
	suggested_angle        TEXT,
	reasoning              TEXT,
	llm_model              TEXT,
	analysis_cost          REAL,

	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_publications_enrichment_status ON publications(enrichment_status);
CREATE INDEX IF NOT EXISTS idx_publications_analysis_status ON publications(analysis_status);
CREATE INDEX IF NOT EXISTS idx_publications_created_at ON publications(created_at);
CREATE INDEX IF NOT EXISTS idx_publications_press_score ON publications(press_score);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// publicationColumns is the SELECT list every read shares, in scan order.
const publicationColumns = `id, title, authors, abstract, doi, url, published_at,
	publication_type, institute, open_access, oa_type, citation, csv_uid, import_batch,
	enrichment_status, enriched_abstract, enriched_keywords, enriched_journal,
	enriched_source, full_text_snippet, word_count,
	analysis_status, press_score, public_accessibility, societal_relevance,
	novelty_factor, storytelling_potential, media_timeliness, pitch_suggestion,
	target_audience, suggested_angle, reasoning, llm_model, analysis_cost,
	created_at, updated_at`

func (s *SQLiteStore) ListForEnrichment(ctx context.Context, filter EnrichmentFilter) ([]model.Publication, error) {
	limit := clampLimit(filter.Limit, maxEnrichmentLimit)
	statuses := filter.Statuses()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")

	args := make([]any, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, st)
	}
	args = append(args, limit)

	query := `SELECT ` + publicationColumns + ` FROM publications
		WHERE doi IS NOT NULL AND doi != ''
		AND enrichment_status IN (` + placeholders + `)
		ORDER BY created_at DESC LIMIT ?`

	pubs, err := s.queryPublications(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list for enrichment")
	}

	if filter.IncludeNoDOI {
		remaining := limit - len(pubs)
		if remaining > 0 {
			args = args[:len(args)-1]
			args = append(args, remaining)
			query = `SELECT ` + publicationColumns + ` FROM publications
				WHERE (doi IS NULL OR doi = '')
				AND (url LIKE '%.pdf' OR abstract IS NOT NULL)
				AND enrichment_status IN (` + placeholders + `)
				ORDER BY created_at DESC LIMIT ?`
			noDOI, err := s.queryPublications(ctx, query, args...)
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: list no-doi for enrichment")
			}
			pubs = append(pubs, noDOI...)
		}
	}
	return pubs, nil
}

func (s *SQLiteStore) ListForAnalysis(ctx context.Context, filter AnalysisFilter) ([]model.Publication, error) {
	limit := clampLimit(filter.Limit, maxAnalysisLimit)

	query := `SELECT ` + publicationColumns + ` FROM publications WHERE 1=1`
	var args []any

	if !filter.ForceReanalyze {
		query += ` AND analysis_status = ?`
		args = append(args, string(model.AnalysisPending))
	}
	if filter.MinWordCount > 0 {
		query += ` AND word_count >= ?`
		args = append(args, filter.MinWordCount)
	}
	if statuses := filter.EnrichmentStatuses(); statuses != nil {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
		query += ` AND enrichment_status IN (` + placeholders + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	pubs, err := s.queryPublications(ctx, query, args...)
	return pubs, eris.Wrap(err, "sqlite: list for analysis")
}

func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, id string, u model.EnrichmentUpdate) error {
	keywordsJSON, err := marshalKeywords(u.Keywords)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal keywords")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE publications SET
			enrichment_status = ?, enriched_abstract = ?, enriched_keywords = ?,
			enriched_journal = ?, enriched_source = ?, full_text_snippet = ?,
			word_count = ?, updated_at = ?
		 WHERE id = ?`,
		string(u.Status), u.Abstract, keywordsJSON, u.Journal, u.Source,
		u.FullTextSnippet, u.WordCount, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update enrichment %s", id)
	}
	return checkRowsAffected(res, "publication", id)
}

func (s *SQLiteStore) UpdateAnalysis(ctx context.Context, id string, u model.AnalysisUpdate) error {
	var res sql.Result
	var err error

	if u.Status == model.AnalysisAnalyzed {
		res, err = s.db.ExecContext(ctx,
			`UPDATE publications SET
				analysis_status = ?, press_score = ?, public_accessibility = ?,
				societal_relevance = ?, novelty_factor = ?, storytelling_potential = ?,
				media_timeliness = ?, pitch_suggestion = ?, target_audience = ?,
				suggested_angle = ?, reasoning = ?, llm_model = ?, analysis_cost = ?,
				updated_at = ?
			 WHERE id = ?`,
			string(u.Status), u.PressScore, u.PublicAccessibility,
			u.SocietalRelevance, u.NoveltyFactor, u.StorytellingPotential,
			u.MediaTimeliness, u.PitchSuggestion, u.TargetAudience,
			u.SuggestedAngle, u.Reasoning, u.LLMModel, u.AnalysisCost,
			time.Now().UTC(), id,
		)
	} else {
		// A failed record keeps any previous scores.
		res, err = s.db.ExecContext(ctx,
			`UPDATE publications SET analysis_status = ?, updated_at = ? WHERE id = ?`,
			string(u.Status), time.Now().UTC(), id,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update analysis %s", id)
	}
	return checkRowsAffected(res, "publication", id)
}

func (s *SQLiteStore) ListScored(ctx context.Context) ([]model.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications
		WHERE analysis_status = ? AND press_score IS NOT NULL
		ORDER BY press_score DESC`
	pubs, err := s.queryPublications(ctx, query, string(model.AnalysisAnalyzed))
	return pubs, eris.Wrap(err, "sqlite: list scored")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	var avg sql.NullFloat64

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(CASE WHEN enrichment_status = 'enriched' THEN 1 END),
			COUNT(CASE WHEN analysis_status = 'analyzed' THEN 1 END),
			AVG(press_score),
			COUNT(CASE WHEN press_score >= 0.7 THEN 1 END)
		 FROM publications`,
	).Scan(&st.Total, &st.Enriched, &st.Analyzed, &avg, &st.HighScoreCount)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	if avg.Valid {
		st.AvgScore = &avg.Float64
	}
	return &st, nil
}

// InsertPublication seeds a record. Used by tests and database bootstrap
// tooling; the service itself never creates records.
func (s *SQLiteStore) InsertPublication(ctx context.Context, p model.Publication) error {
	keywordsJSON, err := marshalKeywords(p.EnrichedKeywords)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal keywords")
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := p.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO publications (
			id, title, authors, abstract, doi, url, published_at,
			publication_type, institute, open_access, oa_type, citation, csv_uid, import_batch,
			enrichment_status, enriched_abstract, enriched_keywords, enriched_journal,
			enriched_source, full_text_snippet, word_count,
			analysis_status, press_score, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Title, p.Authors, p.Abstract, p.DOI, p.URL, p.PublishedAt,
		p.PublicationType, p.Institute, p.OpenAccess, p.OAType, p.Citation, p.CSVUID, p.ImportBatch,
		string(defaultEnrichmentStatus(p.EnrichmentStatus)), p.EnrichedAbstract, keywordsJSON,
		p.EnrichedJournal, p.EnrichedSource, p.FullTextSnippet, p.WordCount,
		string(defaultAnalysisStatus(p.AnalysisStatus)), p.PressScore, now, now,
	)
	return eris.Wrapf(err, "sqlite: insert publication %s", id)
}

func (s *SQLiteStore) queryPublications(ctx context.Context, query string, args ...any) ([]model.Publication, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pubs []model.Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, *p)
	}
	return pubs, rows.Err()
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func marshalKeywords(keywords []string) (*string, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(keywords)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func defaultEnrichmentStatus(s model.EnrichmentStatus) model.EnrichmentStatus {
	if s == "" {
		return model.EnrichmentPending
	}
	return s
}

func defaultAnalysisStatus(s model.AnalysisStatus) model.AnalysisStatus {
	if s == "" {
		return model.AnalysisPending
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPublication(row scannable) (*model.Publication, error) {
	var p model.Publication
	var keywordsJSON *string

	err := row.Scan(
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
		return nil, eris.Wrap(err, "scan publication")
	}

	if keywordsJSON != nil {
		if err := json.Unmarshal([]byte(*keywordsJSON), &p.EnrichedKeywords); err != nil {
			return nil, eris.Wrap(err, "unmarshal keywords")
		}
	}
	return &p, nil
}
