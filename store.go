package probgen

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SampleStore is the persistence boundary for reference samples.
// Implementations must tolerate concurrent inserts without coordination;
// near-duplicate samples are acceptable.
type SampleStore interface {
	InsertSample(ctx context.Context, s *ReferenceSample) error
	SamplesByKeywords(ctx context.Context, tokens []string, domain string, limit int) ([]ReferenceSample, error)
	SamplesByEmbedding(ctx context.Context, embedding []float32, threshold float64, limit int, domain string) ([]ScoredSample, error)
	SamplesBySubdomain(ctx context.Context, domain, subdomain string, limit int) ([]ReferenceSample, error)
	SamplesDomainGeneral(ctx context.Context, domain string, limit int) ([]ReferenceSample, error)
}

// CacheStore is the persistence boundary for cached problem sets.
// GetEntry returns (nil, nil) on a miss; PutEntry always upserts.
type CacheStore interface {
	GetEntry(ctx context.Context, key string) (*CacheEntry, error)
	PutEntry(ctx context.Context, entry *CacheEntry) error
	DeleteEntry(ctx context.Context, key string) error
}

// CostStore receives append-only cost records.
type CostStore interface {
	InsertCostRecord(ctx context.Context, rec *CostRecord) error
}

// ResultSink receives accepted problem sets for external persistence.
type ResultSink interface {
	SaveProblemSet(ctx context.Context, req GenerationRequest, problems []GeneratedProblem) error
}

// SQLiteStore implements SampleStore, CacheStore, CostStore and ResultSink
// on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens the database and creates any missing tables.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS samples (
			id TEXT PRIMARY KEY,
			domain TEXT NOT NULL,
			subdomain TEXT NOT NULL DEFAULT '',
			problem TEXT NOT NULL,
			embedding TEXT,
			quality_score REAL NOT NULL DEFAULT 0,
			keywords TEXT NOT NULL DEFAULT '',
			origin TEXT NOT NULL,
			generation INTEGER NOT NULL DEFAULT 0,
			human_verified INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			problems TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cost_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			model TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			cost_usd REAL NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS problem_sets (
			id TEXT PRIMARY KEY,
			tech TEXT NOT NULL,
			domain TEXT NOT NULL,
			request TEXT NOT NULL,
			problems TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// -------------------- SampleStore --------------------

func (s *SQLiteStore) InsertSample(ctx context.Context, sample *ReferenceSample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now().UTC()
	}
	problemJSON, err := json.Marshal(sample.Problem)
	if err != nil {
		return fmt.Errorf("failed to marshal problem: %w", err)
	}
	embeddingJSON, err := json.Marshal(sample.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	keywords := strings.ToLower(strings.Join(sample.Keywords, " "))
	// Stored lowercased so subdomain lookups are case-insensitive.
	subdomain := strings.ToLower(sample.Subdomain)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO samples (id, domain, subdomain, problem, embedding, quality_score, keywords, origin, generation, human_verified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.Domain, subdomain, string(problemJSON), string(embeddingJSON),
		sample.QualityScore, keywords, string(sample.Origin), sample.Generation,
		boolToInt(sample.HumanVerified), sample.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SamplesByKeywords(ctx context.Context, tokens []string, domain string, limit int) ([]ReferenceSample, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	var clauses []string
	var args []interface{}
	args = append(args, domain, domain)
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		clauses = append(clauses, "keywords LIKE ?")
		args = append(args, "%"+tok+"%")
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	args = append(args, limit)

	query := `SELECT id, domain, subdomain, problem, embedding, quality_score, keywords, origin, generation, human_verified, created_at
		FROM samples WHERE (? = '' OR domain = ?) AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY quality_score DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples by keywords: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

func (s *SQLiteStore) SamplesByEmbedding(ctx context.Context, embedding []float32, threshold float64, limit int, domain string) ([]ScoredSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, subdomain, problem, embedding, quality_score, keywords, origin, generation, human_verified, created_at
		 FROM samples WHERE (? = '' OR domain = ?) AND embedding IS NOT NULL`,
		domain, domain,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples for vector search: %w", err)
	}
	defer rows.Close()

	samples, err := scanSamples(rows)
	if err != nil {
		return nil, err
	}

	var scored []ScoredSample
	for _, sample := range samples {
		sim := cosineSimilarity(embedding, sample.Embedding)
		if sim >= threshold {
			scored = append(scored, ScoredSample{ReferenceSample: sample, Similarity: sim})
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *SQLiteStore) SamplesBySubdomain(ctx context.Context, domain, subdomain string, limit int) ([]ReferenceSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, subdomain, problem, embedding, quality_score, keywords, origin, generation, human_verified, created_at
		 FROM samples WHERE (? = '' OR domain = ?) AND subdomain = ?
		 ORDER BY quality_score DESC LIMIT ?`,
		domain, domain, strings.ToLower(subdomain), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples by subdomain: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

func (s *SQLiteStore) SamplesDomainGeneral(ctx context.Context, domain string, limit int) ([]ReferenceSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, subdomain, problem, embedding, quality_score, keywords, origin, generation, human_verified, created_at
		 FROM samples WHERE domain = ? AND subdomain = ''
		 ORDER BY quality_score DESC LIMIT ?`,
		domain, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query domain-general samples: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

func scanSamples(rows *sql.Rows) ([]ReferenceSample, error) {
	var samples []ReferenceSample
	for rows.Next() {
		var sample ReferenceSample
		var problemJSON, embeddingJSON, keywords, origin string
		var humanVerified int
		err := rows.Scan(&sample.ID, &sample.Domain, &sample.Subdomain, &problemJSON, &embeddingJSON,
			&sample.QualityScore, &keywords, &origin, &sample.Generation, &humanVerified, &sample.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if err := json.Unmarshal([]byte(problemJSON), &sample.Problem); err != nil {
			return nil, fmt.Errorf("failed to unmarshal problem: %w", err)
		}
		if embeddingJSON != "" && embeddingJSON != "null" {
			if err := json.Unmarshal([]byte(embeddingJSON), &sample.Embedding); err != nil {
				return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
			}
		}
		if keywords != "" {
			sample.Keywords = strings.Fields(keywords)
		}
		sample.Origin = SampleOrigin(origin)
		sample.HumanVerified = humanVerified != 0
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}
	return samples, nil
}

// -------------------- CacheStore --------------------

func (s *SQLiteStore) GetEntry(ctx context.Context, key string) (*CacheEntry, error) {
	var entry CacheEntry
	var problemsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT key, problems, created_at FROM cache_entries WHERE key = ?", key,
	).Scan(&entry.Key, &problemsJSON, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(problemsJSON), &entry.Problems); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached problems: %w", err)
	}
	return &entry, nil
}

func (s *SQLiteStore) PutEntry(ctx context.Context, entry *CacheEntry) error {
	problemsJSON, err := json.Marshal(entry.Problems)
	if err != nil {
		return fmt.Errorf("failed to marshal cached problems: %w", err)
	}
	// Last writer wins: concurrent runs with the same key race on upsert
	// and either result is equivalent.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, problems, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET problems = excluded.problems, created_at = excluded.created_at`,
		entry.Key, string(problemsJSON), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// -------------------- CostStore --------------------

func (s *SQLiteStore) InsertCostRecord(ctx context.Context, rec *CostRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_records (id, user_id, stage, model, input_tokens, output_tokens, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, string(rec.Stage), rec.Model, rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cost record: %w", err)
	}
	return nil
}

// -------------------- ResultSink --------------------

func (s *SQLiteStore) SaveProblemSet(ctx context.Context, req GenerationRequest, problems []GeneratedProblem) error {
	requestJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	problemsJSON, err := json.Marshal(problems)
	if err != nil {
		return fmt.Errorf("failed to marshal problems: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO problem_sets (id, tech, domain, request, problems, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), req.Tech, req.Domain, string(requestJSON), string(problemsJSON), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save problem set: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
