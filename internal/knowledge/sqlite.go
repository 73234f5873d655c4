package knowledge

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	"github.com/jonathan/ckd-assistant/internal/llm"
	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/types"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

//go:embed schema.sql
var schema string

const embedBatchSize = 64

// SQLiteStore is a provider-bound vector index stored in one sqlite file per
// embedding provider.
type SQLiteStore struct {
	db       *sqlx.DB
	path     string
	embedder llm.Embedder
	chunker  Chunker
	logger   *slog.Logger
}

type chunkRow struct {
	ID        string `db:"id"`
	Source    string `db:"source"`
	Title     string `db:"title"`
	Ordinal   int    `db:"ordinal"`
	Content   string `db:"content"`
	Embedding []byte `db:"embedding"`
}

// IndexPath returns the index file used for an embedding provider.
func IndexPath(dir, provider string) string {
	return filepath.Join(dir, fmt.Sprintf("knowledge_%s.db", provider))
}

// OpenSQLite opens or creates the index for embedder's provider under dir.
// An existing index built with a different model fails with EmbeddingMismatchError.
func OpenSQLite(ctx context.Context, dir string, embedder llm.Embedder) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	path := IndexPath(dir, embedder.Provider())

	url := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=wal&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sqlx.ConnectContext(ctx, "sqlite3", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge index %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise knowledge index: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		path:     path,
		embedder: embedder,
		chunker:  DefaultChunker(),
		logger:   logging.New("knowledge"),
	}
	if err := s.bindEmbedder(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) bindEmbedder(ctx context.Context) error {
	meta := map[string]string{}
	rows, err := s.db.QueryxContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return fmt.Errorf("failed to read index metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("failed to read index metadata: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read index metadata: %w", err)
	}

	provider, model := s.embedder.Provider(), s.embedder.Model()
	if len(meta) == 0 {
		_, err := s.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('provider', ?), ('model', ?)`, provider, model)
		if err != nil {
			return fmt.Errorf("failed to write index metadata: %w", err)
		}
		return nil
	}

	if meta["provider"] != provider || meta["model"] != model {
		return &EmbeddingMismatchError{
			Path:          s.path,
			IndexProvider: meta["provider"],
			IndexModel:    meta["model"],
			Provider:      provider,
			Model:         model,
		}
	}
	return nil
}

// Path returns the index file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the index.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Count returns the number of indexed chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM chunks`); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Index chunks, embeds and stores docs, skipping chunks already present.
// Concurrent builders of the same index are serialised with a file lock.
func (s *SQLiteStore) Index(ctx context.Context, docs []Document) (int, error) {
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return 0, fmt.Errorf("failed to lock index: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	var pending []chunkRow
	for _, doc := range docs {
		for i, text := range s.chunker.Split(doc.Text) {
			id := chunkID(doc.Source, text)
			var exists bool
			if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chunks WHERE id = ?)`, id); err != nil {
				return 0, fmt.Errorf("failed to check chunk: %w", err)
			}
			if exists {
				continue
			}
			pending = append(pending, chunkRow{ID: id, Source: doc.Source, Title: doc.Title, Ordinal: i, Content: text})
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(pending); start += embedBatchSize {
		batch := pending[start:min(start+embedBatchSize, len(pending))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, row := range batch {
				texts[i] = row.Content
			}
			vectors, err := s.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks: %w", err)
			}
			for i := range batch {
				batch[i].Embedding = encodeVector(vectors[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range pending {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO chunks (id, source, title, ordinal, content, embedding)
			VALUES (:id, :source, :title, :ordinal, :content, :embedding)
			ON CONFLICT (id) DO NOTHING`, row)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunks: %w", err)
	}

	s.logger.InfoContext(ctx, "indexed chunks", slog.Int("chunks", len(pending)), slog.Int("documents", len(docs)))
	return len(pending), nil
}

// Search ranks stored chunks by cosine similarity to the query embedding.
func (s *SQLiteStore) Search(ctx context.Context, query string, k int) ([]types.Evidence, error) {
	if k <= 0 {
		k = DefaultK
	}

	n, err := s.Count(ctx)
	if err != nil {
		return nil, &RetrievalError{Query: query, Cause: err}
	}
	if n == 0 {
		return []types.Evidence{}, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &RetrievalError{Query: query, Cause: err}
	}
	if len(vectors) != 1 {
		return nil, &RetrievalError{Query: query, Cause: errors.New("embedder returned no vector")}
	}
	q := vectors[0]

	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, source, title, ordinal, content, embedding FROM chunks`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []types.Evidence{}, nil
		}
		return nil, &RetrievalError{Query: query, Cause: err}
	}

	results := make([]types.Evidence, 0, k)
	for _, row := range rows {
		score := cosine(q, decodeVector(row.Embedding))
		if score < MinScore {
			continue
		}
		results = append(results, types.Evidence{Source: row.Source, Text: row.Content, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func chunkID(source, text string) string {
	sum := blake2b.Sum256([]byte(source + "\x00" + text))
	return hex.EncodeToString(sum[:16])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
