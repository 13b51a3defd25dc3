package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"agentic-browser/internal/embedding"
	xerrors "agentic-browser/internal/errors"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS vectors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    metadata TEXT,
    embedding TEXT NOT NULL,
    dimensions INTEGER NOT NULL
)`

// SQLiteIndex 将向量以 JSON 形式保存在 SQLite 中，检索时全量扫描并按内积排序。
type SQLiteIndex struct {
	mu   sync.RWMutex
	db   *sql.DB
	dims int
}

// OpenSQLiteIndex 打开（或创建）dir/vectors.db。
func OpenSQLiteIndex(ctx context.Context, dir string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "创建索引目录失败")
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "vectors.db"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开 SQLite 索引失败")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 SQLite 索引失败")
	}

	idx := &SQLiteIndex{db: db}
	var dims sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT dimensions FROM vectors ORDER BY id LIMIT 1`).Scan(&dims); err != nil && err != sql.ErrNoRows {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取索引维度失败")
	}
	idx.dims = int(dims.Int64)
	return idx, nil
}

// Close 关闭底层连接。
func (s *SQLiteIndex) Close() error { return s.db.Close() }

// Add 在一个事务内写入全部向量。
func (s *SQLiteIndex) Add(ctx context.Context, vectors [][]float32, texts []string, metadata []map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dims, err := validateAdd(vectors, texts, metadata, s.dims)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启索引事务失败")
	}
	for i, vec := range vectors {
		vecJSON, err := json.Marshal(embedding.Normalize(vec))
		if err != nil {
			tx.Rollback()
			return xerrors.Wrap(xerrors.CodeInternal, err, "序列化向量失败")
		}
		var metaJSON []byte
		if metadata != nil && metadata[i] != nil {
			if metaJSON, err = json.Marshal(metadata[i]); err != nil {
				tx.Rollback()
				return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化元数据失败")
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vectors (content, metadata, embedding, dimensions) VALUES (?, ?, ?, ?)`,
			texts[i], nullableJSON(metaJSON), string(vecJSON), dims,
		); err != nil {
			tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入向量失败")
		}
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交索引事务失败")
	}
	s.dims = dims
	return nil
}

// Search 实现 Index 接口。
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || s.dims == 0 {
		return nil, nil
	}
	if len(vector) != s.dims {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "查询向量维度与索引不一致")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT content, metadata, embedding FROM vectors ORDER BY id`)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询向量失败")
	}
	defer rows.Close()

	var (
		texts  []string
		metas  []sql.NullString
		corpus [][]float32
	)
	for rows.Next() {
		var (
			text, vecJSON string
			meta          sql.NullString
		)
		if err := rows.Scan(&text, &meta, &vecJSON); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析向量失败")
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析向量失败")
		}
		texts = append(texts, text)
		metas = append(metas, meta)
		corpus = append(corpus, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历向量失败")
	}

	hits, err := rank(vector, corpus, k)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		res := Result{Text: texts[h.pos], Score: h.score}
		if metas[h.pos].Valid {
			_ = json.Unmarshal([]byte(metas[h.pos].String), &res.Metadata)
		}
		out = append(out, res)
	}
	return out, nil
}

// Stats 实现 Index 接口。
func (s *SQLiteIndex) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&count); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计向量失败")
	}
	return Stats{Documents: count, Dimensions: s.dims, Backend: "sqlite"}, nil
}

// Clear 删除全部向量。
func (s *SQLiteIndex) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "清空索引失败")
	}
	s.dims = 0
	return nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
