package evidence

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	xerrors "agentic-browser/internal/errors"
)

const maxIndexedArchives = 512

// ArchiveRecord 描述一次已归档（或归档失败）的任务证据。
type ArchiveRecord struct {
	JobID      string `json:"job_id"`
	Capability string `json:"capability"`
	Path       string `json:"path"`
	Records    int    `json:"records"`
	Warnings   int    `json:"warnings"`
	Generated  bool   `json:"generated"`
	Error      string `json:"error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// Index 记录证据归档的位置，便于后续检索。
type Index interface {
	Save(ctx context.Context, record ArchiveRecord) error
	Latest(ctx context.Context, limit int) ([]ArchiveRecord, error)
}

// FileIndex 将归档记录以 JSON Lines 追加到本地文件，内存中保留最近的记录。
type FileIndex struct {
	mu      sync.RWMutex
	path    string
	records []ArchiveRecord
}

// NewFileIndex 在 dir 下打开或创建 archives.log。
func NewFileIndex(dir string) (*FileIndex, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建证据索引目录失败")
	}
	idx := &FileIndex{path: filepath.Join(dir, "archives.log")}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Save 追加一条归档记录。
func (f *FileIndex) Save(_ context.Context, record ArchiveRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化归档记录失败")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开证据索引失败")
	}
	defer file.Close()
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入证据索引失败")
	}

	f.records = append([]ArchiveRecord{record}, f.records...)
	if len(f.records) > maxIndexedArchives {
		f.records = f.records[:maxIndexedArchives]
	}
	return nil
}

// Latest 按写入时间倒序返回最近的记录。
func (f *FileIndex) Latest(_ context.Context, limit int) ([]ArchiveRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if limit <= 0 || limit > len(f.records) {
		limit = len(f.records)
	}
	out := make([]ArchiveRecord, limit)
	copy(out, f.records[:limit])
	return out, nil
}

func (f *FileIndex) load() error {
	file, err := os.OpenFile(f.path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取证据索引失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []ArchiveRecord
	for scanner.Scan() {
		var record ArchiveRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]ArchiveRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析证据索引失败")
	}
	if len(restored) > maxIndexedArchives {
		restored = restored[:maxIndexedArchives]
	}
	f.records = restored
	return nil
}
