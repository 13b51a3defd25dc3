package mysql

import (
	"context"
	"database/sql"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/evidence"
)

// ArchiveRepository 将证据归档索引写入 evidence_archives 表。
type ArchiveRepository struct {
	db *sql.DB
}

var _ evidence.Index = (*ArchiveRepository)(nil)

// NewArchiveRepository 基于已迁移的连接池创建仓库。
func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

const upsertArchiveSQL = `INSERT INTO evidence_archives
    (job_id, capability, path, records, warnings, archived, error, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE capability = VALUES(capability), path = VALUES(path), records = VALUES(records),
    warnings = VALUES(warnings), archived = VALUES(archived), error = VALUES(error), created_at = VALUES(created_at)`

// Save 写入或覆盖某个任务的归档记录。
func (r *ArchiveRepository) Save(ctx context.Context, record evidence.ArchiveRecord) error {
	if record.JobID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "job_id 不能为空")
	}
	if _, err := r.db.ExecContext(ctx, upsertArchiveSQL,
		record.JobID,
		record.Capability,
		record.Path,
		record.Records,
		record.Warnings,
		record.Generated,
		record.Error,
		record.CreatedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入证据索引失败")
	}
	return nil
}

const latestArchivesSQL = `SELECT job_id, capability, path, records, warnings, archived, error, created_at
    FROM evidence_archives ORDER BY created_at DESC, job_id DESC LIMIT ?`

// Latest 查询最近的归档记录。
func (r *ArchiveRepository) Latest(ctx context.Context, limit int) ([]evidence.ArchiveRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, latestArchivesSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询证据索引失败")
	}
	defer rows.Close()

	var out []evidence.ArchiveRecord
	for rows.Next() {
		var rec evidence.ArchiveRecord
		if err := rows.Scan(&rec.JobID, &rec.Capability, &rec.Path, &rec.Records, &rec.Warnings, &rec.Generated, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析证据索引失败")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历证据索引失败")
	}
	return out, nil
}
