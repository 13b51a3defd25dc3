package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/internal/job"
)

const mysqlDuplicateEntry = 1062

// JobRepository 使用 job_states 表实现 job.Store。
type JobRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ job.Store = (*JobRepository)(nil)

// NewJobRepository 基于已迁移的连接池创建仓库。
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

const jobColumns = `id, input, status, capability, attempts, max_retries, warnings_count, evidence_path,
    response, last_error, error_code, created_at, updated_at`

const insertJobSQL = `INSERT INTO job_states
    (id, query, input, status, capability, attempts, max_retries, warnings_count, evidence_path, response, last_error, error_code, created_at, updated_at)
    VALUES (?, ?, ?, ?, '', 0, ?, 0, '', '', '', '', ?, ?)`

// Create 实现 job.Store。
func (r *JobRepository) Create(ctx context.Context, j *job.Job) error {
	if j == nil || strings.TrimSpace(j.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "ID da tarefa é obrigatório")
	}
	input, err := json.Marshal(j.Input)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务输入失败")
	}
	now := r.now().Unix()
	j.CreatedAt, j.UpdatedAt = now, now

	if _, err := r.db.ExecContext(ctx, insertJobSQL,
		j.ID, j.Subject(), string(input), string(j.Status), j.MaxRetries, j.CreatedAt, j.UpdatedAt,
	); err != nil {
		var mysqlErr *gomysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return job.ErrConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	return nil
}

var selectJobSQL = `SELECT ` + jobColumns + ` FROM job_states WHERE id = ?`

// Get 实现 job.Store。
func (r *JobRepository) Get(ctx context.Context, id string) (*job.Job, error) {
	rows, err := r.db.QueryContext(ctx, selectJobSQL, id)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
		}
		return nil, job.ErrNotFound
	}
	return scanJob(rows)
}

const claimJobSQL = `UPDATE job_states SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
    WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

// Claim 实现 job.Store；条件更新保证同一任务只被一个工作协程领取。
func (r *JobRepository) Claim(ctx context.Context, id string) (*job.Job, error) {
	res, err := r.db.ExecContext(ctx, claimJobSQL,
		string(job.StatusRunning), r.now().Unix(), id, string(job.StatusPending), string(job.StatusFailed))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "领取任务失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected > 0 {
		return current, nil
	}
	switch {
	case current.Status == job.StatusSucceeded:
		return current, job.ErrCompleted
	case current.Status == job.StatusRunning:
		return current, job.ErrConflict
	case current.Attempts >= current.MaxRetries:
		return current, job.ErrExhausted
	default:
		return current, job.ErrConflict
	}
}

const succeedJobSQL = `UPDATE job_states SET status = ?, capability = ?, warnings_count = ?, evidence_path = ?, response = ?,
    last_error = '', error_code = '', updated_at = ? WHERE id = ?`

// MarkSucceeded 实现 job.Store。
func (r *JobRepository) MarkSucceeded(ctx context.Context, id string, o job.Outcome) error {
	return r.update(ctx, succeedJobSQL, "标记任务成功失败",
		string(job.StatusSucceeded), o.Capability, o.WarningsCount, o.EvidencePath, o.Response, r.now().Unix(), id)
}

const failJobSQL = `UPDATE job_states SET status = ?, capability = ?, warnings_count = ?, evidence_path = ?, response = ?,
    last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

// MarkFailed 实现 job.Store。
func (r *JobRepository) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, o job.Outcome) error {
	return r.update(ctx, failJobSQL, "标记任务失败失败",
		string(job.StatusFailed), o.Capability, o.WarningsCount, o.EvidencePath, o.Response, lastError, string(code), r.now().Unix(), id)
}

func (r *JobRepository) update(ctx context.Context, stmt, msg string, args ...any) error {
	res, err := r.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, msg)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return job.ErrNotFound
	}
	return nil
}

// List 实现 job.Store。
func (r *JobRepository) List(ctx context.Context, opts job.ListOptions) ([]*job.Job, error) {
	opts = opts.Normalized()

	query := `SELECT ` + jobColumns + ` FROM job_states`
	clause, args := filterClause(opts)
	query += clause
	if opts.Order == job.SortByUpdatedAsc {
		query += " ORDER BY updated_at ASC, created_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, created_at DESC, id DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	jobs := make([]*job.Job, 0, opts.Limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return jobs, nil
}

const statsJobSQL = `SELECT
    COUNT(*),
    COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
    COALESCE(MIN(updated_at), 0),
    COALESCE(MAX(updated_at), 0)
    FROM job_states`

// Stats 实现 job.Store。
func (r *JobRepository) Stats(ctx context.Context, opts job.ListOptions) (job.Stats, error) {
	clause, filterArgs := filterClause(opts.Normalized())
	args := []any{string(job.StatusPending), string(job.StatusRunning), string(job.StatusSucceeded), string(job.StatusFailed)}
	args = append(args, filterArgs...)

	var s job.Stats
	if err := r.db.QueryRowContext(ctx, statsJobSQL+clause, args...).Scan(
		&s.Total, &s.Pending, &s.Running, &s.Succeeded, &s.Failed, &s.OldestUpdatedAt, &s.NewestUpdatedAt,
	); err != nil {
		return job.Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}
	return s, nil
}

// Close 关闭底层连接池。
func (r *JobRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func filterClause(opts job.ListOptions) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, s := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.Capability != "" {
		conditions = append(conditions, "capability = ?")
		args = append(args, opts.Capability)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Job, error) {
	var (
		j        job.Job
		input    string
		status   string
		response sql.NullString
		lastErr  sql.NullString
	)
	if err := row.Scan(&j.ID, &input, &status, &j.Capability, &j.Attempts, &j.MaxRetries, &j.WarningsCount,
		&j.EvidencePath, &response, &lastErr, &j.ErrorCode, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
	}
	if err := json.Unmarshal([]byte(input), &j.Input); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务输入失败")
	}
	j.Status = job.Status(status)
	j.Response = response.String
	j.LastError = lastErr.String
	return &j, nil
}
