// Package evidence 记录单个任务的审计事件，并导出为 zip 归档。
package evidence

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	xerrors "agentic-browser/internal/errors"
)

// Mask 是被遮蔽字段在证据中的占位符。
const Mask = "***"

// 需要遮蔽 value 字段的事件类型。
var maskedKinds = map[string]struct{}{
	"fill": {},
}

var sensitiveKeys = []string{"value", "password", "secret"}

// Record 是一条按时间顺序追加的证据记录。
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	Detail    map[string]any `json:"detail"`
}

// Pack 收集单个任务的证据记录与附件路径，只追加不删除。
type Pack struct {
	jobID string
	now   func() time.Time

	mu        sync.Mutex
	records   []Record
	artifacts []string
}

// NewPack 为指定任务创建证据包。
func NewPack(jobID string) *Pack {
	return &Pack{jobID: jobID, now: time.Now}
}

// JobID 返回证据包所属任务。
func (p *Pack) JobID() string { return p.jobID }

// Log 追加一条证据记录。fill 类事件中的敏感值在写入前被替换为 Mask。
func (p *Pack) Log(kind string, detail map[string]any) {
	copied := make(map[string]any, len(detail))
	for k, v := range detail {
		copied[k] = v
	}
	if _, ok := maskedKinds[kind]; ok {
		for _, key := range sensitiveKeys {
			if _, present := copied[key]; present {
				copied[key] = Mask
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, Record{Timestamp: p.now().UTC(), Kind: kind, Detail: copied})
}

// Attach 登记一个需要一并归档的附件路径，例如截图。
func (p *Pack) Attach(path string) {
	if path == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.artifacts = append(p.artifacts, path)
}

// Records 返回记录的副本。
func (p *Pack) Records() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Record(nil), p.records...)
}

// Artifacts 返回附件路径的副本。
func (p *Pack) Artifacts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.artifacts...)
}

// BuildArchive 在 dir 下生成 evidence_<job>.zip，内含 log.json、可选的 report.json
// 以及所有仍然存在的附件。写入先落到临时文件再改名，避免半成品归档。
func (p *Pack) BuildArchive(dir string, report any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", xerrors.Wrap(xerrors.CodeEvidencePersistence, err, "创建证据目录失败")
	}
	target := filepath.Join(dir, fmt.Sprintf("evidence_%s.zip", p.jobID))

	tmp, err := os.CreateTemp(dir, ".evidence-*.zip")
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeEvidencePersistence, err, "创建临时归档失败")
	}
	defer os.Remove(tmp.Name())

	if err := p.writeZip(tmp, report); err != nil {
		tmp.Close()
		return "", xerrors.Wrap(xerrors.CodeEvidencePersistence, err, "写入证据归档失败")
	}
	if err := tmp.Close(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeEvidencePersistence, err, "关闭证据归档失败")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", xerrors.Wrap(xerrors.CodeEvidencePersistence, err, "保存证据归档失败")
	}
	return target, nil
}

func (p *Pack) writeZip(w io.Writer, report any) error {
	zw := zip.NewWriter(w)

	if err := writeJSON(zw, "log.json", p.Records()); err != nil {
		return err
	}
	if report != nil {
		if err := writeJSON(zw, "report.json", report); err != nil {
			return err
		}
	}
	for i, path := range p.Artifacts() {
		if err := copyArtifact(zw, fmt.Sprintf("artifacts/%02d_%s", i, filepath.Base(path)), path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
	}
	return zw.Close()
}

func writeJSON(zw *zip.Writer, name string, v any) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func copyArtifact(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
