package profile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	xerrors "agentic-browser/internal/errors"
	"agentic-browser/pkg/logger"
)

// FileStore 以 <dir>/<user_id>.json 保存画像，写入通过临时文件改名完成整体替换。
type FileStore struct {
	dir string
}

// NewFileStore 创建画像存储并确保目录存在。
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "用户目录为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建用户目录失败")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(userID string) (string, error) {
	id := strings.TrimSpace(userID)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "user_id inválido", xerrors.WithMetadata("user_id", userID))
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Exists 判断用户是否已有画像。
func (s *FileStore) Exists(userID string) bool {
	p, err := s.path(userID)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load 读取画像，不存在时返回 NOT_FOUND。
func (s *FileStore) Load(_ context.Context, userID string) (*Profile, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, xerrors.New(xerrors.CodeNotFound, "Usuário não encontrado", xerrors.WithMetadata("user_id", userID))
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取用户画像失败")
	}
	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析用户画像失败")
	}
	return &profile, nil
}

// Save 整体替换画像文件。
func (s *FileStore) Save(_ context.Context, profile *Profile) error {
	if profile == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "画像为空")
	}
	target, err := s.path(profile.UserID)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化用户画像失败")
	}

	tmp, err := os.CreateTemp(s.dir, ".profile-*.json")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建临时文件失败")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入用户画像失败")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入用户画像失败")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存用户画像失败")
	}

	logger.Audit().Info("用户画像已保存", "user_id", profile.UserID, "path", target)
	return nil
}
