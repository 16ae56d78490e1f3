package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"pool_data/internal/models"
)

// ErrSnapshotNotFound 快照文件不存在
var ErrSnapshotNotFound = errors.New("快照文件不存在")

// ParseError 快照文件损坏（JSON解析失败）
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("快照文件损坏: %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SnapshotStore 每日快照存储
// 目录结构: {dataDir}/{limit_up,limit_down,explode}/{yyyy-MM-dd}.json
type SnapshotStore struct {
	dataDir string
	logger  *zap.Logger
}

// NewSnapshotStore 创建快照存储
func NewSnapshotStore(dataDir string, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{
		dataDir: dataDir,
		logger:  logger,
	}
}

// DataDir 返回存储根目录
func (s *SnapshotStore) DataDir() string {
	return s.dataDir
}

// EnsureDirs 确保三个类别目录存在
func (s *SnapshotStore) EnsureDirs() error {
	for _, category := range models.AllCategories {
		dir := filepath.Join(s.dataDir, string(category))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败: %s: %w", dir, err)
		}
	}
	return nil
}

// Path 快照文件路径
func (s *SnapshotStore) Path(category models.PoolCategory, date string) string {
	return filepath.Join(s.dataDir, string(category), date+".json")
}

// Write 写入快照文件
func (s *SnapshotStore) Write(category models.PoolCategory, date string, records []json.RawMessage) error {
	dir := filepath.Join(s.dataDir, string(category))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	return WriteSnapshotFile(s.Path(category, date), date, records)
}

// WriteSnapshotFile 将快照写入指定路径
// 先写临时文件再改名，避免读方观察到半截文件；非ASCII字符不转义，
// 与既有数据文件保持一致。
func WriteSnapshotFile(path, date string, records []json.RawMessage) error {
	snapshot := models.NewDailySnapshot(date, records)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(snapshot); err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}
	// Encoder 会追加换行，文件内容保持单行JSON
	data := bytes.TrimRight(buf.Bytes(), "\n")

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换快照文件失败: %w", err)
	}

	return nil
}

// Read 读取快照文件
// 文件缺失返回 ErrSnapshotNotFound，JSON损坏返回 *ParseError。
// count 字段按文件内容原样返回，不与 data 长度交叉校验。
func (s *SnapshotStore) Read(category models.PoolCategory, date string) (*models.DailySnapshot, error) {
	path := s.Path(category, date)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}
		return nil, fmt.Errorf("读取快照失败: %w", err)
	}

	var snapshot models.DailySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	return &snapshot, nil
}

// Dates 枚举已有数据的日期，升序排列
// 以 limit_up 目录的文件名为准（与历史数据保持一致的索引口径）。
func (s *SnapshotStore) Dates() ([]string, error) {
	dir := filepath.Join(s.dataDir, string(models.CategoryLimitUp))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取目录失败: %s: %w", dir, err)
	}

	var dates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(name, ".json"))
	}

	sort.Strings(dates)
	return dates, nil
}
