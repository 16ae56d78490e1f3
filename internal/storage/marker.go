package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// MarkerFileName 跳过清单文件名，位于数据根目录下
const MarkerFileName = ".checked_dates.json"

// MarkerStore 跳过清单存储
// 单个JSON文件，date → 人工可读的原因（如 "涨停为0 | 跌停缺失"）。
// 清单中的日期在完整性检查时直接跳过，确认确实无数据的日期
// （节假日、接口空档）靠它避免反复重取。只支持单进程使用。
type MarkerStore struct {
	path   string
	logger *zap.Logger
}

// NewMarkerStore 创建跳过清单存储
func NewMarkerStore(path string, logger *zap.Logger) *MarkerStore {
	return &MarkerStore{
		path:   path,
		logger: logger,
	}
}

// MarkerPathFor 根据快照目录推导清单文件路径
// 快照位于 data/history 时，清单位于 data/.checked_dates.json。
func MarkerPathFor(dataDir string) string {
	return filepath.Join(filepath.Dir(dataDir), MarkerFileName)
}

// Path 清单文件路径
func (m *MarkerStore) Path() string {
	return m.path
}

// Load 加载清单
// 文件不存在视为空清单；读取或解析失败仅记录日志，返回空映射，不中断流程。
func (m *MarkerStore) Load() map[string]string {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("读取跳过清单失败", zap.String("path", m.path), zap.Error(err))
		}
		return map[string]string{}
	}

	var markers map[string]string
	if err := json.Unmarshal(data, &markers); err != nil {
		m.logger.Warn("跳过清单损坏，按空清单处理", zap.String("path", m.path), zap.Error(err))
		return map[string]string{}
	}
	if markers == nil {
		markers = map[string]string{}
	}

	return markers
}

// Save 整体覆盖清单文件
func (m *MarkerStore) Save(markers map[string]string) error {
	data, err := json.MarshalIndent(markers, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}

	return os.WriteFile(m.path, data, 0644)
}

// Mark 追加单条记录（读取-合并-保存）
func (m *MarkerStore) Mark(date, reason string) {
	m.MarkAll(map[string]string{date: reason})
}

// MarkAll 批量追加记录（读取-合并-保存）
// 写入失败仅记录日志，清单是尽力而为的簿记，不影响主流程。
func (m *MarkerStore) MarkAll(reasons map[string]string) {
	if len(reasons) == 0 {
		return
	}

	markers := m.Load()
	for date, reason := range reasons {
		markers[date] = reason
	}

	if err := m.Save(markers); err != nil {
		m.logger.Warn("保存跳过清单失败", zap.String("path", m.path), zap.Error(err))
	}
}
