package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pool_data/internal/models"
	"pool_data/internal/storage"
)

// newTestChecker 在临时目录上创建检查器及其存储
func newTestChecker(t *testing.T) (*Checker, *storage.SnapshotStore, *storage.MarkerStore) {
	t.Helper()

	root := t.TempDir()
	dataDir := filepath.Join(root, "history")
	logger := zap.NewNop()

	store := storage.NewSnapshotStore(dataDir, logger)
	require.NoError(t, store.EnsureDirs())
	markers := storage.NewMarkerStore(storage.MarkerPathFor(dataDir), logger)

	return NewChecker(store, markers, logger), store, markers
}

// writePool 写入包含 n 条记录的快照
func writePool(t *testing.T, store *storage.SnapshotStore, category models.PoolCategory, date string, n int) {
	t.Helper()

	records := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, json.RawMessage(fmt.Sprintf(`{"dm":"%06d"}`, i)))
	}
	require.NoError(t, store.Write(category, date, records))
}

// writeAllPools 写入某日期三个类别的快照
func writeAllPools(t *testing.T, store *storage.SnapshotStore, date string, limitUp, limitDown, explode int) {
	t.Helper()
	writePool(t, store, models.CategoryLimitUp, date, limitUp)
	writePool(t, store, models.CategoryLimitDown, date, limitDown)
	writePool(t, store, models.CategoryExplode, date, explode)
}

// TestScan_CompleteDate 测试三个文件齐全且 count>0 时判定完整
func TestScan_CompleteDate(t *testing.T) {
	checker, store, _ := newTestChecker(t)
	writeAllPools(t, store, "2024-05-01", 30, 5, 10)

	result, err := checker.Scan()
	require.NoError(t, err)

	require.Len(t, result.Complete, 1)
	assert.Equal(t, "2024-05-01", result.Complete[0].Date)
	assert.Empty(t, result.Incomplete)
	assert.Equal(t, 30, result.Complete[0].Counts[models.CategoryLimitUp])
	assert.Equal(t, 1, result.Report.AlreadyComplete)
}

// TestScan_MissingCategoryFile 测试文件缺失的问题描述指明类别
func TestScan_MissingCategoryFile(t *testing.T) {
	checker, store, _ := newTestChecker(t)
	writePool(t, store, models.CategoryLimitUp, "2024-05-01", 30)
	writePool(t, store, models.CategoryExplode, "2024-05-01", 10)
	// limit_down 不写

	result, err := checker.Scan()
	require.NoError(t, err)

	require.Len(t, result.Incomplete, 1)
	assert.Contains(t, result.Incomplete[0].Issues, "跌停文件缺失")
	assert.Equal(t, 0, result.Incomplete[0].Counts[models.CategoryLimitDown])
}

// TestScan_CorruptFile 测试文件损坏的问题描述
func TestScan_CorruptFile(t *testing.T) {
	checker, store, _ := newTestChecker(t)
	writeAllPools(t, store, "2024-05-01", 30, 5, 10)
	require.NoError(t, os.WriteFile(store.Path(models.CategoryExplode, "2024-05-01"), []byte(`{bad`), 0644))

	result, err := checker.Scan()
	require.NoError(t, err)

	require.Len(t, result.Incomplete, 1)
	require.Len(t, result.Incomplete[0].Issues, 1)
	assert.Contains(t, result.Incomplete[0].Issues[0], "炸板文件损坏")
}

// TestScan_ZeroCount 测试 count 为0的问题描述
func TestScan_ZeroCount(t *testing.T) {
	checker, store, _ := newTestChecker(t)
	writeAllPools(t, store, "2024-05-01", 0, 5, 10)

	result, err := checker.Scan()
	require.NoError(t, err)

	require.Len(t, result.Incomplete, 1)
	assert.Contains(t, result.Incomplete[0].Issues, "涨停为0")
}

// TestScan_MarkerSkip 测试跳过清单中的日期完全不检查文件内容
func TestScan_MarkerSkip(t *testing.T) {
	checker, store, markers := newTestChecker(t)

	// 磁盘上是个 count=0 的文件，但清单里有这个日期，必须跳过
	writePool(t, store, models.CategoryLimitUp, "2024-05-01", 0)
	markers.Mark("2024-05-01", "节假日")

	result, err := checker.Scan()
	require.NoError(t, err)

	assert.Empty(t, result.Incomplete)
	assert.Empty(t, result.Complete)
	assert.Equal(t, []string{"2024-05-01"}, result.Skipped)
	assert.Equal(t, 1, result.Report.SkippedChecked)
}

// TestScan_EndToEndScenario 端到端场景：
// 2024-01-02 完整；2024-01-03 缺跌停文件；2024-01-04 在跳过清单中
// （且磁盘上有个 count=0 的涨停文件，不应被检查出来）。
func TestScan_EndToEndScenario(t *testing.T) {
	checker, store, markers := newTestChecker(t)

	writeAllPools(t, store, "2024-01-02", 40, 3, 12)

	writePool(t, store, models.CategoryLimitUp, "2024-01-03", 35)
	writePool(t, store, models.CategoryExplode, "2024-01-03", 8)

	writePool(t, store, models.CategoryLimitUp, "2024-01-04", 0)
	markers.Mark("2024-01-04", "holiday")

	result, err := checker.Scan()
	require.NoError(t, err)

	assert.Equal(t, 3, result.Report.Total)
	assert.Equal(t, 1, result.Report.AlreadyComplete)
	assert.Equal(t, 1, result.Report.ToRefetch)
	assert.Equal(t, 1, result.Report.SkippedChecked)

	require.Len(t, result.Incomplete, 1)
	assert.Equal(t, "2024-01-03", result.Incomplete[0].Date)
	assert.Equal(t, []string{"2024-01-04"}, result.Skipped)
}

// TestScan_AscendingOrder 测试日期按升序处理
func TestScan_AscendingOrder(t *testing.T) {
	checker, store, _ := newTestChecker(t)
	writeAllPools(t, store, "2024-05-03", 1, 1, 1)
	writeAllPools(t, store, "2024-05-01", 1, 1, 1)
	writeAllPools(t, store, "2024-05-02", 1, 1, 1)

	result, err := checker.Scan()
	require.NoError(t, err)

	require.Len(t, result.Complete, 3)
	assert.Equal(t, "2024-05-01", result.Complete[0].Date)
	assert.Equal(t, "2024-05-02", result.Complete[1].Date)
	assert.Equal(t, "2024-05-03", result.Complete[2].Date)
}

// TestInspect_TrustsCountField 测试 count 字段采信文件内容，不与 data 交叉校验
func TestInspect_TrustsCountField(t *testing.T) {
	checker, store, _ := newTestChecker(t)
	writeAllPools(t, store, "2024-05-01", 1, 1, 1)

	// count=5 但 data 为空的手工文件：按 count 采信，判定完整
	require.NoError(t, os.WriteFile(store.Path(models.CategoryLimitUp, "2024-05-01"),
		[]byte(`{"date":"2024-05-01","count":5,"data":[]}`), 0644))

	issues := checker.Inspect("2024-05-01")
	assert.Empty(t, issues.Issues)
	assert.Equal(t, 5, issues.Counts[models.CategoryLimitUp])
}

// TestCheckDate 测试单日期检查
func TestCheckDate(t *testing.T) {
	checker, store, markers := newTestChecker(t)

	writeAllPools(t, store, "2024-05-01", 30, 5, 10)
	writePool(t, store, models.CategoryLimitUp, "2024-05-02", 30)

	complete, issues := checker.CheckDate("2024-05-01")
	assert.True(t, complete)
	assert.Empty(t, issues.Issues)

	complete, issues = checker.CheckDate("2024-05-02")
	assert.False(t, complete)
	assert.NotEmpty(t, issues.Issues)

	// 清单中的日期视为已处理
	markers.Mark("2024-05-03", "接口无数据")
	complete, _ = checker.CheckDate("2024-05-03")
	assert.True(t, complete)
}
