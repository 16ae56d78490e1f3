package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pool_data/internal/models"
	"pool_data/internal/storage"
)

// Checker 数据完整性检查
// 对每个日期检查涨停、跌停、炸板三个快照文件；任一文件缺失、损坏或
// count 为 0 都视为不完整。跳过清单里的日期不做任何文件检查。
type Checker struct {
	store   *storage.SnapshotStore
	markers *storage.MarkerStore
	logger  *zap.Logger
}

// NewChecker 创建完整性检查器
func NewChecker(store *storage.SnapshotStore, markers *storage.MarkerStore, logger *zap.Logger) *Checker {
	return &Checker{
		store:   store,
		markers: markers,
		logger:  logger,
	}
}

// ScanResult 一次完整扫描的结果
type ScanResult struct {
	Complete   []models.DateIssues // 数据完整的日期（Issues为空）
	Incomplete []models.DateIssues // 需要重取的日期
	Skipped    []string            // 跳过清单命中的日期
	Report     models.ReconciliationReport
}

// Scan 扫描全部日期
// 日期索引来自 limit_up 目录的文件名，按日期升序处理。只读，不做任何修改。
func (c *Checker) Scan() (*ScanResult, error) {
	dates, err := c.store.Dates()
	if err != nil {
		return nil, fmt.Errorf("枚举日期失败: %w", err)
	}

	markers := c.markers.Load()
	result := &ScanResult{}

	for _, date := range dates {
		result.Report.Total++

		if reason, ok := markers[date]; ok {
			result.Skipped = append(result.Skipped, date)
			result.Report.SkippedChecked++
			c.logger.Debug("日期在跳过清单中，不检查",
				zap.String("date", date),
				zap.String("reason", reason))
			continue
		}

		issues := c.Inspect(date)
		if len(issues.Issues) > 0 {
			result.Incomplete = append(result.Incomplete, issues)
			result.Report.ToRefetch++
		} else {
			result.Complete = append(result.Complete, issues)
			result.Report.AlreadyComplete++
		}
	}

	return result, nil
}

// Inspect 检查单个日期的三个快照文件
// count 字段按文件内容采信，不重新统计 data 长度。
func (c *Checker) Inspect(date string) models.DateIssues {
	result := models.DateIssues{
		Date:   date,
		Counts: map[models.PoolCategory]int{},
	}

	for _, category := range models.AllCategories {
		label := category.Label()

		snapshot, err := c.store.Read(category, date)
		if err != nil {
			var parseErr *storage.ParseError
			switch {
			case errors.Is(err, storage.ErrSnapshotNotFound):
				result.Issues = append(result.Issues, label+"文件缺失")
			case errors.As(err, &parseErr):
				result.Issues = append(result.Issues, fmt.Sprintf("%s文件损坏: %v", label, parseErr.Err))
			default:
				result.Issues = append(result.Issues, fmt.Sprintf("%s文件读取失败: %v", label, err))
			}
			result.Counts[category] = 0
			continue
		}

		result.Counts[category] = snapshot.Count
		if snapshot.Count == 0 {
			result.Issues = append(result.Issues, label+"为0")
		}
	}

	return result
}

// CheckDate 检查指定日期，返回是否完整
// 跳过清单对单日期检查同样生效。
func (c *Checker) CheckDate(date string) (bool, models.DateIssues) {
	if reason, ok := c.markers.Load()[date]; ok {
		c.logger.Info("日期在跳过清单中", zap.String("date", date), zap.String("reason", reason))
		return true, models.DateIssues{Date: date, Counts: map[models.PoolCategory]int{}}
	}

	issues := c.Inspect(date)
	return len(issues.Issues) == 0, issues
}
