package service

import (
	"errors"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pool_data/internal/models"
	"pool_data/internal/storage"
)

// StatsBuilder 每日统计构建器
// 对每个日期并发读取三个类别的快照，生成每日数量与炸板率统计。
// 缺失或损坏的文件计为0，与历史CSV工具链口径一致。
type StatsBuilder struct {
	store  *storage.SnapshotStore
	logger *zap.Logger
}

// NewStatsBuilder 创建统计构建器
func NewStatsBuilder(store *storage.SnapshotStore, logger *zap.Logger) *StatsBuilder {
	return &StatsBuilder{
		store:  store,
		logger: logger,
	}
}

// Build 构建指定日期集合的每日统计
func (b *StatsBuilder) Build(dates []string) []models.DailyStat {
	stats := make([]models.DailyStat, 0, len(dates))

	for _, date := range dates {
		counts := make([]int, len(models.AllCategories))

		var g errgroup.Group
		for i, category := range models.AllCategories {
			i, category := i, category
			g.Go(func() error {
				snapshot, err := b.store.Read(category, date)
				if err != nil {
					if !errors.Is(err, storage.ErrSnapshotNotFound) {
						b.logger.Debug("读取快照失败，计为0",
							zap.String("category", string(category)),
							zap.String("date", date),
							zap.Error(err))
					}
					return nil
				}
				counts[i] = snapshot.Count
				return nil
			})
		}
		_ = g.Wait()

		stats = append(stats, models.DailyStat{
			Date:           date,
			LimitUpCount:   counts[0],
			LimitDownCount: counts[1],
			ExplodeCount:   counts[2],
			ExplodeRate:    ExplodeRate(counts[0], counts[2]),
		})
	}

	return stats
}

// BuildAll 构建全部已有日期的统计
func (b *StatsBuilder) BuildAll() ([]models.DailyStat, error) {
	dates, err := b.store.Dates()
	if err != nil {
		return nil, err
	}
	return b.Build(dates), nil
}

// ExplodeRate 炸板率 = 炸板/(涨停+炸板)*100，保留两位小数
// 分母为0时返回0。
func ExplodeRate(limitUp, explode int) float64 {
	total := limitUp + explode
	if total == 0 {
		return 0
	}
	return math.Round(float64(explode)/float64(total)*100*100) / 100
}
