package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pool_data/internal/models"
	"pool_data/internal/storage"
)

// ConfirmFunc 操作确认回调
// 编排器不直接读标准输入，由调用方注入确认逻辑，便于非交互运行和测试。
type ConfirmFunc func(prompt string) bool

// ConfirmYes 总是同意
func ConfirmYes(string) bool { return true }

// ConfirmNo 总是拒绝
func ConfirmNo(string) bool { return false }

// Refetcher 重取编排器
// 对每个不完整日期按固定顺序（涨停 → 跌停 → 炸板）串行重取三个类别，
// 请求之间按固定间隔限速。任一类别结果为 0 即判定该日期仍然失败。
type Refetcher struct {
	client  *ZhituClient
	store   *storage.SnapshotStore
	checker *Checker
	markers *storage.MarkerStore
	limiter *rate.Limiter
	logger  *zap.Logger
	out     io.Writer
}

// NewRefetcher 创建重取编排器
func NewRefetcher(client *ZhituClient, store *storage.SnapshotStore, checker *Checker,
	markers *storage.MarkerStore, interval time.Duration, logger *zap.Logger) *Refetcher {
	return &Refetcher{
		client:  client,
		store:   store,
		checker: checker,
		markers: markers,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
		out:     os.Stdout,
	}
}

// SetOutput 重定向进度输出（默认标准输出）
func (r *Refetcher) SetOutput(w io.Writer) {
	r.out = w
}

// RefetchResult 一次重取的结果
type RefetchResult struct {
	Succeeded   []string          // 三个类别都取到数据的日期
	StillFailed []string          // 仍有类别为0的日期
	Reasons     map[string]string // 仍失败日期的组合原因（如 "涨停为0 | 跌停缺失"）
}

// Refetch 重取指定日期的数据
// 全部处理完后对仍失败的日期重读快照文件生成原因描述，经 confirm 确认
// 一次性合并写入跳过清单。dates 按传入顺序处理。
func (r *Refetcher) Refetch(ctx context.Context, dates []string, confirm ConfirmFunc) (*RefetchResult, error) {
	result := &RefetchResult{Reasons: map[string]string{}}

	fmt.Fprintf(r.out, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintln(r.out, "开始重新获取数据")
	fmt.Fprintf(r.out, "总计: %d 天\n", len(dates))
	fmt.Fprintln(r.out, strings.Repeat("=", 60))

	for i, date := range dates {
		fmt.Fprintf(r.out, "\n[%d/%d] %s\n", i+1, len(dates), date)

		counts := map[models.PoolCategory]int{}
		for _, category := range models.AllCategories {
			if err := r.limiter.Wait(ctx); err != nil {
				return result, err
			}

			fmt.Fprintf(r.out, "  - %s股池: ", category.Label())

			records := r.client.FetchPool(ctx, category, date)
			if len(records) == 0 {
				fmt.Fprintln(r.out, "无数据 [FAIL]")
				counts[category] = 0
				continue
			}

			if err := r.store.Write(category, date, records); err != nil {
				// 单个类别写失败不阻断其余类别
				fmt.Fprintln(r.out, "写入失败 [FAIL]")
				r.logger.Error("写入快照失败",
					zap.String("category", string(category)),
					zap.String("date", date),
					zap.Error(err))
				counts[category] = 0
				continue
			}

			fmt.Fprintf(r.out, "%d只 [OK]\n", len(records))
			counts[category] = len(records)
		}

		// 任一类别为0即判定失败，单类别空数据也不放过
		stillFailing := false
		for _, category := range models.AllCategories {
			if counts[category] == 0 {
				stillFailing = true
				break
			}
		}

		if stillFailing {
			result.StillFailed = append(result.StillFailed, date)
		} else {
			result.Succeeded = append(result.Succeeded, date)
		}
	}

	fmt.Fprintf(r.out, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintln(r.out, "重新获取完成!")
	fmt.Fprintf(r.out, "成功: %d天\n", len(result.Succeeded))
	fmt.Fprintf(r.out, "失败: %d天\n", len(result.StillFailed))
	fmt.Fprintln(r.out, strings.Repeat("=", 60))

	if len(result.StillFailed) == 0 {
		return result, nil
	}

	// 重读快照文件，以重取后的实际状态生成原因描述
	for _, date := range result.StillFailed {
		issues := r.checker.Inspect(date)
		result.Reasons[date] = strings.Join(issues.Issues, " | ")
	}

	fmt.Fprintf(r.out, "\n以下日期重取后仍不完整:\n")
	for _, date := range result.StillFailed {
		fmt.Fprintf(r.out, "  [%s] %s\n", date, result.Reasons[date])
	}

	if confirm("是否将这些日期加入跳过清单，今后不再检查? (y/N): ") {
		r.markers.MarkAll(result.Reasons)
		fmt.Fprintf(r.out, "已写入跳过清单: %s\n", r.markers.Path())
	} else {
		fmt.Fprintln(r.out, "未写入跳过清单")
	}

	return result, nil
}
