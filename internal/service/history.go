package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pool_data/internal/models"
	"pool_data/internal/storage"
)

const dateLayout = "2006-01-02"

// HistoryFetcher 历史数据抓取
// 按交易日逐天串行抓取三个股池，写入每日快照并生成CSV汇总。
type HistoryFetcher struct {
	client   *ZhituClient
	store    *storage.SnapshotStore
	stats    *StatsBuilder
	todayDir string
	limiter  *rate.Limiter
	logger   *zap.Logger
	out      io.Writer
}

// NewHistoryFetcher 创建历史数据抓取器
func NewHistoryFetcher(client *ZhituClient, store *storage.SnapshotStore, todayDir string,
	interval time.Duration, logger *zap.Logger) *HistoryFetcher {
	return &HistoryFetcher{
		client:   client,
		store:    store,
		stats:    NewStatsBuilder(store, logger),
		todayDir: todayDir,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		logger:   logger,
		out:      os.Stdout,
	}
}

// SetOutput 重定向进度输出（默认标准输出）
func (h *HistoryFetcher) SetOutput(w io.Writer) {
	h.out = w
}

// TradingDates 生成交易日期列表（排除周末）
// start 为空时从 end（或今天）往前推 days 天。
func TradingDates(start, end string, days int) ([]string, error) {
	today := time.Now()

	var baseStart, baseEnd time.Time
	var err error

	if end != "" {
		baseEnd, err = time.Parse(dateLayout, end)
		if err != nil {
			return nil, fmt.Errorf("结束日期格式错误: %w", err)
		}
	} else {
		baseEnd = today
	}

	if start != "" {
		baseStart, err = time.Parse(dateLayout, start)
		if err != nil {
			return nil, fmt.Errorf("起始日期格式错误: %w", err)
		}
	} else {
		baseStart = baseEnd.AddDate(0, 0, -days)
	}

	var dates []string
	for d := baseStart; !d.After(baseEnd); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			dates = append(dates, d.Format(dateLayout))
		}
	}

	return dates, nil
}

// FetchRange 抓取日期区间的股池数据
// 每个交易日按涨停 → 跌停 → 炸板顺序抓取，有数据才写快照；
// 全部完成后生成分类汇总、每日统计和情绪指标CSV。
func (h *HistoryFetcher) FetchRange(ctx context.Context, start, end string, days int) error {
	if err := h.store.EnsureDirs(); err != nil {
		return err
	}

	dates, err := TradingDates(start, end, days)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return fmt.Errorf("日期区间内没有交易日")
	}

	fmt.Fprintln(h.out, strings.Repeat("=", 60))
	fmt.Fprintln(h.out, "获取涨跌停股池历史数据")
	fmt.Fprintln(h.out, strings.Repeat("=", 60))
	fmt.Fprintf(h.out, "交易日期数量: %d\n", len(dates))
	fmt.Fprintf(h.out, "起始日期: %s\n", dates[0])
	fmt.Fprintf(h.out, "结束日期: %s\n", dates[len(dates)-1])
	fmt.Fprintln(h.out, strings.Repeat("=", 60))

	totals := map[models.PoolCategory]int{}

	for i, date := range dates {
		fmt.Fprintf(h.out, "\n[%d/%d] %s\n", i+1, len(dates), date)

		for _, category := range models.AllCategories {
			if err := h.limiter.Wait(ctx); err != nil {
				return err
			}

			fmt.Fprintf(h.out, "  - %s股池:", category.Label())

			records := h.client.FetchPool(ctx, category, date)
			if len(records) == 0 {
				fmt.Fprintln(h.out, " 无数据")
				continue
			}

			fmt.Fprintf(h.out, " %d只\n", len(records))
			totals[category] += len(records)

			if err := h.store.Write(category, date, records); err != nil {
				h.logger.Error("写入快照失败",
					zap.String("category", string(category)),
					zap.String("date", date),
					zap.Error(err))
			}
		}
	}

	h.writeSummaries(dates)

	fmt.Fprintf(h.out, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintln(h.out, "数据获取完成!")
	fmt.Fprintln(h.out, strings.Repeat("=", 60))
	fmt.Fprintf(h.out, "交易日期: %d天\n", len(dates))
	fmt.Fprintf(h.out, "涨停总数: %d只\n", totals[models.CategoryLimitUp])
	fmt.Fprintf(h.out, "跌停总数: %d只\n", totals[models.CategoryLimitDown])
	fmt.Fprintf(h.out, "炸板总数: %d只\n", totals[models.CategoryExplode])
	fmt.Fprintf(h.out, "平均涨停/天: %.1f只\n", float64(totals[models.CategoryLimitUp])/float64(len(dates)))
	fmt.Fprintf(h.out, "平均跌停/天: %.1f只\n", float64(totals[models.CategoryLimitDown])/float64(len(dates)))
	fmt.Fprintf(h.out, "平均炸板/天: %.1f只\n", float64(totals[models.CategoryExplode])/float64(len(dates)))
	fmt.Fprintln(h.out, strings.Repeat("=", 60))

	return nil
}

// writeSummaries 生成CSV汇总文件
func (h *HistoryFetcher) writeSummaries(dates []string) {
	fmt.Fprintf(h.out, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintln(h.out, "保存汇总数据...")

	for _, category := range models.AllCategories {
		rows, err := h.store.WriteCategoryCSV(category)
		if err != nil {
			h.logger.Error("写入分类汇总失败", zap.String("category", string(category)), zap.Error(err))
			continue
		}
		if rows > 0 {
			fmt.Fprintf(h.out, "  %s汇总: %s_all.csv (%d条)\n", category.Label(), category, rows)
		}
	}

	stats := h.stats.Build(dates)

	if path, err := h.store.WriteDailyStatsCSV(stats); err != nil {
		h.logger.Error("写入每日统计失败", zap.Error(err))
	} else {
		fmt.Fprintf(h.out, "  每日统计: %s\n", path)
	}

	if path, err := h.store.WriteSentimentCSV(stats); err != nil {
		h.logger.Error("写入情绪指标失败", zap.Error(err))
	} else {
		fmt.Fprintf(h.out, "  情绪指标: %s\n", path)
	}
}

// FetchToday 抓取单个交易日的数据到当日目录
// 文件名形如 limit_up_{date}.json / limit_up_{date}.csv，并在标准输出
// 展示前5只股票、情绪指标与连板分布。
func (h *HistoryFetcher) FetchToday(ctx context.Context, date string) error {
	if err := os.MkdirAll(h.todayDir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	fmt.Fprintln(h.out, strings.Repeat("=", 60))
	fmt.Fprintf(h.out, "获取 %s 涨跌停数据\n", date)
	fmt.Fprintln(h.out, strings.Repeat("=", 60))

	counts := map[models.PoolCategory]int{}
	var limitUp []json.RawMessage

	for _, category := range models.AllCategories {
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}

		fmt.Fprintf(h.out, "\n%s股池:\n", category.Label())

		records := h.client.FetchPool(ctx, category, date)
		counts[category] = len(records)
		fmt.Fprintf(h.out, "  共 %d 只\n", len(records))

		if category == models.CategoryLimitUp {
			limitUp = records
		}

		if len(records) == 0 {
			continue
		}

		h.printTop(category, records)

		jsonPath := filepath.Join(h.todayDir, fmt.Sprintf("%s_%s.json", category, date))
		if err := storage.WriteSnapshotFile(jsonPath, date, records); err != nil {
			h.logger.Error("写入当日快照失败", zap.String("path", jsonPath), zap.Error(err))
		}

		csvPath := filepath.Join(h.todayDir, fmt.Sprintf("%s_%s.csv", category, date))
		if _, err := storage.WriteRecordsCSV(csvPath, records); err != nil {
			h.logger.Error("写入当日CSV失败", zap.String("path", csvPath), zap.Error(err))
		}
	}

	h.printSentiment(counts, limitUp)
	return nil
}

// printTop 展示前5条记录的关键字段
func (h *HistoryFetcher) printTop(category models.PoolCategory, records []json.RawMessage) {
	const top = 5

	for i, record := range records {
		if i >= top {
			fmt.Fprintf(h.out, "    ... 还有 %d 只\n", len(records)-top)
			break
		}

		r := gjson.ParseBytes(record)
		name := r.Get("mc").String()
		code := r.Get("dm").String()

		switch category {
		case models.CategoryLimitUp:
			fmt.Fprintf(h.out, "    %s(%s) - 连板: %d - 封板时间: %s\n",
				name, code, r.Get("lbc").Int(), r.Get("fbt").String())
		case models.CategoryLimitDown:
			fmt.Fprintf(h.out, "    %s(%s) - 跌幅: %.2f%%\n",
				name, code, r.Get("zf").Float())
		case models.CategoryExplode:
			fmt.Fprintf(h.out, "    %s(%s) - 炸板次数: %d\n",
				name, code, r.Get("zbc").Int())
		}
	}
}

// printSentiment 输出情绪指标与连板分布
func (h *HistoryFetcher) printSentiment(counts map[models.PoolCategory]int, limitUp []json.RawMessage) {
	fmt.Fprintf(h.out, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintln(h.out, "情绪指标")
	fmt.Fprintln(h.out, strings.Repeat("=", 60))
	fmt.Fprintf(h.out, "涨停数量: %d\n", counts[models.CategoryLimitUp])
	fmt.Fprintf(h.out, "跌停数量: %d\n", counts[models.CategoryLimitDown])
	fmt.Fprintf(h.out, "炸板数量: %d\n", counts[models.CategoryExplode])

	if total := counts[models.CategoryLimitUp] + counts[models.CategoryExplode]; total > 0 {
		fmt.Fprintf(h.out, "炸板率: %.1f%%\n", float64(counts[models.CategoryExplode])/float64(total)*100)
	} else {
		fmt.Fprintln(h.out, "炸板率: N/A")
	}

	// 连板分布
	consecutive := map[int]int{}
	for _, record := range limitUp {
		days := int(gjson.GetBytes(record, "lbc").Int())
		consecutive[days]++
	}

	var boards []int
	for days := range consecutive {
		boards = append(boards, days)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(boards)))

	fmt.Fprintln(h.out, "\n连板统计:")
	for i, days := range boards {
		if i >= 10 {
			break
		}
		fmt.Fprintf(h.out, "  %d板: %d只\n", days, consecutive[days])
	}
	fmt.Fprintln(h.out, strings.Repeat("=", 60))
}
