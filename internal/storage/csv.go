package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/gjson"

	"pool_data/internal/models"
)

// utf8BOM 与既有的CSV工具链保持 utf-8-sig 编码兼容
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCategoryCSV 汇总某一类别的全部历史记录到 {dataDir}/{category}_all.csv
// 返回写入的记录数。
func (s *SnapshotStore) WriteCategoryCSV(category models.PoolCategory) (int, error) {
	dates, err := s.Dates()
	if err != nil {
		return 0, err
	}

	var all []json.RawMessage
	for _, date := range dates {
		snapshot, err := s.Read(category, date)
		if err != nil {
			// 汇总时缺失或损坏的文件直接跳过，完整性问题由检查流程负责
			continue
		}
		all = append(all, snapshot.Data...)
	}

	if len(all) == 0 {
		return 0, nil
	}

	path := filepath.Join(s.dataDir, string(category)+"_all.csv")
	return WriteRecordsCSV(path, all)
}

// WriteRecordsCSV 将一组股池记录落盘为CSV
// 记录字段由上游API决定，列为所有记录字段的并集，按首次出现顺序排列。
func WriteRecordsCSV(path string, records []json.RawMessage) (int, error) {
	var columns []string
	seen := map[string]bool{}
	rows := make([]map[string]string, 0, len(records))

	for _, record := range records {
		row := map[string]string{}
		gjson.ParseBytes(record).ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
			row[name] = value.String()
			return true
		})
		rows = append(rows, row)
	}

	err := writeCSVFile(path, columns, func(w *csv.Writer) error {
		for _, row := range rows {
			cells := make([]string, len(columns))
			for i, col := range columns {
				cells[i] = row[col]
			}
			if err := w.Write(cells); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(rows), nil
}

// WriteDailyStatsCSV 写入每日统计 {dataDir}/daily_stats.csv
func (s *SnapshotStore) WriteDailyStatsCSV(stats []models.DailyStat) (string, error) {
	path := filepath.Join(s.dataDir, "daily_stats.csv")
	columns := []string{"date", "limit_up_count", "limit_down_count", "explode_count"}

	err := writeCSVFile(path, columns, func(w *csv.Writer) error {
		for _, stat := range stats {
			if err := w.Write([]string{
				stat.Date,
				strconv.Itoa(stat.LimitUpCount),
				strconv.Itoa(stat.LimitDownCount),
				strconv.Itoa(stat.ExplodeCount),
			}); err != nil {
				return err
			}
		}
		return nil
	})

	return path, err
}

// WriteSentimentCSV 写入情绪指标 {dataDir}/sentiment_index.csv
// 在每日统计的基础上追加炸板率一列。
func (s *SnapshotStore) WriteSentimentCSV(stats []models.DailyStat) (string, error) {
	path := filepath.Join(s.dataDir, "sentiment_index.csv")
	columns := []string{"date", "limit_up_count", "limit_down_count", "explode_count", "explode_rate"}

	err := writeCSVFile(path, columns, func(w *csv.Writer) error {
		for _, stat := range stats {
			if err := w.Write([]string{
				stat.Date,
				strconv.Itoa(stat.LimitUpCount),
				strconv.Itoa(stat.LimitDownCount),
				strconv.Itoa(stat.ExplodeCount),
				strconv.FormatFloat(stat.ExplodeRate, 'f', 2, 64),
			}); err != nil {
				return err
			}
		}
		return nil
	})

	return path, err
}

// writeCSVFile 带BOM头写CSV
func writeCSVFile(path string, columns []string, writeRows func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建CSV文件失败: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return fmt.Errorf("写入BOM失败: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	if err := writeRows(w); err != nil {
		return fmt.Errorf("写入数据行失败: %w", err)
	}
	w.Flush()

	return w.Error()
}
