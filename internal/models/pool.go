package models

import (
	"encoding/json"
	"fmt"
)

// PoolCategory 股池类别
type PoolCategory string

const (
	CategoryLimitUp   PoolCategory = "limit_up"   // 涨停股池
	CategoryLimitDown PoolCategory = "limit_down" // 跌停股池
	CategoryExplode   PoolCategory = "explode"    // 炸板股池
)

// AllCategories 固定的类别处理顺序：涨停 → 跌停 → 炸板
var AllCategories = []PoolCategory{CategoryLimitUp, CategoryLimitDown, CategoryExplode}

// Label 类别的中文名称，用于报告和问题描述
func (c PoolCategory) Label() string {
	switch c {
	case CategoryLimitUp:
		return "涨停"
	case CategoryLimitDown:
		return "跌停"
	case CategoryExplode:
		return "炸板"
	default:
		return string(c)
	}
}

// Endpoint 智图API的接口路径段
func (c PoolCategory) Endpoint() string {
	switch c {
	case CategoryLimitUp:
		return "ztgc"
	case CategoryLimitDown:
		return "dtgc"
	case CategoryExplode:
		return "zbgc"
	default:
		return ""
	}
}

// ParseCategory 解析类别字符串
func ParseCategory(s string) (PoolCategory, error) {
	switch PoolCategory(s) {
	case CategoryLimitUp, CategoryLimitDown, CategoryExplode:
		return PoolCategory(s), nil
	}
	return "", fmt.Errorf("未知的股池类别: %s", s)
}

// DailySnapshot 每日股池快照文件
// 落盘格式: {"date": "yyyy-MM-dd", "count": N, "data": [...]}
// 记录本身的字段由上游API定义，按原样保存，不做逐字段校验。
type DailySnapshot struct {
	Date  string            `json:"date"`
	Count int               `json:"count"`
	Data  []json.RawMessage `json:"data"`
}

// NewDailySnapshot 构造快照，count 恒等于记录数
func NewDailySnapshot(date string, records []json.RawMessage) *DailySnapshot {
	if records == nil {
		records = []json.RawMessage{}
	}
	return &DailySnapshot{
		Date:  date,
		Count: len(records),
		Data:  records,
	}
}

// DateIssues 单个日期的完整性问题
type DateIssues struct {
	Date   string                  // 日期
	Issues []string                // 问题描述（如 "涨停为0"、"跌停文件缺失"）
	Counts map[PoolCategory]int    // 各类别的记录数（损坏或缺失记为0）
}

// ReconciliationReport 单次检查的统计（不落盘）
type ReconciliationReport struct {
	Total           int `json:"total"`            // 检查的日期总数
	ToRefetch       int `json:"to_refetch"`       // 需要重取的日期数
	AlreadyComplete int `json:"already_complete"` // 已完整的日期数
	SkippedChecked  int `json:"skipped_checked"`  // 因跳过清单而未检查的日期数
}

// DailyStat 每日统计行
type DailyStat struct {
	Date           string  `json:"date"`
	LimitUpCount   int     `json:"limit_up_count"`
	LimitDownCount int     `json:"limit_down_count"`
	ExplodeCount   int     `json:"explode_count"`
	ExplodeRate    float64 `json:"explode_rate"` // 炸板率 = 炸板/(涨停+炸板)*100
}
