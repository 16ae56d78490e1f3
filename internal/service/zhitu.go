package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"pool_data/internal/config"
	"pool_data/internal/models"
)

// ZhituClient 智图API客户端
// 维护一组按序轮换的访问凭证：凭证失效（401/403）或被限流（429）时标记为
// 失效并跳过，全部失效后清空标记从头再试，避免长期运行时被永久锁死。
// 所有失败路径一律返回空结果，不向调用方抛错。
type ZhituClient struct {
	tokens     []string
	baseURL    string
	client     *http.Client
	logger     *zap.Logger
	next       int
	failed     map[int]bool
	backoff429 time.Duration
}

// NewZhituClient 创建智图API客户端
func NewZhituClient(cfg *config.ZhituConfig, logger *zap.Logger) *ZhituClient {
	tokens := cfg.Tokens
	if len(tokens) == 0 {
		logger.Warn("未配置智图API凭证，将使用空凭证请求")
		tokens = []string{""}
	}

	return &ZhituClient{
		tokens:  tokens,
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		logger:     logger,
		failed:     map[int]bool{},
		backoff429: time.Second,
	}
}

// FetchPool 获取指定日期的股池数据
// 接口: GET {base_url}/hs/pool/{ztgc|dtgc|zbgc}/{date}?token={credential}
// 任何失败（超时、网络错误、凭证失效、限流、解析失败）都返回空列表。
func (c *ZhituClient) FetchPool(ctx context.Context, category models.PoolCategory, date string) []json.RawMessage {
	idx := c.nextCredential()
	url := fmt.Sprintf("%s/hs/pool/%s/%s?token=%s", c.baseURL, category.Endpoint(), date, c.tokens[idx])

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error("创建请求失败", zap.Error(err))
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("请求失败",
			zap.String("category", string(category)),
			zap.String("date", date),
			zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// 继续解析
	case http.StatusUnauthorized, http.StatusForbidden:
		c.markFailed(idx)
		c.logger.Warn("凭证失效，已标记跳过",
			zap.Int("credential", idx),
			zap.Int("status", resp.StatusCode))
		return nil
	case http.StatusTooManyRequests:
		c.markFailed(idx)
		c.logger.Warn("触发频率限制，退避后跳过本次请求",
			zap.Int("credential", idx),
			zap.Duration("backoff", c.backoff429))
		time.Sleep(c.backoff429)
		return nil
	default:
		c.logger.Warn("接口返回异常状态",
			zap.String("category", string(category)),
			zap.String("date", date),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("读取响应失败", zap.Error(err))
		return nil
	}

	return c.decodeRecords(category, date, body)
}

// decodeRecords 解析响应体
// 兼容两种返回格式：裸数组，或 {code, data} / {code, data: {list}} 信封。
// 其余任何形状都视为无数据。
func (c *ZhituClient) decodeRecords(category models.PoolCategory, date string, body []byte) []json.RawMessage {
	if !gjson.ValidBytes(body) {
		c.logger.Warn("JSON解析失败",
			zap.String("category", string(category)),
			zap.String("date", date))
		return nil
	}

	parsed := gjson.ParseBytes(body)

	if parsed.IsArray() {
		return rawRecords(parsed)
	}

	if parsed.IsObject() {
		if parsed.Get("code").Int() != 200 {
			c.logger.Warn("接口返回错误",
				zap.String("category", string(category)),
				zap.String("date", date),
				zap.String("msg", parsed.Get("msg").String()))
			return nil
		}

		data := parsed.Get("data")
		if data.IsArray() {
			return rawRecords(data)
		}
		if data.IsObject() {
			if list := data.Get("list"); list.IsArray() {
				return rawRecords(list)
			}
		}
		return nil
	}

	return nil
}

// rawRecords 保留记录原始字节，不做逐字段解析
func rawRecords(arr gjson.Result) []json.RawMessage {
	elems := arr.Array()
	records := make([]json.RawMessage, 0, len(elems))
	for _, elem := range elems {
		records = append(records, json.RawMessage(elem.Raw))
	}
	return records
}

// nextCredential 轮换选取凭证
// 从轮换点开始跳过失效凭证；全部失效时清空失效集，从轮换点重新开始。
func (c *ZhituClient) nextCredential() int {
	n := len(c.tokens)
	for i := 0; i < n; i++ {
		idx := (c.next + i) % n
		if !c.failed[idx] {
			c.next = (idx + 1) % n
			return idx
		}
	}

	c.logger.Warn("全部凭证已失效，清空标记重试")
	c.failed = map[int]bool{}
	idx := c.next % n
	c.next = (idx + 1) % n
	return idx
}

func (c *ZhituClient) markFailed(idx int) {
	c.failed[idx] = true
}
