package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Zhitu   ZhituConfig   `mapstructure:"zhitu"`
	Storage StorageConfig `mapstructure:"storage"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// ZhituConfig 智图API配置
type ZhituConfig struct {
	Tokens  []string `mapstructure:"tokens"`
	BaseURL string   `mapstructure:"base_url"`
	Timeout int      `mapstructure:"timeout"`
}

// StorageConfig 数据存储配置
type StorageConfig struct {
	DataDir  string `mapstructure:"data_dir"`  // 历史快照目录
	TodayDir string `mapstructure:"today_dir"` // 当日数据目录
}

// FetcherConfig 数据抓取配置
type FetcherConfig struct {
	RequestIntervalMS int `mapstructure:"request_interval_ms"` // 请求间隔（毫秒）
	Days              int `mapstructure:"days"`                // 默认抓取天数
}

// ServerConfig 服务配置
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// LoadConfig 加载配置文件
// 配置文件不存在时使用默认值，命令行场景无需强制提供配置。
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("zhitu.base_url", "https://api.zhituapi.com")
	viper.SetDefault("zhitu.timeout", 30)
	viper.SetDefault("storage.data_dir", "data/history")
	viper.SetDefault("storage.today_dir", "data/today")
	viper.SetDefault("fetcher.request_interval_ms", 200)
	viper.SetDefault("fetcher.days", 60)
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "./logs/pool_data.log")
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if config.Zhitu.BaseURL == "" {
		return fmt.Errorf("请配置智图API地址 zhitu.base_url")
	}

	if config.Zhitu.Timeout <= 0 {
		config.Zhitu.Timeout = 30
	}

	if config.Fetcher.RequestIntervalMS <= 0 {
		config.Fetcher.RequestIntervalMS = 200
	}

	if config.Fetcher.Days <= 0 {
		config.Fetcher.Days = 60
	}

	return nil
}
