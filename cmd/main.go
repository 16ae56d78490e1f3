package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pool_data/internal/api"
	"pool_data/internal/config"
	"pool_data/internal/models"
	"pool_data/internal/service"
	"pool_data/internal/storage"
)

const defaultConfigPath = "./config/config.yaml"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "check":
		runCheck(os.Args[2:])
	case "fetch":
		runFetch(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "用法: pool_data <命令> [选项]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  check   检查数据完整性，并按需重新获取不完整的日期")
	fmt.Fprintln(os.Stderr, "  fetch   抓取历史或单日涨跌停股池数据")
	fmt.Fprintln(os.Stderr, "  serve   启动本地HTTP服务提供快照数据")
}

// setup 加载配置并初始化日志
func setup(configPath string) (*config.Config, *zap.Logger) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config error: %v", err)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	return cfg, logger
}

// runCheck check 子命令：完整性检查与重取
func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	date := fs.String("date", "", "检查指定日期 (yyyy-MM-dd)")
	checkOnly := fs.Bool("check-only", false, "仅检查，不自动重取")
	dir := fs.String("dir", "", "数据目录（默认取配置 storage.data_dir）")
	configPath := fs.String("config", defaultConfigPath, "配置文件路径")
	fs.Parse(args)

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	dataDir := cfg.Storage.DataDir
	if *dir != "" {
		dataDir = *dir
	}

	store := storage.NewSnapshotStore(dataDir, logger)
	markers := storage.NewMarkerStore(storage.MarkerPathFor(dataDir), logger)
	checker := service.NewChecker(store, markers, logger)

	// 单日期检查：退出码反映完整性
	if *date != "" {
		if !checkSingleDate(checker, *date) {
			os.Exit(1)
		}
		return
	}

	result, err := checker.Scan()
	if err != nil {
		logger.Fatal("完整性检查失败", zap.Error(err))
	}

	printScanResult(result)

	if len(result.Incomplete) == 0 {
		fmt.Println("所有数据都完整，无需重新获取")
		return
	}

	dates := make([]string, 0, len(result.Incomplete))
	for _, issues := range result.Incomplete {
		dates = append(dates, issues.Date)
	}
	fmt.Printf("\n需要重新获取的日期: %s\n", strings.Join(dates, ", "))

	confirm := stdinConfirm
	if *checkOnly {
		confirm = func(string) bool {
			fmt.Println("Dry-run模式，不执行重取")
			return false
		}
	}

	if !confirm("\n是否重新获取这些日期的数据? (y/N): ") {
		fmt.Println("操作已取消")
		return
	}

	client := service.NewZhituClient(&cfg.Zhitu, logger)
	interval := time.Duration(cfg.Fetcher.RequestIntervalMS) * time.Millisecond
	refetcher := service.NewRefetcher(client, store, checker, markers, interval, logger)

	if _, err := refetcher.Refetch(context.Background(), dates, stdinConfirm); err != nil {
		logger.Fatal("重取过程出错", zap.Error(err))
	}
}

// checkSingleDate 检查单个日期并打印各类别状态
func checkSingleDate(checker *service.Checker, date string) bool {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("检查日期: %s\n", date)
	fmt.Println(strings.Repeat("=", 60))

	complete, issues := checker.CheckDate(date)

	for _, category := range models.AllCategories {
		label := category.Label()
		issue := ""
		for _, s := range issues.Issues {
			if strings.HasPrefix(s, label) {
				issue = s
				break
			}
		}

		if issue == "" {
			fmt.Printf("%s: %d只 [OK]\n", label, issues.Counts[category])
		} else {
			fmt.Printf("%s: %d只 [FAIL] (%s)\n", label, issues.Counts[category], issue)
		}
	}

	if complete {
		fmt.Println("\n结论: 数据完整")
	} else {
		fmt.Println("\n结论: 数据不完整，需要重新获取")
	}

	return complete
}

// printScanResult 打印逐日状态与汇总
func printScanResult(result *service.ScanResult) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("数据完整性检查")
	fmt.Println(strings.Repeat("=", 60))

	for _, issues := range result.Incomplete {
		fmt.Printf("[%s] 数据不完整: %s\n", issues.Date, strings.Join(issues.Issues, ", "))
		fmt.Printf("  涨停: %d只, 跌停: %d只, 炸板: %d只\n",
			issues.Counts[models.CategoryLimitUp],
			issues.Counts[models.CategoryLimitDown],
			issues.Counts[models.CategoryExplode])
	}

	for _, issues := range result.Complete {
		fmt.Printf("[%s] 数据完整: 涨停%d只, 跌停%d只, 炸板%d只\n",
			issues.Date,
			issues.Counts[models.CategoryLimitUp],
			issues.Counts[models.CategoryLimitDown],
			issues.Counts[models.CategoryExplode])
	}

	for _, date := range result.Skipped {
		fmt.Printf("[%s] 已在跳过清单中，不检查\n", date)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 60))
	fmt.Println("检查完成!")
	fmt.Printf("总检查日期: %d天\n", result.Report.Total)
	fmt.Printf("数据完整: %d天\n", result.Report.AlreadyComplete)
	fmt.Printf("需要重取: %d天\n", result.Report.ToRefetch)
	fmt.Printf("跳过检查: %d天\n", result.Report.SkippedChecked)
}

// runFetch fetch 子命令：历史或单日抓取
func runFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	days := fs.Int("days", 0, "获取历史数据天数（默认取配置 fetcher.days）")
	start := fs.String("start", "", "起始日期 (yyyy-MM-dd)")
	end := fs.String("end", "", "结束日期 (yyyy-MM-dd)")
	date := fs.String("date", "", "获取单个日期的数据 (yyyy-MM-dd)")
	today := fs.Bool("today", false, "获取今日数据")
	dir := fs.String("dir", "", "数据目录（默认取配置 storage.data_dir）")
	configPath := fs.String("config", defaultConfigPath, "配置文件路径")
	fs.Parse(args)

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	dataDir := cfg.Storage.DataDir
	if *dir != "" {
		dataDir = *dir
	}

	store := storage.NewSnapshotStore(dataDir, logger)
	client := service.NewZhituClient(&cfg.Zhitu, logger)
	interval := time.Duration(cfg.Fetcher.RequestIntervalMS) * time.Millisecond
	fetcher := service.NewHistoryFetcher(client, store, cfg.Storage.TodayDir, interval, logger)

	ctx := context.Background()

	switch {
	case *date != "":
		if err := fetcher.FetchToday(ctx, *date); err != nil {
			logger.Fatal("抓取单日数据失败", zap.Error(err))
		}
	case *today:
		if err := fetcher.FetchToday(ctx, time.Now().Format("2006-01-02")); err != nil {
			logger.Fatal("抓取今日数据失败", zap.Error(err))
		}
	default:
		fetchDays := cfg.Fetcher.Days
		if *days > 0 {
			fetchDays = *days
		}
		if err := fetcher.FetchRange(ctx, *start, *end, fetchDays); err != nil {
			logger.Fatal("抓取历史数据失败", zap.Error(err))
		}
	}
}

// runServe serve 子命令：本地HTTP服务
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", 0, "监听端口（默认取配置 server.port）")
	dir := fs.String("dir", "", "数据目录（默认取配置 storage.data_dir）")
	configPath := fs.String("config", defaultConfigPath, "配置文件路径")
	fs.Parse(args)

	cfg, logger := setup(*configPath)
	defer logger.Sync()

	dataDir := cfg.Storage.DataDir
	if *dir != "" {
		dataDir = *dir
	}
	listenPort := cfg.Server.Port
	if *port > 0 {
		listenPort = *port
	}

	store := storage.NewSnapshotStore(dataDir, logger)
	markers := storage.NewMarkerStore(storage.MarkerPathFor(dataDir), logger)
	checker := service.NewChecker(store, markers, logger)
	stats := service.NewStatsBuilder(store, logger)

	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()

	handler := api.NewHandler(store, checker, stats, logger)
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", listenPort),
		Handler: r,
	}

	go func() {
		logger.Info("服务器启动", zap.Int("port", listenPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("服务器强制关闭", zap.Error(err))
	}

	logger.Info("服务器已关闭")
}

// stdinConfirm 从标准输入读取 y/N 确认
func stdinConfirm(prompt string) bool {
	fmt.Print(prompt)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	return strings.ToLower(strings.TrimSpace(line)) == "y"
}

// initLogger 初始化日志
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	// 创建日志目录
	if err := os.MkdirAll("./logs", 0755); err != nil {
		return nil, err
	}

	// 配置日志
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{
		"stdout",
		cfg.File,
	}

	// 设置日志级别
	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapCfg.Build()
}
