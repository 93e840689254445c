package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"booster-trader/internal/config"
	"booster-trader/internal/database"
	"booster-trader/internal/report"
	"booster-trader/internal/scanner"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

var (
	gemOverride   = flag.Int("gem-price", 0, "覆盖宝石售价（每袋多少分，0 表示从市场获取）")
	gemFloor      = flag.Int("gem-floor", 0, "宝石售价下限（分），只抬高从市场取到的价格")
	askPreCheck   = flag.Bool("ask-precheck", true, "先用卖单价粗筛，省掉无望物品的订单簿查询")
	onlyCrafted   = flag.Bool("only-crafted", false, "只评估曾经合成过的物品")
	retryFailures = flag.Bool("retry-failures", false, "重试此前抓取失败的订单簿")
	refresh       = flag.Bool("refresh", false, "增量更新挂单目录（默认直接使用缓存）")
	craft         = flag.Bool("craft", false, "扫描后合成有利可图的补充包")
	simulate      = flag.Bool("simulate", true, "合成只做模拟，不花真钱")
	record        = flag.Bool("record", false, "把扫描结果写入 MySQL 历史")
	once          = flag.Bool("once", true, "只运行一次，不循环")
	interval      = flag.Duration("interval", time.Hour, "循环模式下两次扫描的间隔")
)

func main() {
	flag.Parse()
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	var db *gorm.DB
	if *record {
		if cfg.DatabaseURL == "" {
			log.Fatal("[scanner] -record requires DATABASE_URL")
		}
		var err error
		db, err = database.Initialize(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[scanner] database: %v", err)
		}
	}

	sc, err := scanner.New(cfg, db)
	if err != nil {
		log.Fatalf("[scanner] %v", err)
	}

	opts := scanner.Options{
		GemPriceOverrideCents: *gemOverride,
		GemPriceFloorCents:    *gemFloor,
		AskPreCheck:           *askPreCheck,
		OnlyCrafted:           *onlyCrafted,
		RetryFailures:         *retryFailures,
		RefreshListings:       *refresh,
		Craft:                 *craft,
		Simulate:              *simulate,
	}

	for {
		sum, err := sc.Run(context.Background(), opts)
		if err != nil {
			log.Printf("[scanner] scan failed: %v", err)
		} else if err := report.Write(os.Stdout, sum.Result); err != nil {
			log.Printf("[scanner] write report: %v", err)
		}
		if *once {
			if err != nil {
				os.Exit(1)
			}
			return
		}
		log.Printf("[scanner] sleeping %s until next scan", *interval)
		time.Sleep(*interval)
	}
}
