package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"wisefido-risk/internal/client"
	"wisefido-risk/internal/config"
	logpkg "wisefido-risk/owl-common/logger"

	"go.uber.org/zap"
)

// 拉取一条模拟样本并评分，打印结果和模型信息；可选输出模拟序列、注册表模型和床位状态
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	baseURL := flag.String("url", cfg.HTTP.BaseURL, "risk API base URL")
	profile := flag.String("profile", "", "sample profile: normal, warning, critical or mixed")
	bed := flag.String("bed", "", "also print the live monitor state of this bed")
	seriesPoints := flag.Int("series", 0, "also fetch and score a simulated series of this many points")
	seriesInterval := flag.Duration("interval", 2*time.Second, "spacing between series points")
	listModels := flag.Bool("models", false, "also list models in the registry")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	log, err := logpkg.NewLogger("warn", "console", "wisefido-risk-cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 3*(*timeout))
	defer cancel()

	c := client.NewRiskClient(*baseURL, *timeout, log)

	health, err := c.Health(ctx)
	if err != nil {
		log.Fatal("Risk API not reachable", zap.String("url", *baseURL), zap.Error(err))
	}
	fmt.Printf("API %s: status=%s model_loaded=%t monitor=%t\n", *baseURL, health.Status, health.ModelLoaded, health.Monitor)

	sample, err := c.Sample(ctx, *profile)
	if err != nil {
		log.Fatal("Failed to fetch sample", zap.Error(err))
	}
	printJSON("sample", sample)

	scored, err := c.Score(ctx, sample.Vitals)
	if err != nil {
		log.Fatal("Failed to score sample", zap.Error(err))
	}
	fmt.Printf("\nrisk score: %.4f  status: %s  (model %s)\n",
		scored.Assessment.Score, scored.Assessment.Status, scored.ModelID)

	info, err := c.Model(ctx)
	if err != nil {
		log.Fatal("Failed to fetch model info", zap.Error(err))
	}
	fmt.Printf("\nmodel: %s, %d trees, max_depth %d, trained on %d rows at %s\n",
		info.Algorithm, info.Params.NEstimators, info.Params.MaxDepth, info.DatasetSize,
		info.TrainedAt.Format(time.RFC3339))
	fmt.Printf("cv %s: %.4f ± %.4f\n", info.CrossValidation.Metric, info.CrossValidation.Mean, info.CrossValidation.Std)
	for _, fi := range info.RankedImportances {
		fmt.Printf("  %-26s %.4f\n", fi.Feature, fi.Importance)
	}

	if *seriesPoints > 0 {
		series, err := c.SampleSeries(ctx, *profile, *seriesPoints, *seriesInterval)
		if err != nil {
			log.Fatal("Failed to fetch series", zap.Int("points", *seriesPoints), zap.Error(err))
		}
		fmt.Printf("\nseries: %d points, profile %s, interval %s\n", len(series.Points), series.Profile, series.Interval)
		for _, p := range series.Points {
			if p.Assessment == nil {
				fmt.Printf("  %s  hr=%.0f spo2=%.1f\n", p.Timestamp.Format(time.TimeOnly), p.Vitals.HeartRate, p.Vitals.OxygenSaturation)
				continue
			}
			fmt.Printf("  %s  hr=%.0f spo2=%.1f  %.4f %s\n", p.Timestamp.Format(time.TimeOnly),
				p.Vitals.HeartRate, p.Vitals.OxygenSaturation, p.Assessment.Score, p.Assessment.Status)
		}
	}

	if *listModels {
		list, err := c.Models(ctx, 20)
		if err != nil {
			log.Fatal("Failed to list models", zap.Error(err))
		}
		fmt.Printf("\nregistry: %d models\n", len(list))
		for _, rec := range list {
			fmt.Printf("  %s  rows=%d cv=%.4f±%.4f holdout_r2=%.4f  %s\n",
				rec.ModelID, rec.DatasetSize, rec.CVMean, rec.CVStd, rec.HoldoutR2, rec.TrainedAt.Format(time.RFC3339))
		}
	}

	if *bed != "" {
		state, err := c.Monitor(ctx, *bed, 10)
		if err != nil {
			log.Fatal("Failed to fetch monitor state", zap.String("bed_id", *bed), zap.Error(err))
		}
		fmt.Println()
		printJSON("monitor", state)
	}
}

func printJSON(title string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%s: %v\n", title, v)
		return
	}
	fmt.Printf("%s:\n%s\n", title, data)
}
