package main

import (
	"flag"
	"fmt"
	"os"

	"SecMaster/internal/di"
	"SecMaster/internal/domain/models"
	"SecMaster/pkg/config"
	"SecMaster/pkg/server"
	"SecMaster/pkg/util"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", "serve", "serve: HTTP API and Kafka consumer; run: execute the pipeline once")
	phases := flag.String("phases", "", "comma-separated phases for run mode (symbology,ingest,validate)")
	sources := flag.String("sources", "", "comma-separated symbology sources for run mode")
	vendors := flag.String("vendors", "", "comma-separated vendors for run mode")
	period := flag.Int("period-days", 0, "validation window in days for run mode (0 = configured)")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Wire DI: Initialize all dependencies
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "app initialization failed: %v\n", err)
		os.Exit(1)
	}

	switch *mode {
	case "serve":
		err = app.Serve()
	case "run":
		plan := server.PlanFromConfig(cfg)
		plan.Phases = util.SplitNonEmpty(*phases)
		if s := util.SplitNonEmpty(*sources); len(s) > 0 {
			plan.Sources = s
		}
		if v := util.SplitNonEmpty(*vendors); len(v) > 0 {
			plan.Vendors = v
		}
		if *period > 0 {
			plan.PeriodDays = period
		}
		if err = checkPhases(plan.Phases); err == nil {
			_, err = app.RunOnce(plan)
		}
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "app error: %v\n", err)
		os.Exit(1)
	}
}

func checkPhases(phases []string) error {
	for _, p := range phases {
		switch p {
		case models.PhaseSymbology, models.PhaseIngest, models.PhaseValidate:
		default:
			return fmt.Errorf("unknown phase %q", p)
		}
	}
	return nil
}
