// Command validate is the forecast validation CLI.
//
// Usage:
//
//	validate validate -forecast <id> [-hours-after 24]
//	validate validate-all [-hours-after 24]
//	validate accuracy-report [-days 30]
//
// The validate subcommands exit 0 when every validated forecast clears the
// configured accuracy targets, 1 otherwise. A forecast that is not yet
// eligible prints its state and exits 0 without fetching observations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/swell-fusion/internal/adapter/ndbc"
	"github.com/couchcryptid/swell-fusion/internal/config"
	"github.com/couchcryptid/swell-fusion/internal/domain"
	"github.com/couchcryptid/swell-fusion/internal/observability"
	"github.com/couchcryptid/swell-fusion/internal/store"
	"github.com/couchcryptid/swell-fusion/internal/validation"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	os.Exit(run(os.Args[1], os.Args[2:]))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: validate <validate|validate-all|accuracy-report> [flags]")
}

func run(command string, args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetricsForTesting() // CLI runs don't serve /metrics

	db, err := store.Open(cfg.SQLitePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store:", err)
		return 1
	}
	defer db.Close()

	fetcher := ndbc.NewCachedFetcher(ndbc.NewClient(cfg.NDBCTimeout, logger), cfg.NDBCCacheSize)
	validator := validation.New(db, fetcher, domain.DefaultShores, clockwork.NewRealClock(), logger, metrics, validation.Options{
		MatchWindow:  cfg.MatchWindow,
		FetchTimeout: cfg.NDBCTimeout,
		Concurrency:  cfg.ValidationConcurrency,
	})
	targets := validation.Targets{
		MaxMAEFt:       cfg.TargetMaxMAEFt,
		MinCategorical: cfg.TargetMinCategorical,
		MinDirection:   cfg.TargetMinDirection,
	}

	ctx := context.Background()

	switch command {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ExitOnError)
		forecastID := fs.String("forecast", "", "forecast id to validate")
		hoursAfter := fs.Int("hours-after", cfg.ValidateHoursAfter, "minimum forecast age in hours")
		fs.Parse(args) //nolint:errcheck // ExitOnError
		if *forecastID == "" {
			fs.Usage()
			return 2
		}
		return validateOne(ctx, validator, targets, *forecastID, *hoursAfter)

	case "validate-all":
		fs := flag.NewFlagSet("validate-all", flag.ExitOnError)
		hoursAfter := fs.Int("hours-after", cfg.ValidateHoursAfter, "minimum forecast age in hours")
		fs.Parse(args) //nolint:errcheck // ExitOnError
		return validateAll(ctx, validator, targets, *hoursAfter)

	case "accuracy-report":
		fs := flag.NewFlagSet("accuracy-report", flag.ExitOnError)
		days := fs.Int("days", 30, "trailing window in days")
		fs.Parse(args) //nolint:errcheck // ExitOnError
		return accuracyReport(ctx, validator, *days)

	default:
		usage()
		return 2
	}
}

func validateOne(ctx context.Context, v *validation.Validator, targets validation.Targets, forecastID string, hoursAfter int) int {
	result, err := v.Validate(ctx, forecastID, hoursAfter)
	if err != nil {
		fmt.Fprintln(os.Stderr, "validate:", err)
		return 1
	}
	printResult(result)

	switch result.State {
	case domain.StatePending:
		return 0
	case domain.StateValidated:
		if targets.Met(result) {
			return 0
		}
		fmt.Println("accuracy targets NOT met")
		return 1
	default:
		return 1
	}
}

func validateAll(ctx context.Context, v *validation.Validator, targets validation.Targets, hoursAfter int) int {
	results, err := v.ValidateAll(ctx, hoursAfter)
	if err != nil {
		fmt.Fprintln(os.Stderr, "validate-all:", err)
		return 1
	}
	if len(results) == 0 {
		fmt.Println("no forecasts eligible for validation")
		return 0
	}

	exit := 0
	for _, result := range results {
		printResult(result)
		if result.State == domain.StateValidated && !targets.Met(result) {
			exit = 1
		}
		if result.State == domain.StateUnvalidatable {
			exit = 1
		}
	}
	return exit
}

func accuracyReport(ctx context.Context, v *validation.Validator, days int) int {
	report, err := v.Report(ctx, days)
	if err != nil {
		fmt.Fprintln(os.Stderr, "accuracy-report:", err)
		return 1
	}

	fmt.Printf("accuracy over %d days (since %s)\n", days, report.Since.Format("2006-01-02"))
	fmt.Printf("  matched pairs:        %d\n", report.Pairs)
	if report.Pairs == 0 {
		return 0
	}
	fmt.Printf("  height MAE:           %.2f ft\n", report.MAEFt)
	fmt.Printf("  height RMSE:          %.2f ft\n", report.RMSEFt)
	fmt.Printf("  categorical accuracy: %.0f%%\n", report.CategoricalAccuracy*100)
	fmt.Printf("  direction accuracy:   %.0f%%\n", report.DirectionAccuracy*100)
	return 0
}

func printResult(r validation.Result) {
	switch r.State {
	case domain.StatePending:
		fmt.Printf("%s: pending (not yet eligible)\n", r.ForecastID)
	case domain.StateUnvalidatable:
		fmt.Printf("%s: unvalidatable (no matching observations)\n", r.ForecastID)
	case domain.StateValidated:
		fmt.Printf("%s: validated %d/%d predictions, MAE %.2f ft, RMSE %.2f ft, categorical %.0f%%, direction %.0f%%\n",
			r.ForecastID, r.Matched, r.Predictions, r.MAEFt, r.RMSEFt,
			r.CategoricalAccuracy*100, r.DirectionAccuracy*100)
	}
}
