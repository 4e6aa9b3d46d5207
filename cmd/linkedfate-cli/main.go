package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pwstlabs/linkedfate/internal/engine"
	"github.com/pwstlabs/linkedfate/internal/rules"
	"github.com/pwstlabs/linkedfate/internal/storage/sqlite"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateDir := validateCmd.String("dir", "", "directory containing ruleset YAML files")

	detectCmd := flag.NewFlagSet("detect", flag.ExitOnError)
	detectDB := detectCmd.String("db", "linkedfate.db", "SQLite database path")
	detectLookback := detectCmd.Int("lookback-hours", 0, "override the detection lookback window in hours (0 = configured default)")

	evaluateCmd := flag.NewFlagSet("evaluate", flag.ExitOnError)
	evaluateDB := evaluateCmd.String("db", "linkedfate.db", "SQLite database path")
	evaluateRules := evaluateCmd.String("ruleset", "", "ruleset YAML file (built-in defaults when empty)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if *validateDir == "" {
			fmt.Fprintln(os.Stderr, "Error: --dir flag is required")
			validateCmd.Usage()
			os.Exit(1)
		}
		os.Exit(runValidate(*validateDir))
	case "detect":
		detectCmd.Parse(os.Args[2:])
		os.Exit(runDetect(*detectDB, *detectLookback))
	case "evaluate":
		evaluateCmd.Parse(os.Args[2:])
		os.Exit(runEvaluate(*evaluateDB, *evaluateRules))
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: linkedfate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  validate --dir <path>                 Validate ruleset YAML files in a directory")
	fmt.Println("  detect   --db <path> [--lookback-hours <n>]")
	fmt.Println("                                        Run one anomaly detection cycle")
	fmt.Println("  evaluate --db <path> [--ruleset <f>]  Run one risk evaluation cycle")
	fmt.Println()
}

func runValidate(dirPath string) int {
	schemaPath := findSchemaFile()
	if schemaPath == "" {
		fmt.Fprintln(os.Stderr, "Error: could not find schemas/ruleset_v1.json")
		return 1
	}

	validator, err := rules.NewValidator(schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		return 1
	}

	files, err := rulesetFiles(dirPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no YAML files found in %s\n", dirPath)
		return 1
	}

	var allErrors []rules.ValidationError
	for _, file := range files {
		allErrors = append(allErrors, validator.ValidateFile(file)...)
	}

	if len(allErrors) == 0 {
		fmt.Printf("✓ All %d ruleset file(s) are valid\n", len(files))
		return 0
	}

	fmt.Fprintf(os.Stderr, "✗ Validation failed with %d error(s):\n\n", len(allErrors))
	for _, e := range allErrors {
		if e.Path != "" {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", filepath.Base(e.File), e.Path, e.Message)
		} else {
			fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(e.File), e.Message)
		}
	}

	return 1
}

func runDetect(dbPath string, lookbackHours int) int {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	store, err := sqlite.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		return 1
	}
	defer store.Close()

	eng := engine.New(store, rules.Default(), nil, nil, nil, engine.DefaultConfig(), logger)

	summary, err := eng.RunAnomalyDetection(context.Background(), time.Duration(lookbackHours)*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: detection cycle failed: %v\n", err)
		return 1
	}

	fmt.Printf("Detection cycle %s complete\n", summary.CycleID)
	fmt.Printf("  indicators checked: %d\n", summary.IndicatorsChecked)
	fmt.Printf("  anomalies found:    %d\n", summary.AnomaliesFound)
	codes := make([]string, 0, len(summary.ByIndicator))
	for code := range summary.ByIndicator {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Printf("    %s: %d\n", code, summary.ByIndicator[code])
	}
	fmt.Printf("  anomalies inserted: %d\n", summary.AnomaliesInserted)
	fmt.Printf("  failures:           %d\n", summary.Failures)
	fmt.Printf("  elapsed:            %s\n", summary.FinishedAt.Sub(summary.StartedAt))

	if summary.Failures > 0 {
		return 1
	}
	return 0
}

func runEvaluate(dbPath, rulesetPath string) int {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	rs := rules.Default()
	if rulesetPath != "" {
		loaded, err := rules.Load(rulesetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load ruleset: %v\n", err)
			return 1
		}
		rs = loaded
	}

	store, err := sqlite.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		return 1
	}
	defer store.Close()

	eng := engine.New(store, rs, nil, nil, nil, engine.DefaultConfig(), logger)

	summary, err := eng.RunRiskEvaluation(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: evaluation cycle failed: %v\n", err)
		return 1
	}

	fmt.Printf("Evaluation cycle %s complete\n", summary.CycleID)

	domains := make([]string, 0, len(summary.DomainLevels))
	for d := range summary.DomainLevels {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		fmt.Printf("  %s: %s\n", d, summary.DomainLevels[d])
	}

	fmt.Printf("  alerts persisted: %d\n", summary.AlertCount)
	for level, count := range summary.ByLevel {
		fmt.Printf("    %s: %d\n", level, count)
	}
	fmt.Printf("  failures: %d\n", summary.Failures)

	if summary.Failures > 0 {
		return 1
	}
	return 0
}

func rulesetFiles(dirPath string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dirPath, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// findSchemaFile looks for the schema file in common locations
func findSchemaFile() string {
	candidates := []string{
		"schemas/ruleset_v1.json",
		"../schemas/ruleset_v1.json",
		"../../schemas/ruleset_v1.json",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
