package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/markuskont/go-dispatch"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/velasec/traceverdict"
	"github.com/velasec/traceverdict/sink"
	"github.com/velasec/traceverdict/trace"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <trace.jsonl> [more traces...]",
	Short: "Batch-analyze finished agent trace files",
	Long: `Scan evaluates one or more JSONL trace files, each holding one session,
and prints a verdict report per trace. For example:

	traceverdict scan --rules-dir ./rules session-01.jsonl session-02.jsonl
`,
	Args: cobra.MinimumNArgs(1),
	Run:  scan,
}

func scan(cmd *cobra.Command, args []string) {
	ruleset, err := newRuleset()
	if err != nil {
		log.Fatal(err)
	}
	cfg := sessionConfig(ruleset)

	workers := viper.GetInt("scan.workers")
	if workers > len(args) {
		workers = len(args)
	}
	var stdout sync.Mutex
	if err := dispatch.Run(dispatch.Config{
		Async:   false,
		Workers: workers,
		FeederFunc: func(tasks chan<- dispatch.Task, stop <-chan struct{}) {
			var wg sync.WaitGroup
			for _, path := range args {
				wg.Add(1)
				path := path
				tasks <- func(id, count int, ctx context.Context) error {
					defer wg.Done()
					report, err := scanOne(cfg, path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					stdout.Lock()
					printReport(report)
					stdout.Unlock()
					return nil
				}
			}
			wg.Wait()
		},
		ErrFunc: func(err error) bool {
			log.Error(err)
			return true
		},
	}); err != nil {
		log.Fatal(err)
	}
}

// scanOne evaluates a single trace file as one session and writes its JSON
// report next to the configured location
func scanOne(cfg traceverdict.SessionConfig, path string) (*sink.Report, error) {
	reader := trace.NewReader(log.StandardLogger())
	events, err := reader.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if reader.Skipped > 0 {
		log.Warnf("%s: skipped %d malformed lines", path, reader.Skipped)
	}
	eval, err := traceverdict.Evaluate(cfg, events)
	if err != nil {
		return nil, err
	}
	report := sink.NewReport(eval, path)
	out := reportPath(path)
	if err := report.WriteFile(out); err != nil {
		return nil, err
	}
	log.Infof("JSON report saved to %s", out)
	return report, nil
}

func reportPath(tracePath string) string {
	if dir := viper.GetString("scan.report.dir"); dir != "" {
		base := strings.TrimSuffix(filepath.Base(tracePath), filepath.Ext(tracePath))
		return filepath.Join(dir, base+"_report.json")
	}
	return strings.TrimSuffix(tracePath, filepath.Ext(tracePath)) + "_report.json"
}

const (
	colorRed    = "\033[91m"
	colorYellow = "\033[93m"
	colorGreen  = "\033[92m"
	colorCyan   = "\033[96m"
	colorReset  = "\033[0m"
)

func verdictColor(verdict string) string {
	switch verdict {
	case "MALICIOUS":
		return colorRed
	case "SUSPICIOUS", "POTENTIALLY_SUSPICIOUS":
		return colorYellow
	default:
		return colorGreen
	}
}

func printReport(r *sink.Report) {
	color := verdictColor(r.Verdict)
	line := strings.Repeat("=", 70)

	fmt.Println(line)
	fmt.Println("  AGENT TRACE DETECTION REPORT")
	fmt.Println(line)
	fmt.Println()
	fmt.Printf("Session ID:       %s\n", r.SessionID)
	fmt.Printf("Total Commands:   %d\n", r.TotalCommands)
	fmt.Printf("Trace File:       %s\n", r.TraceFile)
	fmt.Println()
	fmt.Printf("Verdict:          %s%s%s\n", color, r.Verdict, colorReset)
	fmt.Printf("Confidence:       %.1f%%\n", r.Confidence*100)
	fmt.Printf("Suspicion Score:  %d / %d\n", r.SuspicionScore, traceverdict.NormalizedCap)
	fmt.Printf("Flags Detected:   %d\n", r.FlagsCount)
	fmt.Println()

	if len(r.Flags) > 0 {
		fmt.Println(strings.Repeat("-", 70))
		fmt.Println("SECURITY FINDINGS:")
		fmt.Println(strings.Repeat("-", 70))
		for _, flag := range r.Flags {
			fmt.Printf("  • Severity %2d | Seq #%2d | [%s] %s\n",
				flag.Severity, flag.Sequence, flag.Kind, flag.Description)
			if flag.Command != "" {
				cmd := flag.Command
				if len(cmd) > 77 {
					cmd = cmd[:77] + "..."
				}
				fmt.Printf("    Command: %s\n", cmd)
			}
		}
		fmt.Println()
	}

	fmt.Println(line)
	switch r.Verdict {
	case "MALICIOUS":
		fmt.Printf("%s⚠ WARNING: This agent exhibits malicious behavior!%s\n", color, colorReset)
	case "SUSPICIOUS":
		fmt.Printf("%s⚠ CAUTION: This agent shows suspicious activity.%s\n", color, colorReset)
	case "BENIGN":
		fmt.Printf("%s✓ This agent appears to be benign.%s\n", color, colorReset)
	}
	fmt.Println(line)
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.PersistentFlags().Int("workers", 4,
		`Number of concurrent trace evaluations.`)
	viper.BindPFlag("scan.workers",
		scanCmd.PersistentFlags().Lookup("workers"))

	scanCmd.PersistentFlags().String("report-dir", "",
		`Directory for JSON reports. Defaults to writing next to each trace.`)
	viper.BindPFlag("scan.report.dir",
		scanCmd.PersistentFlags().Lookup("report-dir"))
}
