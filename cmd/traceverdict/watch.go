package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/velasec/traceverdict"
	"github.com/velasec/traceverdict/sink"
	"github.com/velasec/traceverdict/trace"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <trace.jsonl>",
	Short: "Follow a live agent trace and score it as it grows",
	Long: `Watch tails a trace file that an agent is still writing, evaluating each
command as it lands and printing the running score and verdict. Interrupting
the monitor finalizes the session and prints the last known result.

	traceverdict watch --rules-dir ./rules /var/log/agent/session.jsonl
`,
	Args: cobra.ExactArgs(1),
	Run:  watch,
}

func watch(cmd *cobra.Command, args []string) {
	ruleset, err := newRuleset()
	if err != nil {
		log.Fatal(err)
	}
	cfg := sessionConfig(ruleset)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher *sink.Publisher
	if url := viper.GetString("watch.amqp.url"); url != "" {
		publisher, err = sink.NewPublisher(url, viper.GetString("watch.amqp.queue"))
		if err != nil {
			log.Fatalf("amqp connect: %s", err)
		}
		defer publisher.Close()
	}

	follower := trace.NewFollower(args[0],
		viper.GetDuration("watch.poll.interval"), log.StandardLogger())
	events := follower.Run(ctx)

	results := make(chan *traceverdict.Evaluation, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var seen int
		for eval := range results {
			seen = printUpdate(eval, seen)
			if publisher != nil {
				if err := publisher.Publish(ctx, eval); err != nil {
					log.Warnf("amqp publish: %s", err)
				}
			}
		}
	}()

	final, err := traceverdict.Stream(ctx, cfg, events, results)
	<-done
	if err != nil {
		log.Fatal(err)
	}
	printReport(sink.NewReport(final, args[0]))
	if publisher != nil {
		// final publish gets a fresh context, the watch one is already done
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publisher.Publish(pubCtx, final); err != nil {
			log.Warnf("amqp publish: %s", err)
		}
	}
}

// printUpdate renders the findings added since the previous evaluation and
// the running score, returning the new high-water mark
func printUpdate(eval *traceverdict.Evaluation, seen int) int {
	for _, f := range eval.Findings[seen:] {
		color := colorCyan
		switch {
		case f.Weight >= 40:
			color = colorRed
		case f.Weight >= 20:
			color = colorYellow
		}
		fmt.Printf("%s[%s] %s (severity %d)%s\n", color, f.ID, f.Description, f.Weight, colorReset)
		if f.Command != "" {
			fmt.Printf("   Command: %s\n", f.Command)
		}
	}
	if eval.Cumulative > 0 {
		fmt.Printf("Score after #%d: %s%d%s (%s)\n",
			eval.LastSequence, verdictColor(eval.Verdict.String()),
			eval.Cumulative, colorReset, eval.Verdict)
	}
	return len(eval.Findings)
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.PersistentFlags().Duration("poll-interval", trace.DefaultPollInterval,
		`Fallback poll interval while waiting for new trace data.`)
	viper.BindPFlag("watch.poll.interval",
		watchCmd.PersistentFlags().Lookup("poll-interval"))

	watchCmd.PersistentFlags().String("amqp-url", "",
		`Optional AMQP broker URL for publishing verdict updates.`)
	viper.BindPFlag("watch.amqp.url",
		watchCmd.PersistentFlags().Lookup("amqp-url"))

	watchCmd.PersistentFlags().String("amqp-queue", "traceverdict.results",
		`Queue for verdict updates.`)
	viper.BindPFlag("watch.amqp.queue",
		watchCmd.PersistentFlags().Lookup("amqp-queue"))
}
