// Command mqsub is a thin CLI wrapper around queue.Subscriber: it tails a
// queue directory given as its first argument and prints count records
// (one per line) to stdout, blocking between pulls. Like mqpub, it exists
// for corpus parity with a real product's cmd/ entrypoints rather than as
// part of the queue's core invariants.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	qconfig "github.com/fluxorio/flowqueue/internal/config"
	"github.com/fluxorio/flowqueue/internal/log"
	"github.com/fluxorio/flowqueue/queue"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var jsonLogs bool
	var fromOffset int64
	var timeoutMS int64

	cmd := &cobra.Command{
		Use:   "mqsub <folder> <count>",
		Short: "Tail a queue and print records to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil || count < 0 {
				return fmt.Errorf("count must be a non-negative integer: %q", args[1])
			}
			return runSubscribe(args[0], count, fromOffset, time.Duration(timeoutMS)*time.Millisecond, configPath, jsonLogs)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a Params YAML/JSON file")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON-formatted logs instead of console output")
	cmd.Flags().Int64Var(&fromOffset, "from", 0, "logical offset to resume from")
	cmd.Flags().Int64Var(&timeoutMS, "timeout-ms", int64(queue.DefaultPullTimeout/time.Millisecond), "per-pull block timeout in milliseconds")
	return cmd
}

func runSubscribe(folder string, count int, from int64, timeout time.Duration, configPath string, jsonLogs bool) error {
	logger := log.New(log.Config{JSON: jsonLogs, Output: os.Stderr}, "mqsub")

	params, err := qconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load params: %w", err)
	}

	sub, err := queue.OpenSubscriber(folder, params, logger)
	if err != nil {
		return fmt.Errorf("open subscriber: %w", err)
	}
	defer func() {
		if cerr := sub.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("mqsub: close error")
		}
	}()

	delivered := 0
	for delivered < count {
		next, err := sub.Pull(from, timeout, func(offset int64, payload []byte) bool {
			fmt.Fprintf(os.Stdout, "%d\t%s\n", offset, payload)
			delivered++
			return delivered < count
		})
		if err != nil {
			return fmt.Errorf("pull from %d: %w", from, err)
		}
		if next == from {
			logger.Debug().Int64("from", from).Msg("mqsub: pull timed out, retrying")
			continue
		}
		from = next
	}

	logger.Info().Int("delivered", delivered).Int("requested", count).Msg("mqsub: done")
	return nil
}
