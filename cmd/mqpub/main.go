// Command mqpub is a thin CLI wrapper around queue.Publisher: it pushes
// count newline-free lines read from stdin into the queue directory given
// as its first argument. It exists because no repo in this corpus ships a
// library without a cmd/ entrypoint; it is not part of the queue's core
// invariants.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

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

	cmd := &cobra.Command{
		Use:   "mqpub <folder> <count>",
		Short: "Push lines from stdin onto a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil || count < 0 {
				return fmt.Errorf("count must be a non-negative integer: %q", args[1])
			}
			return runPublish(args[0], count, configPath, jsonLogs)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a Params YAML/JSON file")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON-formatted logs instead of console output")
	return cmd
}

func runPublish(folder string, count int, configPath string, jsonLogs bool) error {
	logger := log.New(log.Config{JSON: jsonLogs, Output: os.Stderr}, "mqpub")

	params, err := qconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load params: %w", err)
	}

	pub, err := queue.OpenPublisher(folder, params, logger)
	if err != nil {
		return fmt.Errorf("open publisher: %w", err)
	}
	defer func() {
		if cerr := pub.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("mqpub: close error")
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	pushed := 0
	for pushed < count && scanner.Scan() {
		line := scanner.Bytes()
		payload := make([]byte, len(line))
		copy(payload, line)
		if _, err := pub.Push(payload); err != nil {
			return fmt.Errorf("push record %d: %w", pushed, err)
		}
		pushed++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	logger.Info().Int("pushed", pushed).Int("requested", count).Msg("mqpub: done")
	return nil
}
