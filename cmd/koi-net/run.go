// Copyright (C) 2025 koi-net
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koi-net/koi-net/config"
	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/lifecycle"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a koi-net node until interrupted",
	Long: `run loads the node's config and identity, brings up every
component in the ordered start sequence (cache, graph, queues,
pipeline, workers, and the HTTP server for FULL nodes or the poller
for PARTIAL nodes), and blocks until SIGINT/SIGTERM.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "config/config.yaml", "path to the node's YAML config file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLoggerFromConfig(cfg)

	node, err := lifecycle.New(cfg, log)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	log.Info("koi-net node running",
		logger.String("rid", node.SelfRID.String()),
		logger.String("type", cfg.Node.Type))

	<-ctx.Done()
	log.Info("shutting down")
	node.Stop()
	return nil
}

func newLoggerFromConfig(cfg *config.Config) *logger.StructuredLogger {
	l := logger.NewDefaultLogger()
	if cfg.Logging == nil {
		return l
	}
	switch cfg.Logging.Level {
	case "debug":
		l.SetLevel(logger.DebugLevel)
	case "warn":
		l.SetLevel(logger.WarnLevel)
	case "error":
		l.SetLevel(logger.ErrorLevel)
	default:
		l.SetLevel(logger.InfoLevel)
	}
	return l
}
