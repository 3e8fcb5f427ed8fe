// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/blinklabs-io/votesync/internal/config"
	"github.com/blinklabs-io/votesync/internal/node"
	"github.com/blinklabs-io/votesync/sweeper"
	"github.com/spf13/cobra"
)

func sweepRun(ctx context.Context, cfg *config.Config) error {
	logger := commonRun()
	db, err := node.OpenDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	statusSweeper, err := sweeper.New(sweeper.Config{
		Logger:   logger,
		Database: db,
	})
	if err != nil {
		return err
	}
	started, ended, err := statusSweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	logger.Info(
		"sweep complete",
		"component", programName,
		"started", started,
		"ended", ended,
	)
	return nil
}

func sweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single election status sweep and exit",
		Run: func(cmd *cobra.Command, args []string) {
			if err := sweepRun(cmd.Context(), configFromCommand(cmd)); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	return cmd
}
