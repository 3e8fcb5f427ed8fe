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
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/blinklabs-io/votesync/internal/config"
	"github.com/blinklabs-io/votesync/internal/node"
	"github.com/spf13/cobra"
)

func endElectionRun(cfg *config.Config, electionID uint64) error {
	logger := commonRun()
	db, err := node.OpenDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	changed, err := db.EndElection(electionID, nil)
	if err != nil {
		return fmt.Errorf("failed to end election %d: %w", electionID, err)
	}
	if !changed {
		logger.Info(
			"election already ended",
			"component", programName,
			"election_id", electionID,
		)
		return nil
	}
	logger.Info(
		"election ended",
		"component", programName,
		"election_id", electionID,
	)
	return nil
}

func endElectionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end-election <id>",
		Short: "Mark an election as ended in the read store",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			electionID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				slog.Error(fmt.Sprintf("invalid election ID %q: %s", args[0], err))
				os.Exit(1)
			}
			if err := endElectionRun(configFromCommand(cmd), electionID); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	return cmd
}
