// Copyright 2026 The Gridrun Authors
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
	"github.com/gridrun/gridrun/internal/cli"
	"github.com/gridrun/gridrun/internal/commands/expand"
	"github.com/gridrun/gridrun/internal/commands/historycmd"
	"github.com/gridrun/gridrun/internal/commands/run"
	"github.com/gridrun/gridrun/internal/commands/validate"
	versioncmd "github.com/gridrun/gridrun/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set version information from build-time ldflags
	cli.SetVersion(version, commit, buildDate)

	// Create root command and add subcommands
	rootCmd := cli.NewRootCommand()

	// Core pipeline commands
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(expand.NewCommand())
	rootCmd.AddCommand(validate.NewCommand())

	// Run archive
	rootCmd.AddCommand(historycmd.NewCommand())

	// Version command
	rootCmd.AddCommand(versioncmd.NewCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
