// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command skillctl installs, updates, backs up and audits skill bundles.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/stacklok/skillctl/config"
	"github.com/stacklok/skillctl/exitcode"
	"github.com/stacklok/skillctl/fetch"
	"github.com/stacklok/skillctl/recovery"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], osStreams(), &fetch.GitVCS{}, config.OSEnv{})
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, s streams, vcs fetch.VCS, env config.EnvReader) int {
	a := newApp(s, vcs, env)
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.err)

	err := recovery.Guard(func() error {
		return root.ExecuteContext(ctx)
	})
	if err == nil {
		return exitcode.OK
	}

	err = classify(err)
	a.ui.errorMsg("%s", describe(err))
	return exitcode.Code(err)
}
