// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/skillctl/exitcode"
	"github.com/stacklok/skillctl/extract"
	"github.com/stacklok/skillctl/fetch"
	"github.com/stacklok/skillctl/installer"
	"github.com/stacklok/skillctl/registry"
	"github.com/stacklok/skillctl/source"
)

var codeLabels = map[int]string{
	exitcode.InvalidSource:      "usage",
	exitcode.Fetch:              "fetch",
	exitcode.SubdirNotFound:     "lookup",
	exitcode.Install:            "install",
	exitcode.RegistryCorruption: "registry",
	exitcode.AuditFailed:        "audit",
}

// classify attaches an exit code to err based on the first typed error in
// its chain. Errors that already carry a code are returned unchanged.
func classify(err error) error {
	var coded *exitcode.CodedError
	if errors.As(err, &coded) {
		return err
	}

	var (
		invalidSource *source.InvalidSourceError
		notFound      *extract.SubdirNotFoundError
		fetchErr      *fetch.FetchError
		installErr    *installer.InstallError
		corrupt       *registry.CorruptionError
	)
	switch {
	case errors.As(err, &invalidSource):
		return exitcode.WithCode(err, exitcode.InvalidSource)
	case errors.As(err, &notFound):
		return exitcode.WithCode(err, exitcode.SubdirNotFound)
	case errors.As(err, &fetchErr):
		return exitcode.WithCode(err, exitcode.Fetch)
	case errors.As(err, &installErr):
		return exitcode.WithCode(err, exitcode.Install)
	case errors.As(err, &corrupt):
		return exitcode.WithCode(err, exitcode.RegistryCorruption)
	default:
		return err
	}
}

// describe renders err as a single line prefixed with its classification.
func describe(err error) string {
	var invalidSource *source.InvalidSourceError
	if errors.As(err, &invalidSource) {
		return err.Error()
	}
	label, ok := codeLabels[exitcode.Code(err)]
	if !ok {
		return err.Error()
	}
	return fmt.Sprintf("%s error: %v", label, err)
}

func usageError(err error) error {
	return exitcode.WithCode(err, exitcode.InvalidSource)
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
