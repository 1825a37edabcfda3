// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

func isShellScript(p string) bool {
	ext := path.Ext(p)
	return ext == ".sh" || ext == ".bash"
}

// shellVariant picks the dialect from the shebang, then the extension.
func shellVariant(f File) syntax.LangVariant {
	first, _, _ := bytes.Cut(f.Content, []byte("\n"))
	shebang := string(first)
	switch {
	case strings.HasPrefix(shebang, "#!") && strings.Contains(shebang, "bash"):
		return syntax.LangBash
	case strings.HasPrefix(shebang, "#!") && (strings.HasSuffix(shebang, "/sh") || strings.HasSuffix(shebang, " sh")):
		return syntax.LangPOSIX
	default:
		return syntax.LangBash
	}
}

func parseShell(f File) (*syntax.File, error) {
	parser := syntax.NewParser(syntax.Variant(shellVariant(f)))
	return parser.Parse(bytes.NewReader(f.Content), f.Path)
}

func checkShellSyntax(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		if f.Content == nil {
			continue
		}
		if _, err := parseShell(f); err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

// callExprs parses f and returns its simple commands. Unparseable scripts
// yield nothing; safety.shell-syntax reports them.
func callExprs(f File) []*syntax.CallExpr {
	if f.Content == nil {
		return nil
	}
	file, err := parseShell(f)
	if err != nil {
		return nil
	}
	var calls []*syntax.CallExpr
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok && len(call.Args) > 0 {
			calls = append(calls, call)
		}
		return true
	})
	return calls
}

// platformCommands lists commands that exist on a single platform.
var platformCommands = map[string]string{
	"open":       "macOS only; use xdg-open or python -m webbrowser",
	"pbcopy":     "macOS only",
	"pbpaste":    "macOS only",
	"osascript":  "macOS only",
	"say":        "macOS only",
	"xdg-open":   "Linux desktops only",
	"cmd.exe":    "Windows only",
	"powershell": "Windows only",
}

// gnuFlags lists GNU-only flag usages that fail with the BSD tools on macOS.
var gnuFlags = map[string][]string{
	"sed":      {"-i"},
	"readlink": {"-f"},
	"grep":     {"-P"},
	"date":     {"-d"},
	"stat":     {"-c"},
}

func shellPlatformFindings(f File) []string {
	var out []string
	for _, call := range callExprs(f) {
		name := call.Args[0].Lit()
		line := int(call.Pos().Line())
		if reason, ok := platformCommands[name]; ok {
			out = append(out, finding(f, line, fmt.Sprintf("%s is %s", name, reason)))
			continue
		}
		flags, ok := gnuFlags[name]
		if !ok {
			continue
		}
		for _, arg := range call.Args[1:] {
			lit := arg.Lit()
			for _, flag := range flags {
				if lit == flag {
					out = append(out, finding(f, line, fmt.Sprintf("%s %s behaves differently on BSD and macOS", name, flag)))
				}
			}
		}
	}
	return out
}

func shellEmojiFindings(f File) []string {
	var out []string
	for _, call := range callExprs(f) {
		name := call.Args[0].Lit()
		if name != "echo" && name != "printf" {
			continue
		}
		for _, arg := range call.Args[1:] {
			start, end := arg.Pos().Offset(), arg.End().Offset()
			if end > uint(len(f.Content)) || start >= end {
				continue
			}
			if containsEmoji(string(f.Content[start:end])) {
				out = append(out, finding(f, int(call.Pos().Line()), "emoji in console output"))
				break
			}
		}
	}
	return out
}
