// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/stacklok/skillctl/manifest"
	"github.com/stacklok/skillctl/registry"
)

const requirementsPath = "scripts/requirements.txt"

func finding(f File, line int, msg string) string {
	return fmt.Sprintf("%s:%d: %s", f.Path, line, msg)
}

// codeLines yields the non-comment lines of a Python or shell file with
// their 1-based line numbers.
func codeLines(f File, fn func(n int, line string)) {
	for i, line := range f.Lines() {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fn(i+1, line)
	}
}

func checkManifestPresent(b *Bundle, _ []File) []string {
	if b.SkillMDPresent {
		return nil
	}
	return []string{manifest.FileName + " missing"}
}

func checkFrontmatterValid(b *Bundle, _ []File) []string {
	if !b.SkillMDPresent || b.Manifest != nil {
		return nil
	}
	return []string{b.ManifestErr.Error()}
}

func checkRequirementsFile(b *Bundle, files []File) []string {
	if len(files) == 0 {
		return nil
	}
	if _, ok := b.File(requirementsPath); ok {
		return nil
	}
	return []string{"Python scripts found but scripts/requirements.txt is missing"}
}

var importRe = regexp.MustCompile(`^\s*(?:import|from)\s+([A-Za-z0-9_]+)`)

// importPackages maps import names to the distribution that provides them
// when the two differ.
var importPackages = map[string]string{
	"yaml":    "pyyaml",
	"PIL":     "pillow",
	"bs4":     "beautifulsoup4",
	"dotenv":  "python-dotenv",
	"git":     "gitpython",
	"cv2":     "opencv-python",
	"sklearn": "scikit-learn",
	"docx":    "python-docx",
	"pptx":    "python-pptx",
	"fitz":    "pymupdf",
}

var requirementSplit = regexp.MustCompile(`[\s<>=!~;\[@]`)

func normalizePackage(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

func declaredRequirements(content []byte) map[string]bool {
	declared := map[string]bool{}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name := requirementSplit.Split(line, 2)[0]
		if name != "" {
			declared[normalizePackage(name)] = true
		}
	}
	return declared
}

func checkImportsDeclared(b *Bundle, files []File) []string {
	req, ok := b.File(requirementsPath)
	if len(files) == 0 || !ok {
		return nil
	}
	if !utf8.Valid(req.Content) {
		return []string{"could not read scripts/requirements.txt as UTF-8"}
	}
	declared := declaredRequirements(req.Content)

	imported := map[string]bool{}
	for _, f := range files {
		for _, line := range f.Lines() {
			if m := importRe.FindStringSubmatch(line); m != nil {
				imported[m[1]] = true
			}
		}
	}

	var missing []string
	for module := range imported {
		if pythonStdlib[module] || module == "scripts" || module == "__future__" {
			continue
		}
		pkg := module
		if mapped, ok := importPackages[module]; ok {
			pkg = mapped
		}
		if declared[normalizePackage(pkg)] || declared[normalizePackage(module)] {
			continue
		}
		if b.HasPath("scripts/"+module+".py") || b.HasPath("scripts/"+module) {
			continue
		}
		missing = append(missing, fmt.Sprintf("%s (package: %s)", module, strings.ToLower(pkg)))
	}
	slices.Sort(missing)
	if len(missing) == 0 {
		return nil
	}
	return []string{"imports not declared in requirements.txt: " + strings.Join(missing, ", ")}
}

var (
	fileOpRe     = regexp.MustCompile(`(?:^|[^\w.])open\s*\(|\.read_text\s*\(|\.write_text\s*\(`)
	binaryModeRe = regexp.MustCompile(`['"][rwax+]*b[rwax+]*['"]`)
)

func checkExplicitEncoding(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		codeLines(f, func(n int, line string) {
			if !fileOpRe.MatchString(line) || strings.Contains(line, "encoding") || binaryModeRe.MatchString(line) {
				return
			}
			out = append(out, finding(f, n, "file operation without explicit encoding: "+strings.TrimSpace(line)))
		})
	}
	return out
}

func checkSubprocessDecode(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		codeLines(f, func(n int, line string) {
			if !strings.Contains(line, "subprocess.run(") && !strings.Contains(line, "subprocess.check_output(") {
				return
			}
			decodes := strings.Contains(line, "text=True") || strings.Contains(line, "encoding=") ||
				strings.Contains(line, "universal_newlines=True")
			captures := strings.Contains(line, "capture_output=True") || strings.Contains(line, "stdout=subprocess.PIPE") ||
				strings.Contains(line, "check_output(")
			if decodes && captures && !strings.Contains(line, "errors=") {
				out = append(out, finding(f, n, "subprocess output decoded without errors= may crash on non-UTF-8 output"))
			}
		})
	}
	return out
}

func checkUTF8(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		if f.Content != nil && !utf8.Valid(f.Content) {
			out = append(out, f.Path+": not valid UTF-8")
		}
	}
	return out
}

func checkFlatLayout(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		content := string(f.Content)
		switch {
		case strings.Contains(content, "relative_to(skill_path.parent)"):
			out = append(out, f.Path+": archives relative to skill_path.parent, which nests the skill directory")
		case !strings.Contains(content, "relative_to(skill_path)"):
			out = append(out, f.Path+": does not archive paths with relative_to(skill_path)")
		}
	}
	return out
}

func checkCacheFiltered(b *Bundle, _ []File) []string {
	var out []string
	for _, f := range b.Files {
		if strings.Contains("/"+f.Path, "/__pycache__/") || path.Ext(f.Path) == ".pyc" {
			out = append(out, f.Path+": bytecode cache shipped in the bundle")
		}
	}
	if pkg, ok := b.File("scripts/package_skill.py"); ok {
		content := string(pkg.Content)
		if !strings.Contains(content, "__pycache__") && !strings.Contains(content, ".pyc") {
			out = append(out, pkg.Path+": does not filter __pycache__ or .pyc files")
		}
	}
	return out
}

func checkTemplateDescription(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		for i, line := range f.Lines() {
			if strings.Contains(line, "description: [") && strings.Contains(line, "TODO") {
				out = append(out, finding(f, i+1, "description template uses YAML list syntax; quote it as a string"))
			}
		}
	}
	return out
}

func checkOSSystem(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		codeLines(f, func(n int, line string) {
			if strings.Contains(line, "os.system(") {
				out = append(out, finding(f, n, "os.system() used; prefer subprocess.run()"))
			}
		})
	}
	return out
}

var (
	driveLiteralRe  = regexp.MustCompile(`['"][A-Za-z]:\\`)
	backslashPathRe = regexp.MustCompile(`['"][\w.-]+(\\\\[\w.-]+)+['"]`)
	slashConcatRe   = regexp.MustCompile(`\+\s*['"][/\\]+['"]\s*\+`)
)

func checkHardcodedSeparator(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		codeLines(f, func(n int, line string) {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
				return
			}
			switch {
			case driveLiteralRe.MatchString(line), backslashPathRe.MatchString(line):
				out = append(out, finding(f, n, "Windows path separator in a string literal; use pathlib"))
			case slashConcatRe.MatchString(line):
				out = append(out, finding(f, n, "path built by string concatenation; use pathlib or os.path.join"))
			}
		})
	}
	return out
}

// platformPython lists Python calls that only work on one platform.
var platformPython = map[string]string{
	"os.startfile(": "Windows only",
	"os.fork(":      "not available on Windows",
	"os.getuid(":    "not available on Windows",
	"import winreg": "Windows only",
	"import fcntl":  "not available on Windows",
	"import msvcrt": "Windows only",
}

func checkPlatformCommand(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		if isShellScript(f.Path) {
			out = append(out, shellPlatformFindings(f)...)
			continue
		}
		codeLines(f, func(n int, line string) {
			for _, call := range sortedKeys(platformPython) {
				if strings.Contains(line, call) {
					out = append(out, finding(f, n, strings.TrimSuffix(call, "(")+" is "+platformPython[call]))
				}
			}
		})
	}
	return out
}

func checkEmojiOutput(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		if isShellScript(f.Path) {
			out = append(out, shellEmojiFindings(f)...)
			continue
		}
		codeLines(f, func(n int, line string) {
			if !strings.Contains(line, "print(") && !strings.Contains(line, ".write(") {
				return
			}
			if containsEmoji(line) {
				out = append(out, finding(f, n, "emoji in console output"))
			}
		})
	}
	return out
}

// containsEmoji reports runes from the pictograph and symbol blocks that
// cp1252 and similar console code pages cannot encode.
func containsEmoji(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x1F000 && r <= 0x1FAFF,
			r >= 0x2600 && r <= 0x27BF,
			r >= 0x2B00 && r <= 0x2BFF,
			r == 0xFE0F, r == 0x200D:
			return true
		}
	}
	return false
}

var homePathRe = regexp.MustCompile(`(?:/Users/|/home/)[A-Za-z0-9._-]+/|[A-Za-z]:\\{1,2}Users\\{1,2}`)

func checkAbsoluteHome(_ *Bundle, files []File) []string {
	var out []string
	for _, f := range files {
		for i, line := range f.Lines() {
			if m := homePathRe.FindString(line); m != "" {
				out = append(out, finding(f, i+1, "absolute home directory path "+m))
			}
		}
	}
	return out
}

// legacyMarkerCheck reports every reference to one of markers.
func legacyMarkerCheck(markers []string) CheckFunc {
	markers = slices.Clone(markers)
	return func(_ *Bundle, files []File) []string {
		var out []string
		for _, f := range files {
			for i, line := range f.Lines() {
				for _, marker := range markers {
					if strings.Contains(line, marker) {
						out = append(out, finding(f, i+1, fmt.Sprintf("reference to legacy directory %q", marker)))
					}
				}
			}
		}
		return out
	}
}

func checkRegistryEntry(b *Bundle, _ []File) []string {
	reg, err := registry.NewStore(b.RegistryRoot).Load()
	if err != nil {
		return []string{err.Error()}
	}
	if _, ok := reg.Get(b.SkillName()); !ok {
		return []string{fmt.Sprintf("%s is not recorded in %s; run sync", b.SkillName(), registry.FileName)}
	}
	return nil
}

func checkSkillMapEntry(b *Bundle, _ []File) []string {
	sm, err := registry.NewStore(b.RegistryRoot).LoadSkillMap()
	if err != nil {
		return []string{err.Error()}
	}
	if !sm.Has(b.SkillName()) {
		return []string{fmt.Sprintf("%s is not recorded in %s", b.SkillName(), registry.SkillMapFileName)}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
