package notetemplate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxFilenameLength = 100

var (
	relativePathRe    = regexp.MustCompile(`^\.+(?:\\|/)|^\.+$`)
	reservedCharsRe   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
	controlCharsRe    = regexp.MustCompile(`[\x{0080}-\x{009F}]`)
	trailingPeriodsRe = regexp.MustCompile(`\.+$`)
	windowsReservedRe = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com\d|lpt\d)$`)
)

// filenamify turns s into a string usable as a file name on every major
// platform, substituting repl for anything illegal.
func filenamify(s, repl string) string {
	s = relativePathRe.ReplaceAllLiteralString(s, repl)
	s = reservedCharsRe.ReplaceAllLiteralString(s, repl)
	s = controlCharsRe.ReplaceAllLiteralString(s, repl)
	s = trailingPeriodsRe.ReplaceAllLiteralString(s, "")

	if repl != "" {
		startedWithDot := strings.HasPrefix(s, ".")
		s = trimRepeated(s, repl)
		if utf8.RuneCountInString(s) > 1 {
			s = stripOuter(s, repl)
		}
		if !startedWithDot && strings.HasPrefix(s, ".") {
			s = repl + s
		}
		if strings.HasSuffix(s, ".") {
			s += repl
		}
	}

	if windowsReservedRe.MatchString(s) {
		s += repl
	}
	return truncateName(s, maxFilenameLength)
}

func trimRepeated(s, repl string) string {
	double := repl + repl
	for strings.Contains(s, double) {
		s = strings.ReplaceAll(s, double, repl)
	}
	return s
}

func stripOuter(s, repl string) string {
	for strings.HasPrefix(s, repl) {
		s = s[len(repl):]
	}
	for strings.HasSuffix(s, repl) {
		s = s[:len(s)-len(repl)]
	}
	return s
}

// truncateName cuts s to max runes, keeping a trailing extension intact.
func truncateName(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	i := strings.LastIndex(s, ".")
	if i <= 0 {
		return string(runes[:max])
	}
	ext := []rune(s[i:])
	base := []rune(s[:i])
	keep := max - len(ext)
	if keep <= 0 {
		return string(runes[:max])
	}
	if keep < len(base) {
		base = base[:keep]
	}
	return string(base) + string(ext)
}
