package markdown

import (
	"regexp"
	"strings"
)

var (
	// an email address followed by a capitalized name token
	emailThenName = regexp.MustCompile(`(@[a-z0-9-]+(?:\.[a-z0-9-]+)*\.[a-z]{2,})([ \t]*)([A-Z][a-z])`)
	beforeDirect  = regexp.MustCompile(`([^\n])(Direct:)`)
	beforeEmail   = regexp.MustCompile(`([^\n])((?:E-mail|Email):)`)

	// three or more newlines, allowing whitespace-only lines in between
	blankRun = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)
)

// PostProcess splits merged contact lines and collapses blank-line runs.
// Contact splitting only inserts "\n"; no other character changes.
func PostProcess(md string) string {
	md = SplitContactBlocks(md)
	return blankRun.ReplaceAllString(md, "\n\n")
}

// SplitContactBlocks puts "Direct:", "E-mail:"/"Email:" and a name that
// follows an email address onto their own lines. Table rows are left alone
// so every row stays on one line.
func SplitContactBlocks(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		if isTableRow(line) {
			continue
		}
		line = emailThenName.ReplaceAllString(line, "${1}${2}\n${3}")
		line = beforeDirect.ReplaceAllString(line, "${1}\n${2}")
		lines[i] = beforeEmail.ReplaceAllString(line, "${1}\n${2}")
	}
	return strings.Join(lines, "\n")
}

func isTableRow(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "|")
}
