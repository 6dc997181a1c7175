package service

import (
	"html"
	"regexp"
	"strings"
)

var (
	imageMarkupRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)(\{[^}]*\})?`)
	fileMarkupRe  = regexp.MustCompile(`:file\[[^\]]*\]\([^)]*\)(\{[^}]*\})?`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)

	// Only well-formed formatting tags; attributes must be quoted.
	lineBreakTagRe = regexp.MustCompile(`(?i)<br\s*/?>`)
	formatTagRe    = regexp.MustCompile(`(?i)</?(?:p|div|span|b|i|u|s|em|strong|code|pre)(?:\s+[a-z-]+="[^"<>]*")*\s*/?>`)

	nbspReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"\u00a0", " ",
		"\u202f", " ",
		"\u2007", " ",
	)

	// Contact trailer lines the bot itself appends to outgoing comments.
	signaturePrefixes = []string{"👤", "📞", "📱", "🔗"}
)

// CleanCommentText turns tracker comment markup into plain text the chat can
// render. The result is not HTML-escaped.
func CleanCommentText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = nbspReplacer.Replace(s)
	s = lineBreakTagRe.ReplaceAllString(s, "\n")
	s = formatTagRe.ReplaceAllString(s, "")
	s = nbspReplacer.Replace(html.UnescapeString(s))
	s = imageMarkupRe.ReplaceAllString(s, "")
	s = fileMarkupRe.ReplaceAllString(s, "")

	lines := stripTrailer(strings.Split(s, "\n"))
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	s = strings.Join(kept, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// stripTrailer removes the contact block the bot appends: a "---" line
// followed only by signature lines up to the end of the text.
func stripTrailer(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	i := end - 1
	for i >= 0 && isSignatureLine(lines[i]) {
		i--
	}
	if i < 0 || i == end-1 || strings.TrimSpace(lines[i]) != "---" {
		return lines
	}
	return lines[:i]
}

func isSignatureLine(line string) bool {
	t := strings.TrimSpace(line)
	for _, p := range signaturePrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}
