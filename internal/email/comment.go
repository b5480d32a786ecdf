package email

import (
	"regexp"
	"strings"
)

// Separator lines that mail clients insert above forwarded content.
// Localized variants matter here: the mailbox this service watches is
// fed by people forwarding from whatever client and language they use.
var forwardMarkers = []*regexp.Regexp{
	// Gmail-style: ---------- Forwarded message ---------
	regexp.MustCompile(`(?mi)^-{3,} ?(forwarded message|weitergeleitete nachricht|message transféré|mensaje reenviado) ?-{3,}`),
	// Outlook/Thunderbird-style: -------- Original Message --------
	regexp.MustCompile(`(?mi)^-{3,} ?(original[ -]?message|original[ -]?nachricht|ursprüngliche nachricht) ?-{3,}`),
	// Apple Mail
	regexp.MustCompile(`(?mi)^(begin forwarded message:|anfang der weitergeleiteten nachricht:)`),
}

var spaceRun = regexp.MustCompile(`[ \t]{2,}`)

// ExtractComment returns whatever the forwarding user wrote above the
// forwarded content, cleaned up for use in a caption. It is empty when
// the body carries no forward marker or nothing usable precedes it.
func ExtractComment(body string) string {
	idx := findForwardMarker(body)
	if idx < 0 {
		return ""
	}

	return NormalizeWhitespace(body[:idx])
}

func findForwardMarker(body string) int {
	idx := -1
	for _, re := range forwardMarkers {
		if loc := re.FindStringIndex(body); loc != nil && (idx < 0 || loc[0] < idx) {
			idx = loc[0]
		}
	}

	return idx
}

// NormalizeWhitespace flattens quoted-printable leftovers and editor
// noise: leading indentation goes, runs of spaces collapse, soft-wrapped
// lines are rejoined, and three or more blank lines become one.
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.TrimLeft(line, " \t")
		line = spaceRun.ReplaceAllString(line, " ")
		lines[i] = strings.TrimRight(line, " \t")
	}

	var out []string
	for i := 0; i < len(lines); {
		if lines[i] == "" {
			blanks := 0
			for i < len(lines) && lines[i] == "" {
				blanks++
				i++
			}
			if blanks >= 3 {
				blanks = 1
			}
			for ; blanks > 0; blanks-- {
				out = append(out, "")
			}
			continue
		}

		var run []string
		for i < len(lines) && lines[i] != "" {
			run = append(run, lines[i])
			i++
		}
		out = append(out, strings.Join(run, " "))
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
