package archive

import (
	"strings"
)

// characterReplacements normalizes the unicode punctuation and control
// characters that survive HTML stripping in real mail bodies. The table is a
// condensed version of what the extraction step applies; running it again
// here is harmless and protects chunking from stray control bytes.
var characterReplacements = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"‚", ",",
	"„", `"`,
	"–", "-",
	"—", "-",
	"‐", "-",
	"‑", "-",
	"−", "-",
	"…", "...",
	"•", "*",
	"·", "*",
	" ", " ",
	" ", " ",
	"​", "",
	"‌", "",
	"‍", "",
	"‎", "",
	"‏", "",
	"‪", "",
	"‫", "",
	"‬", "",
	"‭", "",
	"‮", "",
	"­", "",
	"\uFEFF", "",
	"͏", "",
	"«", `"`,
	"»", `"`,
	"′", "'",
	"″", `"`,
	"＇", "'",
	"＂", `"`,
	"™", "TM",
	"®", "(R)",
	"©", "(C)",
	"\x0b", " ",
	"\x0c", " ",
	"\t", " ",
	"\x00", "",
)

// signatureMarkers are sign-off phrases; everything from the first marker
// that starts a line to the end of the body is treated as a signature.
var signatureMarkers = []string{
	"best regards",
	"kind regards",
	"warm regards",
	"regards",
	"sincerely",
	"yours sincerely",
	"yours truly",
	"yours faithfully",
	"cheers",
	"all the best",
	"best wishes",
	"many thanks",
	"take care",
	"cordially",
	"respectfully",
	"sent from my iphone",
	"sent from my ipad",
	"from my mobile",
}

// CleanText normalizes a message or attachment body for chunking and
// embedding: unicode replacement, whitespace collapsing, and trailing
// signature removal.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = characterReplacements.Replace(text)
	text = stripSignature(text)
	return collapseWhitespace(text)
}

func stripSignature(text string) string {
	lower := strings.ToLower(text)
	cut := -1
	offset := 0
	for _, line := range strings.SplitAfter(lower, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, marker := range signatureMarkers {
			if strings.HasPrefix(trimmed, marker) {
				rest := trimmed[len(marker):]
				// Only cut when the marker is the whole line or is followed
				// by punctuation, so "regards to your family" survives.
				if rest == "" || strings.HasPrefix(rest, ",") || strings.HasPrefix(rest, "!") || strings.HasPrefix(rest, ".") {
					cut = offset
				}
				break
			}
		}
		if cut >= 0 {
			break
		}
		offset += len(line)
	}
	if cut < 0 {
		return text
	}
	return text[:cut]
}

func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(strings.Join(strings.Fields(line), " "), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
