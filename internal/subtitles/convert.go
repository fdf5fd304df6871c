package subtitles

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// srtTimecode matches an SRT cue timing line, e.g.
// "00:01:02,500 --> 00:01:05,000".
var srtTimecode = regexp.MustCompile(`^\d{2}:\d{2}:\d{2},\d{3}\s+-->\s+\d{2}:\d{2}:\d{2},\d{3}`)

// cueIndex matches the bare numeric counter line preceding each SRT cue.
var cueIndex = regexp.MustCompile(`^\d+$`)

// ConvertSRTToVTT rewrites an SRT document as WebVTT: the magic header is
// prepended, numeric cue-index lines are dropped, and the comma millisecond
// delimiter in timing lines becomes a period.
func ConvertSRTToVTT(r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("WEBVTT\n\n"); err != nil {
		return err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if cueIndex.MatchString(trimmed) {
			continue
		}
		if srtTimecode.MatchString(trimmed) {
			line = strings.ReplaceAll(line, ",", ".")
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

// DetectLanguage extracts a language code from a subtitle file name of the
// form "Movie.en.srt" or "Movie.pt-BR.srt". It returns "" when the name
// carries no language suffix.
func DetectLanguage(fileName string) string {
	base := fileName
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		base = base[:idx]
	}
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return ""
	}
	code := base[idx+1:]
	if len(code) == 2 || (len(code) == 5 && code[2] == '-') {
		return strings.ToLower(code[:2])
	}
	return ""
}
