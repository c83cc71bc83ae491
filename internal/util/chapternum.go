package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var chapterNumberRe = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

// ParseChapterNumber extracts the numeric chapter from a free-form
// label. It accepts plain numbers ("100", "100.5") as well as labels
// like "Chapter 100" or "Ch. 7.5". The first number wins.
func ParseChapterNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty chapter number")
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, nil
	}
	m := chapterNumberRe.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("no chapter number in %q", s)
	}
	return strconv.ParseFloat(m, 64)
}

// FormatChapter renders a chapter number without a trailing ".0" for
// whole chapters.
func FormatChapter(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
