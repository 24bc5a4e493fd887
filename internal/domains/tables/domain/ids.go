package domain

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ZonePrefix is the upper-cased first letter of the zone ("Terraza" -> "T").
func ZonePrefix(zone string) string {
	zone = strings.TrimSpace(zone)
	r, _ := utf8.DecodeRuneInString(zone)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// FormatID renders a business id with a two digit sequence. Sequences above 99 keep
// growing in width.
func FormatID(prefix string, seq int) string {
	return fmt.Sprintf("%s%02d", prefix, seq)
}

// Sequence extracts the numeric suffix of id when it carries prefix.
func Sequence(prefix, id string) (int, bool) {
	if prefix == "" || !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NextSequence returns one past the highest sequence among ids that carry prefix.
func NextSequence(prefix string, ids []string) int {
	highest := 0
	for _, id := range ids {
		if n, ok := Sequence(prefix, id); ok && n > highest {
			highest = n
		}
	}
	return highest + 1
}
