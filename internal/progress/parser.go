// Package progress extracts size, rate and ETA hints from yt-dlp's
// human-readable progress lines.
package progress

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Event holds whatever one line revealed. Zero values mean "no update".
type Event struct {
	TotalBytes int64
	Speed      string
	ETA        string
}

func (e Event) Empty() bool {
	return e.TotalBytes == 0 && e.Speed == "" && e.ETA == ""
}

var (
	sizeRe  = regexp.MustCompile(`\bof\s+~?\s*([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]+)`)
	speedRe = regexp.MustCompile(`\bat\s+(~?\s*[0-9]+(?:\.[0-9]+)?\s*[a-zA-Z]+/s)`)
	etaRe   = regexp.MustCompile(`\bETA\s+(\d+:\d{2}(?::\d{2})?)`)
)

// ParseLine applies each rule independently. It never fails; ok is false when
// nothing matched.
//
//	[download]  42.1% of ~12.3MiB at 1.25MiB/s ETA 00:07
func ParseLine(line string) (Event, bool) {
	var ev Event
	if m := sizeRe.FindStringSubmatch(line); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			ev.TotalBytes = int64(math.Floor(n * unitMultiplier(m[2])))
		}
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		ev.Speed = m[1]
	}
	if m := etaRe.FindStringSubmatch(line); m != nil {
		ev.ETA = m[1]
	}
	return ev, !ev.Empty()
}

func unitMultiplier(unit string) float64 {
	switch strings.ToLower(unit) {
	case "k", "ki", "kib", "kb":
		return 1024
	case "m", "mi", "mib", "mb":
		return 1024 * 1024
	case "g", "gi", "gib", "gb":
		return 1024 * 1024 * 1024
	default:
		return 1
	}
}

// MergeTotal keeps the largest size seen so far; a smaller later hint is
// treated as noise.
func MergeTotal(current, hint int64) int64 {
	if hint > current {
		return hint
	}
	return current
}
