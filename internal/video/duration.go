package video

import "fmt"

// FormatDuration renders seconds as "1h 02m 03s", "2m 03s" or "3s"
func FormatDuration(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}

	minutes, secs := total/60, total%60
	hours, minutes := minutes/60, minutes%60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %02dm %02ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %02ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
