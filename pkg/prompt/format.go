package prompt

import (
	"fmt"
	"time"
)

//nolint:gochecknoglobals // fixed zone, no DST
var kst = time.FixedZone("KST", 9*60*60)

//nolint:gochecknoglobals // lookup table
var koreanWeekdays = [...]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}

// FormatKST renders t in Korea Standard Time in the long Korean form,
// e.g. "2025년 3월 4일 화요일 오후 02:05".
func FormatKST(t time.Time) string {
	t = t.In(kst)
	period := "오전"
	hour := t.Hour()
	if hour >= 12 {
		period = "오후"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d년 %d월 %d일 %s %s %02d:%02d",
		t.Year(), int(t.Month()), t.Day(), koreanWeekdays[t.Weekday()], period, hour, t.Minute())
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
