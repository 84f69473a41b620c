package utils

import (
	"log"
	"time"
)

const (
	// FrequencyDaily simulates every calendar date, weekends included.
	FrequencyDaily = "daily"
	// FrequencyBusiness simulates Monday through Friday only.
	FrequencyBusiness = "business"
)

func GetMarketTimeLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Fatal("Failed to load location", err)
	}
	return loc
}

func TimeNowMarket() time.Time {
	return time.Now().In(GetMarketTimeLocation())
}

// TruncateToDay drops the clock portion of a timestamp, keeping its location.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// DateRange generates the simulated date sequence between start and end
// inclusive at the given frequency. Dates are truncated to day resolution
// and strictly increasing.
func DateRange(start, end time.Time, frequency string) []time.Time {
	start = TruncateToDay(start)
	end = TruncateToDay(end)

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if frequency == FrequencyBusiness && !IsBusinessDay(d) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// DaysBetween returns whole calendar days from a to b. Both dates are
// normalized to UTC midnights first so DST transitions in zone-aware
// inputs cannot shorten the span.
func DaysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}

func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, GetMarketTimeLocation())
}

func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
