package record

import (
	"math"
	"time"

	"github.com/oceanco2/intake/intake/pkg/catalog"
)

// Time returns the sample time in UTC from the year, month, day, hour and minute columns and
// the optional second column. It reports false when any required part is missing or out of range.
func (r *Record) Time() (time.Time, bool) {
	year, ok1 := r.Int(catalog.ColYear)
	month, ok2 := r.Int(catalog.ColMonth)
	day, ok3 := r.Int(catalog.ColDay)
	hour, ok4 := r.Int(catalog.ColHour)
	minute, ok5 := r.Int(catalog.ColMinute)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, false
	}
	sec, ok := r.Float(catalog.ColSecond)
	if !ok {
		sec = 0
	}
	if sec < 0 || sec >= 61 {
		return time.Time{}, false
	}
	whole, frac := math.Modf(sec)
	t := time.Date(year, time.Month(month), day, hour, minute, int(whole), int(frac*1e9), time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// Position returns the longitude and latitude in degrees, reporting false when either is missing.
func (r *Record) Position() (lon, lat float64, ok bool) {
	lon, okLon := r.Float(catalog.ColLongitude)
	lat, okLat := r.Float(catalog.ColLatitude)
	return lon, lat, okLon && okLat
}
