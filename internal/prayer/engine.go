// Package prayer computes daily prayer event times from geographic
// coordinates using solar-position astronomy. The engine is pure:
// identical inputs always produce bit-identical instants, regardless
// of the host timezone.
package prayer

import (
	"math"
	"time"

	"github.com/zaidalbayati/minaret/internal/astro"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi

	// Sun depression angle for sunrise/sunset, accounting for
	// refraction and the solar disc radius.
	horizonAngle = -0.833
)

// Date is a civil calendar date, independent of any timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf extracts the civil date from t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// AddDays returns the date n days later, using calendar arithmetic.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return DateOf(t)
}

// Times maps prayer names to their instants for one location-date
// pair. An absent key means the solar geometry makes that event
// unreachable at this latitude and date (the high-latitude case).
type Times map[Name]time.Time

// Get returns the instant for the named event and whether it exists.
func (t Times) Get(n Name) (time.Time, bool) {
	at, ok := t[n]
	return at, ok
}

// Compute calculates the prayer event times for one day.
//
// utcOffsetHours is the fixed offset of the subscriber's clock from
// UTC. All returned instants carry that offset so that conversions to
// other zones preserve the absolute time.
func Compute(latitude, longitude, utcOffsetHours float64, date Date, p Profile) Times {
	jd := astro.JulianDay(date.Year, int(date.Month), date.Day)
	sun := astro.SunPosition(jd)

	noon := solarNoon(longitude, utcOffsetHours, sun.EquationOfTimeMin)

	fajr := hourForAngle(-p.FajrAngle, latitude, sun.DeclinationDeg, noon, false)
	sunrise := hourForAngle(horizonAngle, latitude, sun.DeclinationDeg, noon, false)
	sunset := hourForAngle(horizonAngle, latitude, sun.DeclinationDeg, noon, true)
	asr := asrHour(latitude, sun.DeclinationDeg, noon, p.AsrShadowFactor)
	isha := ishaHour(latitude, sun.DeclinationDeg, noon, sunset, p)
	midnight := midnightHour(latitude, longitude, utcOffsetHours, date, sunset, p)

	var imsak *float64
	if fajr != nil {
		h := *fajr - p.ImsakOffsetMin/60
		imsak = &h
	}

	loc := fixedZone(utcOffsetHours)
	times := make(Times, 8)
	put := func(n Name, h *float64) {
		if h != nil {
			times[n] = clockTime(date, *h, loc)
		}
	}
	put(Imsak, imsak)
	put(Fajr, fajr)
	put(Sunrise, sunrise)
	put(Dhuhr, &noon)
	put(Asr, asr)
	put(Maghrib, sunset)
	put(Isha, isha)
	put(Midnight, midnight)
	return times
}

// solarNoon is the local clock hour of the sun's transit.
func solarNoon(longitude, utcOffsetHours, equationOfTimeMin float64) float64 {
	return 12 + utcOffsetHours - longitude/15 - equationOfTimeMin/60
}

// hourForAngle solves the hour-angle equation for the local clock hour
// at which the sun reaches the given altitude angle. Returns nil when
// the altitude is never reached on this date (|cos HA| > 1).
func hourForAngle(angle, latitude, declination, noon float64, afterNoon bool) *float64 {
	cosHA := (math.Sin(angle*degToRad) - math.Sin(latitude*degToRad)*math.Sin(declination*degToRad)) /
		(math.Cos(latitude*degToRad) * math.Cos(declination*degToRad))
	if cosHA > 1 || cosHA < -1 {
		return nil
	}
	ha := math.Acos(cosHA) * radToDeg
	h := noon - ha/15
	if afterNoon {
		h = noon + ha/15
	}
	return &h
}

// asrHour derives asr from the shadow-length convention: the event
// occurs when an object's shadow equals shadowFactor times its height
// plus the shadow length at noon. The sun's altitude at that moment is
// arccot of the total shadow length.
func asrHour(latitude, declination, noon, shadowFactor float64) *float64 {
	shadowLength := shadowFactor + math.Tan(math.Abs(latitude-declination)*degToRad)
	altitude := math.Atan(1/shadowLength) * radToDeg
	return hourForAngle(altitude, latitude, declination, noon, true)
}

// ishaHour applies the profile's isha rule: a fixed offset after
// sunset when configured, otherwise the angle method with a
// sunset + 1.5h fallback when the angle is unreachable.
func ishaHour(latitude, declination, noon float64, sunset *float64, p Profile) *float64 {
	if p.IshaOffsetMin > 0 {
		if sunset == nil {
			return nil
		}
		h := *sunset + p.IshaOffsetMin/60
		return &h
	}
	if isha := hourForAngle(-p.IshaAngle, latitude, declination, noon, true); isha != nil {
		return isha
	}
	if sunset == nil {
		return nil
	}
	h := *sunset + 1.5
	return &h
}

// midnightHour computes the midnight event per the profile convention.
// The Jafari midpoint needs the next day's fajr; when that is
// unreachable the six-hour form is used instead.
func midnightHour(latitude, longitude, utcOffsetHours float64, date Date, sunset *float64, p Profile) *float64 {
	if sunset == nil {
		return nil
	}
	if p.Midnight == MidpointSunsetNextFajr {
		next := date.AddDays(1)
		jd := astro.JulianDay(next.Year, int(next.Month), next.Day)
		sun := astro.SunPosition(jd)
		noon := solarNoon(longitude, utcOffsetHours, sun.EquationOfTimeMin)
		if fajr := hourForAngle(-p.FajrAngle, latitude, sun.DeclinationDeg, noon, false); fajr != nil {
			f := *fajr
			if f < *sunset {
				f += 24
			}
			h := (*sunset + f) / 2
			return &h
		}
	}
	h := *sunset + (24-*sunset+6)/2
	return &h
}

// clockTime converts a fractional local clock hour into an absolute
// instant by constructing the civil datetime directly in the fixed
// zone. Hour overflow rolls into day/month/year through calendar
// arithmetic; no string parsing and no millisecond math on UTC, which
// would double-apply the host timezone.
func clockTime(date Date, hours float64, loc *time.Location) time.Time {
	day := date.Day
	for hours < 0 {
		hours += 24
		day--
	}
	for hours >= 24 {
		hours -= 24
		day++
	}
	h := int(math.Floor(hours))
	minF := (hours - float64(h)) * 60
	m := int(math.Floor(minF))
	s := int(math.Floor((minF - float64(m)) * 60))
	return time.Date(date.Year, date.Month, day, h, m, s, 0, loc)
}

func fixedZone(utcOffsetHours float64) *time.Location {
	return time.FixedZone("", int(math.Round(utcOffsetHours*3600)))
}
