// Package astro computes the solar quantities that prayer time
// calculations depend on: the sun's declination and the equation of
// time for a given Julian day.
package astro

import "math"

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi

	// J2000 epoch as a Julian day number.
	epochJ2000 = 2451545.0
)

// Position holds the sun's apparent position parameters for one day.
type Position struct {
	// DeclinationDeg is the solar declination in degrees.
	DeclinationDeg float64
	// EquationOfTimeMin is the equation of time in minutes. It is the
	// correction between mean solar time and true solar time and
	// directly shifts every computed prayer time.
	EquationOfTimeMin float64
}

// JulianDay converts a proleptic Gregorian calendar date to a Julian
// day number. January and February count as months 13 and 14 of the
// previous year for the purposes of the formula.
func JulianDay(year, month, day int) float64 {
	if month <= 2 {
		year--
		month += 12
	}
	a := math.Floor(float64(year) / 100)
	b := 2 - a + math.Floor(a/4)
	return math.Floor(365.25*(float64(year)+4716)) +
		math.Floor(30.6001*(float64(month)+1)) +
		float64(day) + b - 1524.5
}

// SunPosition computes the solar declination and equation of time for
// the given Julian day using the low-precision series referenced to
// the J2000 epoch. It always returns a value; extreme dates degrade in
// accuracy but are not validated here.
func SunPosition(jd float64) Position {
	d := jd - epochJ2000

	g := normalizeDeg(357.529 + 0.98560028*d) // mean anomaly
	q := normalizeDeg(280.459 + 0.98564736*d) // mean longitude
	l := normalizeDeg(q + 1.915*math.Sin(g*degToRad) + 0.020*math.Sin(2*g*degToRad))
	e := 23.439 - 0.00000036*d // obliquity of the ecliptic

	ra := math.Atan2(math.Cos(e*degToRad)*math.Sin(l*degToRad), math.Cos(l*degToRad)) * radToDeg
	if ra < 0 {
		ra += 360
	}

	decl := math.Asin(math.Sin(e*degToRad)*math.Sin(l*degToRad)) * radToDeg

	// Near the equinoxes the right ascension wraps past 0 while the
	// mean longitude is still just below 360, so the raw difference
	// jumps by a full turn. Normalize it into (-180, 180].
	eqt := q - ra
	if eqt > 180 {
		eqt -= 360
	}
	if eqt <= -180 {
		eqt += 360
	}

	return Position{
		DeclinationDeg:    decl,
		EquationOfTimeMin: eqt / 15 * 60,
	}
}

func normalizeDeg(angle float64) float64 {
	return angle - 360*math.Floor(angle/360)
}
