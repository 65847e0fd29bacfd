package prayer

import (
	"testing"
	"time"
)

const (
	baghdadLat = 33.3152
	baghdadLon = 44.3661
	baghdadUTC = 3.0
)

func mustGet(t *testing.T, times Times, n Name) time.Time {
	t.Helper()
	at, ok := times.Get(n)
	if !ok {
		t.Fatalf("expected %s to be computed", n)
	}
	return at
}

func TestComputeBaghdadDhuhr(t *testing.T) {
	times := Compute(baghdadLat, baghdadLon, baghdadUTC, Date{2024, time.March, 15}, IraqJafari)

	dhuhr := mustGet(t, times, Dhuhr)

	// Solar noon for Baghdad in mid-March lands a few minutes after
	// 12:00 local (longitude correction plus equation of time).
	if dhuhr.Hour() != 12 || dhuhr.Minute() < 5 || dhuhr.Minute() > 20 {
		t.Errorf("dhuhr = %s, want between 12:05 and 12:20 local", dhuhr.Format("15:04:05"))
	}

	if _, offset := dhuhr.Zone(); offset != 3*3600 {
		t.Errorf("dhuhr zone offset = %d, want %d", offset, 3*3600)
	}
}

func TestComputeEquinoxCivilDay(t *testing.T) {
	// The right-ascension wrap in late March must not push events onto
	// the previous civil day.
	for day := 18; day <= 24; day++ {
		date := Date{2024, time.March, day}
		times := Compute(baghdadLat, baghdadLon, baghdadUTC, date, IraqJafari)

		dhuhr := mustGet(t, times, Dhuhr)
		if dhuhr.Year() != date.Year || dhuhr.Month() != date.Month || dhuhr.Day() != date.Day {
			t.Errorf("dhuhr for %v landed on %s", date, dhuhr.Format("2006-01-02 15:04:05"))
		}
		if dhuhr.Hour() != 12 {
			t.Errorf("dhuhr for %v = %s, want a 12:xx local time", date, dhuhr.Format("15:04:05"))
		}
	}
}

func TestComputeOrdering(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
		utc  float64
		date Date
	}{
		{"baghdad spring", baghdadLat, baghdadLon, baghdadUTC, Date{2024, time.March, 15}},
		{"cairo summer", 30.0444, 31.2357, 2, Date{2024, time.July, 1}},
		{"jakarta", -6.2088, 106.8456, 7, Date{2024, time.September, 10}},
		{"london winter", 51.5074, -0.1278, 0, Date{2024, time.December, 21}},
	}

	order := []Name{Imsak, Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times := Compute(tt.lat, tt.lon, tt.utc, tt.date, IraqJafari)

			prev := mustGet(t, times, order[0])
			for _, n := range order[1:] {
				cur := mustGet(t, times, n)
				if !cur.After(prev) {
					t.Errorf("%s (%s) not after previous event (%s)",
						n, cur.Format("15:04:05"), prev.Format("15:04:05"))
				}
				prev = cur
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	date := Date{2024, time.March, 15}
	a := Compute(baghdadLat, baghdadLon, baghdadUTC, date, IraqJafari)
	b := Compute(baghdadLat, baghdadLon, baghdadUTC, date, IraqJafari)

	if len(a) != len(b) {
		t.Fatalf("result sizes differ: %d vs %d", len(a), len(b))
	}
	for n, at := range a {
		if !b[n].Equal(at) {
			t.Errorf("%s differs between runs: %s vs %s", n, at, b[n])
		}
	}
}

func TestComputeWhiteNights(t *testing.T) {
	// St Petersburg at the June solstice: the sun sets but never gets
	// deep enough below the horizon for the 18-degree fajr or
	// 17-degree isha angles.
	times := Compute(59.9311, 30.3609, 3, Date{2024, time.June, 20}, IraqJafari)

	if _, ok := times.Get(Fajr); ok {
		t.Error("fajr should be unreachable at 60N in June")
	}
	if _, ok := times.Get(Imsak); ok {
		t.Error("imsak should be absent when fajr is")
	}

	maghrib := mustGet(t, times, Maghrib)
	isha := mustGet(t, times, Isha)

	// With the angle unreachable, isha falls back to sunset + 90 min.
	if diff := isha.Sub(maghrib); diff < 89*time.Minute || diff > 91*time.Minute {
		t.Errorf("isha fallback = maghrib + %s, want ~90m", diff)
	}
}

func TestComputePolarDay(t *testing.T) {
	// Above the arctic circle in June the sun never sets. Only the
	// transit-based events survive.
	times := Compute(70, 25, 3, Date{2024, time.June, 20}, IraqJafari)

	if _, ok := times.Get(Dhuhr); !ok {
		t.Error("dhuhr must always be computed")
	}
	for _, n := range []Name{Fajr, Sunrise, Maghrib, Isha, Midnight} {
		if at, ok := times.Get(n); ok {
			t.Errorf("%s should be unreachable during polar day, got %s", n, at)
		}
	}
}

func TestAsrReachableMidLatitudes(t *testing.T) {
	// The shadow-length altitude arctan(1/(factor + tan|lat-decl|)) is
	// always solvable at mid latitudes, so asr must come out non-nil in
	// a plausible afternoon window all year.
	tests := []struct {
		name string
		lat  float64
		lon  float64
		utc  float64
		date Date
	}{
		{"baghdad march", baghdadLat, baghdadLon, baghdadUTC, Date{2024, time.March, 15}},
		{"baghdad december", baghdadLat, baghdadLon, baghdadUTC, Date{2024, time.December, 21}},
		{"cairo june", 30.0444, 31.2357, 2, Date{2024, time.June, 20}},
		{"london september", 51.5074, -0.1278, 0, Date{2024, time.September, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times := Compute(tt.lat, tt.lon, tt.utc, tt.date, IraqJafari)

			dhuhr := mustGet(t, times, Dhuhr)
			asr := mustGet(t, times, Asr)

			if diff := asr.Sub(dhuhr); diff < time.Hour || diff > 5*time.Hour {
				t.Errorf("asr = dhuhr + %s, want between 1h and 5h", diff)
			}
		})
	}
}

func TestAsrShadowFactor(t *testing.T) {
	date := Date{2024, time.March, 15}

	shafi := IraqJafari
	hanafi := IraqJafari
	hanafi.AsrShadowFactor = 2

	asrShafi := mustGet(t, Compute(baghdadLat, baghdadLon, baghdadUTC, date, shafi), Asr)
	asrHanafi := mustGet(t, Compute(baghdadLat, baghdadLon, baghdadUTC, date, hanafi), Asr)

	if !asrHanafi.After(asrShafi) {
		t.Errorf("hanafi asr (%s) should be later than shafi asr (%s)",
			asrHanafi.Format("15:04:05"), asrShafi.Format("15:04:05"))
	}
}

func TestIshaOffsetPrecedence(t *testing.T) {
	date := Date{2024, time.March, 15}
	times := Compute(baghdadLat, baghdadLon, baghdadUTC, date, UmmAlQura)

	maghrib := mustGet(t, times, Maghrib)
	isha := mustGet(t, times, Isha)

	if diff := isha.Sub(maghrib); diff < 89*time.Minute || diff > 91*time.Minute {
		t.Errorf("umm al-qura isha = maghrib + %s, want 90m", diff)
	}
}

func TestImsakOffset(t *testing.T) {
	date := Date{2024, time.March, 15}
	times := Compute(baghdadLat, baghdadLon, baghdadUTC, date, IraqJafari)

	fajr := mustGet(t, times, Fajr)
	imsak := mustGet(t, times, Imsak)

	if diff := fajr.Sub(imsak); diff < 9*time.Minute || diff > 11*time.Minute {
		t.Errorf("imsak = fajr - %s, want 10m", diff)
	}
}

func TestMidnightJafari(t *testing.T) {
	date := Date{2024, time.March, 15}
	times := Compute(baghdadLat, baghdadLon, baghdadUTC, date, IraqJafari)

	maghrib := mustGet(t, times, Maghrib)
	midnight := mustGet(t, times, Midnight)

	nextFajr := mustGet(t, Compute(baghdadLat, baghdadLon, baghdadUTC, date.AddDays(1), IraqJafari), Fajr)

	if !midnight.After(maghrib) {
		t.Errorf("midnight (%s) must be after maghrib (%s)", midnight, maghrib)
	}
	if !midnight.Before(nextFajr) {
		t.Errorf("midnight (%s) must be before next fajr (%s)", midnight, nextFajr)
	}
}

func TestDateAddDays(t *testing.T) {
	tests := []struct {
		name string
		in   Date
		n    int
		want Date
	}{
		{"month rollover", Date{2024, time.March, 31}, 1, Date{2024, time.April, 1}},
		{"leap february", Date{2024, time.February, 28}, 1, Date{2024, time.February, 29}},
		{"year rollover", Date{2024, time.December, 31}, 1, Date{2025, time.January, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.AddDays(tt.n); got != tt.want {
				t.Errorf("AddDays(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}
