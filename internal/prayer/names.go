package prayer

// Name identifies one of the canonical daily prayer events.
type Name string

const (
	Imsak    Name = "imsak"
	Fajr     Name = "fajr"
	Sunrise  Name = "sunrise"
	Dhuhr    Name = "dhuhr"
	Asr      Name = "asr"
	Maghrib  Name = "maghrib"
	Isha     Name = "isha"
	Midnight Name = "midnight"
)

// Scheduled returns the prayer events that notifications are generated
// for, in chronological order. Midnight is computed by the engine but
// never scheduled.
func Scheduled() []Name {
	return []Name{Imsak, Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}
}

// Valid reports whether n is one of the schedulable prayer names.
func (n Name) Valid() bool {
	switch n {
	case Imsak, Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha:
		return true
	}
	return false
}

var arabicTitles = map[Name]string{
	Imsak:    "الإمساك",
	Fajr:     "الفجر",
	Sunrise:  "الشروق",
	Dhuhr:    "الظهر",
	Asr:      "العصر",
	Maghrib:  "المغرب",
	Isha:     "العشاء",
	Midnight: "منتصف الليل",
}

// ArabicTitle returns the Arabic display name for the prayer, falling
// back to the raw name for unknown values.
func (n Name) ArabicTitle() string {
	if t, ok := arabicTitles[n]; ok {
		return t
	}
	return string(n)
}
