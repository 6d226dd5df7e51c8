package calendar

import (
	"strconv"
	"time"
)

// Locale holds the month abbreviations used in labels.
type Locale struct {
	Name   string
	Months [12]string
}

var (
	French = Locale{
		Name:   "fr",
		Months: [12]string{"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."},
	}
	English = Locale{
		Name:   "en",
		Months: [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
	}
)

// LocaleFor returns the locale with the given name, French if unknown.
func LocaleFor(name string) Locale {
	if name == English.Name {
		return English
	}
	return French
}

// Labeler formats bucket labels. Week labels omit the year when it equals
// the current year according to Now, so they depend on the wall clock.
type Labeler struct {
	Locale Locale
	Now    func() time.Time
}

// NewLabeler returns a Labeler for locale using the system clock.
func NewLabeler(locale Locale) Labeler {
	return Labeler{Locale: locale, Now: time.Now}
}

// Label returns the human label of the bucket starting at start.
func (l Labeler) Label(g Granularity, start time.Time) string {
	start = start.UTC()
	month := l.Locale.Months[start.Month()-1]
	year := strconv.Itoa(start.Year())
	switch g {
	case Year:
		return year
	case Week:
		label := strconv.Itoa(start.Day()) + " " + month
		if start.Year() != l.currentYear() {
			label += " " + year
		}
		return label
	default:
		return month + " " + year
	}
}

func (l Labeler) currentYear() int {
	if l.Now == nil {
		return time.Now().UTC().Year()
	}
	return l.Now().UTC().Year()
}
