package wizard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Inclusive input ranges per wizard step.
const (
	MinHotels = 1
	MaxHotels = 25
	MinGuests = 1
	MaxGuests = 10
	MinPhotos = 1
	MaxPhotos = 10
)

var cyrillicRe = regexp.MustCompile(`[А-Яа-яЁё]`)

// localeFor infers search locale and currency from the script of the city
// the user typed: Cyrillic input searches the Russian site in rubles,
// anything else the international one in dollars.
func localeFor(city string) (locale, currency string) {
	if cyrillicRe.MatchString(city) {
		return "ru_RU", "RUB"
	}
	return "en_US", "USD"
}

// parseCount parses a non-negative integer literal within [min, max].
func parseCount(s string, min, max int) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || s != strconv.Itoa(n) {
		return 0, fmt.Errorf("wizard: %q is not a whole number", s)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("wizard: %d is outside %d..%d", n, min, max)
	}
	return n, nil
}

// parsePrice parses a non-negative integer price.
func parsePrice(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || s != strconv.Itoa(n) {
		return 0, fmt.Errorf("wizard: %q is not a valid price", s)
	}
	return n, nil
}

// parseDistance parses a positive decimal, accepting a comma as the decimal
// separator.
func parseDistance(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("wizard: %q is not a positive distance", s)
	}
	return v, nil
}

// datesValid reports whether checkOut falls strictly after checkIn by
// calendar comparison: year, then month, then day.
func datesValid(checkIn, checkOut time.Time) bool {
	if checkOut.Year() != checkIn.Year() {
		return checkOut.Year() > checkIn.Year()
	}
	if checkOut.Month() != checkIn.Month() {
		return checkOut.Month() > checkIn.Month()
	}
	return checkOut.Day() > checkIn.Day()
}
