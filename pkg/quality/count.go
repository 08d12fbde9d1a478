package quality

import (
	"errors"
	"strings"

	units "github.com/docker/go-units"
)

// ParseCount разбирает человекочитаемый счетчик ("500", "1.2K", "80.0KB")
// в целое значение. Множители десятичные: K = 1000.
func ParseCount(value string) (int64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, &CountParseError{Value: value, Err: errors.New("пустое значение")}
	}

	n, err := units.FromHumanSize(s)
	if err != nil {
		return 0, &CountParseError{Value: value, Err: err}
	}
	if n < 0 {
		return 0, &CountParseError{Value: value, Err: errors.New("отрицательное значение")}
	}
	return n, nil
}

// FormatCount обратное преобразование в вид, которым pjsua печатает счетчики
func FormatCount(n int64) string {
	if n < 1000 {
		return units.CustomSize("%.0f%s", float64(n), 1000.0, countAbbrs)
	}
	return units.CustomSize("%.1f%s", float64(n), 1000.0, countAbbrs)
}

var countAbbrs = []string{"", "K", "M", "G", "T", "P"}
