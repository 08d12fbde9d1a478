package quality

import "fmt"

// InvalidThresholdError порог вне интервала (0, 1]
type InvalidThresholdError struct {
	Threshold float64
}

func (e *InvalidThresholdError) Error() string {
	return fmt.Sprintf("порог %v вне интервала (0, 1]", e.Threshold)
}

// CountParseError счетчик пакетов из отчета не удалось разобрать
type CountParseError struct {
	Value string
	Err   error
}

func (e *CountParseError) Error() string {
	return fmt.Sprintf("не удалось разобрать счетчик %q: %v", e.Value, e.Err)
}

func (e *CountParseError) Unwrap() error {
	return e.Err
}
