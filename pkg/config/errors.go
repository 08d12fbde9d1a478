package config

import "fmt"

// InvalidConfigError некорректное значение параметра конфигурации
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &InvalidConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
