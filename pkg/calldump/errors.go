package calldump

import "fmt"

// MalformedDumpError сообщает о невозможности восстановить дерево отчета
// или извлечь из него обязательную секцию.
type MalformedDumpError struct {
	// Line номер строки отчета (с 1), 0 если ошибка не привязана к строке
	Line   int
	Reason string
}

func (e *MalformedDumpError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("некорректный dump: строка %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("некорректный dump: %s", e.Reason)
}

// Is позволяет сравнивать ошибки через errors.Is без учета строки и причины.
func (e *MalformedDumpError) Is(target error) bool {
	_, ok := target.(*MalformedDumpError)
	return ok
}

func malformed(line int, format string, args ...interface{}) error {
	return &MalformedDumpError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
