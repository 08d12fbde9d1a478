package audit

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Writer дописывает записи в файл журнала и дублирует их в Echo.
//
// Файл открывается на каждую запись в режиме дозаписи и синхронизируется
// до возврата, поэтому после падения процесса журнал содержит все
// записанные попытки.
type Writer struct {
	mu   sync.Mutex
	path string
	echo io.Writer
}

// NewWriter создает журнал по пути path. echo может быть nil.
func NewWriter(path string, echo io.Writer) *Writer {
	return &Writer{path: path, echo: echo}
}

// Path путь к файлу журнала
func (w *Writer) Path() string {
	return w.path
}

// Append дописывает одну запись
func (w *Writer) Append(rec Record) error {
	line := rec.Format() + "\n"

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.echo != nil {
		if _, err := io.WriteString(w.echo, line); err != nil {
			return fmt.Errorf("audit echo: %w", err)
		}
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("audit open %s: %w", w.path, err)
	}

	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("audit write %s: %w", w.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("audit sync %s: %w", w.path, err)
	}
	return f.Close()
}
