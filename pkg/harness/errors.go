package harness

import "errors"

// ErrInterrupted прогон прерван отменой контекста (SIGINT/SIGTERM).
// Текущая попытка брошена без записи в журнал.
var ErrInterrupted = errors.New("harness: interrupted")
