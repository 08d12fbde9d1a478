// Команда callprobe совершает тестовые звонки и пишет в журнал вердикт
// о симметрии RTP потоков каждой попытки.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arzzra/callprobe/pkg/config"
	"github.com/arzzra/callprobe/pkg/harness"
	"github.com/arzzra/callprobe/pkg/quality"
)

// Коды завершения процесса
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var cfgErr *config.InvalidConfigError
	var thrErr *quality.InvalidThresholdError
	switch {
	case errors.Is(err, harness.ErrInterrupted):
		fmt.Fprintln(os.Stderr, "interrupted")
		return exitInterrupted
	case errors.As(err, &cfgErr), errors.As(err, &thrErr):
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUsage
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFailure
	}
}
