package harness

import (
	"time"

	"github.com/arzzra/callprobe/pkg/calldump"
	"github.com/arzzra/callprobe/pkg/config"
)

// Options параметры прогона
type Options struct {
	Target    string
	Duration  time.Duration
	Threshold float64
	Repeat    int
	// Grace пауза между завершением звонка и снятием отчета
	Grace time.Duration
	// TeardownTimeout сколько ждать DISCONNECTED перед следующей попыткой
	TeardownTimeout time.Duration
	// HangupTimeout ограничение на HangupAll
	HangupTimeout time.Duration

	PlayFile   string
	RecFile    string
	DumpIndent string
	Headers    map[string]string
}

// OptionsFromConfig собирает параметры прогона из конфигурации
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Target:          cfg.Call.URI,
		Duration:        cfg.Call.Duration,
		Threshold:       cfg.Call.Threshold,
		Repeat:          cfg.Call.Repeat,
		Grace:           cfg.Call.Grace,
		TeardownTimeout: cfg.Call.TeardownTimeout,
		PlayFile:        cfg.Call.PlayFile,
		RecFile:         cfg.Call.RecFile,
	}
}

func (o *Options) setDefaults() {
	if o.Repeat <= 0 {
		o.Repeat = 1
	}
	if o.TeardownTimeout <= 0 {
		o.TeardownTimeout = 10 * time.Second
	}
	if o.HangupTimeout <= 0 {
		o.HangupTimeout = 5 * time.Second
	}
	if o.DumpIndent == "" {
		o.DumpIndent = calldump.DefaultIndent
	}
}
