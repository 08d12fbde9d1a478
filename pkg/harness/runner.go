// Package harness прогон повторяющихся звонков: N последовательных
// попыток, классификация каждого отчета и одна запись журнала на попытку.
package harness

import (
	"context"
	"errors"
	"time"

	"github.com/arzzra/callprobe/pkg/audit"
	"github.com/arzzra/callprobe/pkg/calldump"
	"github.com/arzzra/callprobe/pkg/engine"
	"github.com/arzzra/callprobe/pkg/logging"
	"github.com/arzzra/callprobe/pkg/metrics"
	"github.com/arzzra/callprobe/pkg/quality"
)

// RecordSink принимает записи журнала в порядке попыток
type RecordSink interface {
	Append(rec audit.Record) error
}

// Summary итоги прогона
type Summary struct {
	Attempts    int
	Normal      int
	Abnormal    int
	Operational int
}

// Runner выполняет попытки последовательно на одном движке
type Runner struct {
	engine  engine.Engine
	opts    Options
	sink    RecordSink
	metrics *metrics.Collector
	log     logging.Logger

	now     func() time.Time
	summary Summary
}

// NewRunner создает прогон. metrics и log могут быть nil.
func NewRunner(eng engine.Engine, opts Options, sink RecordSink, m *metrics.Collector, log logging.Logger) *Runner {
	opts.setDefaults()
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{
		engine:  eng,
		opts:    opts,
		sink:    sink,
		metrics: m,
		log:     log.WithComponent("harness"),
		now:     time.Now,
	}
}

// Summary итоги уже выполненных попыток
func (r *Runner) Summary() Summary {
	return r.summary
}

// Run выполняет все попытки. Ошибки отдельных попыток становятся записями
// журнала; Run возвращает ошибку только для неверного порога, сбоя
// журнала или прерывания (ErrInterrupted).
func (r *Runner) Run(ctx context.Context) error {
	if err := quality.ValidateThreshold(r.opts.Threshold); err != nil {
		return err
	}

	r.log.Info(ctx, "run started",
		logging.String("target", r.opts.Target),
		logging.Int("repeat", r.opts.Repeat),
		logging.Duration("duration", r.opts.Duration),
		logging.Float64("threshold", r.opts.Threshold))

	for i := 1; i <= r.opts.Repeat; i++ {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		if err := r.attempt(logging.WithAttempt(ctx, i)); err != nil {
			return err
		}
	}

	r.log.Info(ctx, "run finished",
		logging.Int("attempts", r.summary.Attempts),
		logging.Int("normal", r.summary.Normal),
		logging.Int("abnormal", r.summary.Abnormal),
		logging.Int("operational", r.summary.Operational))
	return nil
}

// attempt одна попытка: звонок, отчет, классификация, запись, ожидание
// завершения сессии
func (r *Runner) attempt(ctx context.Context) error {
	finished := r.metrics.AttemptStarted()
	defer finished()

	call, err := startCall(ctx, r.engine, r.opts, r.metrics, r.log)
	if err != nil {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		status := 0
		var sigErr *engine.SignalingError
		if errors.As(err, &sigErr) {
			status = sigErr.StatusCode
		}
		r.log.LogError(ctx, err, "make call failed")
		return r.write(ctx, audit.OperationalError(r.now(), "", audit.ReasonMakeCall, err, "", status), -1)
	}
	defer call.stop()
	ctx = logging.WithCallID(ctx, call.session.ID())

	report, err := call.runAndDump(ctx, r.engine, r.opts)
	if err != nil {
		if ctx.Err() != nil {
			call.abandon(r.engine, r.opts.HangupTimeout)
			return ErrInterrupted
		}
		r.log.LogError(ctx, err, "dump failed")
		rec := audit.OperationalError(r.now(), call.session.ID(), audit.ReasonDump, err, "", call.machine.LastStatusCode())
		if err := r.write(ctx, rec, -1); err != nil {
			return err
		}
		return r.awaitTeardown(ctx, call)
	}

	rec, ratio := r.classify(ctx, call, report)
	if err := r.write(ctx, rec, ratio); err != nil {
		return err
	}
	return r.awaitTeardown(ctx, call)
}

// classify превращает отчет в запись журнала
func (r *Runner) classify(ctx context.Context, call *activeCall, report string) (audit.Record, float64) {
	status := call.machine.LastStatusCode()
	id := call.session.ID()

	stats, err := calldump.ParseStats(report)
	if err != nil {
		r.log.LogError(ctx, err, "malformed dump")
		return audit.OperationalError(r.now(), id, audit.ReasonMalformedDump, err, report, status), -1
	}

	res, err := quality.Classify(stats, r.opts.Threshold)
	if err != nil {
		reason := audit.ReasonCountParse
		var countErr *quality.CountParseError
		if !errors.As(err, &countErr) {
			reason = audit.ReasonMalformedDump
		}
		r.log.LogError(ctx, err, "classification failed")
		return audit.OperationalError(r.now(), stats.CallID, reason, err, report, status), -1
	}

	ratio := -1.0
	if res.MinCount != nil {
		ratio = res.Ratio
	}
	r.log.Debug(ctx, "classified",
		logging.String("reason", string(res.Reason)),
		logging.Float64("ratio", res.Ratio),
		logging.Bool("abnormal", res.IsAbnormal))
	return audit.FromResult(r.now(), stats, res, status), ratio
}

// write дописывает запись и учитывает ее в итогах и метриках
func (r *Runner) write(ctx context.Context, rec audit.Record, ratio float64) error {
	if err := r.sink.Append(rec); err != nil {
		r.log.LogError(ctx, err, "audit append failed")
		return err
	}

	r.summary.Attempts++
	switch {
	case rec.Operational:
		r.summary.Operational++
	case rec.Verdict == audit.VerdictNormal:
		r.summary.Normal++
	default:
		r.summary.Abnormal++
	}
	r.metrics.RecordOutcome(string(rec.Verdict), rec.Reason, ratio, rec.StatusCode)
	return nil
}

// awaitTeardown ждет DISCONNECTED не дольше TeardownTimeout
func (r *Runner) awaitTeardown(ctx context.Context, call *activeCall) error {
	select {
	case <-call.machine.Done():
		return nil
	case <-ctx.Done():
		call.abandon(r.engine, r.opts.HangupTimeout)
		return ErrInterrupted
	case <-time.After(r.opts.TeardownTimeout):
		r.log.Warn(ctx, "session not disconnected in time, hanging up again",
			logging.Duration("timeout", r.opts.TeardownTimeout))
		call.abandon(r.engine, r.opts.HangupTimeout)
		return nil
	}
}
