// Package audit журнал результатов попыток: одна строка на попытку,
// только дозапись.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arzzra/callprobe/pkg/calldump"
	"github.com/arzzra/callprobe/pkg/quality"
)

// Verdict итог попытки
type Verdict string

const (
	VerdictNormal Verdict = "Normal"
	VerdictError  Verdict = "Error"
)

// Причины операционных ошибок попытки
const (
	ReasonMakeCall      = "make_call_failed"
	ReasonDump          = "dump_failed"
	ReasonMalformedDump = "malformed_dump"
	ReasonCountParse    = "count_parse_failed"
)

// Record запись журнала об одной попытке
type Record struct {
	Timestamp time.Time
	CallID    string
	Verdict   Verdict
	// Operational ошибка самой попытки, а не качества звонка
	Operational bool
	Reason      string
	// TxSize и RxSize равны nil, если медиа не было
	TxSize *string
	RxSize *string
	// RawStats отладочные данные, только для ошибок
	RawStats   string
	Message    string
	StatusCode int
}

// NoMedia true для записей, которые выводятся как "Error(no media)"
func (r Record) NoMedia() bool {
	return r.Operational || r.Reason == string(quality.ReasonNoMedia)
}

// Format строка журнала без перевода строки
func (r Record) Format() string {
	ts := r.Timestamp.Format(time.RFC3339Nano)
	callID := r.CallID
	if callID == "" {
		callID = "-"
	}

	var b strings.Builder
	switch {
	case r.Verdict == VerdictNormal:
		fmt.Fprintf(&b, "%s Normal callid:%s tx_pktsz:%s rx_pktsz:%s",
			ts, callID, deref(r.TxSize), deref(r.RxSize))
	case r.NoMedia():
		fmt.Fprintf(&b, "%s Error(no media) callid:%s reason:%s msg=%q dbg_msg=%s",
			ts, callID, r.Reason, r.Message, dbgMsg(r.RawStats))
	default:
		fmt.Fprintf(&b, "%s Error callid:%s tx_pktsz:%s rx_pktsz:%s reason:%s status:%d dbg_msg=%s",
			ts, callID, deref(r.TxSize), deref(r.RxSize), r.Reason, r.StatusCode, dbgMsg(r.RawStats))
	}
	return b.String()
}

func (r Record) String() string {
	return r.Format()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func dbgMsg(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}

// FromResult запись по результату классификации
func FromResult(ts time.Time, stats *calldump.CallStats, res quality.Result, statusCode int) Record {
	rec := Record{
		Timestamp:  ts,
		Reason:     string(res.Reason),
		StatusCode: statusCode,
		Verdict:    VerdictNormal,
	}
	if stats != nil {
		rec.CallID = stats.CallID
	}

	if res.Reason == quality.ReasonNoMedia {
		rec.Verdict = VerdictError
		rec.Message = "media not negotiated"
		rec.RawStats = encodeStats(stats)
		return rec
	}

	if stats == nil {
		return rec
	}
	if stream, ok := stats.Media[quality.AuditedStream]; ok {
		tx, rx := stream.TX.TotalPacketSize, stream.RX.TotalPacketSize
		rec.TxSize, rec.RxSize = &tx, &rx
	}

	if res.IsAbnormal {
		rec.Verdict = VerdictError
		rec.RawStats = encodeStats(stats)
	}
	return rec
}

// OperationalError запись о попытке, которая не дошла до классификации.
// raw может быть исходным отчетом; он сохраняется одной строкой.
func OperationalError(ts time.Time, callID, reason string, cause error, raw string, statusCode int) Record {
	rec := Record{
		Timestamp:   ts,
		CallID:      callID,
		Verdict:     VerdictError,
		Operational: true,
		Reason:      reason,
		StatusCode:  statusCode,
	}
	if cause != nil {
		rec.Message = cause.Error()
	}
	if raw != "" {
		if b, err := json.Marshal(raw); err == nil {
			rec.RawStats = string(b)
		}
	}
	return rec
}

func encodeStats(stats *calldump.CallStats) string {
	if stats == nil {
		return ""
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return ""
	}
	return string(b)
}
