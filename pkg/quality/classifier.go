package quality

import (
	"github.com/arzzra/callprobe/pkg/calldump"
)

// AuditedStream индекс медиапотока, по которому принимается решение
const AuditedStream = "0"

// Reason причина вердикта
type Reason string

const (
	ReasonNoMedia             Reason = "no_media"
	ReasonZeroMinimum         Reason = "zero_minimum"
	ReasonRatioBelowThreshold Reason = "ratio_below_threshold"
	ReasonNormal              Reason = "normal"
)

// Result итог классификации одной попытки.
//
// MinCount и MaxCount равны nil, когда медиа нет.
type Result struct {
	IsAbnormal bool
	MinCount   *int64
	MaxCount   *int64
	Ratio      float64
	Reason     Reason

	// RX и TX разобранные счетчики аудируемого потока
	RX int64
	TX int64
}

// ValidateThreshold проверяет, что порог лежит в (0, 1]
func ValidateThreshold(threshold float64) error {
	// NaN не проходит ни одно из сравнений
	if !(threshold > 0 && threshold <= 1) {
		return &InvalidThresholdError{Threshold: threshold}
	}
	return nil
}

// Classify оценивает симметрию пакетов аудируемого потока.
//
// Функция чистая: одинаковые входные данные дают одинаковый результат.
// Сравнение с порогом строгое, ratio == threshold считается нормой.
func Classify(stats *calldump.CallStats, threshold float64) (Result, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return Result{}, err
	}

	if stats == nil || len(stats.Media) == 0 {
		return Result{Reason: ReasonNoMedia}, nil
	}
	stream, ok := stats.Media[AuditedStream]
	if !ok {
		return Result{Reason: ReasonNoMedia}, nil
	}

	rx, err := ParseCount(stream.RX.TotalPacketCnt)
	if err != nil {
		return Result{}, err
	}
	tx, err := ParseCount(stream.TX.TotalPacketCnt)
	if err != nil {
		return Result{}, err
	}

	minCount, maxCount := rx, tx
	if minCount > maxCount {
		minCount, maxCount = maxCount, minCount
	}

	res := Result{
		MinCount: &minCount,
		MaxCount: &maxCount,
		RX:       rx,
		TX:       tx,
	}

	if minCount == 0 {
		res.IsAbnormal = true
		res.Reason = ReasonZeroMinimum
		return res, nil
	}

	res.Ratio = float64(minCount) / float64(maxCount)
	if res.Ratio < threshold {
		res.IsAbnormal = true
		res.Reason = ReasonRatioBelowThreshold
		return res, nil
	}

	res.Reason = ReasonNormal
	return res, nil
}
