package calldump

// DirectionStats счетчики одного направления медиапотока в исходном
// человекочитаемом виде отчета ("1.2K", "80.0KB").
type DirectionStats struct {
	TotalPacketCnt  string `json:"total_packet_cnt"`
	TotalPacketSize string `json:"total_packet_size"`
}

// MediaStats статистика одного медиапотока
type MediaStats struct {
	RX DirectionStats `json:"rx"`
	TX DirectionStats `json:"tx"`
}

// CallStats плоское представление отчета о звонке.
//
// Пустой Media означает, что медиа не было согласовано: это допустимый
// результат, а не ошибка разбора.
type CallStats struct {
	CallID string                `json:"call_id"`
	Media  map[string]MediaStats `json:"media"`
}

// Labels имена ключей отчета, по которым извлекается статистика
type Labels struct {
	CallID          string
	Media           string
	RX              string
	TX              string
	TotalPacketCnt  string
	TotalPacketSize string

	// RequireCallID делает отсутствие идентификатора звонка ошибкой
	RequireCallID bool
	// RequireMedia делает отсутствие секции медиа ошибкой
	RequireMedia bool
}

// DefaultLabels возвращает ключи канонического отчета
func DefaultLabels() Labels {
	return Labels{
		CallID:          "call_id",
		Media:           "media",
		RX:              "rx",
		TX:              "tx",
		TotalPacketCnt:  "total_packet_cnt",
		TotalPacketSize: "total_packet_size",
		RequireCallID:   true,
	}
}

// Extract обходит дерево и собирает CallStats.
//
// Повторяющиеся индексы медиа не ожидаются; если встречаются, побеждает
// последний по порядку отчета.
func Extract(root *Node, labels Labels) (*CallStats, error) {
	stats := &CallStats{Media: make(map[string]MediaStats)}

	callID := root.Find(labels.CallID)
	if callID == nil || callID.Value == "" {
		if labels.RequireCallID {
			return nil, malformed(0, "нет секции %q", labels.CallID)
		}
	} else {
		stats.CallID = callID.Value
	}

	media := root.Find(labels.Media)
	if media == nil {
		if labels.RequireMedia {
			return nil, malformed(0, "нет секции %q", labels.Media)
		}
		return stats, nil
	}

	for _, stream := range media.Children {
		stats.Media[stream.Key] = MediaStats{
			RX: extractDirection(stream.Child(labels.RX), labels),
			TX: extractDirection(stream.Child(labels.TX), labels),
		}
	}

	return stats, nil
}

func extractDirection(n *Node, labels Labels) DirectionStats {
	var ds DirectionStats
	if n == nil {
		return ds
	}
	if c := n.Child(labels.TotalPacketCnt); c != nil {
		ds.TotalPacketCnt = c.Value
	}
	if c := n.Child(labels.TotalPacketSize); c != nil {
		ds.TotalPacketSize = c.Value
	}
	return ds
}

// ParseStats разбирает отчет с ключами по умолчанию
func ParseStats(report string) (*CallStats, error) {
	root, err := Parse(report)
	if err != nil {
		return nil, err
	}
	return Extract(root, DefaultLabels())
}
