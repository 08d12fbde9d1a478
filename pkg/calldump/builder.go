package calldump

import (
	"sort"
	"strings"
)

// DefaultIndent шаг отступа, которым движки формируют отчет
const DefaultIndent = "    "

// ReportBuilder формирует отчет в каноническом формате с отступами.
// Используется адаптерами движков и тестами.
type ReportBuilder struct {
	indent string
	depth  int
	sb     strings.Builder
}

// NewReportBuilder создает построитель с заданным шагом отступа.
// Пустой indent заменяется на DefaultIndent.
func NewReportBuilder(indent string) *ReportBuilder {
	if indent == "" {
		indent = DefaultIndent
	}
	return &ReportBuilder{indent: indent}
}

// Field добавляет строку "key: value"
func (b *ReportBuilder) Field(key, value string) *ReportBuilder {
	b.writeLine(key + ": " + value)
	return b
}

// Section добавляет контейнер "key:" и заполняет его вложенными строками
func (b *ReportBuilder) Section(key string, fill func(*ReportBuilder)) *ReportBuilder {
	b.writeLine(key + ":")
	b.depth++
	if fill != nil {
		fill(b)
	}
	b.depth--
	return b
}

// Media добавляет секцию медиа в порядке индексов
func (b *ReportBuilder) Media(media map[string]MediaStats) *ReportBuilder {
	keys := make([]string, 0, len(media))
	for k := range media {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return b.Section("media", func(b *ReportBuilder) {
		for _, k := range keys {
			m := media[k]
			b.Section(k, func(b *ReportBuilder) {
				b.Direction("rx", m.RX)
				b.Direction("tx", m.TX)
			})
		}
	})
}

// Direction добавляет секцию счетчиков одного направления
func (b *ReportBuilder) Direction(key string, ds DirectionStats) *ReportBuilder {
	return b.Section(key, func(b *ReportBuilder) {
		b.Field("total_packet_cnt", ds.TotalPacketCnt)
		b.Field("total_packet_size", ds.TotalPacketSize)
	})
}

func (b *ReportBuilder) String() string {
	return b.sb.String()
}

func (b *ReportBuilder) writeLine(s string) {
	b.sb.WriteString(strings.Repeat(b.indent, b.depth))
	b.sb.WriteString(s)
	b.sb.WriteByte('\n')
}

// Format возвращает канонический отчет для stats
func Format(stats *CallStats, indent string) string {
	b := NewReportBuilder(indent)
	b.Field("call_id", stats.CallID)
	b.Media(stats.Media)
	return b.String()
}
