package calldump

import (
	"strings"
)

// tabWidth ширина табуляции в колонках при вычислении отступа
const tabWidth = 4

// Node одна строка отчета как узел упорядоченного дерева.
//
// Корень дерева синтетический: Depth == -1, пустой Key.
type Node struct {
	Depth int
	Key   string
	// Value пустое у узлов-контейнеров
	Value    string
	Children []*Node
	// Line номер строки исходного отчета (с 1)
	Line int
}

// Child возвращает первого прямого потомка с ключом key.
func (n *Node) Child(key string) *Node {
	for _, c := range n.Children {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// Find ищет первый узел с ключом key обходом в глубину в порядке отчета.
// Сам узел n в поиск не входит.
func (n *Node) Find(key string) *Node {
	for _, c := range n.Children {
		if c.Key == key {
			return c
		}
		if found := c.Find(key); found != nil {
			return found
		}
	}
	return nil
}

// Count возвращает число узлов поддерева без учета самого n.
func (n *Node) Count() int {
	total := 0
	for _, c := range n.Children {
		total += 1 + c.Count()
	}
	return total
}

// IsContainer true для узлов без значения.
func (n *Node) IsContainer() bool {
	return n.Value == ""
}

// line непустая строка отчета после первичного разбора
type line struct {
	number  int
	indent  int
	content string
}

// Parse строит дерево отчета за один проход.
//
// Шаг отступа определяется предварительным проходом как наименьшее
// положительное увеличение отступа между строкой и следующей за ней.
// Строки с отступом, не кратным шагу, и скачки глубины больше чем на один
// уровень возвращают *MalformedDumpError.
func Parse(report string) (*Node, error) {
	lines := splitLines(report)
	unit := detectIndentUnit(lines)

	root := &Node{Depth: -1}
	stack := []*Node{root}

	for _, l := range lines {
		if l.indent%unit != 0 {
			return nil, malformed(l.number, "отступ %d не кратен шагу %d", l.indent, unit)
		}
		depth := l.indent / unit

		// Закрываем узлы того же или более глубокого уровня
		for len(stack) > 1 && stack[len(stack)-1].Depth >= depth {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		if depth != parent.Depth+1 {
			return nil, malformed(l.number, "глубина %d после узла глубины %d", depth, parent.Depth)
		}

		key, value := splitKeyValue(l.content)
		node := &Node{
			Depth: depth,
			Key:   key,
			Value: value,
			Line:  l.number,
		}
		parent.Children = append(parent.Children, node)
		stack = append(stack, node)
	}

	return root, nil
}

// splitLines режет отчет на непустые строки, допускает \r\n
func splitLines(report string) []line {
	raw := strings.Split(report, "\n")
	lines := make([]line, 0, len(raw))
	for i, s := range raw {
		s = strings.TrimRight(s, "\r")
		if strings.TrimSpace(s) == "" {
			continue
		}
		indent, content := measureIndent(s)
		lines = append(lines, line{
			number:  i + 1,
			indent:  indent,
			content: strings.TrimRight(content, " \t"),
		})
	}
	return lines
}

func measureIndent(s string) (int, string) {
	width := 0
	for i, r := range s {
		switch r {
		case ' ':
			width++
		case '\t':
			width += tabWidth
		default:
			return width, s[i:]
		}
	}
	return width, ""
}

// detectIndentUnit возвращает 1 для отчета без вложенности
func detectIndentUnit(lines []line) int {
	unit := 0
	prev := 0
	for i, l := range lines {
		if i > 0 && l.indent > prev {
			if step := l.indent - prev; unit == 0 || step < unit {
				unit = step
			}
		}
		prev = l.indent
	}
	if unit == 0 {
		return 1
	}
	return unit
}

// splitKeyValue делит содержимое по первому разделителю "key: value".
// Без разделителя вся строка считается ключом контейнера.
func splitKeyValue(content string) (string, string) {
	if idx := strings.Index(content, ": "); idx >= 0 {
		return strings.TrimSpace(content[:idx]), strings.TrimSpace(content[idx+2:])
	}
	if strings.HasSuffix(content, ":") {
		return strings.TrimSpace(strings.TrimSuffix(content, ":")), ""
	}
	return strings.TrimSpace(content), ""
}
