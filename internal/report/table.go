package report

import (
	"strings"
	"unicode/utf8"
)

// minPadding is the extra width a column gets beyond its header.
const minPadding = 2

// gridTable renders rows as an ASCII grid:
//
//	+---------+-------------+
//	| Class   |   Precision |
//	+=========+=============+
//	| SLS-60  |      0.6667 |
//	+---------+-------------+
//
// Text columns are left aligned. Numeric columns are right aligned with
// their decimal points lined up.
type gridTable struct {
	headers []string
	numeric []bool
	rows    [][]string
}

func newGridTable(headers ...string) *gridTable {
	return &gridTable{headers: headers, numeric: make([]bool, len(headers))}
}

// numericColumns marks the given columns as numeric.
func (t *gridTable) numericColumns(cols ...int) *gridTable {
	for _, c := range cols {
		t.numeric[c] = true
	}
	return t
}

func (t *gridTable) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *gridTable) String() string {
	cols := len(t.headers)
	cells := make([][]string, len(t.rows))
	for i := range t.rows {
		cells[i] = make([]string, cols)
		copy(cells[i], t.rows[i])
	}
	for c := range cols {
		if t.numeric[c] {
			alignDecimal(cells, c)
		}
	}

	widths := make([]int, cols)
	for c, h := range t.headers {
		widths[c] = utf8.RuneCountInString(h) + minPadding
		for _, row := range cells {
			widths[c] = max(widths[c], utf8.RuneCountInString(row[c]))
		}
	}

	var b strings.Builder
	t.writeRule(&b, widths, '-')
	t.writeRow(&b, widths, t.headers)
	t.writeRule(&b, widths, '=')
	for _, row := range cells {
		t.writeRow(&b, widths, row)
		t.writeRule(&b, widths, '-')
	}
	if len(cells) == 0 {
		t.writeRule(&b, widths, '-')
	}
	return b.String()
}

func (t *gridTable) writeRule(b *strings.Builder, widths []int, fill rune) {
	b.WriteByte('+')
	for _, w := range widths {
		b.WriteString(strings.Repeat(string(fill), w+2))
		b.WriteByte('+')
	}
	b.WriteByte('\n')
}

func (t *gridTable) writeRow(b *strings.Builder, widths []int, row []string) {
	b.WriteByte('|')
	for c, w := range widths {
		pad := strings.Repeat(" ", w-utf8.RuneCountInString(row[c]))
		b.WriteByte(' ')
		if t.numeric[c] {
			b.WriteString(pad + row[c])
		} else {
			b.WriteString(row[c] + pad)
		}
		b.WriteString(" |")
	}
	b.WriteByte('\n')
}

// alignDecimal pads the cells of column c on the right so their decimal
// points line up once the column is right aligned.
func alignDecimal(rows [][]string, c int) {
	after := func(s string) int {
		if i := strings.IndexByte(s, '.'); i >= 0 {
			return len(s) - i - 1
		}
		return -1
	}
	most := -1
	for _, row := range rows {
		most = max(most, after(row[c]))
	}
	for _, row := range rows {
		row[c] += strings.Repeat(" ", most-after(row[c]))
	}
}
