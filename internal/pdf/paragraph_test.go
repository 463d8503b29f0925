package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCells(t *testing.T) {
	content := "BT /F1 10 Tf 72 600 Td (Hello) Tj ET " +
		"BT /F1 10 Tf 102 600 Td (world) Tj ET " +
		"BT /F1 10 Tf 0 1 -1 0 300 300 Tm (rotated) Tj ET " +
		"BT /F1 10 Tf 72 500 Td (   ) Tj ET " +
		"BT /F1 10 Tf 72 400 Td (Next) Tj ET"
	cells := BuildCells(1, interpret(t, content, helveticaPageFonts()))
	require.Len(t, cells, 2)

	c := cells[0]
	assert.Equal(t, "p1-c0", c.ID)
	assert.Equal(t, "Hello world", c.Text, "gap between words becomes a space")
	assert.Len(t, c.Runs, 2)
	assert.Equal(t, "Helvetica", c.Font.Name)
	assert.Equal(t, "F1", c.Font.Resource)
	assert.Equal(t, 10.0, c.Font.Size)
	assert.Equal(t, RoleParagraph, c.Role)
	assert.InDelta(t, 72, c.Box.X0, 1e-9)

	assert.Equal(t, "p1-c1", cells[1].ID)
	assert.Equal(t, "Next", cells[1].Text)
}

func TestGroupParagraphs(t *testing.T) {
	content := "BT /F1 10 Tf 72 700 Td (First line of a para-) Tj 0 -12 Td (graph continues here.) Tj ET " +
		"BT /F1 10 Tf 72 650 Td (Second paragraph) Tj ET " +
		"BT /F1 10 Tf 400 100 Td (Footer) Tj ET"
	cells := BuildCells(1, interpret(t, content, helveticaPageFonts()))
	require.Len(t, cells, 4)

	paras := GroupParagraphs(1, cells, 612)
	require.Len(t, paras, 3)

	p := paras[0]
	assert.Equal(t, "p1-c0", p.ID)
	assert.Equal(t, "First line of a paragraph continues here.", p.Text)
	assert.Len(t, p.Cells, 2)
	assert.Same(t, p, cells[1].Paragraph)
	assert.Equal(t, 10.0, p.FontSize)
	assert.Equal(t, FontSimple, p.FontType)
	assert.InDelta(t, 700-12-10*207.0/925.0, p.Box.Y0, 1e-9)

	assert.Equal(t, "Second paragraph", paras[1].Text, "gap of 38pt starts a new paragraph")
	assert.Equal(t, "Footer", paras[2].Text)
}

func TestGroupParagraphs_RespectsRoles(t *testing.T) {
	content := "BT /F1 10 Tf 72 700 Td (Body line one) Tj 0 -12 Td (body line two) Tj 0 -12 Td (body three) Tj ET"
	cells := BuildCells(1, interpret(t, content, helveticaPageFonts()))
	require.Len(t, cells, 3)

	cells[1].Role = RoleAbandon
	cells[2].GroupKey = 5
	paras := GroupParagraphs(1, cells, 612)
	require.Len(t, paras, 2)
	assert.Equal(t, "Body line one", paras[0].Text)
	assert.Equal(t, "body three", paras[1].Text)
	assert.Nil(t, cells[1].Paragraph)
}

func TestJoinSeparator(t *testing.T) {
	tests := []struct {
		prev, next string
		sep        string
		drop       bool
	}{
		{"hello", "world", " ", false},
		{"価格", "円", "", false},
		{"exam-", "ple", "", true},
		{"well-", "Known", " ", false},
		{"trailing ", "space", "", false},
		{"", "x", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.prev+"|"+tt.next, func(t *testing.T) {
			sep, drop := joinSeparator(tt.prev, tt.next)
			assert.Equal(t, tt.sep, sep)
			assert.Equal(t, tt.drop, drop)
		})
	}
}

func TestDropTrailingHyphen(t *testing.T) {
	tests := []struct {
		name string
		in   []Glyph
		want []Glyph
	}{
		{"hyphen last", []Glyph{{Text: "a"}, {Text: "-"}}, []Glyph{{Text: "a"}}},
		{"undecodable after hyphen", []Glyph{{Text: "a"}, {Text: "-"}, {Text: ""}}, []Glyph{{Text: "a"}, {Text: ""}}},
		{"no hyphen", []Glyph{{Text: "a"}, {Text: "b"}}, []Glyph{{Text: "a"}, {Text: "b"}}},
		{"only undecodable", []Glyph{{Text: ""}}, []Glyph{{Text: ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dropTrailingHyphen(tt.in))
		})
	}
}

// 行尾是无法解码的字形时只删连字符本身
func TestGroupParagraphs_HyphenBeforeUndecodableGlyph(t *testing.T) {
	content := "BT /F1 10 Tf 72 700 Td (First line of a para-) Tj 0 -12 Td (graph continues here.) Tj ET"
	cells := BuildCells(1, interpret(t, content, helveticaPageFonts()))
	require.Len(t, cells, 2)
	cells[0].Glyphs = append(cells[0].Glyphs, Glyph{Text: ""})

	paras := GroupParagraphs(1, cells, 612)
	require.Len(t, paras, 1)
	assert.Equal(t, "First line of a paragraph continues here.", paras[0].Text)
	assert.True(t, paragraphUndecodable(paras[0]), "the undecodable glyph is kept")
}

func TestParagraphUndecodable(t *testing.T) {
	p := &Paragraph{Glyphs: []Glyph{{Text: "a"}, {Text: ""}, {Text: " ", Synthetic: true}}}
	assert.True(t, paragraphUndecodable(p))

	p.Vars = []FormulaVar{{Glyphs: []Glyph{{Text: ""}}}}
	assert.False(t, paragraphUndecodable(p), "undecodable glyphs inside a placeholder are kept as-is")
}
