package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContent(t *testing.T) {
	data := []byte("BT /F1 12 Tf 72 700 Td (Hello \\(world\\)) Tj [(A) -250 <0042>] TJ ET\n% comment\nq 1 0 0 1 0 0 cm Q")
	ops, err := ParseContent(data)
	require.NoError(t, err)

	var names []string
	for _, op := range ops {
		names = append(names, op.Op)
	}
	assert.Equal(t, []string{"BT", "Tf", "Td", "Tj", "TJ", "ET", "q", "cm", "Q"}, names)

	tf := ops[1]
	assert.Equal(t, OperandName, tf.Operands[0].Kind)
	assert.Equal(t, "F1", tf.Operands[0].Name)
	size, ok := tf.Number(1)
	assert.True(t, ok)
	assert.Equal(t, 12.0, size)

	assert.Equal(t, "Hello (world)", string(ops[3].Operands[0].Bytes))

	tj := ops[4].Operands[0]
	require.Equal(t, OperandArray, tj.Kind)
	require.Len(t, tj.Array, 3)
	assert.Equal(t, -250.0, tj.Array[1].Num)
	assert.Equal(t, []byte{0x00, 0x42}, tj.Array[2].Bytes)

	// 字节区间覆盖操作数与操作符
	assert.Equal(t, "/F1 12 Tf", string(data[tf.Start:tf.End]))
	nums, ok := ops[7].Numbers(6)
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 0, 0, 1, 0, 0}, nums)
}

func TestParseContent_Strings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"octal", `(\101\102) Tj`, []byte("AB")},
		{"nested parens", `(a(b)c) Tj`, []byte("a(b)c")},
		{"escapes", `(a\nb) Tj`, []byte("a\nb")},
		{"odd hex", `<414> Tj`, []byte{0x41, 0x40}},
		{"hex whitespace", `<41 42> Tj`, []byte("AB")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := ParseContent([]byte(tt.in))
			require.NoError(t, err)
			require.Len(t, ops, 1)
			assert.Equal(t, tt.want, ops[0].Operands[0].Bytes)
		})
	}
}

func TestParseContent_InlineImage(t *testing.T) {
	data := []byte("q BI /W 2 /H 1 /BPC 8 /CS /G ID \x00EI\x01 EI Q")
	ops, err := ParseContent(data)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "BI", ops[1].Op)
	assert.Equal(t, "Q", ops[2].Op)
}

func TestParseContent_Errors(t *testing.T) {
	for _, in := range []string{"(unterminated Tj", "[1 2 Tj] TJ", "<4G> Tj", "1 2 ] Td"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseContent([]byte(in))
			var syn *ContentSyntaxError
			assert.ErrorAs(t, err, &syn)
		})
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "1.5", fmtNum(1.5))
	assert.Equal(t, "0.3333", fmtNum(1.0/3))
	assert.Equal(t, "0", fmtNum(-0.00001))
	assert.Equal(t, "12", fmtNum(12))
	assert.Equal(t, "<00FF10>", hexString([]byte{0x00, 0xFF, 0x10}))
	assert.Equal(t, "/TLF1", pdfName("TLF1"))
	assert.Equal(t, "/A#20B", pdfName("A B"))
}
