package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCMap = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CMapName /Test-UCS def
/CMapType 2 def
2 begincodespacerange
<00> <7F>
<8140> <FFFF>
endcodespacerange
2 beginbfchar
<41> <0041>
<8140> <4FA1>
endbfchar
2 beginbfrange
<61> <63> <0061>
<8141> <8142> [<683C> <5186>]
endbfrange
1 begincidrange
<8150> <8152> 100
endcidrange
1 begincidchar
<42> 7
endcidchar
endcmap
end
end`

func TestParseCMap(t *testing.T) {
	cm, err := ParseCMap([]byte(sampleCMap))
	require.NoError(t, err)
	assert.Equal(t, "Test-UCS", cm.Name)

	tests := []struct {
		code []byte
		want string
		ok   bool
	}{
		{[]byte{0x41}, "A", true},
		{[]byte{0x62}, "b", true},
		{[]byte{0x63}, "c", true},
		{[]byte{0x64}, "", false},
		{[]byte{0x81, 0x40}, "価", true},
		{[]byte{0x81, 0x41}, "格", true},
		{[]byte{0x81, 0x42}, "円", true},
	}
	for _, tt := range tests {
		got, ok := cm.Lookup(tt.code)
		assert.Equal(t, tt.ok, ok, "code % X", tt.code)
		assert.Equal(t, tt.want, got, "code % X", tt.code)
	}

	assert.Equal(t, 1, cm.CodeLen([]byte{0x41, 0x81}))
	assert.Equal(t, 2, cm.CodeLen([]byte{0x81, 0x40}))

	assert.True(t, cm.HasCIDMappings())
	cid, ok := cm.CID([]byte{0x81, 0x51})
	assert.True(t, ok)
	assert.Equal(t, uint32(101), cid)
	cid, ok = cm.CID([]byte{0x42})
	assert.True(t, ok)
	assert.Equal(t, uint32(7), cid)
	_, ok = cm.CID([]byte{0x43})
	assert.False(t, ok)

	rev := cm.ReverseMap()
	assert.Equal(t, []byte{0x62}, rev['b'])
	assert.Equal(t, []byte{0x81, 0x42}, rev['円'])
}

func TestBuildToUnicodeCMap_RoundTrip(t *testing.T) {
	mapping := map[uint16]rune{1: '価', 2: '格', 3: 'P', 0x0100: '𠀋'}
	cm, err := ParseCMap(BuildToUnicodeCMap(mapping))
	require.NoError(t, err)
	for code, r := range mapping {
		got, ok := cm.Lookup([]byte{byte(code >> 8), byte(code)})
		require.True(t, ok)
		assert.Equal(t, string(r), got)
	}
	assert.Equal(t, 2, cm.CodeLen([]byte{0x00, 0x01, 0x00}))
}
