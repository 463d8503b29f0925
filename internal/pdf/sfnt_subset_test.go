package pdf

import (
	"testing"

	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
)

func TestReadTableDir(t *testing.T) {
	tables, err := readTableDir(goregular.TTF, 0)
	require.NoError(t, err)
	for _, tag := range []string{"head", "glyf", "loca", "maxp", "cmap"} {
		assert.Contains(t, tables, tag)
	}

	_, err = readTableDir([]byte("short"), 0)
	assert.ErrorIs(t, err, errBadSFNT)
}

func TestSubsetSFNT(t *testing.T) {
	src, err := sfnt.Parse(goregular.TTF)
	require.NoError(t, err)
	var buf sfnt.Buffer
	gidA, err := src.GlyphIndex(&buf, 'A')
	require.NoError(t, err)
	gidZ, err := src.GlyphIndex(&buf, 'Z')
	require.NoError(t, err)

	out, err := subsetSFNT(goregular.TTF, 0, map[uint16]bool{uint16(gidA): true})
	require.NoError(t, err)
	assert.Less(t, len(out), len(goregular.TTF))

	sub, err := sfnt.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, src.NumGlyphs(), sub.NumGlyphs(), "glyph ids are preserved")

	tables, err := readTableDir(out, 0)
	require.NoError(t, err)
	assert.NotContains(t, tables, "DSIG")

	head := tables["head"]
	offsets, err := parseLoca(tables["loca"], sub.NumGlyphs(), true)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), uint16(head[50])<<8|uint16(head[51]), "long loca")
	assert.NotEmpty(t, glyphData(tables["glyf"], offsets, int(gidA)))
	assert.Empty(t, glyphData(tables["glyf"], offsets, int(gidZ)))

	// 相同输入得到相同字节
	again, err := subsetSFNT(goregular.TTF, 0, map[uint16]bool{uint16(gidA): true})
	require.NoError(t, err)
	assert.Equal(t, out, again)

	bbox := fontBBox(tables)
	assert.Less(t, bbox[0], bbox[2])
	assert.Less(t, bbox[1], bbox[3])
}

func TestSubsetTagAndWidthRuns(t *testing.T) {
	tag := subsetTag("GoRegular", []uint16{3, 4})
	assert.Len(t, tag, 6)
	assert.Equal(t, tag, subsetTag("GoRegular", []uint16{3, 4}))
	assert.NotEqual(t, tag, subsetTag("GoRegular", []uint16{3, 5}))
	for _, c := range tag {
		assert.True(t, c >= 'A' && c <= 'Z')
	}

	runs := widthRuns(map[uint16]float64{3: 0.5, 4: 0.25, 10: 1})
	require.Len(t, runs, 4)
	assert.Equal(t, pdftypes.Integer(3), runs[0])
	assert.Equal(t, pdftypes.Array{pdftypes.Integer(500), pdftypes.Integer(250)}, runs[1])
	assert.Equal(t, pdftypes.Integer(10), runs[2])
	assert.Equal(t, pdftypes.Array{pdftypes.Integer(1000)}, runs[3])
}
