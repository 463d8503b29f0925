package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"pdf-layout-translator/internal/logger"
	"pdf-layout-translator/internal/types"
)

func newTestRegistry(t *testing.T, cfg types.FontConfig) *FontRegistry {
	t.Helper()
	cfg.SkipSystemDirs = true
	return NewFontRegistry(cfg, logger.Nop())
}

// writeGoFont 将 Go Regular 写入临时目录，作为可嵌入的 TrueType 字体
func writeGoFont(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "GoRegular.ttf")
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0644))
	return path
}

func TestDetectFontType(t *testing.T) {
	tests := []struct {
		name string
		spec *FontSpec
		want FontType
	}{
		{"nil", nil, FontEmbedded},
		{"type1", &FontSpec{Subtype: "Type1"}, FontSimple},
		{"truetype", &FontSpec{Subtype: "TrueType", Encoding: "WinAnsiEncoding"}, FontSimple},
		{"type0", &FontSpec{Subtype: "Type0", Encoding: "Identity-H"}, FontCID},
		{"truetype identity", &FontSpec{Subtype: "TrueType", Encoding: "Identity-H"}, FontCID},
		{"unknown", &FontSpec{Subtype: "OpenType"}, FontEmbedded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFontType(tt.spec))
		})
	}
}

func TestFontRegistry_BuiltinFallback(t *testing.T) {
	reg := newTestRegistry(t, types.FontConfig{})

	fi, ok := reg.ResolveOutputFont("en", FontSimple)
	assert.True(t, ok, "latin chain ends with the builtin font")
	assert.True(t, fi.Builtin)
	assert.Equal(t, "Helvetica", fi.Name)
	assert.InDelta(t, 1.0, fi.Ascent-fi.Descent, 1e-9)
	assert.InDelta(t, 718.0/925.0, fi.Ascent, 1e-9)

	ja, ok := reg.ResolveOutputFont("ja", FontCID)
	assert.False(t, ok)
	assert.Same(t, fi, ja)
	// 结果缓存，失败只记录一次
	_, _ = reg.ResolveOutputFont("ja", FontCID)
	assert.Equal(t, []string{"ja/cid"}, reg.FailedFonts())

	assert.True(t, fi.Covers("Price: 100 yen"))
	assert.False(t, fi.Covers("価格"))

	codes, widths, err := fi.Encode("Pé")
	require.NoError(t, err)
	assert.Equal(t, []byte{'P', 0xE9}, codes)
	assert.InDelta(t, 0.667, widths[0], 1e-9)
	assert.InDelta(t, 0.556, widths[1], 1e-9, "accented letters use the base width")

	_, _, err = fi.Encode("円")
	assert.ErrorIs(t, err, ErrRuneNotEncodable)
	assert.NoError(t, reg.RegisterGlyphs(fi, []rune("abc")), "builtin fonts need no glyph registration")
}

func TestFontRegistry_Override(t *testing.T) {
	path := writeGoFont(t)
	reg := newTestRegistry(t, types.FontConfig{Overrides: map[string]string{"EN": path}})

	fi, ok := reg.ResolveOutputFont("en", FontSimple)
	require.True(t, ok)
	assert.False(t, fi.Builtin)
	assert.Equal(t, FontEmbedded, fi.Type)
	assert.Equal(t, path, fi.Path)
	assert.NotEmpty(t, fi.Name)
	assert.NotContains(t, fi.Name, " ")
	assert.InDelta(t, 1.0, fi.Ascent-fi.Descent, 1e-9)

	assert.True(t, fi.Covers("Hello αβ"))
	assert.False(t, fi.Covers("価"))

	codes, widths, err := fi.Encode("Hi")
	require.NoError(t, err)
	assert.Len(t, codes, 4)
	require.Len(t, widths, 2)
	assert.Greater(t, widths[0], 0.0)

	require.NoError(t, reg.RegisterGlyphs(fi, []rune("Hi\n")))
	assert.Len(t, fi.used, 2)
	assert.ErrorIs(t, reg.RegisterGlyphs(fi, []rune("価")), ErrRuneNotEncodable)

	// 同一文件只解析一次
	other, ok := reg.ResolveOutputFont("en", FontCID)
	require.True(t, ok)
	assert.Same(t, fi, other)
}

func TestFontRegistry_SearchDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DejaVuSans.ttf"), goregular.TTF, 0644))
	reg := newTestRegistry(t, types.FontConfig{Dirs: []string{dir}})

	fi, ok := reg.ResolveOutputFont("en", FontSimple)
	require.True(t, ok)
	assert.False(t, fi.Builtin)
	assert.Equal(t, filepath.Join(dir, "DejaVuSans.ttf"), fi.Path)
}

func TestFontRegistry_BrokenOverrideFallsThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.ttf")
	require.NoError(t, os.WriteFile(path, []byte("not a font"), 0644))
	reg := newTestRegistry(t, types.FontConfig{Overrides: map[string]string{"en": path}})

	fi, ok := reg.ResolveOutputFont("en", FontSimple)
	assert.True(t, ok)
	assert.True(t, fi.Builtin)
	assert.Empty(t, reg.FailedFonts())
}

func TestFontRegistry_DocumentFont(t *testing.T) {
	pf := newPageFont("F1", &FontSpec{Subtype: "Type1", BaseFont: "ABCDEF+Helvetica", Encoding: "WinAnsiEncoding"})
	reg := newTestRegistry(t, types.FontConfig{})

	fi := reg.DocumentFont(pf)
	assert.Same(t, fi, reg.DocumentFont(pf))
	assert.Equal(t, "Helvetica", fi.Name)
	assert.Equal(t, "doc/F1", fi.Key)

	codes, widths, err := fi.Encode("AB")
	require.NoError(t, err)
	assert.Equal(t, []byte("AB"), codes)
	assert.InDelta(t, 0.667, widths[0], 1e-9)
}
