package pdf

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// builtinFont 标准 14 字体的度量（AFM，1/1000 em）
type builtinFont struct {
	name    string
	ascent  float64
	descent float64
	widths  map[rune]float64
	mono    float64
}

// Helvetica ASCII 32..126
var helveticaASCII = [...]float64{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

var helveticaExtra = map[rune]float64{
	'‘': 222, '’': 222, '“': 333, '”': 333, '•': 350, '–': 556, '—': 1000,
	'…': 1000, '€': 556, '™': 1000, '©': 737, '®': 737, '°': 400, '±': 584,
	'×': 584, '÷': 584, '¡': 333, '¢': 556, '£': 556, '¥': 556, '§': 556,
	'¨': 333, 'ª': 370, '«': 556, '¬': 584, '¯': 333, '²': 333, '³': 333,
	'´': 333, 'µ': 556, '¶': 537, '·': 278, '¸': 333, '¹': 333, 'º': 365,
	'»': 556, '¼': 834, '½': 834, '¾': 834, '¿': 611, 'Æ': 1000, 'æ': 889,
	'Ø': 778, 'ø': 611, 'ß': 611, 'Œ': 1000, 'œ': 944, 'ƒ': 556, '†': 556,
	'‡': 556, '‰': 1000, '‹': 333, '›': 333, '‚': 222, '„': 333, 'ˆ': 333,
	'˜': 333, 'Ð': 722, 'ð': 556, 'Þ': 667, 'þ': 556, '¦': 260, '¤': 556,
	'\u00a0': 278, '\u00ad': 333, 'Š': 667, 'š': 500, 'Ž': 611, 'ž': 500, 'Ÿ': 667,
}

var helvetica = func() *builtinFont {
	f := &builtinFont{name: "Helvetica", ascent: 718, descent: -207, widths: map[rune]float64{}}
	for i, w := range helveticaASCII {
		f.widths[rune(32+i)] = w / 1000
	}
	for r, w := range helveticaExtra {
		f.widths[r] = w / 1000
	}
	return f
}()

var courier = &builtinFont{name: "Courier", ascent: 629, descent: -157, mono: 0.6}

// lookupBuiltin maps a BaseFont name to the standard-14 metrics we carry
func lookupBuiltin(baseFont string) *builtinFont {
	n := strings.ToLower(StripSubsetTag(baseFont))
	switch {
	case strings.HasPrefix(n, "helvetica"), strings.HasPrefix(n, "arial"):
		return helvetica
	case strings.HasPrefix(n, "courier"):
		return courier
	}
	return nil
}

// widthOf returns the advance in em; accented Latin letters use their base letter
func (f *builtinFont) widthOf(r rune) (float64, bool) {
	if f.mono > 0 {
		return f.mono, r >= 0x20
	}
	if w, ok := f.widths[r]; ok {
		return w, true
	}
	if d := []rune(norm.NFD.String(string(r))); len(d) > 1 {
		if w, ok := f.widths[d[0]]; ok {
			return w, true
		}
	}
	return 0, false
}

// encodeWinAnsi encodes a rune for a WinAnsiEncoding simple font
func encodeWinAnsi(r rune) (byte, bool) {
	if r == ' ' {
		return 0x20, true
	}
	b, ok := charmap.Windows1252.EncodeRune(r)
	if !ok || b < 0x20 {
		return 0, false
	}
	return b, true
}
