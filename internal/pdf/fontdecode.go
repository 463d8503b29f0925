package pdf

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// FontSpec 从页面字体字典中读出的信息，与 pdfcpu 对象模型解耦
type FontSpec struct {
	ObjNr        int
	Subtype      string // Type0, Type1, TrueType, Type3, MMType1
	BaseFont     string
	Encoding     string // 名称形式的 /Encoding
	EncodingCMap []byte // 嵌入的编码 CMap 流
	BaseEncoding string
	Differences  map[int]string
	FirstChar    int
	Widths       []float64
	MissingWidth float64
	FontMatrix   []float64 // Type3

	DescendantSubtype string // CIDFontType0 / CIDFontType2
	DW                float64
	W                 map[int]float64
	Ordering          string

	Ascent      float64
	Descent     float64
	ToUnicode   []byte
	HasFontFile bool
	Symbolic    bool
}

// codeScheme 字节串切分方式
type codeScheme int

const (
	codeSingle codeScheme = iota
	codeDouble
	codeUTF16
	codeLeadByte // RKSJ / EUC / GBK / Big5 / UHC
	codeCMap
)

// pageFont 页面上一个字体资源的解码器
type pageFont struct {
	Resource    string
	Spec        *FontSpec
	Type        FontType
	Vertical    bool
	Unsupported bool

	scheme    codeScheme
	leadLo    byte
	leadHi    byte
	lead2Lo   byte
	lead2Hi   byte
	toUnicode *CMap
	encCMap   *CMap
	cjk       encoding.Encoding
	simple    *[256]rune
	builtin   *builtinFont
	ascent    float64
	descent   float64

	reverse map[rune][]byte
}

// predefined CJK CMaps without an embedded stream
func cjkEncodingFor(name string) (encoding.Encoding, codeScheme, byte, byte) {
	n := strings.ToUpper(name)
	switch {
	case strings.Contains(n, "UCS2"), strings.Contains(n, "UTF16"):
		return nil, codeUTF16, 0, 0
	case strings.Contains(n, "RKSJ"):
		return japanese.ShiftJIS, codeLeadByte, 0x81, 0xFC
	case strings.HasPrefix(n, "EUC-"), strings.HasPrefix(n, "EXT-"):
		return japanese.EUCJP, codeLeadByte, 0x8E, 0xFE
	case strings.Contains(n, "GBK"), strings.Contains(n, "GB-EUC"), strings.Contains(n, "GBPC"), strings.Contains(n, "GBT"):
		return simplifiedchinese.GBK, codeLeadByte, 0x81, 0xFE
	case strings.Contains(n, "B5"), strings.Contains(n, "HKSCS"):
		return traditionalchinese.Big5, codeLeadByte, 0x81, 0xFE
	case strings.Contains(n, "KSC"):
		return korean.EUCKR, codeLeadByte, 0x81, 0xFE
	}
	return nil, codeDouble, 0, 0
}

func newPageFont(resource string, spec *FontSpec) *pageFont {
	f := &pageFont{Resource: resource, Spec: spec}
	f.Type = DetectFontType(spec)
	f.Unsupported = spec.Subtype == "Type3"

	if len(spec.ToUnicode) > 0 {
		if cm, err := ParseCMap(spec.ToUnicode); err == nil {
			f.toUnicode = cm
		}
	}

	if f.Type == FontCID {
		enc := spec.Encoding
		switch {
		case len(spec.EncodingCMap) > 0:
			if cm, err := ParseCMap(spec.EncodingCMap); err == nil && len(cm.codespace) > 0 {
				f.encCMap = cm
				f.scheme = codeCMap
				f.Vertical = cm.Vertical
				enc = cm.Name
			} else {
				f.scheme = codeDouble
			}
		case strings.HasPrefix(enc, "Identity"):
			f.scheme = codeDouble
		default:
			f.cjk, f.scheme, f.leadLo, f.leadHi = cjkEncodingFor(enc)
			if strings.Contains(strings.ToUpper(enc), "RKSJ") {
				// 第二段前导字节 E0..FC
				f.leadHi, f.lead2Lo, f.lead2Hi = 0x9F, 0xE0, 0xFC
			}
		}
		if strings.HasSuffix(enc, "-V") || enc == "V" {
			f.Vertical = true
		}
	} else {
		f.scheme = codeSingle
		f.simple = simpleEncodingTable(spec)
		if len(spec.Widths) == 0 {
			f.builtin = lookupBuiltin(spec.BaseFont)
		}
	}

	f.ascent, f.descent = normalizeAscentDescent(spec.Ascent, spec.Descent)
	if f.builtin != nil && spec.Ascent == 0 {
		f.ascent, f.descent = normalizeAscentDescent(f.builtin.ascent, f.builtin.descent)
	}
	return f
}

// normalizeAscentDescent scales font-descriptor metrics so that ascent-descent == 1 em
func normalizeAscentDescent(asc, desc float64) (float64, float64) {
	if desc > 0 {
		desc = -desc
	}
	if asc <= 0 || asc-desc <= 0 || asc > 2000 {
		return 0.88, -0.12
	}
	total := asc - desc
	return asc / total, desc / total
}

// simpleEncodingTable builds the code→rune table of a single-byte font
func simpleEncodingTable(spec *FontSpec) *[256]rune {
	var t [256]rune
	base := spec.BaseEncoding
	if base == "" {
		base = spec.Encoding
	}
	var cm *charmap.Charmap
	switch base {
	case "WinAnsiEncoding":
		cm = charmap.Windows1252
	case "MacRomanEncoding":
		cm = charmap.Macintosh
	}
	for c := 0; c < 256; c++ {
		switch {
		case cm != nil:
			t[c] = cm.DecodeByte(byte(c))
		case c < 0x80:
			t[c] = rune(c)
		default:
			if r, ok := standardHigh[byte(c)]; ok {
				t[c] = r
			} else {
				// 未知的内置编码按 Latin-1 处理
				t[c] = charmap.Windows1252.DecodeByte(byte(c))
			}
		}
	}
	if cm == nil {
		// StandardEncoding 的 ASCII 差异
		t[0x27] = '’'
		t[0x60] = '‘'
	}
	for code, name := range spec.Differences {
		if code < 0 || code > 255 {
			continue
		}
		if r, ok := glyphNameToRune(name); ok {
			t[code] = r
		} else {
			t[code] = utf8.RuneError
		}
	}
	return &t
}

// StandardEncoding 高位区
var standardHigh = map[byte]rune{
	0xA1: '¡', 0xA2: '¢', 0xA3: '£', 0xA4: '⁄', 0xA5: '¥', 0xA6: 'ƒ', 0xA7: '§',
	0xA8: '¤', 0xA9: '\'', 0xAA: '“', 0xAB: '«', 0xAC: '‹', 0xAD: '›', 0xAE: 'ﬁ',
	0xAF: 'ﬂ', 0xB1: '–', 0xB2: '†', 0xB3: '‡', 0xB4: '·', 0xB6: '¶', 0xB7: '•',
	0xB8: '‚', 0xB9: '„', 0xBA: '”', 0xBB: '»', 0xBC: '…', 0xBD: '‰', 0xBF: '¿',
	0xC1: '`', 0xC2: '´', 0xC3: 'ˆ', 0xC4: '˜', 0xC5: '¯', 0xC6: '˘', 0xC7: '˙',
	0xC8: '¨', 0xCA: '˚', 0xCB: '¸', 0xCD: '˝', 0xCE: '˛', 0xCF: 'ˇ', 0xD0: '—',
	0xE1: 'Æ', 0xE3: 'ª', 0xE8: 'Ł', 0xE9: 'Ø', 0xEA: 'Œ', 0xEB: 'º', 0xF1: 'æ',
	0xF5: 'ı', 0xF8: 'ł', 0xF9: 'ø', 0xFA: 'œ', 0xFB: 'ß',
}

// split cuts a shown string into character codes
func (f *pageFont) split(b []byte) [][]byte {
	var codes [][]byte
	for i := 0; i < len(b); {
		n := 1
		switch f.scheme {
		case codeDouble:
			n = 2
		case codeUTF16:
			n = 2
			if i+1 < len(b) && b[i] >= 0xD8 && b[i] <= 0xDB {
				n = 4
			}
		case codeLeadByte:
			c := b[i]
			if (c >= f.leadLo && c <= f.leadHi) || (f.lead2Lo != 0 && c >= f.lead2Lo && c <= f.lead2Hi) {
				n = 2
			}
		case codeCMap:
			if l := f.encCMap.CodeLen(b[i:]); l > 0 {
				n = l
			}
		}
		if i+n > len(b) {
			n = len(b) - i
		}
		codes = append(codes, b[i:i+n])
		i += n
	}
	return codes
}

// decode returns the Unicode text of one code, "" when unknown
func (f *pageFont) decode(code []byte) string {
	if f.toUnicode != nil {
		if s, ok := f.toUnicode.Lookup(code); ok {
			return s
		}
	}
	switch f.scheme {
	case codeSingle:
		r := f.simple[code[0]]
		if r == utf8.RuneError || r == 0 {
			return ""
		}
		return string(r)
	case codeUTF16:
		return decodeUTF16BE(code)
	case codeLeadByte:
		out, err := f.cjk.NewDecoder().Bytes(code)
		if err != nil {
			return ""
		}
		s := string(out)
		if strings.ContainsRune(s, utf8.RuneError) {
			return ""
		}
		return s
	case codeCMap:
		if f.encCMap.Name != "" {
			if enc, scheme, _, _ := cjkEncodingFor(f.encCMap.Name); scheme == codeUTF16 {
				return decodeUTF16BE(code)
			} else if enc != nil {
				if out, err := enc.NewDecoder().Bytes(code); err == nil {
					return string(out)
				}
			}
		}
	}
	return ""
}

// cid returns the CID of a code for CID-keyed fonts
func (f *pageFont) cid(code []byte) (int, bool) {
	switch f.scheme {
	case codeDouble:
		return int(codeValue(code)), true
	case codeCMap:
		if c, ok := f.encCMap.CID(code); ok {
			return int(c), true
		}
		if !f.encCMap.HasCIDMappings() {
			return int(codeValue(code)), true
		}
	}
	return 0, false
}

// width returns the advance of a code in em units (glyph space / 1000)
func (f *pageFont) width(code []byte) float64 {
	spec := f.Spec
	if f.Type == FontCID {
		if cid, ok := f.cid(code); ok {
			if w, ok := spec.W[cid]; ok {
				return w / 1000
			}
			if spec.DW > 0 {
				return spec.DW / 1000
			}
			return 1
		}
		// 预定义 CMap 无法得到 CID：按字符宽度近似
		if s := f.decode(code); s != "" {
			r, _ := utf8.DecodeRuneInString(s)
			return FallbackCharWidth(r)
		}
		if len(code) == 1 {
			return 0.5
		}
		return 1
	}

	c := int(code[0])
	if i := c - spec.FirstChar; len(spec.Widths) > 0 && i >= 0 && i < len(spec.Widths) {
		scale := 1.0 / 1000
		if len(spec.FontMatrix) == 6 && spec.FontMatrix[0] != 0 {
			scale = spec.FontMatrix[0]
		}
		return spec.Widths[i] * scale
	}
	if f.builtin != nil {
		if w, ok := f.builtin.widthOf(f.simple[c]); ok {
			return w
		}
	}
	if spec.MissingWidth > 0 {
		return spec.MissingWidth / 1000
	}
	if r := f.simple[c]; r != 0 {
		return FallbackCharWidth(r)
	}
	return 0.5
}

// reverseMap builds rune→code for encoding new text with this font
func (f *pageFont) reverseMap() map[rune][]byte {
	if f.reverse != nil {
		return f.reverse
	}
	rev := map[rune][]byte{}
	if f.toUnicode != nil {
		for r, code := range f.toUnicode.ReverseMap() {
			rev[r] = code
		}
	}
	if f.simple != nil {
		for c := 255; c >= 0; c-- {
			r := f.simple[c]
			if r == 0 || r == utf8.RuneError {
				continue
			}
			if _, ok := rev[r]; !ok || f.toUnicode == nil {
				rev[r] = []byte{byte(c)}
			}
		}
	}
	f.reverse = rev
	return rev
}

// encodeRune returns the code of r in this font
func (f *pageFont) encodeRune(r rune) ([]byte, bool) {
	if code, ok := f.reverseMap()[r]; ok {
		return code, true
	}
	switch f.scheme {
	case codeUTF16:
		return []byte(encodeUTF16BE(string(r))), true
	case codeLeadByte:
		out, err := f.cjk.NewEncoder().Bytes([]byte(string(r)))
		if err == nil && len(out) > 0 {
			return out, true
		}
	}
	return nil, false
}

// Covers reports whether every non-space rune of text can be encoded
func (f *pageFont) Covers(text string) bool {
	if f.Unsupported {
		return false
	}
	for _, r := range text {
		if r == '\n' {
			continue
		}
		if _, ok := f.encodeRune(r); !ok {
			return false
		}
	}
	return true
}
