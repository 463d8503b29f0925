package pdf

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// 常用 Adobe 字形名（AGL 子集）
var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": '’',
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+', "comma": ',',
	"hyphen": '-', "period": '.', "slash": '/', "zero": '0', "one": '1', "two": '2',
	"three": '3', "four": '4', "five": '5', "six": '6', "seven": '7', "eight": '8',
	"nine": '9', "colon": ':', "semicolon": ';', "less": '<', "equal": '=',
	"greater": '>', "question": '?', "at": '@', "bracketleft": '[', "backslash": '\\',
	"bracketright": ']', "asciicircum": '^', "underscore": '_', "grave": '`',
	"quoteleft": '‘', "braceleft": '{', "bar": '|', "braceright": '}',
	"asciitilde": '~', "exclamdown": '¡', "cent": '¢', "sterling": '£',
	"fraction": '⁄', "yen": '¥', "florin": 'ƒ', "section": '§', "currency": '¤',
	"quotedblleft": '“', "guillemotleft": '«', "guilsinglleft": '‹',
	"guilsinglright": '›', "fi": 'ﬁ', "fl": 'ﬂ', "ff": 'ﬀ',
	"ffi": 'ﬃ', "ffl": 'ﬄ', "endash": '–', "dagger": '†',
	"daggerdbl": '‡', "periodcentered": '·', "paragraph": '¶', "bullet": '•',
	"quotesinglbase": '‚', "quotedblbase": '„', "quotedblright": '”',
	"guillemotright": '»', "ellipsis": '…', "perthousand": '‰',
	"questiondown": '¿', "acute": '´', "circumflex": 'ˆ', "tilde": '˜', "macron": '¯',
	"breve": '˘', "dotaccent": '˙', "dieresis": '¨', "ring": '˚', "cedilla": '¸',
	"hungarumlaut": '˝', "ogonek": '˛', "caron": 'ˇ', "emdash": '—', "AE": 'Æ',
	"ordfeminine": 'ª', "Lslash": 'Ł', "Oslash": 'Ø', "OE": 'Œ', "ordmasculine": 'º',
	"ae": 'æ', "dotlessi": 'ı', "lslash": 'ł', "oslash": 'ø', "oe": 'œ',
	"germandbls": 'ß', "Euro": '€', "trademark": '™', "copyright": '©',
	"registered": '®', "degree": '°', "plusminus": '±', "multiply": '×',
	"divide": '÷', "minus": '−', "logicalnot": '¬', "mu": 'µ', "brokenbar": '¦',
	"onehalf": '½', "onequarter": '¼', "threequarters": '¾', "onesuperior": '¹',
	"twosuperior": '²', "threesuperior": '³', "nbspace": '\u00a0', "sfthyphen": '\u00ad',
	"Eth": 'Ð', "eth": 'ð', "Thorn": 'Þ', "thorn": 'þ', "infinity": '∞',
	"lessequal": '≤', "greaterequal": '≥', "notequal": '≠', "summation": '∑',
	"product": '∏', "integral": '∫', "radical": '√', "partialdiff": '∂',
	"approxequal": '≈', "element": '∈', "arrowright": '→', "arrowleft": '←',
	"arrowup": '↑', "arrowdown": '↓',
	// 希腊字母
	"Alpha": 'Α', "Beta": 'Β', "Gamma": 'Γ', "Delta": 'Δ', "Epsilon": 'Ε', "Zeta": 'Ζ',
	"Eta": 'Η', "Theta": 'Θ', "Iota": 'Ι', "Kappa": 'Κ', "Lambda": 'Λ', "Mu": 'Μ',
	"Nu": 'Ν', "Xi": 'Ξ', "Omicron": 'Ο', "Pi": 'Π', "Rho": 'Ρ', "Sigma": 'Σ',
	"Tau": 'Τ', "Upsilon": 'Υ', "Phi": 'Φ', "Chi": 'Χ', "Psi": 'Ψ', "Omega": 'Ω',
	"alpha": 'α', "beta": 'β', "gamma": 'γ', "delta": 'δ', "epsilon": 'ε', "zeta": 'ζ',
	"eta": 'η', "theta": 'θ', "iota": 'ι', "kappa": 'κ', "lambda": 'λ', "nu": 'ν',
	"xi": 'ξ', "omicron": 'ο', "pi": 'π', "rho": 'ρ', "sigma": 'σ', "sigma1": 'ς',
	"tau": 'τ', "upsilon": 'υ', "phi": 'φ', "chi": 'χ', "psi": 'ψ', "omega": 'ω',
}

// 带重音字母名的后缀与组合字符
var accentSuffixes = []struct {
	suffix string
	mark   rune
}{
	{"circumflex", '\u0302'},
	{"dieresis", '\u0308'},
	{"cedilla", '\u0327'},
	{"acute", '\u0301'},
	{"grave", '\u0300'},
	{"tilde", '\u0303'},
	{"caron", '\u030c'},
	{"ring", '\u030a'},
	{"macron", '\u0304'},
	{"breve", '\u0306'},
	{"ogonek", '\u0328'},
	{"dotaccent", '\u0307'},
}

// glyphNameToRune resolves an Adobe glyph name: uniXXXX, uXXXX[XX], the
// common AGL names, single letters and accented Latin letters such as "eacute".
func glyphNameToRune(name string) (rune, bool) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		// a.sc、one.oldstyle 等变体
		name = name[:i]
	}
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if len(name) == 1 {
		return rune(name[0]), true
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 {
		if v, err := strconv.ParseUint(name[3:7], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	for _, a := range accentSuffixes {
		base := strings.TrimSuffix(name, a.suffix)
		if base == name || len(base) != 1 {
			continue
		}
		composed := norm.NFC.String(base + string(a.mark))
		rs := []rune(composed)
		if len(rs) == 1 {
			return rs[0], true
		}
	}
	return 0, false
}
