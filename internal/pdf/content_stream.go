package pdf

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// OperandKind 操作数类型
type OperandKind int

const (
	OperandNumber OperandKind = iota
	OperandName
	OperandString
	OperandHexString
	OperandArray
	OperandDict
	OperandKeyword // true / false / null
)

// Operand 内容流中的操作数
type Operand struct {
	Kind  OperandKind
	Num   float64
	Name  string
	Bytes []byte // 字符串内容（已解码转义）
	Array []Operand
}

// Operation 一个操作符及其操作数，Start/End 为在内容流中的字节区间
type Operation struct {
	Op       string
	Operands []Operand
	Start    int
	End      int
}

// Number returns operand i as a number, ok=false if absent or not numeric
func (o Operation) Number(i int) (float64, bool) {
	if i < 0 || i >= len(o.Operands) || o.Operands[i].Kind != OperandNumber {
		return 0, false
	}
	return o.Operands[i].Num, true
}

// Numbers returns the last n operands as numbers
func (o Operation) Numbers(n int) ([]float64, bool) {
	if len(o.Operands) < n {
		return nil, false
	}
	out := make([]float64, n)
	base := len(o.Operands) - n
	for i := 0; i < n; i++ {
		v, ok := o.Number(base + i)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// ContentSyntaxError 内容流语法错误
type ContentSyntaxError struct {
	Offset int
	Msg    string
}

func (e *ContentSyntaxError) Error() string {
	return fmt.Sprintf("content stream syntax error at offset %d: %s", e.Offset, e.Msg)
}

func isWhite(b byte) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(b byte) bool {
	return !isWhite(b) && !isDelim(b)
}

// contentLexer 按字节偏移扫描内容流
type contentLexer struct {
	data []byte
	pos  int
}

func (l *contentLexer) skipSpace() {
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhite(b) {
			l.pos++
			continue
		}
		if b == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *contentLexer) errorf(format string, args ...interface{}) error {
	return &ContentSyntaxError{Offset: l.pos, Msg: fmt.Sprintf(format, args...)}
}

// token kinds returned by next
const (
	tokEOF = iota
	tokOperand
	tokOperator
	tokArrayEnd
	tokDictEnd
)

// next reads an operand or operator; arrays and dicts are read recursively
func (l *contentLexer) next() (int, Operand, string, error) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return tokEOF, Operand{}, "", nil
	}
	b := l.data[l.pos]
	switch {
	case b == '/':
		l.pos++
		start := l.pos
		for l.pos < len(l.data) && isRegular(l.data[l.pos]) {
			l.pos++
		}
		return tokOperand, Operand{Kind: OperandName, Name: decodeName(l.data[start:l.pos])}, "", nil
	case b == '(':
		s, err := l.readLiteral()
		return tokOperand, Operand{Kind: OperandString, Bytes: s}, "", err
	case b == '<' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '<':
		l.pos += 2
		d, err := l.readDict()
		return tokOperand, d, "", err
	case b == '<':
		s, err := l.readHex()
		return tokOperand, Operand{Kind: OperandHexString, Bytes: s}, "", err
	case b == '>' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '>':
		l.pos += 2
		return tokDictEnd, Operand{}, "", nil
	case b == '[':
		l.pos++
		a, err := l.readArray()
		return tokOperand, a, "", err
	case b == ']':
		l.pos++
		return tokArrayEnd, Operand{}, "", nil
	case b == '{' || b == '}':
		// PostScript 计算函数只出现在函数流中，这里按普通分隔符跳过
		l.pos++
		return l.next()
	case b == ')' || b == '>':
		return 0, Operand{}, "", l.errorf("unexpected %q", b)
	}

	start := l.pos
	for l.pos < len(l.data) && isRegular(l.data[l.pos]) {
		l.pos++
	}
	word := l.data[start:l.pos]
	if n, ok := parseNumber(word); ok {
		return tokOperand, Operand{Kind: OperandNumber, Num: n}, "", nil
	}
	switch string(word) {
	case "true", "false", "null":
		return tokOperand, Operand{Kind: OperandKeyword, Name: string(word)}, "", nil
	}
	return tokOperator, Operand{}, string(word), nil
}

func parseNumber(word []byte) (float64, bool) {
	if len(word) == 0 {
		return 0, false
	}
	c := word[0]
	if !(c >= '0' && c <= '9') && c != '-' && c != '+' && c != '.' {
		return 0, false
	}
	s := string(word)
	// 容错：处理 "--1" 这类重复符号
	for len(s) > 1 && (s[0] == '-' || s[0] == '+') && (s[1] == '-' || s[1] == '+') {
		s = s[1:]
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func decodeName(raw []byte) string {
	if bytes.IndexByte(raw, '#') < 0 {
		return string(raw)
	}
	var out []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '#' && i+2 < len(raw) {
			if v, err := strconv.ParseUint(string(raw[i+1:i+3]), 16, 8); err == nil {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, raw[i])
	}
	return string(out)
}

func (l *contentLexer) readLiteral() ([]byte, error) {
	l.pos++ // (
	depth := 1
	var out []byte
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		l.pos++
		switch b {
		case '(':
			depth++
			out = append(out, b)
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
			out = append(out, b)
		case '\\':
			if l.pos >= len(l.data) {
				return out, l.errorf("unterminated string")
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(e - '0')
				for k := 0; k < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; k++ {
					v = v*8 + int(l.data[l.pos]-'0')
					l.pos++
				}
				out = append(out, byte(v))
			default:
				out = append(out, e)
			}
		default:
			out = append(out, b)
		}
	}
	return out, l.errorf("unterminated string")
}

func (l *contentLexer) readHex() ([]byte, error) {
	l.pos++ // <
	var out []byte
	hi := -1
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		l.pos++
		if b == '>' {
			if hi >= 0 {
				out = append(out, byte(hi<<4))
			}
			return out, nil
		}
		if isWhite(b) {
			continue
		}
		v := hexVal(b)
		if v < 0 {
			return out, l.errorf("invalid hex digit %q", b)
		}
		if hi < 0 {
			hi = v
		} else {
			out = append(out, byte(hi<<4|v))
			hi = -1
		}
	}
	return out, l.errorf("unterminated hex string")
}

func hexVal(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	}
	return -1
}

func (l *contentLexer) readArray() (Operand, error) {
	arr := Operand{Kind: OperandArray}
	for {
		kind, op, word, err := l.next()
		if err != nil {
			return arr, err
		}
		switch kind {
		case tokEOF:
			return arr, l.errorf("unterminated array")
		case tokArrayEnd:
			return arr, nil
		case tokOperand:
			arr.Array = append(arr.Array, op)
		case tokOperator:
			return arr, l.errorf("operator %q inside array", word)
		case tokDictEnd:
			return arr, l.errorf("unexpected >> inside array")
		}
	}
}

// readDict keeps key/value operands in order as a flat list
func (l *contentLexer) readDict() (Operand, error) {
	d := Operand{Kind: OperandDict}
	for {
		kind, op, word, err := l.next()
		if err != nil {
			return d, err
		}
		switch kind {
		case tokEOF:
			return d, l.errorf("unterminated dictionary")
		case tokDictEnd:
			return d, nil
		case tokOperand:
			d.Array = append(d.Array, op)
		case tokOperator:
			return d, l.errorf("operator %q inside dictionary", word)
		case tokArrayEnd:
			return d, l.errorf("unexpected ] inside dictionary")
		}
	}
}

// skipInlineImage 跳过 BI ... ID <data> EI，返回 EI 之后的位置
func (l *contentLexer) skipInlineImage() error {
	// 读取字典部分直到 ID
	for {
		kind, _, word, err := l.next()
		if err != nil {
			return err
		}
		if kind == tokEOF {
			return l.errorf("unterminated inline image")
		}
		if kind == tokOperator && word == "ID" {
			break
		}
	}
	// ID 后紧跟一个空白字节
	if l.pos < len(l.data) && isWhite(l.data[l.pos]) {
		l.pos++
	}
	for i := l.pos; i+1 < len(l.data); i++ {
		if l.data[i] == 'E' && l.data[i+1] == 'I' &&
			(i == 0 || isWhite(l.data[i-1])) &&
			(i+2 == len(l.data) || isWhite(l.data[i+2]) || isDelim(l.data[i+2])) {
			l.pos = i + 2
			return nil
		}
	}
	return l.errorf("inline image without EI")
}

// ParseContent tokenizes a decoded content stream into operations with byte spans.
// Inline images become a single "BI" operation spanning up to EI.
func ParseContent(data []byte) ([]Operation, error) {
	l := &contentLexer{data: data}
	var ops []Operation
	var operands []Operand
	opStart := -1

	for {
		l.skipSpace()
		tokStart := l.pos
		kind, op, word, err := l.next()
		if err != nil {
			return ops, err
		}
		switch kind {
		case tokEOF:
			// 末尾多余的操作数被忽略
			return ops, nil
		case tokOperand:
			if opStart < 0 {
				opStart = tokStart
			}
			operands = append(operands, op)
		case tokOperator:
			if opStart < 0 {
				opStart = tokStart
			}
			if word == "BI" {
				if err := l.skipInlineImage(); err != nil {
					return ops, err
				}
			}
			ops = append(ops, Operation{Op: word, Operands: operands, Start: opStart, End: l.pos})
			operands = nil
			opStart = -1
		case tokArrayEnd, tokDictEnd:
			return ops, l.errorf("unbalanced delimiter")
		}
	}
}

// fmtNum formats a number with at most 4 decimals and no trailing zeros
func fmtNum(v float64) string {
	s := strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
	if s == "-0" {
		return "0"
	}
	return s
}

// hexString 编码为 <...>
func hexString(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*2+2)
	out = append(out, '<')
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0x0F])
	}
	return string(append(out, '>'))
}

// pdfName 编码名称中的特殊字符
func pdfName(name string) string {
	var sb bytes.Buffer
	sb.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7E || isDelim(c) || c == '#' {
			fmt.Fprintf(&sb, "#%02X", c)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
