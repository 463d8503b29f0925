package pdf

import (
	"bytes"
	"sort"
	"strconv"

	"golang.org/x/text/encoding/unicode"
)

// codeRange 码空间区间
type codeRange struct {
	lo, hi []byte
}

func (r codeRange) contains(code []byte) bool {
	if len(code) != len(r.lo) {
		return false
	}
	for i := range code {
		if code[i] < r.lo[i] || code[i] > r.hi[i] {
			return false
		}
	}
	return true
}

type bfRange struct {
	lo, hi uint32
	n      int
	dst    []byte   // 起始 UTF-16BE，按偏移递增最后一个码元
	arr    [][]byte // 数组形式的目标
}

type cidRange struct {
	lo, hi uint32
	n      int
	cid    uint32
}

// CMap 解析后的 ToUnicode 或编码 CMap
type CMap struct {
	Name      string
	Vertical  bool
	codespace []codeRange
	chars     map[string][]byte // code -> UTF-16BE
	ranges    []bfRange
	cidChars  map[string]uint32
	cidRanges []cidRange
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// decodeUTF16BE decodes a UTF-16BE byte sequence, tolerating odd lengths
func decodeUTF16BE(b []byte) string {
	if len(b)%2 == 1 {
		b = append([]byte{0}, b...)
	}
	out, err := utf16be.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

// ParseCMap parses the PostScript-like CMap syntax used by ToUnicode and
// embedded encoding streams. Unknown operators are ignored.
func ParseCMap(data []byte) (*CMap, error) {
	ops, err := ParseContent(data)
	cm := &CMap{chars: map[string][]byte{}, cidChars: map[string]uint32{}}
	if err != nil && len(ops) == 0 {
		return nil, err
	}
	var lastName string
	for _, op := range ops {
		args := op.Operands
		switch op.Op {
		case "def":
			if len(args) == 2 && args[0].Kind == OperandName {
				switch args[0].Name {
				case "CMapName":
					if args[1].Kind == OperandName {
						cm.Name = args[1].Name
					}
				case "WMode":
					cm.Vertical = args[1].Kind == OperandNumber && args[1].Num == 1
				}
			}
			lastName = ""
		case "endcodespacerange":
			for i := 0; i+1 < len(args); i += 2 {
				if isHexOrStr(args[i]) && isHexOrStr(args[i+1]) {
					cm.codespace = append(cm.codespace, codeRange{lo: args[i].Bytes, hi: args[i+1].Bytes})
				}
			}
		case "endbfchar":
			for i := 0; i+1 < len(args); i += 2 {
				if isHexOrStr(args[i]) {
					switch args[i+1].Kind {
					case OperandHexString, OperandString:
						cm.chars[string(args[i].Bytes)] = args[i+1].Bytes
					case OperandName:
						// 少数 CMap 使用字形名
						if r, ok := glyphNameToRune(args[i+1].Name); ok {
							cm.chars[string(args[i].Bytes)] = []byte(encodeUTF16BE(string(r)))
						}
					}
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(args); i += 3 {
				lo, hi, dst := args[i], args[i+1], args[i+2]
				if !isHexOrStr(lo) || !isHexOrStr(hi) {
					continue
				}
				r := bfRange{lo: codeValue(lo.Bytes), hi: codeValue(hi.Bytes), n: len(lo.Bytes)}
				switch dst.Kind {
				case OperandHexString, OperandString:
					r.dst = dst.Bytes
				case OperandArray:
					for _, a := range dst.Array {
						r.arr = append(r.arr, a.Bytes)
					}
				default:
					continue
				}
				cm.ranges = append(cm.ranges, r)
			}
		case "endcidchar":
			for i := 0; i+1 < len(args); i += 2 {
				if isHexOrStr(args[i]) && args[i+1].Kind == OperandNumber {
					cm.cidChars[string(args[i].Bytes)] = uint32(args[i+1].Num)
				}
			}
		case "endcidrange":
			for i := 0; i+2 < len(args); i += 3 {
				if isHexOrStr(args[i]) && isHexOrStr(args[i+1]) && args[i+2].Kind == OperandNumber {
					cm.cidRanges = append(cm.cidRanges, cidRange{
						lo: codeValue(args[i].Bytes), hi: codeValue(args[i+1].Bytes),
						n: len(args[i].Bytes), cid: uint32(args[i+2].Num),
					})
				}
			}
		case "usecmap":
			if len(args) > 0 && args[0].Kind == OperandName {
				lastName = args[0].Name
			}
		}
	}
	if cm.Name == "" {
		cm.Name = lastName
	}
	sort.Slice(cm.codespace, func(i, j int) bool { return len(cm.codespace[i].lo) < len(cm.codespace[j].lo) })
	return cm, nil
}

func isHexOrStr(o Operand) bool {
	return o.Kind == OperandHexString || o.Kind == OperandString
}

// CodeLen returns the length of the code at the start of b according to the
// codespace ranges, or 0 if the CMap has none.
func (c *CMap) CodeLen(b []byte) int {
	if len(c.codespace) == 0 || len(b) == 0 {
		return 0
	}
	for _, r := range c.codespace {
		n := len(r.lo)
		if n <= len(b) && r.contains(b[:n]) {
			return n
		}
	}
	// 不在任何码空间中：按最短码长前进
	return len(c.codespace[0].lo)
}

// Lookup maps a code to its Unicode text
func (c *CMap) Lookup(code []byte) (string, bool) {
	if dst, ok := c.chars[string(code)]; ok {
		return decodeUTF16BE(dst), true
	}
	v := codeValue(code)
	for _, r := range c.ranges {
		if r.n != len(code) || v < r.lo || v > r.hi {
			continue
		}
		off := v - r.lo
		if r.arr != nil {
			if int(off) < len(r.arr) {
				return decodeUTF16BE(r.arr[off]), true
			}
			return "", false
		}
		dst := append([]byte(nil), r.dst...)
		// 递增最后一个码元
		carry := off
		for i := len(dst) - 1; i >= 0 && carry > 0; i-- {
			sum := uint32(dst[i]) + carry
			dst[i] = byte(sum)
			carry = sum >> 8
		}
		return decodeUTF16BE(dst), true
	}
	return "", false
}

// CID maps a code to a CID through cidchar/cidrange entries
func (c *CMap) CID(code []byte) (uint32, bool) {
	if cid, ok := c.cidChars[string(code)]; ok {
		return cid, true
	}
	v := codeValue(code)
	for _, r := range c.cidRanges {
		if r.n == len(code) && v >= r.lo && v <= r.hi {
			return r.cid + (v - r.lo), true
		}
	}
	return 0, false
}

// HasCIDMappings reports whether the CMap maps codes to CIDs
func (c *CMap) HasCIDMappings() bool {
	return len(c.cidChars) > 0 || len(c.cidRanges) > 0
}

func encodeUTF16BE(s string) string {
	out, err := utf16be.NewEncoder().String(s)
	if err != nil {
		return ""
	}
	return out
}

// BuildToUnicodeCMap writes a ToUnicode CMap for 2-byte codes
func BuildToUnicodeCMap(mapping map[uint16]rune) []byte {
	codes := make([]int, 0, len(mapping))
	for c := range mapping {
		codes = append(codes, int(c))
	}
	sort.Ints(codes)

	var b bytes.Buffer
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for start := 0; start < len(codes); start += 100 {
		end := start + 100
		if end > len(codes) {
			end = len(codes)
		}
		b.WriteString(strconv.Itoa(end-start) + " beginbfchar\n")
		for _, c := range codes[start:end] {
			b.WriteString(hexString([]byte{byte(c >> 8), byte(c)}))
			b.WriteByte(' ')
			b.WriteString(hexString([]byte(encodeUTF16BE(string(mapping[uint16(c)])))))
			b.WriteByte('\n')
		}
		b.WriteString("endbfchar\n")
	}
	b.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return b.Bytes()
}

// ReverseMap inverts the bfchar/bfrange entries for single-rune targets.
// The lowest code wins when several codes map to the same rune.
func (c *CMap) ReverseMap() map[rune][]byte {
	rev := map[rune][]byte{}
	put := func(code []byte, dst []byte) {
		s := []rune(decodeUTF16BE(dst))
		if len(s) != 1 {
			return
		}
		if old, ok := rev[s[0]]; ok && bytes.Compare(old, code) <= 0 {
			return
		}
		rev[s[0]] = append([]byte(nil), code...)
	}
	for code, dst := range c.chars {
		put([]byte(code), dst)
	}
	for _, r := range c.ranges {
		if r.hi < r.lo || r.hi-r.lo > 0xFFFF {
			continue
		}
		for v := r.lo; v <= r.hi; v++ {
			code := make([]byte, r.n)
			for i, x := r.n-1, v; i >= 0; i, x = i-1, x>>8 {
				code[i] = byte(x)
			}
			if s, ok := c.Lookup(code); ok {
				put(code, []byte(encodeUTF16BE(s)))
			}
		}
	}
	return rev
}
