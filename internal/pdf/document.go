package pdf

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Document 基于 pdfcpu 的文档读写
type Document struct {
	ctx  *model.Context
	path string

	helvetica *types.IndirectRef
	embedded  map[*FontInfo]*fontObjects
}

// PageData 页面解释所需的内容
type PageData struct {
	Number   int
	MediaBox Rect
	Content  []byte
	Fonts    map[string]*FontSpec
	// FontNames 页面字体资源名，用于避免新资源名冲突
	FontNames map[string]bool
}

// OpenDocument reads a PDF into memory
func OpenDocument(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewPDFError(ErrPDFNotFound, "文件不存在，请检查路径", err)
		}
		return nil, NewPDFError(ErrPDFInvalid, "无法访问文件", err)
	}
	if info.IsDir() {
		return nil, NewPDFError(ErrPDFInvalid, "路径指向目录而非文件", nil)
	}

	ctx, err := api.ReadContextFile(path)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "encrypt") || strings.Contains(msg, "password") {
			return nil, NewPDFError(ErrPDFEncrypted, "PDF 已加密", err)
		}
		return nil, NewPDFError(ErrPDFInvalid, "无法解析 PDF 文件", err)
	}
	if ctx.PageCount == 0 {
		return nil, NewPDFError(ErrPDFCorrupted, "PDF 没有页面", nil)
	}
	return &Document{ctx: ctx, path: path, embedded: map[*FontInfo]*fontObjects{}}, nil
}

// PageCount 页数
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

func (d *Document) deref(o types.Object) types.Object {
	if o == nil {
		return nil
	}
	obj, err := d.ctx.Dereference(o)
	if err != nil {
		return nil
	}
	return obj
}

func (d *Document) dict(o types.Object) types.Dict {
	if dict, ok := d.deref(o).(types.Dict); ok {
		return dict
	}
	return nil
}

func (d *Document) name(o types.Object) string {
	if n, ok := d.deref(o).(types.Name); ok {
		return string(n)
	}
	return ""
}

func (d *Document) number(o types.Object) (float64, bool) {
	switch v := d.deref(o).(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

func (d *Document) array(o types.Object) types.Array {
	if a, ok := d.deref(o).(types.Array); ok {
		return a
	}
	return nil
}

// streamBytes decodes a stream object
func (d *Document) streamBytes(o types.Object) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	var sd *types.StreamDict
	switch v := o.(type) {
	case types.IndirectRef:
		s, _, err := d.ctx.DereferenceStreamDict(v)
		if err != nil {
			return nil, err
		}
		sd = s
	case types.StreamDict:
		sd = &v
	default:
		return nil, nil
	}
	if sd == nil {
		return nil, nil
	}
	if err := sd.Decode(); err != nil {
		return nil, err
	}
	return sd.Content, nil
}

// inherited looks up a page attribute through the Parent chain
func (d *Document) inherited(page types.Dict, key string) types.Object {
	for depth := 0; page != nil && depth < 32; depth++ {
		if v, ok := page[key]; ok {
			return v
		}
		page = d.dict(page["Parent"])
	}
	return nil
}

// Page returns the concatenated content stream and font specs of page n (1-based)
func (d *Document) Page(n int) (*PageData, error) {
	pageDict, _, _, err := d.ctx.PageDict(n, false)
	if err != nil || pageDict == nil {
		return nil, NewPDFErrorWithPage(ErrPDFCorrupted, "无法读取页面", n, err)
	}
	pd := &PageData{Number: n, Fonts: map[string]*FontSpec{}, FontNames: map[string]bool{}}

	pd.MediaBox = Rect{0, 0, 612, 792}
	if box := d.array(d.inherited(pageDict, "MediaBox")); len(box) == 4 {
		var v [4]float64
		ok := true
		for i := range v {
			if v[i], ok = d.number(box[i]); !ok {
				break
			}
		}
		if ok {
			pd.MediaBox = Rect{v[0], v[1], v[2], v[3]}.Normalize()
		}
	}

	var content bytes.Buffer
	switch c := d.deref(pageDict["Contents"]).(type) {
	case types.StreamDict:
		b, err := d.streamBytes(pageDict["Contents"])
		if err != nil {
			return nil, NewPDFErrorWithPage(ErrPDFCorrupted, "无法解码内容流", n, err)
		}
		content.Write(b)
	case types.Array:
		for _, item := range c {
			b, err := d.streamBytes(item)
			if err != nil {
				return nil, NewPDFErrorWithPage(ErrPDFCorrupted, "无法解码内容流", n, err)
			}
			content.Write(b)
			// 多个流之间必须有分隔
			content.WriteByte('\n')
		}
	}
	pd.Content = content.Bytes()

	res := d.dict(d.inherited(pageDict, "Resources"))
	fonts := d.dict(res["Font"])
	names := make([]string, 0, len(fonts))
	for name := range fonts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pd.FontNames[name] = true
		if fd := d.dict(fonts[name]); fd != nil {
			spec := d.fontSpec(fd)
			if ref, ok := fonts[name].(types.IndirectRef); ok {
				spec.ObjNr = int(ref.ObjectNumber)
			}
			pd.Fonts[name] = spec
		}
	}
	return pd, nil
}

// fontSpec extracts the entries the decoder needs from a font dictionary
func (d *Document) fontSpec(fd types.Dict) *FontSpec {
	spec := &FontSpec{
		Subtype:  d.name(fd["Subtype"]),
		BaseFont: d.name(fd["BaseFont"]),
		W:        map[int]float64{},
	}
	switch enc := d.deref(fd["Encoding"]).(type) {
	case types.Name:
		spec.Encoding = string(enc)
	case types.Dict:
		spec.BaseEncoding = d.name(enc["BaseEncoding"])
		if diff := d.array(enc["Differences"]); len(diff) > 0 {
			spec.Differences = map[int]string{}
			code := 0
			for _, o := range diff {
				switch v := d.deref(o).(type) {
				case types.Integer:
					code = int(v)
				case types.Name:
					spec.Differences[code] = string(v)
					code++
				}
			}
		}
	case types.StreamDict:
		// 嵌入的 CMap
		if b, err := d.streamBytes(fd["Encoding"]); err == nil {
			spec.EncodingCMap = b
		}
		spec.Encoding = d.name(enc.Dict["CMapName"])
	}
	if b, err := d.streamBytes(fd["ToUnicode"]); err == nil {
		spec.ToUnicode = b
	}
	if fc, ok := d.number(fd["FirstChar"]); ok {
		spec.FirstChar = int(fc)
	}
	for _, o := range d.array(fd["Widths"]) {
		w, _ := d.number(o)
		spec.Widths = append(spec.Widths, w)
	}
	for _, o := range d.array(fd["FontMatrix"]) {
		v, _ := d.number(o)
		spec.FontMatrix = append(spec.FontMatrix, v)
	}

	desc := d.dict(fd["FontDescriptor"])
	if descendants := d.array(fd["DescendantFonts"]); len(descendants) > 0 {
		if cf := d.dict(descendants[0]); cf != nil {
			spec.DescendantSubtype = d.name(cf["Subtype"])
			if dw, ok := d.number(cf["DW"]); ok {
				spec.DW = dw
			}
			parseWArray(d, d.array(cf["W"]), spec.W)
			if si := d.dict(cf["CIDSystemInfo"]); si != nil {
				if s, ok := d.deref(si["Ordering"]).(types.StringLiteral); ok {
					spec.Ordering = string(s)
				}
			}
			desc = d.dict(cf["FontDescriptor"])
		}
	}
	if desc != nil {
		spec.Ascent, _ = d.number(desc["Ascent"])
		spec.Descent, _ = d.number(desc["Descent"])
		spec.MissingWidth, _ = d.number(desc["MissingWidth"])
		if flags, ok := d.number(desc["Flags"]); ok {
			spec.Symbolic = int(flags)&4 != 0
		}
		for _, k := range []string{"FontFile", "FontFile2", "FontFile3"} {
			if _, ok := desc[k]; ok {
				spec.HasFontFile = true
			}
		}
	}
	return spec
}

// parseWArray reads CID widths: c [w1 w2 ...] or cFirst cLast w
func parseWArray(d *Document, arr types.Array, out map[int]float64) {
	for i := 0; i < len(arr); {
		first, ok := d.number(arr[i])
		if !ok || i+1 >= len(arr) {
			return
		}
		if ws := d.array(arr[i+1]); ws != nil {
			for j, o := range ws {
				w, _ := d.number(o)
				out[int(first)+j] = w
			}
			i += 2
			continue
		}
		if i+2 >= len(arr) {
			return
		}
		last, _ := d.number(arr[i+1])
		w, _ := d.number(arr[i+2])
		for c := int(first); c <= int(last) && c-int(first) < 65536; c++ {
			out[c] = w
		}
		i += 3
	}
}

// SetPageContent replaces the page's content streams with one new stream
func (d *Document) SetPageContent(n int, content []byte) error {
	pageDict, _, _, err := d.ctx.PageDict(n, false)
	if err != nil || pageDict == nil {
		return NewPDFErrorWithPage(ErrPDFCorrupted, "无法读取页面", n, err)
	}
	sd, err := d.ctx.NewStreamDictForBuf(content)
	if err != nil {
		return NewPDFErrorWithPage(ErrWriteFailed, "无法创建内容流", n, err)
	}
	if err := sd.Encode(); err != nil {
		return NewPDFErrorWithPage(ErrWriteFailed, "无法编码内容流", n, err)
	}
	ref, err := d.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return NewPDFErrorWithPage(ErrWriteFailed, "无法写入内容流", n, err)
	}
	pageDict["Contents"] = *ref
	return nil
}

// AddPageFonts adds font resources to page n without touching resource
// dictionaries shared with other pages.
func (d *Document) AddPageFonts(n int, fonts map[string]types.IndirectRef) error {
	if len(fonts) == 0 {
		return nil
	}
	pageDict, _, _, err := d.ctx.PageDict(n, false)
	if err != nil || pageDict == nil {
		return NewPDFErrorWithPage(ErrPDFCorrupted, "无法读取页面", n, err)
	}
	res := types.NewDict()
	for k, v := range d.dict(d.inherited(pageDict, "Resources")) {
		res[k] = v
	}
	fontDict := types.NewDict()
	for k, v := range d.dict(res["Font"]) {
		fontDict[k] = v
	}
	for name, ref := range fonts {
		fontDict[name] = ref
	}
	res["Font"] = fontDict
	pageDict["Resources"] = res
	return nil
}

var (
	modDatePattern = regexp.MustCompile(`/(?:ModDate|CreationDate)\s*\(D:([0-9]+)`)
	idPattern      = regexp.MustCompile(`/ID\s*\[\s*<([0-9A-Fa-f]+)>\s*<([0-9A-Fa-f]+)>\s*\]`)
)

// Write serializes the document. The modification date and file ID are
// normalized so identical inputs produce identical bytes.
func (d *Document) Write(out string) error {
	conf := d.ctx.Configuration
	if conf == nil {
		conf = model.NewDefaultConfiguration()
		d.ctx.Configuration = conf
	}
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false

	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return NewPDFError(ErrWriteFailed, "无法生成 PDF", err)
	}
	data := normalizeVolatile(sortObjects(buf.Bytes()))
	if err := os.WriteFile(out, data, 0644); err != nil {
		return NewPDFError(ErrWriteFailed, "无法写入输出文件", err)
	}
	return nil
}

var startxrefPattern = regexp.MustCompile(`startxref\s+(\d+)\s*%%EOF\s*$`)

// xrefEntry 一个在用对象：编号、正文偏移、xref 行在文件中的位置
type xrefEntry struct {
	nr, off, line int
}

// sortObjects lays the body objects out by object number and rewrites the
// xref offsets. pdfcpu emits objects in resource-dictionary iteration order,
// which varies between runs. The body length does not change, so startxref
// stays valid. Anything it cannot parse is returned untouched.
func sortObjects(data []byte) []byte {
	m := startxrefPattern.FindSubmatch(data)
	if m == nil {
		return data
	}
	xref, err := strconv.Atoi(string(m[1]))
	if err != nil || xref <= 0 || xref >= len(data) || !bytes.HasPrefix(data[xref:], []byte("xref")) {
		return data
	}

	var objs []xrefEntry
	pos, nr := xref, 0
	for i, line := range bytes.SplitAfter(data[xref:], []byte("\n")) {
		at := pos
		pos += len(line)
		if i == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("trailer")) {
			break
		}
		f := bytes.Fields(line)
		switch {
		case len(f) == 2:
			if nr, err = strconv.Atoi(string(f[0])); err != nil {
				return data
			}
		case len(f) == 3 && len(f[0]) == 10:
			if string(f[2]) == "n" {
				off, err := strconv.Atoi(string(f[0]))
				if err != nil {
					return data
				}
				objs = append(objs, xrefEntry{nr: nr, off: off, line: at})
			}
			nr++
		default:
			return data
		}
	}
	if len(objs) == 0 {
		return data
	}

	byOff := append([]xrefEntry(nil), objs...)
	sort.Slice(byOff, func(i, j int) bool { return byOff[i].off < byOff[j].off })
	bodies := make(map[int][]byte, len(objs))
	for i, e := range byOff {
		end := xref
		if i+1 < len(byOff) {
			end = byOff[i+1].off
		}
		if e.off <= 0 || e.off >= end {
			return data
		}
		body := data[e.off:end]
		if !bytes.HasPrefix(body, []byte(strconv.Itoa(e.nr)+" ")) {
			return data
		}
		bodies[e.nr] = body
	}

	sort.Slice(objs, func(i, j int) bool { return objs[i].nr < objs[j].nr })
	out := make([]byte, 0, len(data))
	out = append(out, data[:byOff[0].off]...)
	offsets := make(map[int]int, len(objs))
	for _, e := range objs {
		offsets[e.nr] = len(out)
		out = append(out, bodies[e.nr]...)
	}
	if len(out) != xref {
		return data
	}
	out = append(out, data[xref:]...)
	for _, e := range objs {
		copy(out[e.line:], fmt.Sprintf("%010d", offsets[e.nr]))
	}
	return out
}

// normalizeVolatile rewrites the date digits and the file ID in place,
// keeping byte lengths so xref offsets stay valid.
func normalizeVolatile(data []byte) []byte {
	const fixedDate = "20000101000000"
	data = modDatePattern.ReplaceAllFunc(data, func(m []byte) []byte {
		out := append([]byte(nil), m...)
		digits := bytes.LastIndex(out, []byte("D:")) + 2
		for i := digits; i < len(out); i++ {
			if j := i - digits; j < len(fixedDate) {
				out[i] = fixedDate[j]
			} else {
				out[i] = '0'
			}
		}
		return out
	})

	// ID 取自置零后的内容摘要
	zeroed := idPattern.ReplaceAllFunc(append([]byte(nil), data...), func(m []byte) []byte {
		out := append([]byte(nil), m...)
		inHex := false
		for i, c := range out {
			switch {
			case c == '<':
				inHex = true
			case c == '>':
				inHex = false
			case inHex:
				out[i] = '0'
			}
		}
		return out
	})
	sum := sha256.Sum256(zeroed)
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	return idPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		loc := idPattern.FindSubmatchIndex(m)
		out := append([]byte(nil), m...)
		for k := 2; k+1 < len(loc); k += 2 {
			n := loc[k+1] - loc[k]
			copy(out[loc[k]:], strings.Repeat(digest, n/len(digest)+1)[:n])
		}
		return out
	})
}

// Validate runs pdfcpu validation on a written file
func Validate(path string) error {
	if err := api.ValidateFile(path, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}
	return nil
}
