package pdf

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/font/sfnt"
)

// fontObjects 已写入文档的 Type0 字体（横排、竖排共用同一个 CIDFont）
type fontObjects struct {
	cidFont    types.IndirectRef
	toUnicode  types.IndirectRef
	baseName   string
	horizontal *types.IndirectRef
	vertical   *types.IndirectRef
}

// subsetTag derives the six-letter subset prefix from the glyph set
func subsetTag(name string, gids []uint16) string {
	h := sha256.New()
	h.Write([]byte(name))
	for _, g := range gids {
		h.Write([]byte{byte(g >> 8), byte(g)})
	}
	sum := h.Sum(nil)
	tag := make([]byte, 6)
	for i := range tag {
		tag[i] = 'A' + sum[i]%26
	}
	return string(tag)
}

// widthRuns groups consecutive glyph ids into W array entries: c [w1 w2 ...]
func widthRuns(widths map[uint16]float64) types.Array {
	gids := make([]int, 0, len(widths))
	for g := range widths {
		gids = append(gids, int(g))
	}
	sort.Ints(gids)
	var arr types.Array
	for i := 0; i < len(gids); {
		j := i
		var ws types.Array
		for j < len(gids) && gids[j] == gids[i]+(j-i) {
			ws = append(ws, types.Integer(int(math.Round(widths[uint16(gids[j])]*1000))))
			j++
		}
		arr = append(arr, types.Integer(gids[i]), ws)
		i = j
	}
	return arr
}

func (d *Document) newStream(content []byte, extra types.Dict) (types.IndirectRef, error) {
	sd, err := d.ctx.NewStreamDictForBuf(content)
	if err != nil {
		return types.IndirectRef{}, err
	}
	for k, v := range extra {
		sd.Dict[k] = v
	}
	if err := sd.Encode(); err != nil {
		return types.IndirectRef{}, err
	}
	ref, err := d.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return types.IndirectRef{}, err
	}
	return *ref, nil
}

func (d *Document) newObject(obj types.Object) (types.IndirectRef, error) {
	ref, err := d.ctx.IndRefForNewObject(obj)
	if err != nil {
		return types.IndirectRef{}, err
	}
	return *ref, nil
}

// HelveticaRef returns the shared standard-14 fallback font object
func (d *Document) HelveticaRef() (types.IndirectRef, error) {
	if d.helvetica != nil {
		return *d.helvetica, nil
	}
	ref, err := d.newObject(types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("Helvetica"),
		"Encoding": types.Name("WinAnsiEncoding"),
	})
	if err != nil {
		return types.IndirectRef{}, err
	}
	d.helvetica = &ref
	return ref, nil
}

// EmbedFont writes a substitute font once per document: the font program
// subset to the registered glyphs, its descriptor, the CIDFont
// and a Type0 font for the requested writing direction.
func (d *Document) EmbedFont(fi *FontInfo, vertical bool) (types.IndirectRef, error) {
	objs, ok := d.embedded[fi]
	if !ok {
		var err error
		if objs, err = d.embedProgram(fi); err != nil {
			return types.IndirectRef{}, fmt.Errorf("embed %s: %w", fi.Name, err)
		}
		d.embedded[fi] = objs
	}
	slot, enc := &objs.horizontal, "Identity-H"
	if vertical {
		slot, enc = &objs.vertical, "Identity-V"
	}
	if *slot != nil {
		return **slot, nil
	}
	ref, err := d.newObject(types.Dict{
		"Type":            types.Name("Font"),
		"Subtype":         types.Name("Type0"),
		"BaseFont":        types.Name(objs.baseName),
		"Encoding":        types.Name(enc),
		"DescendantFonts": types.Array{objs.cidFont},
		"ToUnicode":       objs.toUnicode,
	})
	if err != nil {
		return types.IndirectRef{}, err
	}
	*slot = &ref
	return ref, nil
}

func (d *Document) embedProgram(fi *FontInfo) (*fontObjects, error) {
	// 快照已登记的字形
	fi.reg.mu.Lock()
	gids := make([]uint16, 0, len(fi.used))
	keep := make(map[uint16]bool, len(fi.used))
	widths := make(map[uint16]float64, len(fi.used))
	toUni := make(map[uint16]rune, len(fi.used))
	for g, r := range fi.used {
		gids = append(gids, g)
		keep[g] = true
		widths[g] = fi.advances[sfnt.GlyphIndex(g)]
		toUni[g] = r
	}
	fi.reg.mu.Unlock()
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })

	program, err := subsetSFNT(fi.data, fi.Index, keep)
	if err != nil {
		return nil, err
	}
	tables, err := readTableDir(program, 0)
	if err != nil {
		return nil, err
	}
	baseName := subsetTag(fi.Name, gids) + "+" + fi.Name

	fileRef, err := d.newStream(program, types.Dict{"Length1": types.Integer(len(program))})
	if err != nil {
		return nil, err
	}

	bbox := fontBBox(tables)
	descRef, err := d.newObject(types.Dict{
		"Type":        types.Name("FontDescriptor"),
		"FontName":    types.Name(baseName),
		"Flags":       types.Integer(4),
		"FontBBox":    types.Array{types.Float(bbox[0]), types.Float(bbox[1]), types.Float(bbox[2]), types.Float(bbox[3])},
		"ItalicAngle": types.Integer(0),
		"Ascent":      types.Float(math.Round(fi.Ascent * 1000)),
		"Descent":     types.Float(math.Round(fi.Descent * 1000)),
		"CapHeight":   types.Float(math.Round(fi.Ascent * 1000)),
		"StemV":       types.Integer(80),
		"FontFile2":   fileRef,
	})
	if err != nil {
		return nil, err
	}

	cid := types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("CIDFontType2"),
		"BaseFont": types.Name(baseName),
		"CIDSystemInfo": types.Dict{
			"Registry":   types.StringLiteral("Adobe"),
			"Ordering":   types.StringLiteral("Identity"),
			"Supplement": types.Integer(0),
		},
		"FontDescriptor": descRef,
		"DW":             types.Integer(1000),
		"W":              widthRuns(widths),
		"CIDToGIDMap":    types.Name("Identity"),
	}
	cidRef, err := d.newObject(cid)
	if err != nil {
		return nil, err
	}
	tuRef, err := d.newStream(BuildToUnicodeCMap(toUni), nil)
	if err != nil {
		return nil, err
	}
	return &fontObjects{cidFont: cidRef, toUnicode: tuRef, baseName: baseName}, nil
}

// pageFontFor describes the font object that EmbedFont or HelveticaRef will
// write, so generated content can be re-interpreted before it is committed.
func (fi *FontInfo) pageFontFor(res string, vertical bool) *pageFont {
	switch {
	case fi.doc != nil:
		return fi.doc
	case fi.Builtin:
		return newPageFont(res, &FontSpec{
			Subtype: "Type1", BaseFont: fi.Name, Encoding: "WinAnsiEncoding",
		})
	}
	fi.reg.mu.Lock()
	w := make(map[int]float64, len(fi.used))
	toUni := make(map[uint16]rune, len(fi.used))
	for g, r := range fi.used {
		w[int(g)] = math.Round(fi.advances[sfnt.GlyphIndex(g)] * 1000)
		toUni[g] = r
	}
	fi.reg.mu.Unlock()
	enc := "Identity-H"
	if vertical {
		enc = "Identity-V"
	}
	return newPageFont(res, &FontSpec{
		Subtype:           "Type0",
		BaseFont:          fi.Name,
		Encoding:          enc,
		DescendantSubtype: "CIDFontType2",
		DW:                1000,
		W:                 w,
		Ascent:            math.Round(fi.Ascent * 1000),
		Descent:           math.Round(fi.Descent * 1000),
		ToUnicode:         BuildToUnicodeCMap(toUni),
		HasFontFile:       true,
	})
}
