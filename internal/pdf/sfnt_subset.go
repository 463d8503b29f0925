package pdf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

var errBadSFNT = errors.New("malformed sfnt data")

// readTableDir reads the table directory of a font, following the TTC
// header for collections. Table slices alias data.
func readTableDir(data []byte, index int) (map[string][]byte, error) {
	off := 0
	if len(data) >= 12 && string(data[:4]) == "ttcf" {
		n := int(binary.BigEndian.Uint32(data[8:]))
		if index < 0 || index >= n || len(data) < 12+4*n {
			return nil, fmt.Errorf("%w: collection index %d of %d", errBadSFNT, index, n)
		}
		off = int(binary.BigEndian.Uint32(data[12+4*index:]))
	}
	if off+12 > len(data) {
		return nil, errBadSFNT
	}
	numTables := int(binary.BigEndian.Uint16(data[off+4:]))
	if off+12+16*numTables > len(data) {
		return nil, errBadSFNT
	}
	tables := make(map[string][]byte, numTables)
	for i := 0; i < numTables; i++ {
		rec := data[off+12+16*i:]
		tag := string(rec[:4])
		start := int(binary.BigEndian.Uint32(rec[8:]))
		length := int(binary.BigEndian.Uint32(rec[12:]))
		if start < 0 || length < 0 || start+length > len(data) {
			return nil, fmt.Errorf("%w: table %q out of range", errBadSFNT, tag)
		}
		tables[tag] = data[start : start+length]
	}
	return tables, nil
}

// subsetSFNT writes a standalone font for member index of data. Every glyph
// outside keep (and their composite components) is emptied; glyph ids stay
// unchanged so Identity CIDToGIDMap keeps working.
func subsetSFNT(data []byte, index int, keep map[uint16]bool) ([]byte, error) {
	tables, err := readTableDir(data, index)
	if err != nil {
		return nil, err
	}
	out := map[string][]byte{}
	for tag, t := range tables {
		switch tag {
		case "DSIG":
			// 子集化后签名失效
			continue
		}
		out[tag] = t
	}

	if glyf, ok := tables["glyf"]; ok {
		head, loca, maxp := tables["head"], tables["loca"], tables["maxp"]
		if len(head) < 54 || len(maxp) < 6 || loca == nil {
			return nil, fmt.Errorf("%w: missing head/maxp/loca", errBadSFNT)
		}
		numGlyphs := int(binary.BigEndian.Uint16(maxp[4:]))
		longLoca := binary.BigEndian.Uint16(head[50:]) == 1
		offsets, err := parseLoca(loca, numGlyphs, longLoca)
		if err != nil {
			return nil, err
		}

		closure := map[uint16]bool{}
		var visit func(gid uint16)
		visit = func(gid uint16) {
			if int(gid) >= numGlyphs || closure[gid] {
				return
			}
			closure[gid] = true
			for _, c := range compositeComponents(glyphData(glyf, offsets, int(gid))) {
				visit(c)
			}
		}
		visit(0)
		for gid := range keep {
			visit(gid)
		}

		var newGlyf []byte
		newLoca := make([]byte, 4*(numGlyphs+1))
		for gid := 0; gid < numGlyphs; gid++ {
			binary.BigEndian.PutUint32(newLoca[4*gid:], uint32(len(newGlyf)))
			if !closure[uint16(gid)] {
				continue
			}
			g := glyphData(glyf, offsets, gid)
			newGlyf = append(newGlyf, g...)
			for len(newGlyf)%4 != 0 {
				newGlyf = append(newGlyf, 0)
			}
		}
		binary.BigEndian.PutUint32(newLoca[4*numGlyphs:], uint32(len(newGlyf)))

		newHead := append([]byte(nil), head...)
		binary.BigEndian.PutUint16(newHead[50:], 1)
		out["glyf"] = newGlyf
		out["loca"] = newLoca
		out["head"] = newHead
	}
	return writeSFNT(out), nil
}

func parseLoca(loca []byte, numGlyphs int, long bool) ([]int, error) {
	offsets := make([]int, numGlyphs+1)
	for i := 0; i <= numGlyphs; i++ {
		if long {
			if 4*i+4 > len(loca) {
				return nil, fmt.Errorf("%w: short loca", errBadSFNT)
			}
			offsets[i] = int(binary.BigEndian.Uint32(loca[4*i:]))
		} else {
			if 2*i+2 > len(loca) {
				return nil, fmt.Errorf("%w: short loca", errBadSFNT)
			}
			offsets[i] = 2 * int(binary.BigEndian.Uint16(loca[2*i:]))
		}
	}
	return offsets, nil
}

func glyphData(glyf []byte, offsets []int, gid int) []byte {
	if gid+1 >= len(offsets) {
		return nil
	}
	start, end := offsets[gid], offsets[gid+1]
	if start >= end || end > len(glyf) {
		return nil
	}
	return glyf[start:end]
}

// compositeComponents lists the glyph ids referenced by a composite glyph
func compositeComponents(g []byte) []uint16 {
	if len(g) < 10 || int16(binary.BigEndian.Uint16(g)) >= 0 {
		return nil
	}
	var comps []uint16
	p := 10
	for p+4 <= len(g) {
		flags := binary.BigEndian.Uint16(g[p:])
		comps = append(comps, binary.BigEndian.Uint16(g[p+2:]))
		p += 4
		if flags&0x0001 != 0 {
			p += 4
		} else {
			p += 2
		}
		switch {
		case flags&0x0008 != 0:
			p += 2
		case flags&0x0040 != 0:
			p += 4
		case flags&0x0080 != 0:
			p += 8
		}
		if flags&0x0020 == 0 {
			break
		}
	}
	return comps
}

func tableChecksum(b []byte) uint32 {
	var sum uint32
	for i := 0; i < len(b); i += 4 {
		var w [4]byte
		copy(w[:], b[i:])
		sum += binary.BigEndian.Uint32(w[:])
	}
	return sum
}

// writeSFNT serializes tables in tag order with fresh checksums
func writeSFNT(tables map[string][]byte) []byte {
	tags := make([]string, 0, len(tables))
	for tag := range tables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	n := len(tags)
	entrySelector := 0
	for 1<<(entrySelector+1) <= n {
		entrySelector++
	}
	searchRange := (1 << entrySelector) * 16

	version := uint32(0x00010000)
	if _, ok := tables["CFF "]; ok {
		version = 0x4F54544F // OTTO
	}

	header := make([]byte, 12+16*n)
	binary.BigEndian.PutUint32(header[0:], version)
	binary.BigEndian.PutUint16(header[4:], uint16(n))
	binary.BigEndian.PutUint16(header[6:], uint16(searchRange))
	binary.BigEndian.PutUint16(header[8:], uint16(entrySelector))
	binary.BigEndian.PutUint16(header[10:], uint16(n*16-searchRange))

	var body []byte
	headOffset := -1
	for i, tag := range tags {
		t := tables[tag]
		if tag == "head" && len(t) >= 12 {
			t = append([]byte(nil), t...)
			binary.BigEndian.PutUint32(t[8:], 0)
		}
		off := len(header) + len(body)
		if tag == "head" {
			headOffset = off
		}
		rec := header[12+16*i:]
		copy(rec[:4], tag)
		binary.BigEndian.PutUint32(rec[4:], tableChecksum(t))
		binary.BigEndian.PutUint32(rec[8:], uint32(off))
		binary.BigEndian.PutUint32(rec[12:], uint32(len(t)))
		body = append(body, t...)
		for len(body)%4 != 0 {
			body = append(body, 0)
		}
	}
	font := append(header, body...)
	if headOffset >= 0 {
		adj := 0xB1B0AFBA - tableChecksum(font)
		binary.BigEndian.PutUint32(font[headOffset+8:], adj)
	}
	return font
}

// fontBBox reads head.xMin..yMax scaled to 1/1000 em
func fontBBox(tables map[string][]byte) [4]float64 {
	head := tables["head"]
	if len(head) < 54 {
		return [4]float64{-200, -200, 1000, 900}
	}
	upem := float64(binary.BigEndian.Uint16(head[18:]))
	if upem == 0 {
		upem = 1000
	}
	v := func(o int) float64 {
		return float64(int16(binary.BigEndian.Uint16(head[o:]))) * 1000 / upem
	}
	return [4]float64{v(36), v(38), v(40), v(42)}
}
