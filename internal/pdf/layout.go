package pdf

import (
	"context"
	"fmt"
	"sort"
)

// DocLayout-YOLO 标签编号
const (
	LabelText          = 0
	LabelTitle         = 1
	LabelPicture       = 2
	LabelCaption       = 3
	LabelSectionHeader = 4
	LabelFootnote      = 5
	LabelFormula       = 6
	LabelTableRegion   = 7
	LabelListItem      = 8
	LabelPageHeader    = 9
	LabelPageFooter    = 10
)

// 分组键：段落从 2 开始，表格从 1000 开始；0 表示不在任何区域内
const (
	paragraphKeyBase = 2
	tableKeyBase     = 1000
)

// DefaultSameRegionThreshold 两个检测框视为同一区域的 IoU
const DefaultSameRegionThreshold = 0.8

// cellRegionThreshold 单元格归属区域所需的最小面积比例
const cellRegionThreshold = 0.5

// LayoutRegion 外部版面服务返回的一个区域（PDF 坐标）
type LayoutRegion struct {
	Box        Rect    `json:"box"`
	Label      int     `json:"label"`
	Confidence float64 `json:"confidence"`
}

// LayoutArray 一页的版面区域列表
type LayoutArray struct {
	Page    int            `json:"page"`
	Regions []LayoutRegion `json:"regions"`
}

// PageInput 版面分析的输入
type PageInput struct {
	Path     string
	Page     int
	MediaBox Rect
	Cells    []*TranslationCell
}

// LayoutProvider is the external layout/OCR collaborator
type LayoutProvider interface {
	DetectLayout(ctx context.Context, page PageInput) (*LayoutArray, error)
}

// LabelTable 外部标签到角色的版本化映射，未知标签映射为 ABANDON
type LabelTable struct {
	Version string
	Roles   map[int]Role
}

// DocLayoutYOLOv1 DocLayout-YOLO (DocStructBench) 的标签映射
var DocLayoutYOLOv1 = LabelTable{
	Version: "doclayout-yolo/v1",
	Roles: map[int]Role{
		LabelText:          RoleParagraph,
		LabelTitle:         RoleParagraph,
		LabelPicture:       RoleBackground,
		LabelCaption:       RoleParagraph,
		LabelSectionHeader: RoleParagraph,
		LabelFootnote:      RoleParagraph,
		LabelFormula:       RoleAbandon,
		LabelTableRegion:   RoleTableCell,
		LabelListItem:      RoleParagraph,
		LabelPageHeader:    RoleAbandon,
		LabelPageFooter:    RoleAbandon,
	},
}

// NewLabelTable builds a table from configuration names; empty uses DocLayoutYOLOv1
func NewLabelTable(custom map[int]string) (LabelTable, error) {
	if len(custom) == 0 {
		return DocLayoutYOLOv1, nil
	}
	t := LabelTable{Version: "custom", Roles: make(map[int]Role, len(custom))}
	for label, name := range custom {
		role, err := ParseRole(name)
		if err != nil {
			return LabelTable{}, fmt.Errorf("label %d: %w", label, err)
		}
		t.Roles[label] = role
	}
	return t, nil
}

// RoleOf maps an external label
func (t LabelTable) RoleOf(label int) Role {
	if r, ok := t.Roles[label]; ok {
		return r
	}
	return RoleAbandon
}

// ClassifiedRegion 分类后的区域；Key 仅对可翻译角色非零
type ClassifiedRegion struct {
	LayoutRegion
	Role Role `json:"role"`
	Key  int  `json:"key"`
}

// IsSameRegion reports whether two boxes describe the same region
func IsSameRegion(a, b Rect, threshold float64) bool {
	return IoU(a, b) >= threshold
}

// ShouldAbandonRegion reports whether a translatable region lies mostly
// inside an ABANDON or BACKGROUND region.
func ShouldAbandonRegion(region ClassifiedRegion, others []ClassifiedRegion, threshold float64) bool {
	if !region.Role.IsTranslatable() {
		return true
	}
	for _, o := range others {
		if o.Role.IsTranslatable() || (o.Box == region.Box && o.Label == region.Label) {
			continue
		}
		if OverlapRatio(region.Box, o.Box) >= threshold {
			return true
		}
	}
	return false
}

// Classify maps every region to a role. Duplicate detections of the same
// region keep the most confident one; paragraph regions swallowed by
// ABANDON/BACKGROUND regions become ABANDON. Keys follow reading order.
func Classify(layout *LayoutArray, table LabelTable, containment float64) []ClassifiedRegion {
	if layout == nil || len(layout.Regions) == 0 {
		return nil
	}
	if containment <= 0 {
		containment = 0.8
	}
	regions := append([]LayoutRegion(nil), layout.Regions...)
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Confidence > regions[j].Confidence
	})

	var out []ClassifiedRegion
	for _, r := range regions {
		r.Box = r.Box.Normalize()
		role := table.RoleOf(r.Label)
		dup := false
		for _, o := range out {
			if o.Role == role && IsSameRegion(o.Box, r.Box, DefaultSameRegionThreshold) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, ClassifiedRegion{LayoutRegion: r, Role: role})
		}
	}

	for i := range out {
		if out[i].Role.IsTranslatable() && ShouldAbandonRegion(out[i], out, containment) {
			out[i].Role = RoleAbandon
		}
	}

	// 阅读顺序：从上到下、从左到右
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Box, out[j].Box
		if a.Y1 != b.Y1 {
			return a.Y1 > b.Y1
		}
		return a.X0 < b.X0
	})
	para, tbl := paragraphKeyBase, tableKeyBase
	for i := range out {
		switch out[i].Role {
		case RoleParagraph:
			out[i].Key = para
			para++
		case RoleTableCell:
			out[i].Key = tbl
			tbl++
		}
	}
	return out
}

// AssignCells gives each cell the role and key of the region covering most
// of it. Cells outside every region stay paragraphs with key 0.
func AssignCells(cells []*TranslationCell, regions []ClassifiedRegion) {
	for _, c := range cells {
		c.Role, c.GroupKey = RoleParagraph, 0
		best, bestRatio := -1, 0.0
		for i, r := range regions {
			ratio := OverlapRatio(c.Box, r.Box)
			if ratio > bestRatio {
				best, bestRatio = i, ratio
			}
		}
		if best < 0 || bestRatio < cellRegionThreshold {
			continue
		}
		r := regions[best]
		if !r.Role.IsTranslatable() {
			c.Role = RoleAbandon
			continue
		}
		c.Role, c.GroupKey = r.Role, r.Key
	}
}

// regionBoxes 只包含一个段落的区域：排版时使用区域框
func regionBoxes(paras []*Paragraph, regions []ClassifiedRegion) map[*Paragraph]Rect {
	count := map[int]int{}
	for _, p := range paras {
		if k := p.Cells[0].GroupKey; k != 0 {
			count[k]++
		}
	}
	out := map[*Paragraph]Rect{}
	for _, p := range paras {
		k := p.Cells[0].GroupKey
		if k == 0 || count[k] != 1 {
			continue
		}
		for _, r := range regions {
			if r.Key == k {
				out[p] = r.Box
				break
			}
		}
	}
	return out
}

// StaticLayoutProvider returns fixed regions per page, for callers that run
// the layout service themselves.
type StaticLayoutProvider map[int][]LayoutRegion

// DetectLayout implements LayoutProvider
func (s StaticLayoutProvider) DetectLayout(_ context.Context, page PageInput) (*LayoutArray, error) {
	return &LayoutArray{Page: page.Page, Regions: s[page.Page]}, nil
}
