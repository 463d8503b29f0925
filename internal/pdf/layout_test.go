package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelTable(t *testing.T) {
	tbl, err := NewLabelTable(nil)
	require.NoError(t, err)
	assert.Equal(t, DocLayoutYOLOv1.Version, tbl.Version)
	assert.Equal(t, RoleParagraph, tbl.RoleOf(LabelText))
	assert.Equal(t, RoleBackground, tbl.RoleOf(LabelPicture))
	assert.Equal(t, RoleTableCell, tbl.RoleOf(LabelTableRegion))
	assert.Equal(t, RoleAbandon, tbl.RoleOf(LabelFormula))
	assert.Equal(t, RoleAbandon, tbl.RoleOf(LabelPageFooter))
	assert.Equal(t, RoleAbandon, tbl.RoleOf(99), "unknown labels are abandoned")

	custom, err := NewLabelTable(map[int]string{0: "text", 1: "figure"})
	require.NoError(t, err)
	assert.Equal(t, RoleParagraph, custom.RoleOf(0))
	assert.Equal(t, RoleBackground, custom.RoleOf(1))

	_, err = NewLabelTable(map[int]string{0: "sidebar"})
	assert.Error(t, err)
}

func TestIsSameRegion(t *testing.T) {
	a := Rect{X0: 0, Y0: 0, X1: 100, Y1: 100}
	assert.True(t, IsSameRegion(a, Rect{X0: 1, Y0: 1, X1: 100, Y1: 100}, DefaultSameRegionThreshold))
	assert.False(t, IsSameRegion(a, Rect{X0: 50, Y0: 0, X1: 150, Y1: 100}, DefaultSameRegionThreshold))
}

func TestClassify_ParagraphInsideBackgroundIsAbandoned(t *testing.T) {
	layout := &LayoutArray{Page: 1, Regions: []LayoutRegion{
		{Box: Rect{X0: 50, Y0: 300, X1: 500, Y1: 700}, Label: LabelPicture, Confidence: 0.9},
		{Box: Rect{X0: 100, Y0: 400, X1: 300, Y1: 450}, Label: LabelText, Confidence: 0.8},
	}}
	regions := Classify(layout, DocLayoutYOLOv1, 0.8)
	require.Len(t, regions, 2)
	for _, r := range regions {
		if r.Label == LabelText {
			assert.Equal(t, RoleAbandon, r.Role)
			assert.Zero(t, r.Key)
		} else {
			assert.Equal(t, RoleBackground, r.Role)
		}
	}

	cell := &TranslationCell{ID: "p1-c0", Box: Rect{X0: 110, Y0: 410, X1: 280, Y1: 440}}
	AssignCells([]*TranslationCell{cell}, regions)
	assert.Equal(t, RoleAbandon, cell.Role)
}

func TestClassify_KeysAndDuplicates(t *testing.T) {
	layout := &LayoutArray{Page: 1, Regions: []LayoutRegion{
		{Box: Rect{X0: 50, Y0: 100, X1: 500, Y1: 200}, Label: LabelText, Confidence: 0.7},
		{Box: Rect{X0: 50, Y0: 600, X1: 500, Y1: 700}, Label: LabelTitle, Confidence: 0.9},
		// 同一区域的重复检测，置信度较低
		{Box: Rect{X0: 51, Y0: 601, X1: 500, Y1: 700}, Label: LabelText, Confidence: 0.5},
		{Box: Rect{X0: 50, Y0: 300, X1: 500, Y1: 500}, Label: LabelTableRegion, Confidence: 0.8},
		{Box: Rect{X0: 50, Y0: 750, X1: 500, Y1: 780}, Label: LabelPageHeader, Confidence: 0.9},
	}}
	regions := Classify(layout, DocLayoutYOLOv1, 0)
	require.Len(t, regions, 4)

	// 阅读顺序从上到下
	assert.Equal(t, LabelPageHeader, regions[0].Label)
	assert.Equal(t, RoleAbandon, regions[0].Role)
	assert.Equal(t, LabelTitle, regions[1].Label)
	assert.Equal(t, paragraphKeyBase, regions[1].Key)
	assert.Equal(t, RoleTableCell, regions[2].Role)
	assert.Equal(t, tableKeyBase, regions[2].Key)
	assert.Equal(t, paragraphKeyBase+1, regions[3].Key)

	assert.Nil(t, Classify(nil, DocLayoutYOLOv1, 0.8))
}

func TestAssignCells(t *testing.T) {
	regions := Classify(&LayoutArray{Regions: []LayoutRegion{
		{Box: Rect{X0: 0, Y0: 0, X1: 100, Y1: 100}, Label: LabelText, Confidence: 0.9},
		{Box: Rect{X0: 0, Y0: 200, X1: 100, Y1: 300}, Label: LabelPageFooter, Confidence: 0.9},
	}}, DocLayoutYOLOv1, 0.8)

	inside := &TranslationCell{Box: Rect{X0: 10, Y0: 10, X1: 90, Y1: 20}}
	footer := &TranslationCell{Box: Rect{X0: 10, Y0: 210, X1: 90, Y1: 220}}
	outside := &TranslationCell{Box: Rect{X0: 300, Y0: 300, X1: 400, Y1: 310}, GroupKey: 7}
	straddle := &TranslationCell{Box: Rect{X0: 80, Y0: 10, X1: 180, Y1: 20}}
	AssignCells([]*TranslationCell{inside, footer, outside, straddle}, regions)

	assert.Equal(t, RoleParagraph, inside.Role)
	assert.Equal(t, paragraphKeyBase, inside.GroupKey)
	assert.Equal(t, RoleAbandon, footer.Role)
	assert.Equal(t, RoleParagraph, outside.Role)
	assert.Zero(t, outside.GroupKey)
	assert.Zero(t, straddle.GroupKey, "less than half inside")
}

func TestRegionBoxes(t *testing.T) {
	regions := []ClassifiedRegion{
		{LayoutRegion: LayoutRegion{Box: Rect{X0: 0, Y0: 0, X1: 200, Y1: 50}}, Role: RoleParagraph, Key: 2},
		{LayoutRegion: LayoutRegion{Box: Rect{X0: 0, Y0: 100, X1: 200, Y1: 150}}, Role: RoleParagraph, Key: 3},
	}
	single := &Paragraph{Cells: []*TranslationCell{{GroupKey: 2}}}
	shared1 := &Paragraph{Cells: []*TranslationCell{{GroupKey: 3}}}
	shared2 := &Paragraph{Cells: []*TranslationCell{{GroupKey: 3}}}
	free := &Paragraph{Cells: []*TranslationCell{{GroupKey: 0}}}

	boxes := regionBoxes([]*Paragraph{single, shared1, shared2, free}, regions)
	assert.Len(t, boxes, 1)
	assert.Equal(t, regions[0].Box, boxes[single])
}

func TestStaticLayoutProvider(t *testing.T) {
	p := StaticLayoutProvider{2: {{Box: Rect{X1: 1, Y1: 1}, Label: LabelText}}}
	got, err := p.DetectLayout(context.Background(), PageInput{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Page)
	assert.Len(t, got.Regions, 1)

	got, err = p.DetectLayout(context.Background(), PageInput{Page: 1})
	require.NoError(t, err)
	assert.Empty(t, got.Regions)
}
