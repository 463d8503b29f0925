package pdf

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDetections(t *testing.T) {
	t.Run("nms export", func(t *testing.T) {
		out := []float32{
			10, 20, 110, 220, 0.9, 0,
			5, 5, 50, 50, 0.3, 7,
		}
		dets := parseDetections(out, []int64{1, 2, 6})
		require.Len(t, dets, 2)
		assert.Equal(t, Rect{X0: 10, Y0: 20, X1: 110, Y1: 220}, dets[0].Box)
		assert.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
		assert.Equal(t, 7, dets[1].ClassID)
	})

	t.Run("raw head", func(t *testing.T) {
		// 4 + 2 类，3 个 anchor，按行存储
		out := []float32{
			50, 100, 0, // cx
			50, 100, 0, // cy
			20, 40, 0, // w
			10, 20, 0, // h
			0.8, 0.1, 0, // class 0
			0.2, 0.6, 0, // class 1
		}
		dets := parseDetections(out, []int64{1, 6, 3})
		require.Len(t, dets, 2, "anchor without score is dropped")
		assert.Equal(t, 0, dets[0].ClassID)
		assert.Equal(t, Rect{X0: 40, Y0: 45, X1: 60, Y1: 55}, dets[0].Box)
		assert.Equal(t, 1, dets[1].ClassID)
		assert.InDelta(t, 0.6, dets[1].Confidence, 1e-6)
	})

	t.Run("bad shape", func(t *testing.T) {
		assert.Nil(t, parseDetections([]float32{1, 2}, []int64{2}))
		assert.Nil(t, parseDetections([]float32{1, 2}, []int64{1, 6, 3}))
	})
}

func TestFilterAndNMS(t *testing.T) {
	dets := []Detection{
		{Box: Rect{X0: 0, Y0: 0, X1: 100, Y1: 100}, ClassID: 1, Confidence: 0.7},
		{Box: Rect{X0: 2, Y0: 2, X1: 100, Y1: 100}, ClassID: 1, Confidence: 0.9},
		{Box: Rect{X0: 0, Y0: 0, X1: 100, Y1: 100}, ClassID: 0, Confidence: 0.5},
		{Box: Rect{X0: 300, Y0: 300, X1: 400, Y1: 400}, ClassID: 1, Confidence: 0.6},
		{Box: Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}, ClassID: 2, Confidence: 0.1},
	}
	kept := filterByConfidence(dets, 0.25)
	assert.Len(t, kept, 4)

	out := nmsPerClass(kept, 0.45)
	require.Len(t, out, 3)
	// 按类别，再按置信度
	assert.Equal(t, 0, out[0].ClassID)
	assert.Equal(t, 1, out[1].ClassID)
	assert.InDelta(t, 0.9, out[1].Confidence, 1e-9)
	assert.InDelta(t, 0.6, out[2].Confidence, 1e-9)
}

func TestLetterbox(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			src.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	dst, scale, padX, padY := letterbox(src, 100)
	assert.Equal(t, 100, dst.Bounds().Dx())
	assert.InDelta(t, 0.5, scale, 1e-9)
	assert.Equal(t, 0, padX)
	assert.Equal(t, 25, padY)

	// 上方填充为灰色
	assert.Equal(t, color.RGBA{letterboxGray, letterboxGray, letterboxGray, 255}, dst.RGBAAt(50, 5))

	data := imageToTensor(dst)
	assert.Len(t, data, 3*100*100)
	assert.InDelta(t, float32(letterboxGray)/255, data[5*100+50], 1e-6)
}
