package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"pdf-layout-translator/internal/logger"
	"pdf-layout-translator/internal/models"
	"pdf-layout-translator/internal/types"
)

// DocLayout-YOLO 的输入边长与填充灰度
const (
	defaultModelInputSize = 1024
	letterboxGray         = 114
)

// ErrPopplerMissing pdftoppm 不可用
var ErrPopplerMissing = errors.New("pdftoppm not found, install poppler-utils")

// Detection 模型输出的一个检测框（模型输入像素坐标）
type Detection struct {
	Box        Rect
	ClassID    int
	Confidence float64
}

// pageRasterizer renders single pages to PNG with poppler
type pageRasterizer struct {
	dpi int
}

func (r pageRasterizer) render(ctx context.Context, pdfPath string, page int) (image.Image, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, ErrPopplerMissing
	}
	dir, err := os.MkdirTemp("", "pdfpage_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-f", n, "-l", n, "-png", "-r", strconv.Itoa(r.dpi), "-singlefile", pdfPath, prefix)
	hideConsole(cmd)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w, output: %s", err, string(out))
	}

	f, err := os.Open(prefix + ".png")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

// letterbox 等比缩放到 size×size，剩余部分以灰色填充
func letterbox(img image.Image, size int) (*image.RGBA, float64, int, int) {
	b := img.Bounds()
	scale := float64(size) / float64(max(b.Dx(), b.Dy()))
	w, h := int(float64(b.Dx())*scale+0.5), int(float64(b.Dy())*scale+0.5)
	padX, padY := (size-w)/2, (size-h)/2

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.RGBA{letterboxGray, letterboxGray, letterboxGray, 255}}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, image.Rect(padX, padY, padX+w, padY+h), img, b, draw.Src, nil)
	return dst, scale, padX, padY
}

// imageToTensor converts to CHW float32 in [0,1]
func imageToTensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x+b.Min.X, y+b.Min.Y)
			idx := y*w + x
			data[idx] = float32(img.Pix[i]) / 255
			data[plane+idx] = float32(img.Pix[i+1]) / 255
			data[2*plane+idx] = float32(img.Pix[i+2]) / 255
		}
	}
	return data
}

// parseDetections understands the two DocLayout-YOLO export layouts:
// [1, N, 6] rows of x1 y1 x2 y2 score class (NMS included), and the raw
// [1, 4+C, A] head with cx cy w h followed by per-class scores.
func parseDetections(out []float32, shape []int64) []Detection {
	if len(shape) != 3 {
		return nil
	}
	var dets []Detection
	if shape[2] == 6 {
		for i := 0; i+6 <= len(out); i += 6 {
			dets = append(dets, Detection{
				Box:        Rect{X0: float64(out[i]), Y0: float64(out[i+1]), X1: float64(out[i+2]), Y1: float64(out[i+3])},
				Confidence: float64(out[i+4]),
				ClassID:    int(out[i+5]),
			})
		}
		return dets
	}
	rows, anchors := int(shape[1]), int(shape[2])
	if rows <= 4 || len(out) < rows*anchors {
		return nil
	}
	for a := 0; a < anchors; a++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < rows; c++ {
			if s := out[c*anchors+a]; s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if best < 0 {
			continue
		}
		cx, cy := float64(out[a]), float64(out[anchors+a])
		w, h := float64(out[2*anchors+a]), float64(out[3*anchors+a])
		dets = append(dets, Detection{
			Box:        Rect{X0: cx - w/2, Y0: cy - h/2, X1: cx + w/2, Y1: cy + h/2},
			Confidence: float64(bestScore),
			ClassID:    best,
		})
	}
	return dets
}

func filterByConfidence(dets []Detection, threshold float64) []Detection {
	var out []Detection
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// nmsPerClass applies non-maximum suppression within each class.
// Output is ordered by class, then confidence.
func nmsPerClass(dets []Detection, threshold float64) []Detection {
	byClass := map[int][]Detection{}
	var classes []int
	for _, d := range dets {
		if _, ok := byClass[d.ClassID]; !ok {
			classes = append(classes, d.ClassID)
		}
		byClass[d.ClassID] = append(byClass[d.ClassID], d)
	}
	sort.Ints(classes)

	var keep []Detection
	for _, c := range classes {
		group := byClass[c]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Confidence > group[j].Confidence })
		for len(group) > 0 {
			best := group[0]
			keep = append(keep, best)
			var rest []Detection
			for _, d := range group[1:] {
				if IoU(best.Box.Normalize(), d.Box.Normalize()) < threshold {
					rest = append(rest, d)
				}
			}
			group = rest
		}
	}
	return keep
}

// OnnxLayoutProvider runs a DocLayout-YOLO model on rasterized pages
type OnnxLayoutProvider struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	input     string
	output    string
	size      int
	conf      float64
	nms       float64
	rasterize pageRasterizer
	log       logger.Logger
}

// NewOnnxLayoutProvider loads the model and the onnxruntime shared library
func NewOnnxLayoutProvider(cfg types.LayoutConfig, log logger.Logger) (*OnnxLayoutProvider, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	modelPath, err := models.Resolve(cfg.ModelPath, models.SearchDirs(), models.DefaultExtractDir())
	if err != nil {
		return nil, err
	}
	cfg.ModelPath = modelPath
	if cfg.OnnxLibPath != "" {
		ort.SetSharedLibraryPath(cfg.OnnxLibPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model has no inputs or outputs")
	}
	size := defaultModelInputSize
	if dims := inputs[0].Dimensions; len(dims) == 4 && dims[2] > 0 {
		size = int(dims[2])
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = 144
	}
	p := &OnnxLayoutProvider{
		session:   session,
		input:     inputs[0].Name,
		output:    outputs[0].Name,
		size:      size,
		conf:      float64(cfg.ConfThreshold),
		nms:       float64(cfg.NMSThreshold),
		rasterize: pageRasterizer{dpi: dpi},
		log:       log,
	}
	log.Info("layout model loaded",
		logger.String("path", cfg.ModelPath),
		logger.Int("inputSize", size),
		logger.String("output", p.output))
	return p, nil
}

// Close releases the session
func (p *OnnxLayoutProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Destroy()
	p.session = nil
	return err
}

// DetectLayout implements LayoutProvider
func (p *OnnxLayoutProvider) DetectLayout(ctx context.Context, page PageInput) (*LayoutArray, error) {
	img, err := p.rasterize.render(ctx, page.Path, page.Page)
	if err != nil {
		return nil, err
	}
	boxed, scale, padX, padY := letterbox(img, p.size)

	in, err := ort.NewTensor(ort.NewShape(1, 3, int64(p.size), int64(p.size)), imageToTensor(boxed))
	if err != nil {
		return nil, err
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	p.mu.Lock()
	if p.session == nil {
		p.mu.Unlock()
		return nil, errors.New("layout provider closed")
	}
	err = p.session.Run([]ort.Value{in}, outputs)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("layout inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	dets := parseDetections(out.GetData(), out.GetShape())
	dets = nmsPerClass(filterByConfidence(dets, p.conf), p.nms)

	// 模型像素 → 页面像素 → PDF 坐标
	pxPerPt := float64(p.rasterize.dpi) / 72
	mb := page.MediaBox
	result := &LayoutArray{Page: page.Page}
	for _, d := range dets {
		px := Rect{
			X0: (d.Box.X0 - float64(padX)) / scale,
			Y0: (d.Box.Y0 - float64(padY)) / scale,
			X1: (d.Box.X1 - float64(padX)) / scale,
			Y1: (d.Box.Y1 - float64(padY)) / scale,
		}
		r, err := ImageToPdfRect(px, mb.Height(), pxPerPt)
		if err != nil {
			return nil, err
		}
		r = Rect{X0: r.X0 + mb.X0, Y0: r.Y0 + mb.Y0, X1: r.X1 + mb.X0, Y1: r.Y1 + mb.Y0}
		result.Regions = append(result.Regions, LayoutRegion{Box: r, Label: d.ClassID, Confidence: d.Confidence})
	}
	p.log.Debug("layout detected",
		logger.Page(page.Page),
		logger.Int("raw", len(dets)),
		logger.Int("regions", len(result.Regions)))
	return result, nil
}
