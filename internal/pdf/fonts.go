package pdf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"pdf-layout-translator/internal/logger"
	"pdf-layout-translator/internal/types"
)

// FontType 字体分类
type FontType int

const (
	// FontSimple 单字节编码的 Type1/TrueType 字体
	FontSimple FontType = iota
	// FontCID Type0/CID 字体
	FontCID
	// FontEmbedded 需要嵌入的系统替代字体
	FontEmbedded
)

func (t FontType) String() string {
	switch t {
	case FontSimple:
		return "simple"
	case FontCID:
		return "cid"
	case FontEmbedded:
		return "embedded"
	}
	return "unknown"
}

// DetectFontType classifies a document font by its subtype and encoding entries
func DetectFontType(spec *FontSpec) FontType {
	if spec == nil {
		return FontEmbedded
	}
	switch spec.Subtype {
	case "Type0", "CIDFontType0", "CIDFontType2":
		return FontCID
	case "Type1", "TrueType", "MMType1", "Type3":
		enc := spec.Encoding
		if strings.HasPrefix(enc, "Identity-") || spec.DescendantSubtype != "" || len(spec.EncodingCMap) > 0 {
			return FontCID
		}
		return FontSimple
	}
	if spec.DescendantSubtype != "" || strings.HasPrefix(spec.Encoding, "Identity-") {
		return FontCID
	}
	return FontEmbedded
}

// fontCandidate 候选字体：任一文件名命中即可
type fontCandidate struct {
	Name    string
	Files   []string
	Index   int // TTC 成员
	Builtin bool
}

var latinChain = []fontCandidate{
	{Name: "Noto Sans", Files: []string{"NotoSans-Regular.ttf"}},
	{Name: "DejaVu Sans", Files: []string{"DejaVuSans.ttf"}},
	{Name: "Arial", Files: []string{"arial.ttf"}},
	{Name: "Liberation Sans", Files: []string{"LiberationSans-Regular.ttf"}},
	{Name: "Helvetica", Builtin: true},
}

// fontChains 每种目标语言的候选链，按优先级排列
var fontChains = map[string][]fontCandidate{
	"ja": {
		{Name: "Noto Sans CJK JP", Files: []string{"NotoSansCJKjp-Regular.otf", "NotoSansCJK-Regular.ttc"}, Index: 0},
		{Name: "Noto Sans JP", Files: []string{"NotoSansJP-Regular.ttf", "NotoSansJP-Regular.otf"}},
		{Name: "Source Han Sans", Files: []string{"SourceHanSansJP-Regular.otf", "SourceHanSans-Regular.ttc"}},
		{Name: "IPAexGothic", Files: []string{"ipaexg.ttf"}},
		{Name: "IPAGothic", Files: []string{"ipag.ttf", "ipag.ttc"}},
		{Name: "Meiryo", Files: []string{"meiryo.ttc"}},
		{Name: "MS Gothic", Files: []string{"msgothic.ttc"}},
		{Name: "Yu Gothic", Files: []string{"YuGothR.ttc", "YuGothM.ttc"}},
		{Name: "Hiragino Sans", Files: []string{"ヒラギノ角ゴシック W3.ttc", "HiraginoSans-W3.ttc"}},
	},
	"zh-CN": {
		{Name: "Noto Sans CJK SC", Files: []string{"NotoSansCJKsc-Regular.otf", "NotoSansCJK-Regular.ttc"}, Index: 2},
		{Name: "Source Han Sans SC", Files: []string{"SourceHanSansSC-Regular.otf", "SourceHanSansCN-Regular.otf"}},
		{Name: "Microsoft YaHei", Files: []string{"msyh.ttc", "msyh.ttf"}},
		{Name: "SimSun", Files: []string{"simsun.ttc", "simsun.ttf"}},
		{Name: "WenQuanYi", Files: []string{"wqy-microhei.ttc", "wqy-zenhei.ttc"}},
	},
	"zh-TW": {
		{Name: "Noto Sans CJK TC", Files: []string{"NotoSansCJKtc-Regular.otf", "NotoSansCJK-Regular.ttc"}, Index: 3},
		{Name: "Microsoft JhengHei", Files: []string{"msjh.ttc"}},
		{Name: "MingLiU", Files: []string{"mingliu.ttc"}},
	},
	"ko": {
		{Name: "Noto Sans CJK KR", Files: []string{"NotoSansCJKkr-Regular.otf", "NotoSansCJK-Regular.ttc"}, Index: 1},
		{Name: "Malgun Gothic", Files: []string{"malgun.ttf"}},
		{Name: "NanumGothic", Files: []string{"NanumGothic.ttf"}},
	},
	"en": latinChain,
}

func chainFor(lang string) []fontCandidate {
	if c, ok := fontChains[NormalizeLang(lang)]; ok {
		return c
	}
	return latinChain
}

// systemFontDirs 平台字体目录，按优先级
func systemFontDirs() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		win := os.Getenv("WINDIR")
		if win == "" {
			win = `C:\Windows`
		}
		return []string{filepath.Join(win, "Fonts")}
	case "darwin":
		return []string{"/System/Library/Fonts", "/Library/Fonts", filepath.Join(home, "Library", "Fonts")}
	}
	return []string{
		"/usr/share/fonts", "/usr/local/share/fonts",
		filepath.Join(home, ".fonts"), filepath.Join(home, ".local", "share", "fonts"),
	}
}

// FontInfo 输出用字体
type FontInfo struct {
	Key     string
	Lang    string
	Type    FontType
	Name    string // PostScript 名称
	Path    string
	Index   int
	Builtin bool
	Ascent  float64 // 归一化后的 em 单位
	Descent float64

	reg     *FontRegistry
	data    []byte
	sfnt    *sfnt.Font
	buf     sfnt.Buffer
	upem    float64
	doc     *pageFont
	builtin *builtinFont

	gids     map[rune]sfnt.GlyphIndex
	advances map[sfnt.GlyphIndex]float64
	used     map[uint16]rune
}

// glyphIndexLocked 调用方需持有 reg.mu
func (f *FontInfo) glyphIndexLocked(r rune) (sfnt.GlyphIndex, bool) {
	if gid, ok := f.gids[r]; ok {
		return gid, gid != 0
	}
	gid, err := f.sfnt.GlyphIndex(&f.buf, r)
	if err != nil {
		gid = 0
	}
	f.gids[r] = gid
	return gid, gid != 0
}

func (f *FontInfo) advanceLocked(gid sfnt.GlyphIndex) float64 {
	if w, ok := f.advances[gid]; ok {
		return w
	}
	adv, err := f.sfnt.GlyphAdvance(&f.buf, gid, fixed.Int26_6(f.upem*64), font.HintingNone)
	w := 0.0
	if err == nil {
		w = float64(adv) / 64 / f.upem
	}
	f.advances[gid] = w
	return w
}

// Width returns the advance of r in em units, ok=false if the font lacks r
func (f *FontInfo) Width(r rune) (float64, bool) {
	switch {
	case f.Builtin:
		if _, ok := encodeWinAnsi(r); !ok {
			return 0, false
		}
		return f.builtin.widthOf(r)
	case f.doc != nil:
		code, ok := f.doc.encodeRune(r)
		if !ok {
			return 0, false
		}
		return f.doc.width(code), true
	}
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	gid, ok := f.glyphIndexLocked(r)
	if !ok {
		return 0, false
	}
	return f.advanceLocked(gid), true
}

// Measure adapts Width for the fitter
func (f *FontInfo) Measure() WidthFunc {
	return f.Width
}

// Covers reports whether every rune of text (newlines aside) is encodable
func (f *FontInfo) Covers(text string) bool {
	for _, r := range text {
		if r == '\n' {
			continue
		}
		if _, ok := f.Width(r); !ok {
			return false
		}
	}
	return true
}

// ErrRuneNotEncodable 字体无法编码该字符
var ErrRuneNotEncodable = errors.New("rune not encodable in output font")

// Encode converts text to the codes shown with this font and returns the
// per-code advances in em units.
func (f *FontInfo) Encode(text string) ([]byte, []float64, error) {
	var out []byte
	var widths []float64
	for _, r := range text {
		switch {
		case f.Builtin:
			b, ok := encodeWinAnsi(r)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %q in %s", ErrRuneNotEncodable, r, f.Name)
			}
			w, _ := f.builtin.widthOf(r)
			out = append(out, b)
			widths = append(widths, w)
		case f.doc != nil:
			code, ok := f.doc.encodeRune(r)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %q in %s", ErrRuneNotEncodable, r, f.Name)
			}
			out = append(out, code...)
			widths = append(widths, f.doc.width(code))
		default:
			f.reg.mu.Lock()
			gid, ok := f.glyphIndexLocked(r)
			w := 0.0
			if ok {
				w = f.advanceLocked(gid)
			}
			f.reg.mu.Unlock()
			if !ok {
				return nil, nil, fmt.Errorf("%w: %q in %s", ErrRuneNotEncodable, r, f.Name)
			}
			out = append(out, byte(gid>>8), byte(gid))
			widths = append(widths, w)
		}
	}
	return out, widths, nil
}

// fontResolution 缓存的解析结果，失败也缓存
type fontResolution struct {
	font   *FontInfo
	failed bool
}

// FontRegistry 字体注册表：每个处理会话一个，单锁保护，只追加
type FontRegistry struct {
	mu         sync.Mutex
	dirs       []string
	overrides  map[string]string
	resolved   map[string]fontResolution
	files      map[string]*FontInfo
	docFonts   map[*pageFont]*FontInfo
	failed     []string
	fileIndex  map[string]string
	fallback   *FontInfo
	log        logger.Logger
	skipSystem bool
}

// NewFontRegistry creates a registry searching the configured directories
// before the platform font directories.
func NewFontRegistry(cfg types.FontConfig, log logger.Logger) *FontRegistry {
	if log == nil {
		log = logger.GetLogger()
	}
	r := &FontRegistry{
		dirs:       append([]string(nil), cfg.Dirs...),
		overrides:  map[string]string{},
		resolved:   map[string]fontResolution{},
		files:      map[string]*FontInfo{},
		docFonts:   map[*pageFont]*FontInfo{},
		log:        log,
		skipSystem: cfg.SkipSystemDirs,
	}
	for lang, path := range cfg.Overrides {
		r.overrides[NormalizeLang(lang)] = path
	}
	if !cfg.SkipSystemDirs {
		r.dirs = append(r.dirs, systemFontDirs()...)
	}
	a, d := normalizeAscentDescent(helvetica.ascent, helvetica.descent)
	r.fallback = &FontInfo{
		Key: "builtin/Helvetica", Type: FontSimple, Name: "Helvetica", Builtin: true,
		Ascent: a, Descent: d, builtin: helvetica, reg: r,
	}
	return r
}

// buildIndexLocked 递归扫描字体目录，先出现的目录优先
func (r *FontRegistry) buildIndexLocked() {
	if r.fileIndex != nil {
		return
	}
	r.fileIndex = map[string]string{}
	for _, dir := range r.dirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".ttf", ".otf", ".ttc", ".otc":
				key := strings.ToLower(d.Name())
				if _, ok := r.fileIndex[key]; !ok {
					r.fileIndex[key] = path
				}
			}
			return nil
		})
	}
	r.log.Debug("font index built", logger.Int("files", len(r.fileIndex)), logger.Int("dirs", len(r.dirs)))
}

// ResolveOutputFont walks the candidate chain for lang. The answer is cached
// per (lang, originalType); ok=false means no candidate resolved and the
// built-in fallback was returned.
func (r *FontRegistry) ResolveOutputFont(lang string, originalType FontType) (*FontInfo, bool) {
	lang = NormalizeLang(lang)
	key := lang + "/" + originalType.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.resolved[key]; ok {
		return res.font, !res.failed
	}

	if path, ok := r.overrides[lang]; ok {
		if fi, err := r.loadLocked(key, lang, path, 0); err == nil {
			r.resolved[key] = fontResolution{font: fi}
			return fi, true
		} else {
			r.log.Warn("font override unusable", logger.String("lang", lang), logger.String("path", path), logger.Err(err))
		}
	}

	r.buildIndexLocked()
	for _, c := range chainFor(lang) {
		if c.Builtin {
			r.resolved[key] = fontResolution{font: r.fallback}
			return r.fallback, true
		}
		for _, name := range c.Files {
			path, ok := r.fileIndex[strings.ToLower(name)]
			if !ok {
				continue
			}
			index := 0
			if strings.HasSuffix(strings.ToLower(path), ".ttc") || strings.HasSuffix(strings.ToLower(path), ".otc") {
				index = c.Index
			}
			fi, err := r.loadLocked(key, lang, path, index)
			if err != nil {
				r.log.Warn("font candidate unusable", logger.String("font", c.Name), logger.String("path", path), logger.Err(err))
				continue
			}
			r.log.Info("output font resolved", logger.String("key", key), logger.String("font", c.Name), logger.String("path", path))
			r.resolved[key] = fontResolution{font: fi}
			return fi, true
		}
	}

	r.log.Warn("no output font resolved, using fallback", logger.String("key", key))
	r.failed = append(r.failed, key)
	r.resolved[key] = fontResolution{font: r.fallback, failed: true}
	return r.fallback, false
}

// loadLocked parses a font file once per (path, index)
func (r *FontRegistry) loadLocked(key, lang, path string, index int) (*FontInfo, error) {
	id := fmt.Sprintf("%s#%d", path, index)
	if fi, ok := r.files[id]; ok {
		return fi, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f *sfnt.Font
	if len(data) >= 4 && string(data[:4]) == "ttcf" {
		coll, err := sfnt.ParseCollection(data)
		if err != nil {
			return nil, err
		}
		if index >= coll.NumFonts() {
			index = 0
		}
		if f, err = coll.Font(index); err != nil {
			return nil, err
		}
	} else {
		if f, err = sfnt.Parse(data); err != nil {
			return nil, err
		}
		index = 0
	}
	tables, err := readTableDir(data, index)
	if err != nil {
		return nil, err
	}
	// CIDFontType0 按 CFF 的 CID 寻址，与 GlyphIndex 不一致，只嵌入 glyf 字体
	if _, ok := tables["glyf"]; !ok {
		return nil, errors.New("font has no glyf outlines")
	}

	fi := &FontInfo{
		Key: key, Lang: lang, Type: FontEmbedded, Path: path, Index: index,
		reg: r, data: data, sfnt: f,
		upem:     float64(f.UnitsPerEm()),
		gids:     map[rune]sfnt.GlyphIndex{},
		advances: map[sfnt.GlyphIndex]float64{},
		used:     map[uint16]rune{},
	}
	if name, err := f.Name(&fi.buf, sfnt.NameIDPostScript); err == nil && name != "" {
		fi.Name = name
	} else {
		fi.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	fi.Name = strings.ReplaceAll(fi.Name, " ", "")
	if m, err := f.Metrics(&fi.buf, fixed.Int26_6(fi.upem*64), font.HintingNone); err == nil {
		fi.Ascent, fi.Descent = normalizeAscentDescent(float64(m.Ascent)/64, -float64(m.Descent)/64)
	} else {
		fi.Ascent, fi.Descent = 0.88, -0.12
	}
	r.files[id] = fi
	return fi, nil
}

// DocumentFont wraps an existing page font for reuse as output font
func (r *FontRegistry) DocumentFont(pf *pageFont) *FontInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fi, ok := r.docFonts[pf]; ok {
		return fi
	}
	pf.reverseMap()
	fi := &FontInfo{
		Key:  "doc/" + pf.Resource,
		Type: pf.Type, Name: StripSubsetTag(pf.Spec.BaseFont),
		Ascent: pf.ascent, Descent: pf.descent, doc: pf, reg: r,
	}
	r.docFonts[pf] = fi
	return fi
}

// RegisterGlyphs unions the glyph ids needed for codepoints into the font's used set
func (r *FontRegistry) RegisterGlyphs(f *FontInfo, codepoints []rune) error {
	if f == nil || f.Type != FontEmbedded {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cp := range codepoints {
		if cp == '\n' {
			continue
		}
		gid, ok := f.glyphIndexLocked(cp)
		if !ok {
			return fmt.Errorf("%w: %q in %s", ErrRuneNotEncodable, cp, f.Name)
		}
		// 多个字符映射到同一字形时取码位最小者，ToUnicode 与登记顺序无关
		if prev, seen := f.used[uint16(gid)]; !seen || cp < prev {
			f.used[uint16(gid)] = cp
			f.advanceLocked(gid)
		}
	}
	return nil
}

// FailedFonts returns the keys for which no candidate resolved
func (r *FontRegistry) FailedFonts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.failed...)
	sort.Strings(out)
	return out
}
