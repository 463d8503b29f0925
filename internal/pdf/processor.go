package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/sync/errgroup"

	"pdf-layout-translator/internal/config"
	"pdf-layout-translator/internal/logger"
	"pdf-layout-translator/internal/types"
)

// Progress 处理进度
type Progress struct {
	Phase    Phase   `json:"phase"`
	Current  int     `json:"current"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"` // 整体进度 0..1
	Message  string  `json:"message"`
}

// 各阶段在整体进度中的区间
var phaseSpan = map[Phase][2]float64{
	PhaseExtracting:  {0, 0.15},
	PhaseProtecting:  {0.15, 0.2},
	PhaseTranslating: {0.2, 0.7},
	PhaseFitting:     {0.7, 0.8},
	PhaseGenerating:  {0.8, 1},
}

// FailedCell 一个未能替换的段落
type FailedCell struct {
	ID     string        `json:"id"`
	Page   int           `json:"page"`
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

// Stats counts paragraphs with translatable text. Every counted paragraph is
// either succeeded, failed or pending (cancelled before it was written).
type Stats struct {
	TotalCells     int          `json:"total_cells"`
	SucceededCells int          `json:"succeeded_cells"`
	SkippedCells   int          `json:"skipped_cells"`
	FailedCells    []FailedCell `json:"failed_cells"`
	FailedFonts    []string     `json:"failed_fonts"`
	// OverflowCells 排到最小字号和最小行高仍放不下的段落，包括因此被拒绝的
	OverflowCells  int          `json:"overflow_cells"`
	CachedCells    int          `json:"cached_cells"`
	PendingCells   int          `json:"pending_cells"`
}

// ParagraphReport 单个段落的处理结果
type ParagraphReport struct {
	ID           string  `json:"id"`
	Page         int     `json:"page"`
	Text         string  `json:"text"`
	Translated   string  `json:"translated,omitempty"`
	OriginalSize float64 `json:"original_size"`
	FontSize     float64 `json:"font_size,omitempty"`
	LineHeight   float64 `json:"line_height,omitempty"`
	Steps        int     `json:"steps"`
	Overflow     bool    `json:"overflow,omitempty"`
	Font         string  `json:"font,omitempty"`
	Status       string  `json:"status"`
}

// ProcessResult 文档处理结果
type ProcessResult struct {
	State             Phase             `json:"state"`
	OutputPath        string            `json:"output_path"`
	Stats             Stats             `json:"stats"`
	LastCompletedPage int               `json:"last_completed_page"`
	Paragraphs        []ParagraphReport `json:"paragraphs,omitempty"`
}

// ProcessorOptions 处理器依赖，零值字段使用默认实现
type ProcessorOptions struct {
	Config   *types.Config
	Oracle   Oracle
	Layout   LayoutProvider
	Fonts    *FontRegistry
	Logger   logger.Logger
	Progress func(Progress)
}

// PdfProcessor runs the translation pipeline on one document at a time
type PdfProcessor struct {
	cfg       *types.Config
	oracle    Oracle
	cache     *TranslationCache
	layout    LayoutProvider
	labels    LabelTable
	fonts     *FontRegistry
	protector *FormulaProtector
	log       logger.Logger
	progress  func(Progress)
	workers   int
}

// NewPdfProcessor wires the collaborators. Without an explicit oracle one is
// built from the configured backend; a cache path wraps it in a CachedOracle.
func NewPdfProcessor(opts ProcessorOptions) (*PdfProcessor, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	protector, err := NewFormulaProtector(cfg.FormulaFontPattern, cfg.AllowPlaceholderReorder)
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "invalid formula font pattern", err)
	}
	labels := DocLayoutYOLOv1
	if len(cfg.Layout.LabelTable) > 0 {
		if labels, err = NewLabelTable(cfg.Layout.LabelTable); err != nil {
			return nil, types.NewAppError(types.ErrConfig, "invalid layout label table", err)
		}
	}

	p := &PdfProcessor{
		cfg:       cfg,
		oracle:    opts.Oracle,
		layout:    opts.Layout,
		labels:    labels,
		fonts:     opts.Fonts,
		protector: protector,
		log:       log,
		progress:  opts.Progress,
		workers:   cfg.Workers,
	}
	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}
	if p.fonts == nil {
		p.fonts = NewFontRegistry(cfg.Fonts, log)
	}

	if p.oracle == nil {
		switch strings.ToLower(cfg.TranslatorBackend) {
		case "http":
			p.oracle = NewHTTPOracle(HTTPOracleConfig{
				APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel, Logger: log,
			})
		default:
			p.oracle = NewEinoOracle(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, log)
		}
	}
	if cfg.CachePath != "" {
		p.cache = NewTranslationCache(cfg.CachePath)
		p.oracle = NewCachedOracle(p.oracle, p.cache)
	}

	if p.layout == nil {
		switch strings.ToLower(cfg.Layout.Provider) {
		case "none":
		case "onnx":
			lp, err := NewOnnxLayoutProvider(cfg.Layout, log)
			if err != nil {
				log.Warn("onnx layout provider unavailable, using rules", logger.Err(err))
				p.layout = RuleLayoutProvider{}
			} else {
				p.layout = lp
			}
		default:
			p.layout = RuleLayoutProvider{}
		}
	}
	return p, nil
}

// Fonts returns the session font registry
func (p *PdfProcessor) Fonts() *FontRegistry {
	return p.fonts
}

// Close releases the layout model if one was loaded
func (p *PdfProcessor) Close() error {
	if c, ok := p.layout.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// pageWork 一页在各阶段之间传递的状态
type pageWork struct {
	number    int
	data      *PageData
	fonts     map[string]*pageFont
	runs      []*TextRun
	paras     []*Paragraph
	regionBox map[*Paragraph]Rect
	// seen 页面上每个字体实际出现过的字符
	seen      map[*pageFont]map[rune]bool
	extracted bool
	skip      string

	fitted    bool
	generated bool
	content   []byte
	newFonts  map[string]fontUse
}

// processRun 一次 Process 调用的状态
type processRun struct {
	p      *PdfProcessor
	ctx    context.Context
	doc    *Document
	docMu  sync.Mutex
	pages  []*pageWork
	state  Phase
	result *ProcessResult
	src    string
	dst    string

	mu       sync.Mutex
	reportMu sync.Mutex
}

func (r *processRun) transition(to Phase) {
	if !CanTransition(r.state, to) {
		r.p.log.Warn("invalid phase transition", logger.String("from", string(r.state)), logger.String("to", string(to)))
		return
	}
	r.p.log.Debug("phase", logger.String("from", string(r.state)), logger.String("to", string(to)))
	r.state = to
	r.result.State = to
	r.report(0, 0, string(to))
}

func (r *processRun) report(current, total int, msg string) {
	if r.p.progress == nil {
		return
	}
	r.reportMu.Lock()
	defer r.reportMu.Unlock()
	span, ok := phaseSpan[r.state]
	frac := 1.0
	if ok {
		frac = span[0]
		if total > 0 {
			frac += (span[1] - span[0]) * float64(current) / float64(total)
		}
	}
	r.p.progress(Progress{Phase: r.state, Current: current, Total: total, Fraction: frac, Message: msg})
}

// fail 文档级错误：进入 FAILED 并返回错误
func (r *processRun) fail(err error) (*ProcessResult, error) {
	r.transition(PhaseFailed)
	r.p.log.Error("document processing failed", err, logger.String("input", r.src))
	return r.result, err
}

// Process translates the document at src and writes it to dst. Only
// document-level problems are returned as errors; paragraph failures are
// reported in the result statistics.
func (p *PdfProcessor) Process(ctx context.Context, src, dst string) (*ProcessResult, error) {
	r := &processRun{
		p: p, ctx: ctx, src: src, dst: dst, state: PhaseIdle,
		result: &ProcessResult{State: PhaseIdle, OutputPath: dst},
	}

	if info, err := ProbePDF(src); err == nil {
		p.log.Info("processing document", logger.String("info", info.String()))
		if !info.IsTextPDF {
			p.log.Warn("document has no extractable text, probably scanned", logger.String("input", src))
		}
	} else {
		p.log.Debug("probe failed", logger.Err(err))
	}

	if p.cache != nil {
		if err := p.cache.Load(); err != nil {
			p.log.Warn("translation cache not loaded", logger.Err(err))
		}
	}

	r.transition(PhaseExtracting)
	doc, err := OpenDocument(src)
	if err != nil {
		return r.fail(err)
	}
	r.doc = doc
	r.pages = make([]*pageWork, doc.PageCount())
	for i := range r.pages {
		r.pages[i] = &pageWork{number: i + 1}
	}
	if err := r.extract(); err != nil {
		return r.fail(err)
	}

	r.transition(PhaseProtecting)
	r.protect()

	r.transition(PhaseTranslating)
	ready := r.translateAndFit()

	r.transition(PhaseFitting)
	// translateAndFit 已按页完成排版，这里只汇报
	r.report(ready, len(r.pages), "fitted")

	r.transition(PhaseGenerating)
	if err := r.generate(ready); err != nil {
		return r.fail(err)
	}

	if err := doc.Write(dst); err != nil {
		return r.fail(err)
	}
	if p.cache != nil {
		if err := p.cache.Save(); err != nil {
			p.log.Warn("translation cache not saved", logger.Err(err))
		}
	}

	r.collect()
	if r.result.LastCompletedPage < len(r.pages) {
		r.transition(PhaseCancelled)
	} else {
		r.transition(PhaseComplete)
	}
	s := r.result.Stats
	p.log.Info("document processed",
		logger.String("state", string(r.result.State)),
		logger.Int("total", s.TotalCells),
		logger.Int("succeeded", s.SucceededCells),
		logger.Int("failed", len(s.FailedCells)),
		logger.Int("pending", s.PendingCells),
		logger.Int("lastPage", r.result.LastCompletedPage))
	return r.result, nil
}

// extract 并行解析每页：内容流、文本运行、单元格、版面、段落
func (r *processRun) extract() error {
	g := new(errgroup.Group)
	g.SetLimit(r.p.workers)
	var done int
	for _, pw := range r.pages {
		if r.ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if r.ctx.Err() != nil {
				return nil
			}
			if err := r.extractPage(pw); err != nil {
				return err
			}
			r.mu.Lock()
			done++
			n := done
			r.mu.Unlock()
			r.report(n, len(r.pages), fmt.Sprintf("page %d extracted", pw.number))
			return nil
		})
	}
	return g.Wait()
}

func (r *processRun) extractPage(pw *pageWork) error {
	r.docMu.Lock()
	data, err := r.doc.Page(pw.number)
	r.docMu.Unlock()
	if err != nil {
		return err
	}
	pw.data = data

	ops, perr := ParseContent(data.Content)
	if perr != nil {
		// 语法错误的页面保持原样
		pw.skip = perr.Error()
		pw.extracted = true
		r.p.log.Warn("content stream not parseable, page left untouched", logger.Page(pw.number), logger.Err(perr))
		return nil
	}

	pw.fonts = make(map[string]*pageFont, len(data.Fonts))
	for name, spec := range data.Fonts {
		pw.fonts[name] = newPageFont(name, spec)
	}
	pw.runs = InterpretPage(ops, pw.fonts)
	pw.seen = map[*pageFont]map[rune]bool{}
	for _, run := range pw.runs {
		if run.Font == nil {
			continue
		}
		set := pw.seen[run.Font]
		if set == nil {
			set = map[rune]bool{}
			pw.seen[run.Font] = set
		}
		for _, c := range run.Text {
			set[c] = true
		}
	}

	cells := BuildCells(pw.number, pw.runs)
	var regions []ClassifiedRegion
	if r.p.layout != nil && len(cells) > 0 {
		layout, err := r.p.layout.DetectLayout(r.ctx, PageInput{
			Path: r.src, Page: pw.number, MediaBox: data.MediaBox, Cells: cells,
		})
		if err != nil {
			r.p.log.Warn("layout detection failed, treating page as plain text", logger.Page(pw.number), logger.Err(err))
		} else {
			regions = Classify(layout, r.p.labels, r.p.cfg.Layout.ContainmentThreshold)
		}
	}
	AssignCells(cells, regions)
	pw.paras = GroupParagraphs(pw.number, cells, data.MediaBox.Width())
	pw.regionBox = regionBoxes(pw.paras, regions)
	pw.extracted = true
	r.p.log.Debug("page extracted",
		logger.Page(pw.number),
		logger.Int("runs", len(pw.runs)),
		logger.Int("cells", len(cells)),
		logger.Int("paragraphs", len(pw.paras)),
		logger.Int("regions", len(regions)))
	return nil
}

// protect 替换公式为占位符；没有可翻译文字的段落跳过
func (r *processRun) protect() {
	for i, pw := range r.pages {
		for _, p := range pw.paras {
			p.Protected, p.Vars = r.p.protector.Protect(p.Glyphs, p.FontSize)
			p.Protected = strings.TrimSpace(p.Protected)
			if !HasTranslatableText(p.Protected) || paragraphUndecodable(p) {
				p.Skipped = true
			}
		}
		r.report(i+1, len(r.pages), "")
	}
}

// batchJob 一次 oracle 调用
type batchJob struct {
	index int
	texts []string
	pages []int
}

type batchResult struct {
	job       *batchJob
	out       []string
	hit       []bool
	err       error
	cancelled bool
}

// translateAndFit sends the unique protected texts to the oracle in batches
// on a dedicated executor. A page is fitted as soon as it and every page
// before it have all their batches back. It returns the number of leading
// pages that are ready for generation.
func (r *processRun) translateAndFit() int {
	// 按页面顺序收集去重后的文本
	byText := map[string][]*Paragraph{}
	var texts []string
	for _, pw := range r.pages {
		for _, p := range pw.paras {
			if p.Skipped {
				continue
			}
			if _, ok := byText[p.Protected]; !ok {
				texts = append(texts, p.Protected)
			}
			byText[p.Protected] = append(byText[p.Protected], p)
		}
	}

	budget := r.p.cfg.ContextWindow
	if budget <= 0 {
		budget = DefaultContextWindow
	}
	pending := make([]int, len(r.pages))
	var jobs []*batchJob
	for i, batch := range BatchTexts(texts, budget) {
		job := &batchJob{index: i, texts: batch}
		touched := map[int]bool{}
		for _, t := range batch {
			for _, p := range byText[t] {
				touched[p.Page] = true
			}
		}
		for pg := range touched {
			job.pages = append(job.pages, pg)
			pending[pg-1]++
		}
		sort.Ints(job.pages)
		jobs = append(jobs, job)
	}

	fitGroup := new(errgroup.Group)
	fitGroup.SetLimit(r.p.workers)
	ready := 0
	advance := func() {
		for ready < len(r.pages) && pending[ready] == 0 && r.pages[ready].extracted {
			pw := r.pages[ready]
			fitGroup.Go(func() error {
				r.fitPage(pw)
				return nil
			})
			ready++
		}
	}
	advance()

	concurrency := r.p.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	jobCh := make(chan *batchJob)
	resCh := make(chan batchResult)
	var workers sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for job := range jobCh {
				resCh <- r.runBatch(job)
			}
		}()
	}
	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			if r.ctx.Err() != nil {
				return
			}
			select {
			case jobCh <- job:
			case <-r.ctx.Done():
				return
			}
		}
	}()
	go func() {
		workers.Wait()
		close(resCh)
	}()

	finished := 0
	for res := range resCh {
		finished++
		if res.cancelled {
			// 取消后的结果不使用，这些页面保持待处理
			continue
		}
		r.applyBatch(res, byText)
		for _, pg := range res.job.pages {
			pending[pg-1]--
		}
		advance()
		r.report(finished, len(jobs), fmt.Sprintf("batch %d/%d", finished, len(jobs)))
	}
	_ = fitGroup.Wait()
	return ready
}

// runBatch 调用 oracle，调用前后检查取消
func (r *processRun) runBatch(job *batchJob) batchResult {
	res := batchResult{job: job}
	if r.ctx.Err() != nil {
		res.cancelled = true
		return res
	}
	req := OracleRequest{
		Texts:      job.texts,
		SourceLang: r.p.cfg.SourceLanguage,
		TargetLang: r.p.cfg.TargetLanguage,
		CharBudget: r.p.cfg.ContextWindow,
	}
	if co, ok := r.p.oracle.(*CachedOracle); ok {
		res.out, res.hit, res.err = co.TranslateCached(r.ctx, req)
	} else {
		res.out, res.err = r.p.oracle.Translate(r.ctx, req)
	}
	if r.ctx.Err() != nil {
		res.cancelled = true
		return res
	}
	if res.err == nil && len(res.out) != len(job.texts) {
		res.err = fmt.Errorf("%w: sent %d, got %d", ErrOracleMismatch, len(job.texts), len(res.out))
	}
	return res
}

func (r *processRun) applyBatch(res batchResult, byText map[string][]*Paragraph) {
	if res.err != nil {
		r.p.log.Warn("translation batch failed",
			logger.Int("batch", res.job.index),
			logger.Int("texts", len(res.job.texts)),
			logger.Err(res.err))
	}
	for i, text := range res.job.texts {
		for _, p := range byText[text] {
			if res.err != nil {
				p.Fail(ReasonTranslationError, res.err.Error())
				continue
			}
			p.Translated = res.out[i]
			p.FromCache = res.hit != nil && res.hit[i]
		}
	}
}

// fitPage 还原公式、选择字体并排版本页的段落
func (r *processRun) fitPage(pw *pageWork) {
	target := r.p.cfg.TargetLanguage
	lh := LineHeightFor(target)
	for _, p := range pw.paras {
		if p.Skipped || p.Failed != "" {
			continue
		}
		segs, err := r.p.protector.Restore(p.Translated, p.Vars)
		if err != nil {
			p.Fail(ReasonFormulaMismatch, err.Error())
			continue
		}
		p.Segments = segs
		fi, err := r.chooseFont(pw, p)
		if err != nil {
			p.Fail(ReasonFontUnresolved, err.Error())
			continue
		}
		p.Font = fi

		box := p.Box
		if rb, ok := pw.regionBox[p]; ok {
			box = rb
		}
		p.Fit = Fit(FitRequest{
			Segments:   segs,
			Box:        box,
			FontSize:   p.FontSize,
			LineHeight: lh,
			Vertical:   p.Vertical,
			Measure:    fi.Measure(),
			Params:     FitParamsFrom(r.p.cfg.Fitting, p.Role == RoleTableCell),
		})
		if p.Fit.Overflow {
			r.p.log.Warn("paragraph overflows its box at minimum size",
				logger.String("id", p.ID), logger.Page(pw.number),
				logger.Float64("size", p.Fit.FontSize))
		}
	}
	pw.fitted = true
}

// outputText 需要用输出字体编码的文字：普通文本与不能复用原字形的公式字符
func outputText(segs []Segment, fonts map[string]*pageFont, vertical bool) string {
	var sb strings.Builder
	for _, s := range segs {
		if s.Var == nil || len(s.Var.Glyphs) == 0 {
			sb.WriteString(s.Text)
			continue
		}
		for _, gl := range s.Var.Glyphs {
			if !reusableFormulaGlyph(gl, fonts, vertical) {
				sb.WriteString(gl.Text)
			}
		}
	}
	return sb.String()
}

// docFontUsable 原字体能显示译文时直接复用；子集字体只信任页面上出现过的字符
func docFontUsable(pw *pageWork, pf *pageFont, text string) bool {
	if pf == nil || pf.Unsupported || !pf.Covers(text) {
		return false
	}
	if pf.Spec.HasFontFile && strings.Contains(pf.Spec.BaseFont, "+") {
		seen := pw.seen[pf]
		for _, c := range text {
			if c != '\n' && !seen[c] {
				return false
			}
		}
	}
	return true
}

func (r *processRun) chooseFont(pw *pageWork, p *Paragraph) (*FontInfo, error) {
	runs := paragraphRuns(p)
	if len(runs) == 0 {
		return nil, fmt.Errorf("paragraph %s has no runs", p.ID)
	}
	text := outputText(p.Segments, pw.fonts, p.Vertical)
	if pf := runs[0].Font; docFontUsable(pw, pf, text) {
		return r.p.fonts.DocumentFont(pf), nil
	}

	fi, ok := r.p.fonts.ResolveOutputFont(r.p.cfg.TargetLanguage, p.FontType)
	if !ok {
		r.p.log.Debug("using fallback font", logger.String("id", p.ID), logger.String("font", fi.Name))
	}
	if p.Vertical && fi.Builtin {
		return nil, fmt.Errorf("no vertical font for %s", NormalizeLang(r.p.cfg.TargetLanguage))
	}
	if !fi.Covers(text) {
		return nil, fmt.Errorf("font %s does not cover the translation", fi.Name)
	}
	if err := r.p.fonts.RegisterGlyphs(fi, []rune(text)); err != nil {
		return nil, err
	}
	return fi, nil
}

// generatable 已排版且未失败的段落
func generatable(p *Paragraph) bool {
	return !p.Skipped && p.Failed == "" && p.Fit != nil && p.Font != nil
}

type fontUseKey struct {
	key      string
	vertical bool
}

// generate embeds the substitute fonts, builds each ready page's new content
// in parallel and commits the pages in order.
func (r *processRun) generate(ready int) error {
	cancelled := r.ctx.Err() != nil

	// 先顺序嵌入字体，对象编号与页面处理顺序无关
	uses := map[fontUseKey]fontUse{}
	for _, pw := range r.pages[:ready] {
		for _, p := range pw.paras {
			if !generatable(p) || p.Font.doc != nil {
				continue
			}
			u := fontUse{info: p.Font, vertical: p.Vertical && !p.Font.Builtin}
			uses[fontUseKey{p.Font.Key, u.vertical}] = u
		}
	}
	keys := make([]fontUseKey, 0, len(uses))
	for k := range uses {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].key != keys[j].key {
			return keys[i].key < keys[j].key
		}
		return !keys[i].vertical && keys[j].vertical
	})
	refs := map[fontUse]pdftypes.IndirectRef{}
	var failedFonts []string
	for _, k := range keys {
		u := uses[k]
		var ref pdftypes.IndirectRef
		var err error
		if u.info.Builtin {
			ref, err = r.doc.HelveticaRef()
		} else {
			ref, err = r.doc.EmbedFont(u.info, u.vertical)
		}
		if err != nil {
			r.p.log.Warn("font embedding failed", logger.String("font", u.info.Key), logger.Err(err))
			failedFonts = append(failedFonts, u.info.Key)
			continue
		}
		refs[u] = ref
	}
	r.result.Stats.FailedFonts = failedFonts
	for _, pw := range r.pages[:ready] {
		for _, p := range pw.paras {
			if !generatable(p) || p.Font.doc != nil {
				continue
			}
			u := fontUse{info: p.Font, vertical: p.Vertical && !p.Font.Builtin}
			if _, ok := refs[u]; !ok {
				p.Fail(ReasonFontUnresolved, "font "+p.Font.Key+" could not be embedded")
			}
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(r.p.workers)
	var done int
	for _, pw := range r.pages[:ready] {
		g.Go(func() error {
			// 已取消时只完成取消前就绪的页面；否则在页面之间检查取消
			if !cancelled && r.ctx.Err() != nil {
				return nil
			}
			r.generatePage(pw)
			r.mu.Lock()
			done++
			n := done
			r.mu.Unlock()
			r.report(n, ready, fmt.Sprintf("page %d generated", pw.number))
			return nil
		})
	}
	_ = g.Wait()

	// 按页顺序提交连续完成的页面
	for _, pw := range r.pages[:ready] {
		if !pw.generated {
			break
		}
		if pw.content != nil {
			if err := r.doc.SetPageContent(pw.number, pw.content); err != nil {
				return err
			}
			added := map[string]pdftypes.IndirectRef{}
			for name, u := range pw.newFonts {
				added[name] = refs[u]
			}
			if err := r.doc.AddPageFonts(pw.number, added); err != nil {
				return err
			}
		}
		r.result.LastCompletedPage = pw.number
	}
	return nil
}

func (r *processRun) generatePage(pw *pageWork) {
	defer func() { pw.generated = true }()
	if pw.skip != "" || pw.data == nil {
		return
	}
	gen := newPageGenerator(pw.number, pw.data.FontNames, pw.fonts, pw.runs)
	var edits []spanEdit
	for _, p := range pw.paras {
		if !generatable(p) {
			continue
		}
		e, err := gen.paragraphEdits(p)
		if err != nil {
			if errors.Is(err, ErrRuneNotEncodable) {
				p.Fail(ReasonFontUnresolved, err.Error())
			} else {
				p.Fail(ReasonSpliceRejected, err.Error())
			}
			continue
		}
		edits = append(edits, e...)
	}
	if len(edits) == 0 {
		return
	}

	tol := r.p.cfg.SpliceTolerance
	if tol <= 0 {
		tol = config.DefaultSpliceTolerance
	}
	content, rejected := gen.ReplacePage(pw.data.Content, edits, tol)
	var kept []*Paragraph
	seen := map[*Paragraph]bool{}
	for _, e := range edits {
		if seen[e.Para] {
			continue
		}
		seen[e.Para] = true
		if why, ok := rejected[e.Para]; ok {
			e.Para.Fail(ReasonSpliceRejected, why)
			r.p.log.Debug("splice rejected", logger.String("id", e.Para.ID), logger.String("reason", why))
			continue
		}
		kept = append(kept, e.Para)
	}
	if len(kept) == 0 {
		return
	}
	pw.content = content
	pw.newFonts = gen.addedFonts(kept)
}

// collect 汇总统计：每个含可翻译文字的段落恰好计入成功、失败或待处理之一
func (r *processRun) collect() {
	s := &r.result.Stats
	s.FailedFonts = mergeSorted(s.FailedFonts, r.p.fonts.FailedFonts())
	for _, pw := range r.pages {
		for _, p := range pw.paras {
			rep := ParagraphReport{
				ID: p.ID, Page: p.Page, Text: p.Text, Translated: p.Translated,
				OriginalSize: p.FontSize,
			}
			if p.Skipped {
				s.SkippedCells++
				rep.Status = "skipped"
				r.result.Paragraphs = append(r.result.Paragraphs, rep)
				continue
			}
			s.TotalCells++
			completed := pw.number <= r.result.LastCompletedPage
			switch {
			case p.Failed != "":
				s.FailedCells = append(s.FailedCells, FailedCell{ID: p.ID, Page: p.Page, Reason: p.Failed, Detail: p.FailDetail})
				rep.Status = string(p.Failed)
				// 溢出的排版通常过不了框校验，同样计入溢出数
				if p.Fit != nil && p.Fit.Overflow {
					s.OverflowCells++
					rep.Overflow = true
				}
			case !completed || !generatable(p):
				s.PendingCells++
				rep.Status = "pending"
			default:
				s.SucceededCells++
				rep.Status = "ok"
				if p.FromCache {
					s.CachedCells++
				}
				if p.Fit.Overflow {
					s.OverflowCells++
				}
				rep.FontSize = p.Fit.FontSize
				rep.LineHeight = p.Fit.LineHeight
				rep.Steps = p.Fit.Steps
				rep.Overflow = p.Fit.Overflow
				rep.Font = p.Font.Name
			}
			r.result.Paragraphs = append(r.result.Paragraphs, rep)
		}
	}
}

func mergeSorted(a, b []string) []string {
	set := map[string]bool{}
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// StatsSidecarPath 统计文件路径：<输出文件>.stats.json
func StatsSidecarPath(output string) string {
	return output + ".stats.json"
}

// WriteStatsSidecar writes the statistics next to the output document
func WriteStatsSidecar(path string, stats Stats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return NewPDFError(ErrWriteFailed, "failed to marshal statistics", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return NewPDFError(ErrWriteFailed, "failed to write statistics", err)
	}
	return nil
}
