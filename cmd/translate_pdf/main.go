package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"pdf-layout-translator/internal/config"
	"pdf-layout-translator/internal/logger"
	"pdf-layout-translator/internal/pdf"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "config file (.json/.yaml), default ~/.config/pdf-layout-translator/pdf-layout-translator.yaml")
		outputPath = flag.String("o", "", "output PDF, default <input>_translated.pdf")
		source     = flag.String("from", "", "source language, overrides config")
		target     = flag.String("to", "", "target language, overrides config")
		backend    = flag.String("backend", "", "translator backend: eino or http")
		layoutProv = flag.String("layout", "", "layout provider: rules, onnx or none")
		cachePath  = flag.String("cache", "", "translation cache file")
		workers    = flag.Int("workers", 0, "page workers, 0 = number of CPUs")
		logLevel   = flag.String("log-level", "", "debug, info, warn or error")
		noStats    = flag.Bool("no-stats", false, "do not write the <output>.stats.json sidecar")
		bilingual  = flag.Bool("bilingual", false, "also write <output>_bilingual.pdf with original and translated pages interleaved")
		glossary   = flag.Bool("glossary", false, "also write <output>_glossary.csv with the translated pairs")
		validate   = flag.Bool("validate", false, "validate the written PDFs with pdfcpu")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: translate_pdf [flags] <input.pdf>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}
	input := flag.Arg(0)

	cm, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := cm.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg := cm.GetConfig()
	if *source != "" {
		cfg.SourceLanguage = *source
	}
	if *target != "" {
		cfg.TargetLanguage = *target
	}
	if *backend != "" {
		cfg.TranslatorBackend = *backend
	}
	if *layoutProv != "" {
		cfg.Layout.Provider = *layoutProv
	}
	if *cachePath != "" {
		cfg.CachePath = *cachePath
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logCfg := logger.DefaultConfig()
	if cfg.LogFile != "" {
		logCfg.LogFilePath = cfg.LogFile
	}
	logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	logCfg.EnableConsole = logCfg.Level == logger.LevelDebug
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logger not initialized: %v\n", err)
	}
	defer logger.Close()

	if cfg.OpenAIAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: OpenAI API key not configured")
		fmt.Fprintf(os.Stderr, "Set %s or openai_api_key in %s\n", config.EnvOpenAIAPIKey, cm.GetConfigPath())
		return 1
	}

	out := *outputPath
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + "_translated.pdf"
	}

	fmt.Printf("Input:  %s\n", input)
	fmt.Printf("Output: %s\n", out)
	fmt.Printf("Model:  %s (%s)\n", cfg.OpenAIModel, cfg.TranslatorBackend)
	fmt.Printf("Langs:  %s -> %s\n\n", cfg.SourceLanguage, cfg.TargetLanguage)

	proc, err := pdf.NewPdfProcessor(pdf.ProcessorOptions{
		Config: cfg,
		Progress: func(p pdf.Progress) {
			fmt.Printf("\r[%3d%%] %-12s %d/%d %-30s", int(p.Fraction*100), p.Phase, p.Current, p.Total, p.Message)
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer proc.Close()

	// Ctrl+C 协作式取消：已完成的页面仍会写出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := proc.Process(ctx, input, out)
	fmt.Println()
	if err != nil {
		var pe *pdf.PDFError
		if errors.As(err, &pe) {
			fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", pe.Code, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	s := result.Stats
	fmt.Printf("\n=== Translation %s ===\n", strings.ToUpper(string(result.State)))
	fmt.Printf("Total cells:       %d\n", s.TotalCells)
	fmt.Printf("Succeeded:         %d\n", s.SucceededCells)
	fmt.Printf("From cache:        %d\n", s.CachedCells)
	fmt.Printf("Overflowing:       %d\n", s.OverflowCells)
	fmt.Printf("Failed:            %d\n", len(s.FailedCells))
	if s.PendingCells > 0 {
		fmt.Printf("Pending:           %d (last page written: %d)\n", s.PendingCells, result.LastCompletedPage)
	}
	for _, fc := range s.FailedCells {
		fmt.Printf("  %-12s page %-3d %s\n", fc.ID, fc.Page, fc.Reason)
	}
	if len(s.FailedFonts) > 0 {
		fmt.Printf("Failed fonts:      %s\n", strings.Join(s.FailedFonts, ", "))
	}
	fmt.Printf("Output:            %s\n", result.OutputPath)

	if !*noStats {
		sidecar := pdf.StatsSidecarPath(out)
		if err := pdf.WriteStatsSidecar(sidecar, s); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			fmt.Printf("Statistics:        %s\n", sidecar)
		}
	}
	if *glossary {
		path := pdf.GlossaryPath(out)
		if g, err := pdf.ExportGlossaryCSV(path, result.Paragraphs); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			fmt.Printf("Glossary:          %s (%d pairs, %d skipped)\n", path, g.Exported, g.Skipped)
		}
	}
	written := []string{out}
	if *bilingual {
		path := pdf.BilingualPath(out)
		if b, err := pdf.CreateBilingualPDF(input, out, path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			fmt.Printf("Bilingual:         %s (%d pages)\n", path, b.TotalPages)
			written = append(written, path)
		}
	}
	if *validate {
		for _, path := range written {
			if err := pdf.Validate(path); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
		}
		fmt.Println("Validation:        ok")
	}

	if result.State == pdf.PhaseCancelled {
		return 130
	}
	return 0
}
