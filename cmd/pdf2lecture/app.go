package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/pdf2lecture/internal/analyzer"
	"github.com/ivlev/pdf2lecture/internal/builder"
	"github.com/ivlev/pdf2lecture/internal/collab"
	"github.com/ivlev/pdf2lecture/internal/config"
	"github.com/ivlev/pdf2lecture/internal/engine"
	"github.com/ivlev/pdf2lecture/internal/narration"
	"github.com/ivlev/pdf2lecture/internal/source"
	"github.com/ivlev/pdf2lecture/internal/store"
	"github.com/ivlev/pdf2lecture/internal/system"
	"github.com/ivlev/pdf2lecture/internal/transition"
	"github.com/ivlev/pdf2lecture/internal/video"
)

var opts struct {
	configPath string
	stats      bool
	docID      string
	format     string

	width, height      int
	fps, workers       int
	quality            int
	transition         string
	transitionDuration time.Duration
}

// app is everything a command needs, wired from the config.
type app struct {
	cfg     *config.Config
	loader  *source.Loader
	session *engine.Session
	closers []func() error
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.BuildVersion = BuildVersion

	switch opts.format {
	case "":
	case "16:9":
		cfg.Width, cfg.Height = 1280, 720
	case "9:16":
		cfg.Width, cfg.Height = 720, 1280
	case "4:5":
		cfg.Width, cfg.Height = 1080, 1350
	default:
		return nil, fmt.Errorf("unknown format %q", opts.format)
	}
	if opts.width > 0 {
		cfg.Width = opts.width
	}
	if opts.height > 0 {
		cfg.Height = opts.height
	}
	if opts.fps > 0 {
		cfg.FPS = opts.fps
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.quality > 0 {
		cfg.Quality = opts.quality
	}
	if opts.transition != "" {
		cfg.TransitionType = opts.transition
	}
	if opts.transitionDuration > 0 {
		cfg.TransitionDuration = opts.transitionDuration
	}
	if opts.docID != "" {
		cfg.DocumentID = opts.docID
	}
	if opts.stats {
		cfg.ShowStats = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	system.InitResourceLimits()

	a := &app{cfg: cfg, loader: source.NewLoader()}
	a.loader.DPI = cfg.DPI

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var remote analyzer.Classifier
	var synth collab.Synthesizer
	if cfg.RemoteServices() {
		client := collab.NewHTTPClient(cfg.ServiceURL, cfg.ServiceKey, cfg.CallTimeout, cfg.RatePerSecond)
		remote, synth = client, client
		log.Printf("[*] Remote services: %s", cfg.ServiceURL)
	}
	classifier, err := analyzer.NewClassifier(cfg.Classifier, a.loader, remote)
	if err != nil {
		return nil, err
	}

	b := &builder.Builder{
		Classifier:  classifier,
		Synthesizer: synth,
		Store:       st,
		CallTimeout: cfg.CallTimeout,
		Workers:     cfg.Workers,
	}
	a.session = &engine.Session{Builder: b, Store: st}
	return a, nil
}

// openStore persists narration under StoreDir and, when configured, in
// Redis. An unreachable Redis only disables the shared tier.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	local, err := store.NewLocalStore(a.cfg.StoreDir)
	if err != nil {
		return nil, err
	}
	if a.cfg.RedisAddr == "" {
		return local, nil
	}
	rs, err := store.DialRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB, a.cfg.RedisTTL)
	if err != nil {
		log.Printf("[!] %v, using local store only", err)
		return local, nil
	}
	a.closers = append(a.closers, rs.Close)
	return store.NewTiered(local, rs, nil), nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Printf("[!] close: %v", err)
		}
	}
}

// open resolves arg to a document: a narration file is decoded and built,
// anything else is taken as the id of a persisted document. No argument
// picks the newest file in input/narration.
func (a *app) open(ctx context.Context, arg string) (*engine.Document, string, error) {
	if arg == "" {
		latest, err := system.FindLatestNarration("input/narration")
		if err != nil {
			return nil, "", fmt.Errorf("%w. Положите JSON с озвучкой в input/narration/", err)
		}
		arg = latest
		log.Printf("[*] Выбран файл: %s", arg)
	}

	docID := a.cfg.DocumentID
	var provider engine.Provider
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		if docID == "" {
			docID = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		}
		provider = func(ctx context.Context) (narration.Document, error) {
			f, err := os.Open(arg)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return narration.Decode(f)
		}
	} else if docID == "" {
		docID = arg
	}

	doc, err := a.session.Open(ctx, docID, provider)
	return doc, arg, err
}

func (a *app) renderer() *transition.Renderer {
	r := transition.NewRenderer(a.cfg.Width, a.cfg.Height, a.cfg.TransitionDuration, nil)
	r.Loader = a.loader
	r.SetKind(transition.Kind(a.cfg.TransitionType))
	return r
}

func (a *app) exporter() *engine.Exporter {
	encoderName := a.cfg.VideoEncoder
	if encoderName == "" {
		encoderName = system.GetBestH264Encoder()
		if encoderName != "libx264" {
			log.Printf("[*] Обнаружено аппаратное ускорение: %s", encoderName)
		}
	}
	quality := a.cfg.Quality
	if quality == 0 {
		switch encoderName {
		case "h264_videotoolbox":
			quality = 75
		default:
			quality = 23
		}
	}
	return &engine.Exporter{
		Encoder: &video.FFmpegEncoder{},
		Loader:  a.loader,
		Params: video.Params{
			Width:   a.cfg.Width,
			Height:  a.cfg.Height,
			FPS:     a.cfg.FPS,
			Encoder: encoderName,
			Quality: quality,
			Preset:  a.cfg.Preset,
		},
		TransitionDuration: a.cfg.TransitionDuration,
		Transition:         transition.Kind(a.cfg.TransitionType),
	}
}

// outputPath returns out, or a timestamped name under output/ derived from
// the input.
func outputPath(out, input string) string {
	if out != "" {
		return out
	}
	os.MkdirAll("output", 0755)
	base := filepath.Base(input)
	name := strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s.mp4", name, timestamp))
}

func (a *app) report(rep engine.Report) {
	log.Printf("[+] Готово: %s (%.2fs, %d frames) за %v", rep.Output, rep.Duration, rep.Frames, rep.Elapsed.Round(time.Millisecond))
	if !a.cfg.ShowStats {
		return
	}
	engine.WriteReport(os.Stdout, a.cfg.BuildVersion, rep)
	if err := engine.AppendBenchmark("benchmark.log", a.cfg.BuildVersion, rep); err != nil {
		log.Printf("[!] Не удалось записать benchmark.log: %v", err)
	}
}
