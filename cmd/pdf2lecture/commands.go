package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/pdf2lecture/internal/engine"
	"github.com/ivlev/pdf2lecture/internal/markup"
	"github.com/ivlev/pdf2lecture/internal/source"
	"github.com/ivlev/pdf2lecture/internal/system"
)

func argOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

var buildJSON bool

var buildCmd = &cobra.Command{
	Use:   "build [narration.json | doc-id]",
	Short: "Build the segment timeline of a narration document",
	Long: `Build decodes a narration document, classifies its regions, synthesizes
visuals for text regions and prints the resulting timeline. The raw
narration is persisted so later commands can open it by id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		doc, _, err := a.open(cmd.Context(), argOrEmpty(args))
		if err != nil {
			return err
		}
		if buildJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(doc.Timeline)
		}
		for _, s := range doc.Timeline.Segments() {
			fmt.Printf("%3d [%4d-%4ds] %-40s %s\n", s.Index, s.Start, s.End, s.Heading, s.Visual)
		}
		fmt.Printf("[+] %s: %d segments, %ds\n", doc.ID, doc.Timeline.Len(), doc.Timeline.Total())
		return nil
	},
}

var playOpts engine.PlayOptions

var playCmd = &cobra.Command{
	Use:   "play [narration.json | doc-id]",
	Short: "Play a document headlessly",
	Long: `Play runs the timeline through the playback controller with a simulated
audio element and logs every segment switch. Use --speed to fast-forward
and --transcript to print each segment's highlighted text.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		doc, _, err := a.open(cmd.Context(), argOrEmpty(args))
		if err != nil {
			return err
		}
		r := a.renderer()
		defer r.Close()

		opt := playOpts
		opt.Autoplay = a.cfg.AutoPlay
		st, err := engine.Play(cmd.Context(), doc.Timeline, r, opt, nil)
		if err != nil {
			return err
		}
		log.Printf("[+] %s: %s at %.0fs", doc.ID, st.State, st.Slider)
		if a.cfg.ShowStats {
			fmt.Println(system.Stats())
		}
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export [narration.json | doc-id]",
	Short: "Render a document to video",
	Long: `Export renders every segment's visual with transitions between them and
places each segment's audio at its start time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		doc, input, err := a.open(cmd.Context(), argOrEmpty(args))
		if err != nil {
			return err
		}
		out := outputPath(exportOut, input)
		log.Printf("[*] Экспорт %s -> %s", doc.ID, out)

		rep, err := a.exporter().ExportTimeline(cmd.Context(), doc.Timeline, out)
		if err != nil {
			return err
		}
		rep.Input = input
		a.report(rep)
		return nil
	},
}

var slideshowOpts struct {
	out          string
	audio        string
	duration     float64
	pageDuration float64
	audioSync    bool
	play         bool
	speed        float64
	seek         float64
	skipToEnd    bool
}

var slideshowCmd = &cobra.Command{
	Use:   "slideshow [pdf | image-dir]",
	Short: "Render a PDF or image directory as an evenly timed slideshow",
	Long: `Slideshow shows every page or image for the same time. The total length
comes from --duration, the narration track, or --page-duration per image.
The transition kind rotates on every change. With --play the slideshow is
played headlessly against the narration track instead of being rendered.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		system.InitResourceLimits()
		a := &app{cfg: cfg, loader: source.NewLoader()}
		a.loader.DPI = cfg.DPI

		input := argOrEmpty(args)
		if input == "" {
			latest, err := system.FindLatest("input/pdf", []string{".pdf"})
			if err != nil {
				return fmt.Errorf("%w. Положите PDF в input/pdf/", err)
			}
			input = latest
			log.Printf("[*] Выбран файл: %s", input)
		}
		images, err := source.ListImages(input)
		if err != nil {
			return fmt.Errorf("source init: %w", err)
		}

		audioPath := slideshowOpts.audio
		if audioPath == "" {
			if latest, err := system.FindLatestAudio("input/audio"); err == nil {
				audioPath = latest
				log.Printf("[*] Выбрано аудио: %s", audioPath)
			}
		}

		duration := slideshowOpts.duration
		if duration <= 0 {
			duration = cfg.Duration
		}
		if audioPath != "" && slideshowOpts.audioSync {
			d, err := system.GetAudioDuration(cmd.Context(), audioPath)
			if err == nil {
				duration = d
				log.Printf("[*] Длительность видео установлена по аудио: %.2fs", duration)
			} else {
				log.Printf("[!] Не удалось получить длительность аудио: %v", err)
			}
		}
		if duration <= 0 {
			duration = float64(len(images)) * slideshowOpts.pageDuration
		}

		if slideshowOpts.play {
			r := a.renderer()
			defer r.Close()
			opt := engine.PlayOptions{Speed: slideshowOpts.speed, Seek: slideshowOpts.seek, SkipToEnd: slideshowOpts.skipToEnd}
			st, err := engine.PlaySlideshow(cmd.Context(), images, audioPath, duration, r, opt, nil)
			if err != nil {
				return err
			}
			log.Printf("[+] %s: image %d/%d at %.2fs", input, st.Index+1, len(images), st.Time)
			return nil
		}

		out := outputPath(slideshowOpts.out, input)
		rep, err := a.exporter().ExportSlideshow(cmd.Context(), images, audioPath, duration, out)
		if err != nil {
			return err
		}
		rep.Input = input
		a.report(rep)
		return nil
	},
}

var highlightMarkers []string

var highlightCmd = &cobra.Command{
	Use:   "highlight [file]",
	Short: "Normalize narration text and mark highlighted paragraphs",
	Long: `Highlight reads text from a file or stdin, normalizes its whitespace and
wraps every paragraph containing one of the --marker strings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if len(args) > 0 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		text := markup.Normalize(string(data))
		fmt.Println(strings.TrimRight(markup.HighlightMarkers(text, highlightMarkers), "\n"))
		return nil
	},
}

func init() {
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "Print the timeline as JSON")

	playCmd.Flags().Float64Var(&playOpts.Speed, "speed", 1, "Playback speed multiplier")
	playCmd.Flags().DurationVar(&playOpts.Tick, "tick", 250*time.Millisecond, "Audio update interval")
	playCmd.Flags().BoolVar(&playOpts.Transcript, "transcript", false, "Print each segment's text")

	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output video (default: output/<name>_<timestamp>.mp4)")

	f := slideshowCmd.Flags()
	f.StringVarP(&slideshowOpts.out, "output", "o", "", "Output video (default: output/<name>_<timestamp>.mp4)")
	f.StringVar(&slideshowOpts.audio, "audio", "", "Narration track (default: newest file in input/audio/)")
	f.Float64Var(&slideshowOpts.duration, "duration", 0, "Total length in seconds")
	f.Float64Var(&slideshowOpts.pageDuration, "page-duration", 3, "Seconds per image when nothing else sets the length")
	f.BoolVar(&slideshowOpts.audioSync, "audio-sync", true, "Match the length to the narration track")
	f.BoolVar(&slideshowOpts.play, "play", false, "Play headlessly instead of rendering a video")
	f.Float64Var(&slideshowOpts.speed, "speed", 1, "Playback speed multiplier (with --play)")
	f.Float64Var(&slideshowOpts.seek, "seek", 0, "Start position as a fraction of the track, 0..1 (with --play)")
	f.BoolVar(&slideshowOpts.skipToEnd, "skip-to-end", false, "Jump to the last image (with --play)")

	highlightCmd.Flags().StringSliceVar(&highlightMarkers, "marker", nil, "Text that marks a paragraph for highlighting")
}
