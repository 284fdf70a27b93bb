package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// BuildVersion is set with -ldflags "-X main.BuildVersion=...".
var BuildVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "pdf2lecture",
	Short: "Turn narrated documents into timed lectures",
	Long: `pdf2lecture builds a segment timeline from a narration document,
plays it back headlessly, and exports it as a video with transitions
between visuals. It can also render a plain slideshow of a PDF or an
image directory over one narration track.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "[-] Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "YAML config file")
	f.BoolVar(&opts.stats, "stats", false, "Print a performance report and append it to benchmark.log")
	f.StringVar(&opts.docID, "doc", "", "Document id (default: narration file name)")
	f.StringVar(&opts.format, "format", "", "Frame format: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram)")
	f.IntVar(&opts.width, "width", 0, "Width")
	f.IntVar(&opts.height, "height", 0, "Height")
	f.IntVar(&opts.fps, "fps", 0, "FPS")
	f.IntVar(&opts.workers, "workers", 0, "Parallel classifier calls")
	f.StringVar(&opts.transition, "transition", "", "Transition: fade, displacement, noise")
	f.DurationVar(&opts.transitionDuration, "transition-duration", 0, "Transition length")
	f.IntVar(&opts.quality, "quality", 0, "Video quality (x264: CRF 1-51, VideoToolbox: bitrate = Q*100kbit/s)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(slideshowCmd)
	rootCmd.AddCommand(highlightCmd)
}
