package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// WriteReport prints the performance report shown with --stats.
func WriteReport(w io.Writer, build string, r Report) {
	fps := 0.0
	if r.Elapsed > 0 {
		fps = float64(r.Frames) / r.Elapsed.Seconds()
	}
	fmt.Fprintf(w,
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Output: %s\n"+
			"Segments: %d | Visuals: %d (%d placeholders)\n"+
			"Video Duration: %.2fs | Frames: %d\n"+
			"Total Time: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"System: %s\n"+
			"----------------------------\n",
		build, r.Output, r.Segments, r.Visuals, r.Missing, r.Duration, r.Frames,
		r.Elapsed.Seconds(), fps, r.System)
}

// AppendBenchmark adds a one-line entry for r to the log at path.
func AppendBenchmark(path, build string, r Report) error {
	fps := 0.0
	if r.Elapsed > 0 {
		fps = float64(r.Frames) / r.Elapsed.Seconds()
	}
	entry := fmt.Sprintf("[%s] Build: %s | Input: %s | Segments: %d | Frames: %d | Total: %.2fs | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"), build, filepath.Base(r.Input),
		r.Segments, r.Frames, r.Elapsed.Seconds(), fps)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(entry)
	return err
}
