package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log"
	"os/exec"
	"strings"
)

// FrameSource yields rendered frames in order and io.EOF after the last one.
type FrameSource interface {
	NextFrame(ctx context.Context) (*image.RGBA, error)
}

// AudioTrack is placed on the output timeline at Offset seconds.
type AudioTrack struct {
	Path   string
	Offset float64
}

type Params struct {
	Width, Height int
	FPS           int
	Duration      float64
	Encoder       string
	Quality       int
	Preset        string
}

type Encoder interface {
	Encode(ctx context.Context, src FrameSource, out string, audio []AudioTrack, p Params) error
}

type FFmpegEncoder struct {
	Binary string
	Logger *log.Logger
}

// Encode pipes raw RGBA frames from src into ffmpeg and muxes the audio
// tracks. Frames must all be Width×Height.
func (e *FFmpegEncoder) Encode(ctx context.Context, src FrameSource, out string, audio []AudioTrack, p Params) error {
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	args := BuildArgs(p, out, audio)
	cmd := exec.CommandContext(ctx, bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	frames, werr := e.pump(ctx, src, stdin, p)
	stdin.Close()
	waitErr := cmd.Wait()

	if werr != nil {
		return fmt.Errorf("frame %d: %w", frames, werr)
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", waitErr, tail(stderr.String(), 2000))
	}
	e.logger().Printf("[+] video: %d frames written to %s", frames, out)
	return nil
}

func (e *FFmpegEncoder) pump(ctx context.Context, src FrameSource, w io.Writer, p Params) (int, error) {
	frames := 0
	for {
		frame, err := src.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		if frame.Rect.Dx() != p.Width || frame.Rect.Dy() != p.Height {
			return frames, fmt.Errorf("frame is %dx%d, want %dx%d", frame.Rect.Dx(), frame.Rect.Dy(), p.Width, p.Height)
		}
		if err := writeRawRGBA(w, frame); err != nil {
			return frames, fmt.Errorf("write raw error: %w", err)
		}
		frames++
		if p.FPS > 0 && frames%(p.FPS*10) == 0 {
			e.logger().Printf("[>] video: %.0fs encoded", float64(frames)/float64(p.FPS))
		}
	}
}

// BuildArgs assembles the ffmpeg command line: raw frames on stdin as input
// 0, audio files as inputs 1..n. Several tracks are delayed to their offsets
// and mixed.
func BuildArgs(p Params, out string, audio []AudioTrack) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "-",
	}
	for _, a := range audio {
		args = append(args, "-i", a.Path)
	}

	switch {
	case len(audio) == 1 && audio[0].Offset <= 0:
		args = append(args, "-map", "0:v", "-map", "1:a")
	case len(audio) > 0:
		args = append(args, "-filter_complex", mixFilter(audio), "-map", "0:v", "-map", "[aout]")
	default:
		args = append(args, "-map", "0:v")
	}

	if p.Duration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", p.Duration))
	}
	encoder := p.Encoder
	if encoder == "" {
		encoder = "libx264"
	}
	args = append(args, "-c:v", encoder, "-pix_fmt", "yuv420p")
	args = append(args, qualityArgs(encoder, p.Quality, p.Preset)...)
	if len(audio) > 0 {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	return append(args, out)
}

// mixFilter delays every track to its offset and mixes them into [aout].
func mixFilter(audio []AudioTrack) string {
	var graph strings.Builder
	var labels strings.Builder
	for i, a := range audio {
		ms := int(a.Offset*1000 + 0.5)
		if ms < 0 {
			ms = 0
		}
		fmt.Fprintf(&graph, "[%d:a]adelay=%d:all=1[a%d];", i+1, ms, i)
		fmt.Fprintf(&labels, "[a%d]", i)
	}
	fmt.Fprintf(&graph, "%samix=inputs=%d:duration=longest:dropout_transition=0:normalize=0[aout]", labels.String(), len(audio))
	return graph.String()
}

// Качество в зависимости от энкодера
func qualityArgs(encoder string, quality int, preset string) []string {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox не везде понимает -q:v, используем битрейт
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default:
		if preset == "" {
			preset = "medium"
		}
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", preset}
	}
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func (e *FFmpegEncoder) logger() *log.Logger {
	if e.Logger == nil {
		return log.Default()
	}
	return e.Logger
}
