package system

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	AudioExtensions     = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	NarrationExtensions = []string{".json"}
)

// InitResourceLimits поднимает лимит открытых файлов: экспорт держит
// открытыми ffmpeg, аудиодорожки и кадры одновременно.
func InitResourceLimits() {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Не удалось получить лимит файлов: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Не удалось установить лимит файлов: %v", err)
		return
	}
	log.Printf("[*] Open file limit raised to %d", rLimit.Cur)
}

// FindLatest returns the most recently modified file in dir whose extension
// is one of exts.
func FindLatest(dir string, exts []string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time
	for _, f := range files {
		if f.IsDir() || !hasExt(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no %s files in %s", strings.Join(exts, "/"), dir)
	}
	return latestFile, nil
}

// FindLatestNarration picks the newest narration JSON in dir.
func FindLatestNarration(dir string) (string, error) {
	return FindLatest(dir, NarrationExtensions)
}

// FindLatestAudio picks the newest audio track in dir.
func FindLatestAudio(dir string) (string, error) {
	return FindLatest(dir, AudioExtensions)
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// GetAudioDuration asks ffprobe for the length of an audio file in seconds.
func GetAudioDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return ParseDuration(string(out))
}

// ParseDuration reads ffprobe's bare duration output.
func ParseDuration(out string) (float64, error) {
	d, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q", strings.TrimSpace(out))
	}
	return d, nil
}

var (
	encoderOnce sync.Once
	encoderName string
)

// GetBestH264Encoder returns the first hardware H.264 encoder ffmpeg offers,
// or libx264.
func GetBestH264Encoder() string {
	encoderOnce.Do(func() {
		encoderName = "libx264"
		out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
		if err != nil {
			return
		}
		encoderName = PickH264Encoder(string(out))
	})
	return encoderName
}

// PickH264Encoder chooses from ffmpeg -encoders output. Priority:
// VideoToolbox (macOS), NVENC, then software.
func PickH264Encoder(listing string) string {
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(listing, name) {
			return name
		}
	}
	return "libx264"
}
