package ytdlp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/utils"
)

const releaseURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/%s"

func releaseAsset(goos, goarch string) (string, error) {
	switch {
	case goos == "windows" && goarch == "amd64":
		return "yt-dlp.exe", nil
	case goos == "windows" && goarch == "arm64":
		return "yt-dlp_arm64.exe", nil
	case goos == "linux" && goarch == "amd64":
		return "yt-dlp_linux", nil
	case goos == "linux" && goarch == "arm64":
		return "yt-dlp_linux_aarch64", nil
	case goos == "darwin":
		return "yt-dlp_macos", nil
	default:
		return "", fmt.Errorf("unsupported OS/arch: %s/%s", goos, goarch)
	}
}

func binaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// findBinary checks PATH, then the directory of the running executable, then
// any extra directories.
func findBinary(name string, extraDirs ...string) (string, bool) {
	if path, err := exec.LookPath(name); err == nil {
		return path, true
	}
	dirs := extraDirs
	if exe, err := os.Executable(); err == nil {
		dirs = append([]string{filepath.Dir(exe)}, dirs...)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, binaryName(name))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// EnsureYtdlp returns a usable yt-dlp path. A configured path wins; otherwise
// the binary is looked up and, as a last resort, downloaded into cacheDir.
func EnsureYtdlp(ctx context.Context, configured, cacheDir string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured yt-dlp not usable: %v", err)
		}
		return configured, nil
	}
	if path, ok := findBinary("yt-dlp", cacheDir); ok {
		return path, nil
	}
	asset, err := releaseAsset(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("error creating cache directory: %v", err)
	}
	path := filepath.Join(cacheDir, binaryName("yt-dlp"))
	log.Info().Str("op", "ytdlp/ensure").Str("path", path).Msg("downloading yt-dlp release")
	client := utils.NewHTTPClient(utils.HTTPClientConfig{})
	if err := client.DownloadFile(ctx, fmt.Sprintf(releaseURL, asset), path); err != nil {
		return "", fmt.Errorf("error downloading yt-dlp: %v", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0755); err != nil {
			return "", fmt.Errorf("error setting permissions: %v", err)
		}
	}
	return path, nil
}

// EnsureFFmpeg locates ffmpeg. It is optional: merged formats and audio
// extraction fail without it, single-file formats do not.
func EnsureFFmpeg(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured ffmpeg not usable: %v", err)
		}
		return configured, nil
	}
	if path, ok := findBinary("ffmpeg"); ok {
		return path, nil
	}
	return "", fmt.Errorf("ffmpeg not found in PATH, please install manually")
}
