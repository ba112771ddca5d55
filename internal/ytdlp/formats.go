package ytdlp

import "strings"

var formatPresets = map[string]string{
	"best":     "bestvideo+bestaudio/best",
	"best60":   "bestvideo[fps<=60]+bestaudio/best",
	"bestmp4":  "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
	"decent":   "bestvideo[height<=1080]+bestaudio/best",
	"decent60": "bestvideo[height<=1080][fps<=60]+bestaudio/best",
	"cheap":    "bestvideo[height<=720]+bestaudio/best",
	"1080p":    "bestvideo[height=1080][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
	"1080p60":  "bestvideo[height=1080][fps<=60][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
	"720p":     "bestvideo[height=720][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
	"480p":     "bestvideo[height=480][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
	"audio":    "bestaudio[ext=m4a]/bestaudio",
}

// ResolveFormat expands a preset name into a yt-dlp selector. Anything that is
// not a preset is passed through unchanged.
func ResolveFormat(formatID string) string {
	if sel, ok := formatPresets[formatID]; ok {
		return sel
	}
	return formatID
}

// IsAudioFormat reports whether the selector asks for an audio-only file.
func IsAudioFormat(formatID string) bool {
	if formatID == "audio" {
		return true
	}
	f := strings.ToLower(formatID)
	if strings.Contains(f, "bestvideo") || strings.Contains(f, "+") {
		return false
	}
	return strings.Contains(f, "bestaudio") || strings.Contains(f, "m4a") || strings.Contains(f, "mp3")
}

func Presets() []string {
	return []string{"best", "best60", "bestmp4", "decent", "decent60", "cheap", "1080p", "1080p60", "720p", "480p", "audio"}
}
