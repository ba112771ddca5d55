// Package ytdlp drives the yt-dlp binary as a subprocess and turns its
// progress output into callback events.
package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrStopped is returned by callbacks to stop the running download.
var ErrStopped = errors.New("download stopped")

const stderrTailLines = 12

var (
	percentRe = regexp.MustCompile(`\[download\]\s+([0-9]+(?:\.[0-9]+)?)%`)
	etaRe     = regexp.MustCompile(`\bETA\s+(\d+(?::\d{2}){0,2})\b`)
)

type Client struct {
	Path       string
	FFmpegPath string
	// WaitDelay bounds how long a stopped process may keep its pipes open.
	WaitDelay time.Duration
	ExtraArgs []string
	// InfoTimeout bounds a metadata lookup; zero means one minute.
	InfoTimeout time.Duration
}

type Request struct {
	URL            string
	Format         string
	OutputTemplate string
}

// Event is emitted for every output line. Percent is the last percentage
// yt-dlp reported; ETASeconds is -1 when the line carries none.
type Event struct {
	Percent    float64
	ETASeconds int
	Line       string
}

// Callback observes each line. Returning a non-nil error stops the process and
// Download returns that error.
type Callback func(Event) error

func (c *Client) Args(req Request) []string {
	args := []string{
		"--newline",
		"--progress",
		"--no-mtime",
		"--no-playlist",
		"--no-warnings",
		"-f", ResolveFormat(req.Format),
		"-o", req.OutputTemplate,
	}
	if c.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", c.FFmpegPath)
	}
	if IsAudioFormat(req.Format) {
		args = append(args, "--extract-audio", "--audio-format", "m4a")
	}
	args = append(args, c.ExtraArgs...)
	return append(args, "--", req.URL)
}

// Download runs yt-dlp until it exits, ctx is cancelled or cb asks to stop.
// Output of both streams is delivered to cb one line at a time, splitting on
// carriage returns as well as newlines.
func (c *Client) Download(ctx context.Context, req Request, cb Callback) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := c.command(runCtx, c.Args(req))
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW
	log.Debug().Str("op", "ytdlp/client").Msgf("executing yt-dlp command: %s", cmd.String())

	if err := cmd.Start(); err != nil {
		outW.Close()
		errW.Close()
		return fmt.Errorf("error starting yt-dlp: %w", err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		percent float64
		stopErr error
		tail    []string
	)
	read := func(r io.Reader, isStderr bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			mu.Lock()
			if p, ok := parsePercent(line); ok {
				percent = p
			}
			if isStderr {
				tail = appendTail(tail, line)
			}
			if stopErr == nil && cb != nil {
				if err := cb(Event{Percent: percent, ETASeconds: parseETASeconds(line), Line: line}); err != nil {
					stopErr = err
					cancel()
				}
			}
			mu.Unlock()
		}
		// keep draining so the process never blocks on a full pipe
		io.Copy(io.Discard, r)
	}
	wg.Add(2)
	go read(outR, false)
	go read(errR, true)

	waitErr := cmd.Wait()
	outW.Close()
	errW.Close()
	wg.Wait()

	if stopErr != nil {
		log.Debug().Str("op", "ytdlp/client").Err(stopErr).Msg("yt-dlp stopped by callback")
		return stopErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if waitErr != nil {
		msg := strings.Join(tail, "\n")
		log.Error().Str("op", "ytdlp/client").Err(waitErr).Msg("yt-dlp command failed")
		if msg == "" {
			return fmt.Errorf("yt-dlp failed: %w", waitErr)
		}
		return fmt.Errorf("yt-dlp failed: %w: %s", waitErr, msg)
	}
	log.Info().Str("op", "ytdlp/client").Msgf("yt-dlp download completed for %s", req.URL)
	return nil
}

// command builds a yt-dlp invocation that is interrupted, not killed, when
// ctx ends.
func (c *Client) command(ctx context.Context, args []string) *exec.Cmd {
	path := c.Path
	if path == "" {
		path = "yt-dlp"
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = c.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	return cmd
}

func parsePercent(line string) (float64, bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

// parseETASeconds converts "ETA 1:02:03" style values; -1 means no ETA.
func parseETASeconds(line string) int {
	m := etaRe.FindStringSubmatch(line)
	if m == nil {
		return -1
	}
	secs := 0
	for _, part := range strings.Split(m[1], ":") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return -1
		}
		secs = secs*60 + n
	}
	return secs
}

func appendTail(tail []string, line string) []string {
	tail = append(tail, line)
	if len(tail) > stderrTailLines {
		tail = tail[len(tail)-stderrTailLines:]
	}
	return tail
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
