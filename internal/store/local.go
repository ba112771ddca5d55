package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/tanq16/vidown/internal/utils"
)

const (
	appFolder  = "Vidown"
	partSuffix = ".vidown-part"
	// headroom kept free on the destination volume
	freeSpaceMargin = 16 * 1024 * 1024
	placeAttempts   = 20
)

// LocalStore writes into <Root>/Movies/Vidown or <Root>/Music/Vidown, or into
// the item's destination hint when one is set.
type LocalStore struct {
	Root      string
	freeSpace func(path string) (uint64, error)
	linkFile  func(oldname, newname string) error
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{Root: root, freeSpace: diskFree, linkFile: os.Link}
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

func (s *LocalStore) link(oldname, newname string) error {
	if s.linkFile == nil {
		return os.Link(oldname, newname)
	}
	return s.linkFile(oldname, newname)
}

func (s *LocalStore) dirFor(item Item) string {
	if item.DestinationHint != "" {
		return item.DestinationHint
	}
	if item.IsVideo {
		return filepath.Join(s.Root, "Movies", appFolder)
	}
	return filepath.Join(s.Root, "Music", appFolder)
}

func (s *LocalStore) Save(ctx context.Context, item Item) (string, error) {
	src, err := os.Open(item.TempPath)
	if err != nil {
		return "", fmt.Errorf("error opening temp file: %w", err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("error reading temp file: %w", err)
	}

	dir := s.dirFor(item)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating destination directory: %w", err)
	}
	if s.freeSpace != nil {
		free, err := s.freeSpace(dir)
		if err != nil {
			log.Warn().Str("op", "store/local").Err(err).Msg("free space check failed")
		} else if free < uint64(info.Size())+freeSpaceMargin {
			return "", fmt.Errorf("%w: need %s, have %s", ErrInsufficientSpace,
				utils.FormatBytes(uint64(info.Size())), utils.FormatBytes(free))
		}
	}

	name := utils.SanitizeFilename(item.Title) + filepath.Ext(item.TempPath)

	// same volume: a hard link makes the copy free
	dest, err := s.place(dir, name, func(dest string) error {
		return s.link(item.TempPath, dest)
	})
	if err == nil {
		log.Debug().Str("op", "store/local").Str("dest", dest).Msg("linked temp file")
		return dest, nil
	}

	part, err := stageFile(ctx, src, dir, name)
	if err != nil {
		return "", err
	}
	dest, err = s.place(dir, name, func(dest string) error {
		return s.claim(part, dest)
	})
	if err != nil {
		os.Remove(part)
		return "", fmt.Errorf("error finalizing file: %w", err)
	}
	log.Debug().Str("op", "store/local").Str("dest", dest).Msg("copied temp file")
	return dest, nil
}

// place calls put with a free name derived from name until put succeeds or
// fails for a reason other than the name being taken. Another job may claim
// the same name between the check and put; put must never overwrite.
func (s *LocalStore) place(dir, name string, put func(dest string) error) (string, error) {
	for i := 0; i < placeAttempts; i++ {
		dest := utils.AvailablePath(filepath.Join(dir, name))
		err := put(dest)
		if err == nil {
			return dest, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		log.Debug().Str("op", "store/local").Str("dest", dest).Msg("name taken, trying another")
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", name, placeAttempts)
}

// claim moves the staged file part to dest without replacing an existing file.
// Filesystems without hard links get an exclusive placeholder that the rename
// then replaces.
func (s *LocalStore) claim(part, dest string) error {
	err := s.link(part, dest)
	if err == nil {
		os.Remove(part)
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return err
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	f.Close()
	if err := os.Rename(part, dest); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// stageFile copies src into a hidden part file inside dir and returns its path.
func stageFile(ctx context.Context, src io.Reader, dir, name string) (string, error) {
	out, err := os.CreateTemp(dir, "."+name+".*"+partSuffix)
	if err != nil {
		return "", fmt.Errorf("error creating destination file: %w", err)
	}
	_, err = io.Copy(out, ctxReader{ctx: ctx, r: src})
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("error writing destination file: %w", err)
	}
	return out.Name(), nil
}

func (s *LocalStore) Delete(_ context.Context, location string) bool {
	if err := os.Remove(location); err != nil {
		log.Debug().Str("op", "store/local").Err(err).Str("location", location).Msg("delete failed")
		return false
	}
	return true
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
