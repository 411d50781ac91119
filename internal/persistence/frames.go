package persistence

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/talgya/epiworld/internal/world"
)

// ErrNoFrame is returned by ReadFrame when the frame has not been written.
var ErrNoFrame = errors.New("frame not available")

// FrameHeader is the first line of every frame file.
var FrameHeader = []string{"city_id", "population", "infected", "date"}

// FramePath returns the file for frame n under dir.
func FramePath(dir string, n uint32) string {
	return filepath.Join(dir, fmt.Sprintf("frame%04d.csv", n))
}

// WriteFrame writes one row per city for day to dir and returns the path.
// Readers only ever see complete frames: the file is renamed into place.
func WriteFrame(dir string, c *world.Country, day uint32) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("frame dir: %w", err)
	}
	path := FramePath(dir, day)
	tmp, err := os.CreateTemp(dir, ".frame-*")
	if err != nil {
		return "", fmt.Errorf("create frame: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeFrame(tmp, c, day); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close frame: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("install frame: %w", err)
	}
	return path, nil
}

// EncodeFrame writes the frame CSV to w.
func EncodeFrame(w io.Writer, c *world.Country, day uint32) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(FrameHeader); err != nil {
		return fmt.Errorf("frame header: %w", err)
	}
	date := strconv.FormatUint(uint64(day), 10)
	for _, city := range c.Cities {
		row := []string{
			strconv.Itoa(int(city.Code)),
			strconv.Itoa(city.Population),
			strconv.Itoa(city.Infected),
			date,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("frame row %d: %w", city.Code, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("frame: %w", err)
	}
	return bw.Flush()
}

// ReadFrame returns the contents of frame n under dir.
func ReadFrame(dir string, n uint32) ([]byte, error) {
	data, err := os.ReadFile(FramePath(dir, n))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %d", ErrNoFrame, n)
	}
	if err != nil {
		return nil, fmt.Errorf("read frame %d: %w", n, err)
	}
	return data, nil
}
