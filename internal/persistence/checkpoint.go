// Checkpoint: binary full-state dump of every indexed agent.
//
// Layout, little-endian:
//
//	int32  day counter
//	repeated per agent, in city / bucket / slot order:
//	  int32  home city (position in the country)
//	  int8   status
//	  uint8  status timer
//	  int32  city code the agent is currently in
package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/talgya/epiworld/internal/agents"
	"github.com/talgya/epiworld/internal/world"
)

// ErrCorruptCheckpoint is returned when a checkpoint cannot be decoded.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

const (
	headerSize = 4
	recordSize = 10
	batchSize  = 1000
)

// CheckpointExists reports whether a checkpoint file is present at path.
func CheckpointExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// SaveCheckpoint writes the country to path. The file is written next to the
// target and renamed into place, so a crash never leaves a half-written
// checkpoint under the real name.
func SaveCheckpoint(path string, c *world.Country, day uint32) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return 0, fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := WriteCheckpoint(tmp, c, day)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("install checkpoint: %w", err)
	}
	slog.Info("checkpoint saved", "path", path, "day", day, "agents", n)
	return n, nil
}

// WriteCheckpoint encodes the country to w and returns the number of agent
// records written.
func WriteCheckpoint(w io.Writer, c *world.Country, day uint32) (int, error) {
	if c == nil {
		return 0, errors.New("nil country")
	}
	bw := bufio.NewWriterSize(w, recordSize*batchSize)

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[:], day)
	if _, err := bw.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	n := 0
	var rec [recordSize]byte
	var werr error
	for _, city := range c.Cities {
		city.Agents.Each(func(a *agents.Agent) bool {
			encodeRecord(rec[:], a, city.Code)
			if _, werr = bw.Write(rec[:]); werr != nil {
				return false
			}
			n++
			return true
		})
		if werr != nil {
			return n, fmt.Errorf("write record %d: %w", n, werr)
		}
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("flush checkpoint: %w", err)
	}
	return n, nil
}

func encodeRecord(buf []byte, a *agents.Agent, cityCode int32) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(a.HomeCity))
	buf[4] = byte(a.Status)
	buf[5] = a.StatusTimer
	binary.LittleEndian.PutUint32(buf[6:10], uint32(cityCode))
}

// LoadCheckpoint restores agents from path into a country skeleton.
func LoadCheckpoint(path string, c *world.Country) (day uint32, agentCount int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	day, agentCount, err = ReadCheckpoint(f, c)
	if err != nil {
		return 0, 0, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	slog.Info("checkpoint loaded", "path", path, "day", day, "agents", agentCount)
	return day, agentCount, nil
}

// ReadCheckpoint decodes a checkpoint from r into c. Any agents already in c
// are dropped first. Agents get sequential ids in file order, each record is
// matched to its city by a linear scan over the city codes, and the caches
// and moved flags are rebuilt. Records are read in batches of 1000.
func ReadCheckpoint(r io.Reader, c *world.Country) (uint32, int, error) {
	if c == nil {
		return 0, 0, errors.New("nil country")
	}
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, fmt.Errorf("%w: header: %v", ErrCorruptCheckpoint, err)
	}
	day := binary.LittleEndian.Uint32(hdr[:])

	c.Destroy()
	buf := make([]byte, recordSize*batchSize)
	var next agents.AgentID

	for {
		n, err := io.ReadFull(r, buf)
		if n%recordSize != 0 {
			return 0, 0, fmt.Errorf("%w: truncated record after %d agents", ErrCorruptCheckpoint, next)
		}
		for off := 0; off < n; off += recordSize {
			if err := restoreRecord(c, buf[off:off+recordSize], next); err != nil {
				return 0, 0, fmt.Errorf("record %d: %w", next, err)
			}
			next++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return 0, 0, fmt.Errorf("read records: %w", err)
		}
	}

	c.ResetMoved(int(next))
	return day, int(next), nil
}

func restoreRecord(c *world.Country, rec []byte, id agents.AgentID) error {
	home := agents.CityID(int32(binary.LittleEndian.Uint32(rec[0:4])))
	status := agents.Status(int8(rec[4]))
	code := int32(binary.LittleEndian.Uint32(rec[6:10]))

	if home < 0 || int(home) >= len(c.Cities) {
		return fmt.Errorf("%w: home city %d", ErrCorruptCheckpoint, home)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: status %d", ErrCorruptCheckpoint, rec[4])
	}
	city, ok := c.CityByCode(code)
	if !ok {
		return fmt.Errorf("%w: unknown city code %d", ErrCorruptCheckpoint, code)
	}
	a := &agents.Agent{
		ID:          id,
		HomeCity:    home,
		Status:      status,
		StatusTimer: rec[5],
	}
	return c.AddAgent(city.Index, a)
}
