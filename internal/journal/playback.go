package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"matchbook/internal/schema"
)

// PlaybackConfig controls how recorded segments are replayed.
type PlaybackConfig struct {
	Dir             string
	FilePrefix      string
	Speed           float64
	UseRecvTime     bool
	DisableChecksum bool
	MaxPayloadSize  int
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	switch {
	case c.Dir == "":
		return fmt.Errorf("invalid playback config: Dir is empty")
	case c.Speed < 0:
		return fmt.Errorf("invalid playback config: Speed must be >= 0")
	case c.MaxPayloadSize < 0:
		return fmt.Errorf("invalid playback config: MaxPayloadSize must be >= 0")
	}
	return nil
}

// Clock allows deterministic playback control.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerClock struct{}

func (timerClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback stitches journal segments back together in name order and hands
// every record to a handler. Records carry no cross-segment state, so the
// pacing gap spans segment boundaries too.
type Playback struct {
	cfg   PlaybackConfig
	clock Clock
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = defaultFilePrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg, clock: timerClock{}}, nil
}

// WithClock swaps the clock implementation.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Run replays every record and calls the handler for each event. A handler
// error stops the replay and is returned as-is.
func (p *Playback) Run(ctx context.Context, handler func(schema.EventHeader, []byte) error) error {
	if handler == nil {
		return errors.New("playback handler is nil")
	}
	segs, err := p.segments()
	if err != nil {
		return err
	}

	pace := pacer{
		speed:   p.cfg.Speed,
		useRecv: p.cfg.UseRecvTime,
		clock:   p.clock,
	}
	for _, seg := range segs {
		if err := p.replaySegment(ctx, seg, &pace, handler); err != nil {
			return err
		}
	}
	return nil
}

// segments lists the matching segment files. Segment names embed a sortable
// timestamp and id, so lexical order is record order.
func (p *Playback) segments() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, err
	}
	prefix := p.cfg.FilePrefix + "-"
	segs := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".mbj") {
			continue
		}
		segs = append(segs, filepath.Join(p.cfg.Dir, name))
	}
	sort.Strings(segs)
	return segs, nil
}

func (p *Playback) replaySegment(ctx context.Context, path string, pace *pacer, handler func(schema.EventHeader, []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, payload, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("replay %s: %w", path, err)
		}
		if err := pace.wait(ctx, header); err != nil {
			return err
		}
		if err := handler(header, payload); err != nil {
			return err
		}
	}
}

// pacer sleeps between records to approximate the original event spacing,
// scaled by speed. Zero speed replays as fast as the reader allows.
type pacer struct {
	speed   float64
	useRecv bool
	clock   Clock
	last    int64
}

func (p *pacer) wait(ctx context.Context, header schema.EventHeader) error {
	if p.speed <= 0 {
		return nil
	}
	ts := header.TsEvent
	if p.useRecv {
		ts = header.TsRecv
	}
	if ts <= 0 {
		return nil
	}
	if p.last > 0 && ts > p.last {
		gap := time.Duration(float64(ts-p.last) / p.speed)
		if err := p.clock.Sleep(ctx, gap); err != nil {
			return err
		}
	}
	p.last = ts
	return nil
}
