package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"matchbook/internal/schema"
)

func header(seq uint64) schema.EventHeader {
	h := schema.NewHeader(schema.EventTrade, 1, seq, int64(seq)*1000, int64(seq)*1000)
	h.TraceID = seq
	return h
}

func writeRecords(t *testing.T, dir string, cfg Config, payloads [][]byte) {
	t.Helper()
	cfg.Dir = dir
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i, payload := range payloads {
		if err := w.TryAppend(header(uint64(i+1)), payload); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("writer error: %v", err)
	}
}

func TestWriteAndPlayback(t *testing.T) {
	dir := t.TempDir()
	payloads := [][]byte{
		[]byte("first"),
		[]byte("second"),
		{},
		[]byte("fourth"),
	}
	writeRecords(t, dir, Config{CopyPayload: true}, payloads)

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	if err != nil {
		t.Fatalf("playback: %v", err)
	}
	var seqs []uint64
	var got [][]byte
	err = pb.Run(context.Background(), func(h schema.EventHeader, payload []byte) error {
		seqs = append(seqs, h.Seq)
		got = append(got, append([]byte(nil), payload...))
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(got) != len(payloads) {
		t.Fatalf("want %d records, got %d", len(payloads), len(got))
	}
	for i := range payloads {
		if seqs[i] != uint64(i+1) {
			t.Fatalf("record %d has seq %d", i, seqs[i])
		}
		if string(got[i]) != string(payloads[i]) {
			t.Fatalf("record %d payload mismatch: %q vs %q", i, got[i], payloads[i])
		}
	}
}

func TestSegmentRotationBySize(t *testing.T) {
	dir := t.TempDir()
	payload := make([]byte, 256)
	cfg := Config{
		SegmentMaxBytes: 512,
		CopyPayload:     true,
	}
	writeRecords(t, dir, cfg, [][]byte{payload, payload, payload, payload})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	segments := 0
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".mbj" {
			segments++
		}
	}
	if segments < 2 {
		t.Fatalf("undersized segment limit should force rotation, got %d segment(s)", segments)
	}

	// Playback stitches the segments back in order.
	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	if err != nil {
		t.Fatalf("playback: %v", err)
	}
	var last uint64
	err = pb.Run(context.Background(), func(h schema.EventHeader, _ []byte) error {
		if h.Seq <= last {
			t.Fatalf("out of order across segments: %d then %d", last, h.Seq)
		}
		last = h.Seq
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if last != 4 {
		t.Fatalf("want 4 records across segments, got %d", last)
	}
}

func TestCorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, Config{CopyPayload: true}, [][]byte{[]byte("payload to corrupt")})

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("readdir: %v", err)
	}
	path := filepath.Join(dir, entries[0].Name())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[len(data)-3] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	pb, err := NewPlayback(PlaybackConfig{Dir: dir})
	if err != nil {
		t.Fatalf("playback: %v", err)
	}
	err = pb.Run(context.Background(), func(schema.EventHeader, []byte) error { return nil })
	if err == nil {
		t.Fatal("corrupted payload must fail checksum")
	}

	// The same file passes when checksum validation is disabled.
	pb, err = NewPlayback(PlaybackConfig{Dir: dir, DisableChecksum: true})
	if err != nil {
		t.Fatalf("playback: %v", err)
	}
	if err := pb.Run(context.Background(), func(schema.EventHeader, []byte) error { return nil }); err != nil {
		t.Fatalf("disabled checksum should read through: %v", err)
	}
}

func TestTryAppendAfterClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.TryAppend(header(1), nil); err != ErrNotStarted {
		t.Fatalf("append before start should fail with ErrNotStarted, got %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.TryAppend(header(2), nil); err != ErrClosed {
		t.Fatalf("append after close should fail with ErrClosed, got %v", err)
	}
}

type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func TestPlaybackPacing(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, Config{CopyPayload: true}, [][]byte{[]byte("a"), []byte("b"), []byte("c")})

	pb, err := NewPlayback(PlaybackConfig{Dir: dir, Speed: 1})
	if err != nil {
		t.Fatalf("playback: %v", err)
	}
	clock := &fakeClock{}
	pb = pb.WithClock(clock)
	if err := pb.Run(context.Background(), func(schema.EventHeader, []byte) error { return nil }); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Headers are 1000ns apart; the first record never sleeps.
	if len(clock.slept) != 2 {
		t.Fatalf("want 2 pacing sleeps, got %d", len(clock.slept))
	}
	for _, d := range clock.slept {
		if d != 1000*time.Nanosecond {
			t.Fatalf("want 1000ns gaps, got %v", d)
		}
	}
}
