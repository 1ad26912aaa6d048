package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/retrovue/core/internal/model"
)

// AsRunWriter appends accepted evidence to a per-channel ".asrun" text log
// and its ".asrun.jsonl" sidecar. Unlike the Transmission Log artifact
// (tlogwriter), this is a live, ever-growing stream rather than a single
// atomic snapshot, so it is opened once and fsynced after each append
// instead of written via temp-file-plus-rename.
type AsRunWriter struct {
	mu    sync.Mutex
	files map[string]*channelFiles
	dir   string
}

type channelFiles struct {
	text  *os.File
	jsonl *os.File
}

// NewAsRunWriter roots every channel's artifacts under dir.
func NewAsRunWriter(dir string) *AsRunWriter {
	return &AsRunWriter{files: make(map[string]*channelFiles), dir: dir}
}

// Append durably records msg for channelID before the caller acks it back
// to AIR — the write-then-ack ordering is the caller's responsibility
// (Server.Stream), this method only guarantees the write itself is fsynced
// before it returns.
func (w *AsRunWriter) Append(channelID string, msg model.EvidenceMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cf, err := w.filesFor(channelID)
	if err != nil {
		return err
	}

	line := formatLine(msg)
	if _, err := cf.text.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("evidence: write asrun line: %w", err)
	}
	if err := cf.text.Sync(); err != nil {
		return fmt.Errorf("evidence: fsync asrun: %w", err)
	}

	enc, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("evidence: marshal asrun jsonl: %w", err)
	}
	if _, err := cf.jsonl.Write(append(enc, '\n')); err != nil {
		return fmt.Errorf("evidence: write asrun jsonl: %w", err)
	}
	if err := cf.jsonl.Sync(); err != nil {
		return fmt.Errorf("evidence: fsync asrun jsonl: %w", err)
	}

	return nil
}

func (w *AsRunWriter) filesFor(channelID string) (*channelFiles, error) {
	if cf, ok := w.files[channelID]; ok {
		return cf, nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, err
	}
	text, err := os.OpenFile(filepath.Join(w.dir, channelID+".asrun"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("evidence: open asrun: %w", err)
	}
	jsonl, err := os.OpenFile(filepath.Join(w.dir, channelID+".asrun.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		_ = text.Close()
		return nil, fmt.Errorf("evidence: open asrun jsonl: %w", err)
	}
	cf := &channelFiles{text: text, jsonl: jsonl}
	w.files[channelID] = cf
	return cf, nil
}

// Close flushes and releases every open channel file.
func (w *AsRunWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var first error
	for _, cf := range w.files {
		if err := cf.text.Close(); err != nil && first == nil {
			first = err
		}
		if err := cf.jsonl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func formatLine(msg model.EvidenceMessage) string {
	detail := "-"
	switch msg.Kind {
	case model.EvidenceBlockStart:
		if msg.BlockStart != nil {
			detail = msg.BlockStart.BlockID
		}
	case model.EvidenceSegmentStart:
		if msg.SegmentStart != nil {
			detail = fmt.Sprintf("%s-S%04d", msg.SegmentStart.BlockID, msg.SegmentStart.SegmentIndex)
		}
	case model.EvidenceSegmentEnd:
		if msg.SegmentEnd != nil {
			detail = fmt.Sprintf("%s-S%04d status=%s", msg.SegmentEnd.BlockID, msg.SegmentEnd.SegmentIndex, msg.SegmentEnd.Status)
		}
	case model.EvidenceBlockFence:
		if msg.BlockFence != nil {
			detail = fmt.Sprintf("%s fence_tick=%d truncated=%v", msg.BlockFence.BlockID, msg.BlockFence.FenceTick, msg.BlockFence.TruncatedByFence)
		}
	}
	return fmt.Sprintf("%s seq=%d kind=%-14s %s", msg.EmittedUTC.UTC().Format("2006-01-02T15:04:05.000Z"), msg.Sequence, msg.Kind, detail)
}
