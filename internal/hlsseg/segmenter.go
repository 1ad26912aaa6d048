// Package hlsseg is the HLS Segmenter: it ingests a raw MPEG-TS elementary
// stream fed by the playout sink, regroups it into fixed-duration segments
// at packet-aligned boundaries, and serves a rolling window of the most
// recent segments plus their M3U8 media playlist — entirely in memory
// (INV-HLS-NO-DISK-IO-001). There is no backing store: a restart loses the
// window, which is acceptable because Execution Window Store + Horizon
// Manager state is what survives a restart, not the HLS edge cache.
package hlsseg

import (
	"context"
	"fmt"
	"sync"

	"github.com/retrovue/core/internal/metrics"
	"github.com/retrovue/core/internal/model"
)

const (
	tsPacketSize = 188
	tsSyncByte   = 0x47
)

// Segmenter demuxes TS packets for one channel into model.HLSSegment,
// keeping only the most recent maxSegments in memory.
type Segmenter struct {
	mu sync.Mutex

	// ChannelID labels this segmenter's emitted metrics; it is purely
	// informational and never read by the segmenting logic itself.
	ChannelID string

	maxSegments     int
	targetDurSec    float64
	segments        []model.HLSSegment
	nextMediaSeq    int64
	current         []byte
	currentStartPTS int64
	havePTS         bool
	lastPTS         int64

	playlistReady      chan struct{}
	playlistReadyFired bool
	closed             bool
}

// New builds a Segmenter that emits a segment roughly every targetDurSec
// seconds and keeps at most maxSegments of them.
func New(maxSegments int, targetDurSec float64) *Segmenter {
	if maxSegments <= 0 {
		maxSegments = 6
	}
	if targetDurSec <= 0 {
		targetDurSec = 6
	}
	return &Segmenter{
		maxSegments:   maxSegments,
		targetDurSec:  targetDurSec,
		playlistReady: make(chan struct{}),
	}
}

// Start is a no-op reset hook kept symmetrical with Stop; a Segmenter is
// ready to Feed as soon as it's constructed.
func (s *Segmenter) Start() {}

// Stop marks the segmenter closed; further Feed calls are rejected.
func (s *Segmenter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Feed ingests a buffer of one or more 188-byte TS packets. Packets not
// aligned to the sync byte are rejected rather than silently resynced —
// the playout sink is expected to hand the segmenter whole packets.
func (s *Segmenter) Feed(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("hlsseg: segmenter is stopped")
	}
	if len(buf)%tsPacketSize != 0 {
		return fmt.Errorf("hlsseg: buffer length %d is not a multiple of the TS packet size", len(buf))
	}

	for off := 0; off < len(buf); off += tsPacketSize {
		pkt := buf[off : off+tsPacketSize]
		if pkt[0] != tsSyncByte {
			return fmt.Errorf("hlsseg: packet at offset %d missing sync byte", off)
		}
		s.ingestPacket(pkt)
	}
	return nil
}

// ingestPacket appends pkt to the segment under construction and, once a
// new PES payload-unit start arrives with a PTS far enough past the
// segment's own starting PTS, closes the current segment and opens the
// next. Caller holds s.mu.
func (s *Segmenter) ingestPacket(pkt []byte) {
	payloadStart := pkt[1]&0x40 != 0
	hasAdaptation := pkt[3]&0x20 != 0
	hasPayload := pkt[3]&0x10 != 0

	payload := pkt[4:]
	if hasAdaptation {
		adaptLen := int(pkt[4])
		start := 5 + adaptLen
		if start > len(pkt) {
			start = len(pkt)
		}
		payload = pkt[start:]
	}

	if payloadStart && hasPayload {
		if pts, ok := extractPTS(payload); ok {
			if s.havePTS && len(s.current) > 0 {
				elapsedSec := ptsDeltaSeconds(s.currentStartPTS, pts)
				if elapsedSec >= s.targetDurSec {
					s.closeSegment(elapsedSec)
					s.currentStartPTS = pts
				}
			} else {
				s.currentStartPTS = pts
			}
			s.havePTS = true
			s.lastPTS = pts
		}
	}

	s.current = append(s.current, pkt...)
}

// closeSegment finalizes the in-progress buffer as a new HLSSegment. Caller
// holds s.mu.
func (s *Segmenter) closeSegment(durSec float64) {
	seg := model.HLSSegment{
		Name:          fmt.Sprintf("seg-%d.ts", s.nextMediaSeq),
		Data:          s.current,
		DurationSec:   durSec,
		MediaSequence: s.nextMediaSeq,
	}
	s.nextMediaSeq++
	s.current = nil

	s.segments = append(s.segments, seg)
	if len(s.segments) > s.maxSegments {
		s.segments = s.segments[len(s.segments)-s.maxSegments:]
	}
	metrics.RecordSegmentFinalized(s.ChannelID)

	s.signalPlaylistReady()
}

func (s *Segmenter) signalPlaylistReady() {
	if s.playlistReadyFired {
		return
	}
	s.playlistReadyFired = true
	close(s.playlistReady)
}

// HasPlaylist reports whether at least one segment has completed.
func (s *Segmenter) HasPlaylist() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments) > 0
}

// WaitForPlaylist blocks until the first segment completes or ctx is done.
func (s *Segmenter) WaitForPlaylist(ctx context.Context) error {
	s.mu.Lock()
	ch := s.playlistReady
	ready := len(s.segments) > 0
	s.mu.Unlock()
	if ready {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetPlaylist renders the current window as an M3U8 media playlist.
func (s *Segmenter) GetPlaylist() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return renderM3U8(s.segments)
}

// GetSegment returns segment name's bytes, if still in the window.
func (s *Segmenter) GetSegment(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range s.segments {
		if seg.Name == name {
			return seg.Data, true
		}
	}
	return nil, false
}

func renderM3U8(segments []model.HLSSegment) string {
	out := "#EXTM3U\n#EXT-X-VERSION:3\n"
	if len(segments) == 0 {
		out += "#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n"
		return out
	}

	target := 0
	for _, seg := range segments {
		if int(seg.DurationSec+0.999) > target {
			target = int(seg.DurationSec + 0.999)
		}
	}
	out += fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", target)
	out += fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", segments[0].MediaSequence)
	for _, seg := range segments {
		out += fmt.Sprintf("#EXTINF:%.3f,\n%s\n", seg.DurationSec, seg.Name)
	}
	return out
}

// extractPTS reads the PTS from a PES packet header beginning at payload[0].
// Returns ok=false if payload isn't a PES packet start or carries no PTS.
func extractPTS(payload []byte) (int64, bool) {
	if len(payload) < 14 {
		return 0, false
	}
	if payload[0] != 0x00 || payload[1] != 0x00 || payload[2] != 0x01 {
		return 0, false
	}
	ptsDtsFlags := payload[7] >> 6
	if ptsDtsFlags == 0 {
		return 0, false
	}
	b := payload[9:14]
	pts := (int64(b[0]&0x0e) << 29) |
		(int64(b[1]) << 22) |
		(int64(b[2]&0xfe) << 14) |
		(int64(b[3]) << 7) |
		(int64(b[4]) >> 1)
	return pts, true
}

const ptsClockHz = 90000
const ptsWraparound = int64(1) << 33

// ptsDeltaSeconds returns the elapsed time in seconds from start to pts,
// accounting for one wraparound of the 33-bit PTS clock.
func ptsDeltaSeconds(start, pts int64) float64 {
	delta := pts - start
	if delta < 0 {
		delta += ptsWraparound
	}
	return float64(delta) / ptsClockHz
}
