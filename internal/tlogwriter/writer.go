// Package tlogwriter renders a locked model.TransmissionLog to its two
// on-disk artifacts: the fixed-width ".tlog" text table and its
// ".tlog.jsonl" line-delimited sidecar. Both files are derived from the
// same row list so they stay bijective by construction (TL-ART-006); both
// are written atomically via renameio and neither is ever overwritten once
// present (TL-ART-001).
package tlogwriter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/retrovue/core/internal/model"
	"github.com/retrovue/core/internal/reasonerror"
)

// column widths for the fixed-width ".tlog" body. TITLE/ASSET takes the
// remainder of the line.
const (
	colTime    = 8
	colDur     = 8
	colType    = 8
	colEventID = 32
)

// row is the single internal representation both artifacts are built from.
type row struct {
	startUTC time.Time
	durMS    int64
	typ      string
	eventID  string
	title    string
}

// Write renders log to <baseDir>/<channelID>_<broadcastDate>.tlog and its
// .jsonl sidecar. log must already be locked (tlog.LockForExecution). It
// refuses to run if either target already exists.
func Write(baseDir string, log model.TransmissionLog, generatedUTC time.Time) error {
	if !log.IsLocked {
		return fmt.Errorf("tlogwriter: refusing to write an unlocked transmission log")
	}

	tlogPath := artifactPath(baseDir, log, ".tlog")
	jsonlPath := artifactPath(baseDir, log, ".tlog.jsonl")

	for _, p := range []string{tlogPath, jsonlPath} {
		if _, err := os.Stat(p); err == nil {
			return reasonerror.Wrap(reasonerror.RArtifactExists, p, nil)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("tlogwriter: stat %s: %w", p, err)
		}
	}

	rows := buildRows(log)

	if err := writeAtomic(tlogPath, renderTable(log, generatedUTC, rows)); err != nil {
		return fmt.Errorf("tlogwriter: write %s: %w", tlogPath, err)
	}
	if err := writeAtomic(jsonlPath, renderJSONL(log, rows)); err != nil {
		return fmt.Errorf("tlogwriter: write %s: %w", jsonlPath, err)
	}
	return nil
}

func artifactPath(baseDir string, log model.TransmissionLog, ext string) string {
	name := fmt.Sprintf("%s_%s%s", log.ChannelID, log.BroadcastDate, ext)
	return filepath.Join(baseDir, name)
}

// buildRows derives the ordered BLOCK / segment / FENCE rows for every
// entry. Both renderers consume exactly this slice so neither can diverge
// from the other.
func buildRows(log model.TransmissionLog) []row {
	var rows []row
	for _, e := range log.Entries {
		rows = append(rows, row{
			startUTC: msToUTC(e.StartUTCMs),
			durMS:    e.EndUTCMs - e.StartUTCMs,
			typ:      "BLOCK",
			eventID:  e.BlockID,
			title:    fmt.Sprintf("UTC_START=%s UTC_END=%s", msToUTC(e.StartUTCMs).Format(time.RFC3339), msToUTC(e.EndUTCMs).Format(time.RFC3339)),
		})

		segStart := e.StartUTCMs
		for _, s := range e.Segments {
			rows = append(rows, row{
				startUTC: msToUTC(segStart),
				durMS:    s.SegmentDurationMS,
				typ:      segmentRowType(s.SegmentType),
				eventID:  fmt.Sprintf("%s-S%04d", e.BlockID, s.SegmentIndex),
				title:    titleFor(s),
			})
			segStart += s.SegmentDurationMS
		}

		rows = append(rows, row{
			startUTC: msToUTC(e.EndUTCMs),
			durMS:    0,
			typ:      "FENCE",
			eventID:  fmt.Sprintf("%s-FENCE", e.BlockID),
			title:    fmt.Sprintf("UTC_END=%s", msToUTC(e.EndUTCMs).Format(time.RFC3339)),
		})
	}
	return rows
}

func segmentRowType(t model.SegmentType) string {
	switch t {
	case model.SegmentContent:
		return "PROGRAM"
	case model.SegmentCommercial:
		return "AD"
	case model.SegmentPromo:
		return "PROMO"
	case model.SegmentFiller:
		return "AD"
	case model.SegmentPad:
		return "AD"
	default:
		return "AD"
	}
}

const maxTitleLen = 80

func titleFor(s model.Segment) string {
	if s.AssetURI == "" {
		return "-"
	}
	t := filepath.Base(s.AssetURI)
	if len(t) > maxTitleLen {
		t = t[:maxTitleLen]
	}
	return t
}

func msToUTC(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// renderTable produces the header-comment block, header row, underline row,
// and fixed-width body for the ".tlog" artifact.
func renderTable(log model.TransmissionLog, generatedUTC time.Time, rows []row) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# channel: %s\n", log.ChannelID)
	fmt.Fprintf(&b, "# broadcast_date: %s\n", log.BroadcastDate)
	fmt.Fprintf(&b, "# timezone: UTC\n")
	fmt.Fprintf(&b, "# generated_utc: %s\n", generatedUTC.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# transmission_log_id: %s\n", log.TransmissionLogID)
	fmt.Fprintf(&b, "# version: %d\n", 1)

	header := padRight("TIME", colTime) + padRight("DUR", colDur) + padRight("TYPE", colType) + padRight("EVENT_ID", colEventID) + "TITLE/ASSET"
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", len(header)))
	b.WriteString("\n")

	for _, r := range rows {
		line := padRight(r.startUTC.Format("15:04:05"), colTime) +
			padRight(fmt.Sprintf("%d", r.durMS), colDur) +
			padRight(r.typ, colType) +
			padRight(r.eventID, colEventID) +
			r.title
		b.WriteString(line)
		b.WriteString("\n")
	}

	return []byte(b.String())
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width-1] + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}

// jsonlLine is the per-row shape written to the ".tlog.jsonl" sidecar.
type jsonlLine struct {
	EventID              string `json:"event_id"`
	ScheduledStartUTC    string `json:"scheduled_start_utc"`
	ScheduledDurationMS  int64  `json:"scheduled_duration_ms"`
	Type                 string `json:"type"`
	AssetOrNote          string `json:"asset_uri"`
}

func renderJSONL(log model.TransmissionLog, rows []row) []byte {
	var b strings.Builder
	for _, r := range rows {
		l := jsonlLine{
			EventID:             r.eventID,
			ScheduledStartUTC:   r.startUTC.Format(time.RFC3339),
			ScheduledDurationMS: r.durMS,
			Type:                r.typ,
			AssetOrNote:         r.title,
		}
		enc, _ := json.Marshal(l)
		b.Write(enc)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer pf.Cleanup()

	if _, err := pf.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomic replace: %w", err)
	}
	return nil
}
