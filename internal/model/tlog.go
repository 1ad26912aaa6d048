package model

import "time"

// TransmissionLogEntry is one block's scheduled presentation.
type TransmissionLogEntry struct {
	BlockID    string
	BlockIndex int
	StartUTCMs int64
	EndUTCMs   int64
	Segments   []Segment
}

// TransmissionLog is an ordered sequence of entries for one channel/day.
type TransmissionLog struct {
	ChannelID         string
	BroadcastDate     string
	Entries           []TransmissionLogEntry
	IsLocked          bool
	GridBlockMinutes  int
	TransmissionLogID string
	GeneratedUTC      time.Time
	LockedUTC         time.Time
}

// ExecutionEntry is a locked, schedulable block held by the Execution Window
// Store.
type ExecutionEntry struct {
	TransmissionLogEntry
	ChannelID          string
	ProgrammingDayDate string
	GenerationID       int64
}
