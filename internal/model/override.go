package model

// OverrideLayer identifies which subsystem an override record targets.
type OverrideLayer string

const (
	LayerScheduleDay          OverrideLayer = "ScheduleDay"
	LayerExecutionWindowStore OverrideLayer = "ExecutionWindowStore"
)

// OverrideRecord is an append-only audit row. No override-artifact mutation
// may become durable unless its record was durably persisted first.
type OverrideRecord struct {
	Layer          OverrideLayer
	TargetID       string
	ReasonCode     string
	CreatedUTCMs   int64
	PayloadSummary string
}

// ResolvedScheduleDay is a per-channel, per-broadcast-date resolved slot set.
type ResolvedScheduleDay struct {
	ChannelID         string
	ProgrammingDayDate string
	Blocks            []ProgramBlock
	SegmentedBlocks   []TransmissionLogEntry // derived; nil until backfilled
	IsManualOverride  bool
	PlanID            string
}
