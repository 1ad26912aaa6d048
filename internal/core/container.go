// Package core wires every RetroVue component (C1-C14) into one runnable
// daemon, grounded on the teacher's cmd/daemon wiring split
// (api_wiring.go/pipeline_wiring.go build one subsystem's dependencies at a
// time from a shared config.Config and hand the result to the next
// builder) — generalized here into a single Container struct instead of a
// set of free functions, since RetroVue's component graph is small enough
// to hold directly as fields.
package core

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/retrovue/core/internal/airctl"
	"github.com/retrovue/core/internal/clock"
	"github.com/retrovue/core/internal/config"
	"github.com/retrovue/core/internal/evidence"
	"github.com/retrovue/core/internal/execwindow"
	"github.com/retrovue/core/internal/hlsseg"
	"github.com/retrovue/core/internal/horizon"
	"github.com/retrovue/core/internal/jipcache"
	"github.com/retrovue/core/internal/log"
	"github.com/retrovue/core/internal/overrides"
	"github.com/retrovue/core/internal/persistence/sqlite"
	"github.com/retrovue/core/internal/resolvedschedule"
	"github.com/retrovue/core/internal/retention"
	"github.com/retrovue/core/internal/traffic"
)

// Container owns one instance each of the Clock, Execution Window Store,
// Override Record Store, Resolved Schedule Store, JIP Segment Cache, and
// every background-loop component, and is passed by reference into every
// constructor that needs one of them — never package-level globals.
type Container struct {
	Config config.Config
	Clock  clock.Clock

	DB       *badger.DB
	SQLiteDB *sql.DB

	Overrides        *overrides.Store
	ExecWindow       *execwindow.Store
	ResolvedSchedule *resolvedschedule.Store
	JIPCache         *jipcache.Cache

	Horizon   *horizon.Manager
	Retention *retention.Purger

	Evidence    *evidence.Server
	AsRunWriter *evidence.AsRunWriter
	Segmenters  map[string]*hlsseg.Segmenter

	// Airctl is the outbound control-stream client to AIR. Core is the
	// dialer here (the reverse of Evidence, where AIR dials in), so it
	// cannot be constructed until AIR's address is reachable; the caller
	// sets this after New returns, once airctl.Dial succeeds.
	Airctl *airctl.Client

	GRPCServer *grpc.Server
}

// New builds a Container from cfg using the real system clock and a
// Badger store rooted at cfg.DataDir. BlockSource is supplied by the
// caller (e.g. the Resolved Schedule Store, once a channel's zone
// directives have been compiled) since it is the one dependency this
// module does not itself originate — Horizon.Source must be set by the
// caller after New returns, before Run is called.
func New(cfg config.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("core: invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("core: create data dir %s: %w", cfg.DataDir, err)
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.DataDir, "badger")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("core: open badger store: %w", err)
	}

	clk := clock.Real{}
	overrideStore := overrides.New(db)
	execWindow := execwindow.New(db, clk, overrideStore, cfg.LockedWindow())
	resolvedSchedule := resolvedschedule.New(overrideStore)
	jip := jipcache.New()

	sqliteDB, err := sqlite.Open(filepath.Join(cfg.DataDir, "retention.sqlite"), sqlite.DefaultConfig())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("core: open sqlite retention store: %w", err)
	}
	planningTarget, err := sqlite.NewPlanningTarget(sqliteDB)
	if err != nil {
		_ = db.Close()
		_ = sqliteDB.Close()
		return nil, fmt.Errorf("core: init planning table: %w", err)
	}
	tlogTarget, err := sqlite.NewTransmissionLogTarget(sqliteDB)
	if err != nil {
		_ = db.Close()
		_ = sqliteDB.Close()
		return nil, fmt.Errorf("core: init transmission log row index: %w", err)
	}

	purger := retention.NewPurger(clk, cfg.RetentionPurgesPerHour)
	purger.Tier1MaxAge = time.Duration(cfg.RetentionTier1MaxAgeHours) * time.Hour
	purger.Tier2MaxAge = time.Duration(cfg.RetentionTier2MaxAgeHours) * time.Hour
	purger.Tier1 = planningTarget
	purger.Tier2 = tlogTarget
	purger.BackfillTier2 = tlogTarget

	asRunWriter := evidence.NewAsRunWriter(filepath.Join(cfg.DataDir, "asrun"))
	evidenceServer := evidence.NewServer(asRunWriter)

	segmenters := make(map[string]*hlsseg.Segmenter, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		s := hlsseg.New(cfg.HLSMaxSegments, cfg.HLSTargetDurationSec)
		s.ChannelID = ch
		segmenters[ch] = s
	}

	mgr := &horizon.Manager{
		Clock:                clk,
		ExecWindow:           execWindow,
		Channels:             cfg.Channels,
		EvalInterval:         cfg.EvaluationInterval(),
		ExecutionDepthTarget: cfg.ExecutionDepthTarget(),
		FenceBlockDurationS:  cfg.FenceBlockDurSec,
		Filler:               traffic.Filler{AssetURI: cfg.FillerAssetURI, DurationMS: cfg.FillerDurationMS},
	}

	return &Container{
		Config:           cfg,
		Clock:            clk,
		DB:               db,
		SQLiteDB:         sqliteDB,
		Overrides:        overrideStore,
		ExecWindow:       execWindow,
		ResolvedSchedule: resolvedSchedule,
		JIPCache:         jip,
		Horizon:          mgr,
		Retention:        purger,
		Evidence:         evidenceServer,
		AsRunWriter:      asRunWriter,
		Segmenters:       segmenters,
		GRPCServer:       grpc.NewServer(),
	}, nil
}

// Close releases the Container's durable resources. Safe to call once,
// after Run's context has been cancelled.
func (c *Container) Close() error {
	var dbErr, sqliteErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.SQLiteDB != nil {
		sqliteErr = c.SQLiteDB.Close()
	}
	if dbErr != nil {
		return dbErr
	}
	return sqliteErr
}

// Run starts every background loop (Horizon Manager, Retention Purger) and
// blocks until ctx is cancelled or one of them returns a non-nil error.
// Mirrors the teacher's errgroup-per-subsystem supervision
// (internal/daemon/app.go), already the pattern internal/horizon.Manager.Run
// itself uses for its per-channel fan-out.
func (c *Container) Run(ctx context.Context) error {
	logger := log.WithComponent("core")
	g, gctx := errgroup.WithContext(ctx)

	if c.Horizon.Source != nil {
		g.Go(func() error {
			logger.Info().Msg("starting horizon manager")
			return c.Horizon.Run(gctx)
		})
	} else {
		logger.Warn().Msg("horizon manager has no BlockSource configured; skipping its control loop")
	}

	g.Go(func() error {
		logger.Info().Msg("starting retention purger")
		return c.Retention.Run(gctx, retentionSweepInterval)
	})

	return g.Wait()
}

// retentionSweepInterval is how often the Retention Purger asks its rate
// limiter for a sweep; RetentionPurgesPerHour caps how many of those sweeps
// actually run per hour, and each sweep that runs removes every candidate
// past its tier's max age.
const retentionSweepInterval = time.Minute
