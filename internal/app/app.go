package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"bk-go/internal/bk"
	"bk-go/internal/config"
	"bk-go/internal/database"
	"bk-go/internal/encryption"
	"bk-go/internal/httpapi"
	"bk-go/internal/metrics"
	"bk-go/internal/store"
)

// ErrSchemaOutOfDate is returned by NewBKApp when a SQL store has pending
// migrations. Run `bk store migrate` to apply them.
var ErrSchemaOutOfDate = errors.New("store schema out of date: run `bk store migrate`")

// Options tune NewBKApp. The zero value is usable for commands that never
// touch encrypted records.
type Options struct {
	// Operation names the CLI command being run, e.g. "AddRoom".
	Operation string
	// Passphrase unlocks the private key when encryption is enabled.
	Passphrase PassphraseFunc
	// Clock overrides the real time.
	Clock bk.Clock
	// LogOutput receives a copy of every log line. Defaults to os.Stderr.
	LogOutput io.Writer
	// LogLevel is the minimum level written. The zero value is Info.
	LogLevel slog.Level
}

// BKApp is the application layer between the CLI and BKService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw strings, and releases everything on Close.
type BKApp struct {
	cfg     *config.Config
	store   bk.RecordStore
	metrics *metrics.Metrics
	service *bk.BKService
	logger  *slog.Logger
	op      *Operation
	logFile *os.File
}

// NewBKApp creates a fully wired BKApp from the given config.
// The caller must call Close when done.
func NewBKApp(ctx context.Context, cfg *config.Config, opts Options) (*BKApp, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	op := NewOperation(opts.Operation)
	logOut := opts.LogOutput
	if logOut == nil {
		logOut = os.Stderr
	}
	logger, logFile, err := newLogger(cfg.LogDir, op.RunID, logOut, opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &BKApp{cfg: cfg, logger: logger, op: op, logFile: logFile}
	if err := a.open(ctx, loc, opts); err != nil {
		a.closeResources()
		return nil, err
	}
	logger.Debug("operation started", "operation", op.Name, "store", cfg.Store.Type)
	return a, nil
}

func (a *BKApp) open(ctx context.Context, loc *time.Location, opts Options) error {
	backend, err := store.NewRecordStoreFromConfig(ctx, a.cfg.Store)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	a.store = backend

	if sqlStore, ok := backend.(*database.SQLStore); ok {
		if err := sqlStore.CheckMigrations(); err != nil {
			return fmt.Errorf("%w: %w", ErrSchemaOutOfDate, err)
		}
	}

	if a.cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		a.store = a.metrics.InstrumentStore(a.store)
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc != nil {
		sealed, err := a.unlock(enc, opts.Passphrase)
		if err != nil {
			return err
		}
		a.store = sealed
	}

	a.service = bk.NewBKService(a.store, &slogAdapter{l: a.logger}, opts.Clock, loc)

	initCtx, cancel := a.opContext(ctx)
	defer cancel()
	if err := a.service.Init(initCtx); err != nil {
		return fmt.Errorf("initializing indexes: %w", err)
	}
	return nil
}

func (a *BKApp) unlock(enc bk.Encryptor, passphrase PassphraseFunc) (bk.RecordStore, error) {
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption is enabled but no keys were found: run `bk config init --encrypt`")
	}
	if passphrase == nil {
		return nil, fmt.Errorf("encryption is enabled but no passphrase source was given")
	}
	pass, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	dec, err := enc.Unlock(pass)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	return store.NewEncryptedStore(a.store, enc, dec)
}

// opContext bounds one store-facing call by the configured op timeout.
func (a *BKApp) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := a.cfg.Store.OpTimeout.Duration; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Service exposes the underlying service.
func (a *BKApp) Service() *bk.BKService { return a.service }

// Logger returns the run logger.
func (a *BKApp) Logger() *slog.Logger { return a.logger }

// AddRoom registers a room.
func (a *BKApp) AddRoom(ctx context.Context, id string) (bk.Room, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	room, err := a.service.CreateRoom(ctx, id)
	a.op.Finish(err)
	return room, err
}

// RenameRoom moves a room to a new id.
func (a *BKApp) RenameRoom(ctx context.Context, oldID, newID string) (bk.Room, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	room, err := a.service.RenameRoom(ctx, oldID, newID)
	a.op.Finish(err)
	return room, err
}

// RemoveRoom deletes a room. Removing an unknown room is ErrNotFound here
// so that the CLI can report it.
func (a *BKApp) RemoveRoom(ctx context.Context, id string) error {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	deleted, err := a.service.DeleteRoom(ctx, id)
	if err == nil && !deleted {
		err = fmt.Errorf("room %s: %w", id, bk.ErrNotFound)
	}
	a.op.Finish(err)
	return err
}

// ListRooms returns every room, numerically ordered.
func (a *BKApp) ListRooms(ctx context.Context) ([]bk.Room, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	return a.service.ListRooms(ctx)
}

// Today opens the session for the current date.
func (a *BKApp) Today(ctx context.Context) (bk.Session, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	return a.service.Today(ctx)
}

// ShowSession returns the session for date without creating it.
func (a *BKApp) ShowSession(ctx context.Context, date string) (bk.Session, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	return a.service.GetSession(ctx, date)
}

// CheckIn records a check-in. An empty date means today, whose session is
// opened first.
func (a *BKApp) CheckIn(ctx context.Context, date, room string) (bk.CheckInRecord, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	if date == "" {
		session, err := a.service.Today(ctx)
		if err != nil {
			a.op.Finish(err)
			return bk.CheckInRecord{}, err
		}
		date = session.Date
	}
	record, err := a.service.AddCheckIn(ctx, date, room)
	a.op.Finish(err)
	return record, err
}

// ListSessions returns the sessions that have at least one check-in.
func (a *BKApp) ListSessions(ctx context.Context) ([]bk.Session, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	return a.service.ListSessionsWithCheckIns(ctx)
}

// Doctor reports index drift.
func (a *BKApp) Doctor(ctx context.Context) ([]bk.DriftReport, error) {
	ctx, cancel := a.opContext(ctx)
	defer cancel()
	return a.service.Doctor(ctx)
}

// Handler builds the HTTP API over the service.
func (a *BKApp) Handler() http.Handler {
	cfg := httpapi.RouterConfig{
		Rooms:    httpapi.NewRoomHandler(a.service, a.logger),
		Sessions: httpapi.NewSessionHandler(a.service, a.logger),
		Middleware: []func(http.Handler) http.Handler{
			httpapi.RequestID(),
			httpapi.RequestLogger(a.logger),
			httpapi.Timeout(a.cfg.Server.RequestTimeout.Duration),
		},
	}
	if a.metrics != nil {
		cfg.Metrics = a.metrics.Handler()
		cfg.MetricsPath = a.cfg.Metrics.Path
		cfg.Observer = a.metrics
	}
	return httpapi.NewRouter(cfg)
}

// Serve runs the HTTP API until ctx is canceled.
func (a *BKApp) Serve(ctx context.Context) error {
	srv := httpapi.NewServer(a.cfg.Server.Addr, a.Handler(), a.cfg.Server.ShutdownTimeout.Duration, a.logger)
	err := srv.ListenAndServe(ctx)
	a.op.Finish(err)
	return err
}

// Close logs the outcome of the operation and releases every resource.
func (a *BKApp) Close() error {
	a.logger.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status, "duration", a.op.Elapsed())
	return a.closeResources()
}

func (a *BKApp) closeResources() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// MigrateStore applies pending schema migrations for SQL backends. It is a
// no-op for the other store types.
func MigrateStore(ctx context.Context, cfg config.StoreConfig) (bool, error) {
	switch cfg.Type {
	case "sqlite", "postgres":
	default:
		return false, nil
	}
	s, err := database.NewSQLStoreFromConfig(ctx, cfg)
	if err != nil {
		return false, fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()
	if err := s.MigrateUp(); err != nil {
		return false, fmt.Errorf("migrating store: %w", err)
	}
	return true, nil
}
