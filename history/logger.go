package history

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTableName is the history table used when none is configured.
const DefaultTableName = "sku_histories"

// Config controls history recording.
type Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	TrackUser      bool   `mapstructure:"track_user"`
	TrackIP        bool   `mapstructure:"track_ip"`
	TrackUserAgent bool   `mapstructure:"track_user_agent"`
	TableName      string `mapstructure:"table_name"`

	// RetentionDays is how long records are kept. Nil keeps them forever.
	RetentionDays *int `mapstructure:"retention_days"`
}

// DefaultConfig returns history enabled with user tracking only.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		TrackUser: true,
		TableName: DefaultTableName,
	}
}

// Logger writes history records for SKU lifecycle transitions.
type Logger struct {
	cfg    Config
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(zl zerolog.Logger) Option {
	return func(l *Logger) {
		l.logger = zl
	}
}

// NewLogger returns a Logger writing to store.
func NewLogger(cfg Config, store Store, opts ...Option) *Logger {
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	l := &Logger{
		cfg:    cfg,
		store:  store,
		now:    time.Now,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether records are written.
func (l *Logger) Enabled() bool {
	return l != nil && l.cfg.Enabled
}

// Config returns the logger configuration.
func (l *Logger) Config() Config {
	return l.cfg
}

// Store returns the underlying store.
func (l *Logger) Store() Store {
	return l.store
}

// LogOption sets optional fields on a record.
type LogOption func(*Record)

// WithReason sets the record's reason. Empty reasons are ignored.
func WithReason(reason string) LogOption {
	return func(r *Record) {
		r.Reason = optional(reason)
	}
}

// WithMetadata merges md into the record's metadata.
func WithMetadata(md map[string]any) LogOption {
	return func(r *Record) {
		if len(md) == 0 {
			return
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]any, len(md))
		}
		maps.Copy(r.Metadata, md)
	}
}

// LogCreation records the first SKU assigned to s.
func (l *Logger) LogCreation(ctx context.Context, s Subject, sku string, opts ...LogOption) (*Record, error) {
	return l.log(ctx, s, EventCreated, nil, ptr(sku), opts)
}

// LogRegeneration records a SKU replaced through forced regeneration.
func (l *Logger) LogRegeneration(ctx context.Context, s Subject, oldSku, newSku string, opts ...LogOption) (*Record, error) {
	return l.log(ctx, s, EventRegenerated, ptr(oldSku), ptr(newSku), opts)
}

// LogModification records a SKU edited in force mode.
func (l *Logger) LogModification(ctx context.Context, s Subject, oldSku, newSku string, opts ...LogOption) (*Record, error) {
	return l.log(ctx, s, EventModified, ptr(oldSku), ptr(newSku), opts)
}

// LogDeletion records the SKU of a deleted subject.
func (l *Logger) LogDeletion(ctx context.Context, s Subject, sku string, opts ...LogOption) (*Record, error) {
	return l.log(ctx, s, EventDeleted, ptr(sku), nil, opts)
}

func (l *Logger) log(ctx context.Context, s Subject, event EventType, oldSku, newSku *string, opts []LogOption) (*Record, error) {
	if !l.Enabled() {
		return nil, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("new history id: %w", err)
	}

	r := &Record{
		ID:          id,
		OldSku:      oldSku,
		NewSku:      newSku,
		SubjectType: s.EntityType(),
		SubjectID:   s.EntityID(),
		EventType:   event,
		CreatedAt:   l.now().UTC(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if l.cfg.TrackUser {
		if a, ok := ActorFrom(ctx); ok {
			r.ActorID = ptr(a.ID)
			r.ActorType = optional(a.Type)
		}
	}
	if req, ok := RequestFrom(ctx); ok {
		if l.cfg.TrackIP {
			r.IPAddress = optional(req.IP)
		}
		if l.cfg.TrackUserAgent {
			r.UserAgent = optional(req.UserAgent)
		}
	}

	if err := l.store.Append(ctx, r); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	l.logger.Debug().
		Str("subject_type", r.SubjectType).
		Str("subject_id", r.SubjectID).
		Str("event", string(event)).
		Msg("sku history recorded")

	return r, nil
}

// History returns every record for s, newest first.
func (l *Logger) History(ctx context.Context, s Subject) ([]Record, error) {
	f := ForSubject(s)
	f.Descending = true
	return l.store.List(ctx, f)
}

// Latest returns the newest record for s, or nil when there is none.
func (l *Logger) Latest(ctx context.Context, s Subject) (*Record, error) {
	f := ForSubject(s)
	f.Descending = true
	f.Limit = 1
	records, err := l.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Find returns the records matching f.
func (l *Logger) Find(ctx context.Context, f Filter) ([]Record, error) {
	return l.store.List(ctx, f)
}

// RetentionCutoff returns the time before which records expire, and false
// when records are kept forever.
func (l *Logger) RetentionCutoff() (time.Time, bool) {
	if l.cfg.RetentionDays == nil {
		return time.Time{}, false
	}
	return l.now().UTC().AddDate(0, 0, -*l.cfg.RetentionDays), true
}

// Cleanup deletes records older than the retention window. It returns 0
// without touching the store when retention is unset.
func (l *Logger) Cleanup(ctx context.Context) (int, error) {
	cutoff, ok := l.RetentionCutoff()
	if !ok {
		return 0, nil
	}
	return l.CleanupBefore(ctx, cutoff)
}

// CleanupBefore deletes records created before cutoff.
func (l *Logger) CleanupBefore(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := l.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete history before %s: %w", cutoff.Format(time.DateOnly), err)
	}
	l.logger.Info().
		Int("deleted", n).
		Time("cutoff", cutoff).
		Msg("sku history cleaned up")
	return n, nil
}
