// Package audit keeps the append-only trail of administrative mutations.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clinic/clinic/internal/platform/patch"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Action string

const (
	ActionCreateUser     Action = "CREATE_USER"
	ActionUpdateUser     Action = "UPDATE_USER"
	ActionDeleteUser     Action = "DELETE_USER"
	ActionUpdateSettings Action = "UPDATE_SETTINGS"
	ActionRestoreBackup  Action = "RESTORE_BACKUP"
	ActionChangePassword Action = "CHANGE_PASSWORD"
	ActionCreatePatient  Action = "CREATE_PATIENT"
	ActionUpdatePatient  Action = "UPDATE_PATIENT"
)

// Entity types written by the services.
const (
	EntityUsers    = "users"
	EntityPatients = "patients"
	EntitySettings = "system_settings"
	EntityBackup   = "backup"
	EntityAccount  = "auth_accounts"
)

// SystemActor is displayed when an entry has no surviving actor.
const SystemActor = "System"

// Entry maps to the audit_logs table.
type Entry struct {
	ID         int64           `json:"id"`
	UserID     *int64          `json:"user_id"`
	Action     Action          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Details    json.RawMessage `json:"details"`
	IPAddress  *string         `json:"ip_address"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EntryView is an Entry joined with the actor's current profile. The actor
// columns are null once the actor has been deleted.
type EntryView struct {
	Entry
	FullName  *string `json:"full_name"`
	Email     *string `json:"email"`
	Role      *string `json:"role"`
	ActorName string  `json:"actor_name"`
}

// Filter narrows List. An empty EntityType matches every entry.
type Filter struct {
	Limit      int
	Offset     int
	EntityType string
}

// Store persists entries. Insert must not abort a surrounding transaction
// when it fails.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]*EntryView, error)
}

// Change is one field of an update diff.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff returns the keys of after whose value differs from before.
func Diff(before, after map[string]any) map[string]Change {
	changes := make(map[string]Change)
	for k, nv := range after {
		ov := before[k]
		if patch.Equal(ov, nv) {
			continue
		}
		changes[k] = Change{Old: deref(ov), New: deref(nv)}
	}
	return changes
}

func deref(v any) any {
	switch p := v.(type) {
	case *string:
		if p == nil {
			return nil
		}
		return *p
	case *int64:
		if p == nil {
			return nil
		}
		return *p
	case *bool:
		if p == nil {
			return nil
		}
		return *p
	}
	return v
}

// Event is what a service asks the Logger to record.
type Event struct {
	ActorID    *int64
	Action     Action
	EntityType string
	EntityID   string
	Details    any
}

// Logger records events on a Store. Recording never fails the caller: write
// errors are logged and counted.
type Logger struct {
	store    Store
	logger   zerolog.Logger
	failures prometheus.Counter
	now      func() time.Time
}

func NewLogger(store Store, logger zerolog.Logger, reg prometheus.Registerer) *Logger {
	l := &Logger{
		store:  store,
		logger: logger.With().Str("component", "audit").Logger(),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit entries that could not be written.",
		}),
		now: time.Now,
	}
	if reg != nil {
		reg.MustRegister(l.failures)
	}
	return l
}

func (l *Logger) Record(ctx context.Context, ev Event) {
	entry := &Entry{
		UserID:     ev.ActorID,
		Action:     ev.Action,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		CreatedAt:  l.now().UTC(),
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		entry.IPAddress = &ip
	}

	if ev.Details != nil {
		raw, err := json.Marshal(ev.Details)
		if err != nil {
			l.fail(err, ev)
			return
		}
		entry.Details = raw
	}

	if err := l.store.Insert(ctx, entry); err != nil {
		l.fail(err, ev)
	}
}

func (l *Logger) fail(err error, ev Event) {
	l.failures.Inc()
	l.logger.Error().Err(err).
		Str("action", string(ev.Action)).
		Str("entity_type", ev.EntityType).
		Str("entity_id", ev.EntityID).
		Msg("failed to write audit entry")
}

// Recent returns the newest entries, limited by f.
func (l *Logger) Recent(ctx context.Context, f Filter) ([]*EntryView, error) {
	return l.store.List(ctx, f)
}

type ctxKey string

const clientIPKey ctxKey = "audit_client_ip"

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// ClientIP stores the request's real IP for entries written while serving it.
func ClientIP() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := WithClientIP(c.Request().Context(), c.RealIP())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
