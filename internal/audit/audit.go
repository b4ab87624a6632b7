// Package audit registra los eventos del ciclo de vida de la sesión:
// logins, escalaciones interactivas, renovaciones silenciosas, logouts y
// fallas de validación. El sink por defecto es el logger estructurado;
// con DSN configurado los eventos también se persisten en Postgres.
package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/provider"
	migrations "github.com/dropDatabas3/authbridge/migrations/postgres"
)

// Event es un evento de auditoría ya cerrado.
type Event struct {
	ID       string
	At       time.Time
	Kind     string
	Provider provider.Identity
	UserID   string
	Detail   string
}

// Tipos de evento.
const (
	KindLoginStarted     = "login.started"
	KindLoginSucceeded   = "login.succeeded"
	KindLoginFailed      = "login.failed"
	KindSilentRefreshed  = "token.silent_refreshed"
	KindEscalated        = "token.escalated_interactive"
	KindValidationFailed = "backend.validation_failed"
	KindLogout           = "session.logout"
)

// Trail acumula eventos. Todas las escrituras son best effort: un sink
// caído jamás corta el flujo de autenticación.
type Trail struct {
	pool *pgxpool.Pool
}

// Config selecciona el sink persistente.
type Config struct {
	Driver string // "log" (default) | "postgres"
	DSN    string
}

// New arma el trail. Con driver postgres abre un pool chico y falla rápido
// si la base no responde; con "log" (o vacío) solo queda el sink de log.
func New(ctx context.Context, cfg Config) (*Trail, error) {
	if cfg.Driver != "postgres" || cfg.DSN == "" {
		return &Trail{}, nil
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	// trail de auditoría: no necesita más que un par de conexiones
	pc.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Trail{pool: pool}, nil
}

// migrate aplica el esquema embebido. Los archivos son idempotentes
// (IF NOT EXISTS), así que correrlos en cada arranque es seguro.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sqlBytes, err := migrations.FS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("migración %s: %w", name, err)
		}
	}
	return nil
}

// Record emite un evento. Siempre loguea; persiste si hay pool.
func (t *Trail) Record(ctx context.Context, kind string, p provider.Identity, userID, detail string) {
	ev := Event{
		ID:       uuid.NewString(),
		At:       time.Now().UTC(),
		Kind:     kind,
		Provider: p,
		UserID:   userID,
		Detail:   detail,
	}

	logger.From(ctx).Info("auditoría",
		zap.String("audit_id", ev.ID),
		zap.String("kind", ev.Kind),
		logger.Provider(string(ev.Provider)),
		logger.UserID(ev.UserID),
		zap.String("detail", ev.Detail),
	)

	if t == nil || t.pool == nil {
		return
	}
	const q = `INSERT INTO auth_audit (id, at, kind, provider, user_id, detail)
	           VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := t.pool.Exec(ctx, q, ev.ID, ev.At, ev.Kind, string(ev.Provider), ev.UserID, ev.Detail); err != nil {
		logger.From(ctx).Warn("no se pudo persistir evento de auditoría", logger.Err(err))
	}
}

// Close libera el pool si existe.
func (t *Trail) Close() {
	if t != nil && t.pool != nil {
		t.pool.Close()
	}
}
