package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include bound variables in db.statement
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DefaultDBTracingConfig returns the default database tracing configuration
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin wraps the otelgorm plugin with slow query detection
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new DBTracingPlugin
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{config: cfg, logger: logger}
}

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

// RegisterOtelGorm installs otelgorm and the timing callbacks on db
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := db.Callback()
	processors := map[string]struct {
		before func(string) error
		after  func(string) error
	}{
		"create": {
			before: func(n string) error { return cb.Create().Before("gorm:create").Register(n, p.markStart) },
			after:  func(n string) error { return cb.Create().After("gorm:create").Register(n, p.afterQuery) },
		},
		"query": {
			before: func(n string) error { return cb.Query().Before("gorm:query").Register(n, p.markStart) },
			after:  func(n string) error { return cb.Query().After("gorm:query").Register(n, p.afterQuery) },
		},
		"update": {
			before: func(n string) error { return cb.Update().Before("gorm:update").Register(n, p.markStart) },
			after:  func(n string) error { return cb.Update().After("gorm:update").Register(n, p.afterQuery) },
		},
		"delete": {
			before: func(n string) error { return cb.Delete().Before("gorm:delete").Register(n, p.markStart) },
			after:  func(n string) error { return cb.Delete().After("gorm:delete").Register(n, p.afterQuery) },
		},
		"row": {
			before: func(n string) error { return cb.Row().Before("gorm:row").Register(n, p.markStart) },
			after:  func(n string) error { return cb.Row().After("gorm:row").Register(n, p.afterQuery) },
		},
		"raw": {
			before: func(n string) error { return cb.Raw().Before("gorm:raw").Register(n, p.markStart) },
			after:  func(n string) error { return cb.Raw().After("gorm:raw").Register(n, p.afterQuery) },
		},
	}
	for op, proc := range processors {
		if err := proc.before("otel_timing:before_" + op); err != nil {
			return err
		}
		if err := proc.after("otel_slow_query:" + op); err != nil {
			return err
		}
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem))
	return nil
}

func (p *DBTracingPlugin) markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

func (p *DBTracingPlugin) afterQuery(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartTimeKey).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		p.logger.Warn("Slow query",
			zap.String("table", db.Statement.Table),
			zap.Duration("elapsed", elapsed),
			zap.String("trace_id", GetTraceID(ctx)))
	}
}
