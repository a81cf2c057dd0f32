// Package bootstrap opens the backends selected by configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/rl1809/realtime-inventory/internal/adapter/alert"
	"github.com/rl1809/realtime-inventory/internal/adapter/storage"
	"github.com/rl1809/realtime-inventory/internal/adapter/stream"
	"github.com/rl1809/realtime-inventory/internal/config"
	"github.com/rl1809/realtime-inventory/internal/core/domain"
	"github.com/rl1809/realtime-inventory/internal/logger"
	"github.com/rl1809/realtime-inventory/internal/port"
)

// Backends holds the store, log and coordination handles shared by the binaries.
type Backends struct {
	Store   port.InventoryStore
	Log     port.TransactionLog
	Offsets port.OffsetStore
	Leases  port.LeaseManager
	Redis   *redis.Client

	closers []func() error
}

func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Backends, error) {
	b := &Backends{}

	if cfg.NeedsRedis() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logg.Info(logg.WithField(ctx, "addr", cfg.Redis.Addr), "connected to redis")
		b.Redis = rdb
		b.closers = append(b.closers, rdb.Close)
	}

	if err := b.openStore(ctx, cfg, logg); err != nil {
		_ = b.Close()
		return nil, err
	}

	switch cfg.Stream.Driver {
	case config.StoreDriverRedis:
		rlog := stream.NewRedisLog(b.Redis, cfg.Stream.Prefix, cfg.Stream.Partitions, cfg.Stream.ReadBlock)
		b.Log, b.Offsets = rlog, rlog
		b.Leases = stream.NewRedisLeases(b.Redis)
	default:
		mlog := stream.NewMemoryLog(cfg.Stream.Partitions, cfg.Stream.ReadBlock)
		b.Log, b.Offsets = mlog, mlog
		b.Leases = stream.NewMemoryLeases()
	}
	return b, nil
}

func (b *Backends) openStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	switch cfg.Store.Driver {
	case config.StoreDriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
		b.closers = append(b.closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.EnsureSchema(ctx); err != nil {
			return err
		}
		logg.Info(ctx, "connected to mysql")
		b.Store = adapter
	case config.StoreDriverRedis:
		b.Store = storage.NewRedisAdapter(b.Redis)
	default:
		b.Store = storage.NewMemoryStore()
	}
	return nil
}

// Close releases every connection opened by Open.
func (b *Backends) Close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i]())
	}
	b.closers = nil
	return err
}

// AlertSink builds the configured sinks; the returned closer stops any publishers.
func AlertSink(ctx context.Context, cfg *config.Config, rdb *redis.Client, logg *logger.Logger) (port.AlertSink, func() error, error) {
	var (
		sinks   alert.MultiSink
		closers []func() error
	)
	closeAll := func() error {
		var err error
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
		return err
	}

	for _, name := range cfg.Alerts.Sinks {
		switch strings.TrimSpace(name) {
		case config.SinkLog:
			sinks = append(sinks, alert.NewLogSink(logg))
		case config.SinkRedis:
			sinks = append(sinks, alert.NewRedisStreamSink(rdb, cfg.Alerts.RedisStream))
		case config.SinkPubSub:
			ps, err := alert.NewPubSubSink(ctx, cfg.Alerts.PubSubProject, cfg.Alerts.PubSubTopic)
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, ps)
			closers = append(closers, ps.Close)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return sinks, closeAll, nil
}

// LoadSeedFile reads a JSON array of inventory records.
func LoadSeedFile(path string) ([]domain.InventoryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var records []domain.InventoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	for i, r := range records {
		if err := r.Key().Validate(); err != nil {
			return nil, fmt.Errorf("seed record %d: %w", i, err)
		}
		if r.CurrentStock < 0 {
			return nil, fmt.Errorf("seed record %d: negative stock", i)
		}
	}
	return records, nil
}

// Seed loads path into store when path is set.
func Seed(ctx context.Context, store port.InventoryStore, path string, logg *logger.Logger) error {
	if path == "" {
		return nil
	}
	records, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	if err := store.Seed(ctx, records...); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"file": path, "records": len(records)}), "inventory seeded")
	return nil
}
