package rpc

import (
	"context"
	"encoding/json"
	"time"
)

func registerDaemon(r *Router, d Deps) {
	r.Register("daemon.health", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return d.Health.Probe(ctx), nil
	})

	r.Register("daemon.stats", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return daemonStats{
			Version:         d.Version,
			UptimeSeconds:   time.Now().Unix() - d.StartedAt,
			Methods:         len(r.Methods()),
			Subscribers:     d.Events.SubscriberCount(),
			DroppedEvents:   d.Events.DroppedCount(),
		}, nil
	})

	r.Register("daemon.config", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return d.Config, nil
	})

	r.Register("daemon.reload", func(ctx context.Context, raw json.RawMessage) (any, error) {
		if d.ReloadFn == nil {
			return d.Config, nil
		}
		cfg, err := d.ReloadFn()
		if err != nil {
			return nil, err
		}
		*d.Config = cfg
		return d.Config, nil
	})

	r.Register("daemon.shutdown", func(ctx context.Context, raw json.RawMessage) (any, error) {
		if d.ShutdownFn != nil {
			go d.ShutdownFn()
		}
		return shutdownAck{Shutdown: true}, nil
	})
}

type daemonStats struct {
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Methods       int    `json:"methods"`
	Subscribers   int    `json:"subscribers"`
	DroppedEvents uint64 `json:"droppedEvents"`
}

type shutdownAck struct {
	Shutdown bool `json:"shutdown"`
}
