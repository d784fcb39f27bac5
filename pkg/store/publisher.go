package store

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/observability"
)

// Publisher broadcasts each tick's computed values on the cache
// façade's pub/sub channel (spec.md §2: "Store+Publisher"). Publish
// failures never block ingestion — they're logged and counted, not
// propagated, since the store write (the durable half of this step)
// has already succeeded by the time Publish runs.
type Publisher struct {
	log   logrus.FieldLogger
	cache cache.Cache
	cfg   *cache.Config
}

// NewPublisher builds a Publisher bound to the shared cache.
func NewPublisher(log logrus.FieldLogger, c cache.Cache, cfg *cache.Config) *Publisher {
	return &Publisher{log: log.WithField("component", "publisher"), cache: c, cfg: cfg}
}

// Message is the wire shape of one published tick update.
type Message struct {
	Ingester string                 `json:"ingester"`
	Tick     int64                  `json:"tick"`
	Values   map[string]interface{} `json:"values"`
}

// Publish broadcasts one tick's values for ing. Errors are logged and
// metered, never returned, per the best-effort contract above.
func (p *Publisher) Publish(ctx context.Context, ing *ingester.Ingester, tick int64, values map[string]interface{}) {
	payload, err := json.Marshal(Message{Ingester: ing.Name, Tick: tick, Values: values})
	if err != nil {
		p.log.WithError(err).WithField("ingester", ing.Name).Warn("Failed to marshal publish payload")
		observability.RecordPublish(ing.Name, "error")
		return
	}

	if err := p.cache.Publish(ctx, p.cfg.Channel(ing.Name), payload); err != nil {
		p.log.WithError(err).WithField("ingester", ing.Name).Warn("Failed to publish tick update")
		observability.RecordPublish(ing.Name, "error")
		return
	}

	observability.RecordPublish(ing.Name, "success")
}
