package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/interval"
	"github.com/chomp-dev/chomp/pkg/loader"
	"github.com/chomp-dev/chomp/pkg/loader/monitor"
	"github.com/chomp-dev/chomp/pkg/observability"
	"github.com/chomp-dev/chomp/pkg/store"
	"github.com/chomp-dev/chomp/pkg/transformer"
)

// Job runs the claim -> load -> transform -> store -> publish pipeline
// for one tick of one ingester (spec.md §4.2), with the per-ingester
// retry budget and cooldown applied around the load/transform/store
// step only — claiming is attempted exactly once per tick.
type Job struct {
	log      logrus.FieldLogger
	cfg      *Config
	cache    cache.Cache
	cacheCfg *cache.Config
	ownerID  string

	ingesters map[string]*ingester.Ingester
	graphs    map[string]*ingester.FieldGraph
	loaders   map[ingester.Kind]loader.Loader

	engine    *transformer.Engine
	tsdb      store.TSDB
	publisher *store.Publisher
	registry  *ingester.Registry

	// vitals is nil unless the process has monitor ingesters
	// configured; attempt then skips recording into it rather than
	// requiring it to be wired.
	vitals *monitor.Tracker
}

// NewJob builds a Job. loaders must have one entry per Kind present in
// ingesters; graphs must have one entry per ingester name. vitals may
// be nil if no monitor ingesters are configured.
func NewJob(
	log logrus.FieldLogger,
	cfg *Config,
	c cache.Cache,
	cacheCfg *cache.Config,
	ownerID string,
	ingesters map[string]*ingester.Ingester,
	graphs map[string]*ingester.FieldGraph,
	loaders map[ingester.Kind]loader.Loader,
	engine *transformer.Engine,
	tsdb store.TSDB,
	publisher *store.Publisher,
	registry *ingester.Registry,
	vitals *monitor.Tracker,
) *Job {
	return &Job{
		log:       log.WithField("component", "job"),
		cfg:       cfg,
		cache:     c,
		cacheCfg:  cacheCfg,
		ownerID:   ownerID,
		ingesters: ingesters,
		graphs:    graphs,
		loaders:   loaders,
		engine:    engine,
		tsdb:      tsdb,
		publisher: publisher,
		registry:  registry,
		vitals:    vitals,
	}
}

// Handle is the asynq.HandlerFunc for TaskTypeTick.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	var p tickPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal tick payload: %w", err)
	}

	ing, ok := j.ingesters[p.Ingester]
	if !ok {
		j.log.WithField("ingester", p.Ingester).Warn("Tick job for unknown ingester, dropping")
		return nil
	}

	j.runTick(ctx, ing, time.Unix(p.Tick, 0).UTC())
	return nil
}

func (j *Job) runTick(ctx context.Context, ing *ingester.Ingester, tick time.Time) {
	started := time.Now()

	ttl, err := interval.ClaimTTL(ing.Interval)
	if err != nil {
		j.log.WithError(err).WithField("ingester", ing.Name).Error("Cannot compute claim TTL")
		return
	}

	claimed, err := cache.TryClaim(ctx, j.cache, j.cacheCfg.ClaimKey(ing.Name), j.ownerID, tick, ttl)
	if err != nil {
		j.log.WithError(err).WithField("ingester", ing.Name).Error("Claim attempt failed")
		observability.RecordCacheError("claim")
		return
	}
	if !claimed {
		observability.RecordClaim(ing.Name, "lost")
		return
	}
	observability.RecordClaim(ing.Name, "won")

	observability.WorkerPoolActive.Inc()
	defer observability.WorkerPoolActive.Dec()

	status := "success"
	attempt := 0
	var lastErr error

	for attempt = 1; attempt <= j.cfg.RetryBudget; attempt++ {
		lastErr = j.attempt(ctx, ing, tick)
		if lastErr == nil {
			break
		}

		j.log.WithError(lastErr).WithFields(logrus.Fields{
			"ingester": ing.Name,
			"attempt":  attempt,
		}).Warn("Tick attempt failed")

		if attempt == j.cfg.RetryBudget {
			break
		}

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = j.cfg.RetryBudget
		case <-time.After(j.cfg.cooldownWithJitter()):
		}
	}

	if lastErr != nil {
		status = "failed"
		ing.RecordFailure(lastErr, j.cfg.RetryBudget)
		j.log.WithError(lastErr).WithField("ingester", ing.Name).Error("Tick abandoned, retry budget exhausted")
	} else {
		ing.RecordSuccess(tick)
	}

	_, _, _, _, fails := ing.Snapshot()
	observability.RecordHealth(ing.Name, lastErr == nil, fails)
	observability.RecordTick(ing.Name, status, time.Since(started).Seconds())

	if err := j.registry.UpdateStatus(ctx, ing); err != nil {
		j.log.WithError(err).WithField("ingester", ing.Name).Warn("Failed to update registry status")
	}
}

// attempt runs one load -> transform -> store -> publish pass.
func (j *Job) attempt(ctx context.Context, ing *ingester.Ingester, tick time.Time) error {
	ld, ok := j.loaders[ing.Kind]
	if !ok {
		return fmt.Errorf("no loader registered for kind %q", ing.Kind)
	}

	loadStarted := time.Now()
	raw, vitals, err := ld.Acquire(ctx, ing)
	if err != nil {
		observability.RecordLoaderError(string(ing.Kind), "acquire")
		return fmt.Errorf("acquire: %w", err)
	}
	if vitals != nil {
		observability.RecordLoaderRequest(string(ing.Kind), vitals.Latency.Seconds(), vitals.Bytes)
	} else {
		observability.RecordLoaderRequest(string(ing.Kind), time.Since(loadStarted).Seconds(), 0)
	}
	if j.vitals != nil {
		j.vitals.Record(ing.Name, vitals)
	}

	graph := j.graphs[ing.Name]
	values, fieldErrs := j.engine.Run(ctx, ing, graph, raw)
	for _, fe := range fieldErrs {
		observability.RecordFieldError(ing.Name, fe.Field, "transform")
		j.log.WithError(fe.Err).WithFields(logrus.Fields{
			"ingester": ing.Name,
			"field":    fe.Field,
		}).Debug("Field failed this tick")
	}

	if len(ing.Fields) > 0 && len(values) == 0 {
		return fmt.Errorf("all %d fields failed this tick", len(ing.Fields))
	}

	if err := j.tsdb.EnsureSchema(ctx, ing); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	if err := j.tsdb.Write(ctx, ing, store.Row{Tick: tick.Unix(), Values: values}); err != nil {
		return fmt.Errorf("store write: %w", err)
	}

	if err := store.UpdateLatest(ctx, j.cache, j.cacheCfg, ing, values); err != nil {
		j.log.WithError(err).WithField("ingester", ing.Name).Warn("Failed to update latest-value cache")
		observability.RecordCacheError("update_latest")
	}

	j.publisher.Publish(ctx, ing, tick.Unix(), values)

	return nil
}
