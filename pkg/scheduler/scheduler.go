package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader"
	"github.com/chomp-dev/chomp/pkg/loader/monitor"
	"github.com/chomp-dev/chomp/pkg/store"
	"github.com/chomp-dev/chomp/pkg/transformer"
)

// queueName is the single asynq queue every tick job is enqueued on.
// Fairness across ingesters comes from MaxJobs bounding concurrency,
// not from separate queues per ingester or kind.
const queueName = "chomp"

// Scheduler wall-clock-aligns ticks for every configured ingester and
// dispatches them through a bounded asynq worker pool (spec.md §2,
// §4.2). Unlike the single-leader-election model it replaces, every
// cluster member runs its own Scheduler; the per-tick claim in
// pkg/cache.TryClaim is what keeps exactly one of them the effective
// owner of any given tick.
type Scheduler struct {
	log logrus.FieldLogger
	cfg *Config

	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector

	tickers []*ticker
	job     *Job

	wg   sync.WaitGroup
	stop context.CancelFunc
}

// Deps bundles everything Scheduler needs to build a Job, so New's
// parameter list doesn't grow with every new store/loader dependency.
type Deps struct {
	Cache     cache.Cache
	CacheCfg  *cache.Config
	Ingesters map[string]*ingester.Ingester
	Graphs    map[string]*ingester.FieldGraph
	Loaders   map[ingester.Kind]loader.Loader
	Engine    *transformer.Engine
	TSDB      store.TSDB
	Publisher *store.Publisher
	Registry  *ingester.Registry
	Vitals    *monitor.Tracker
	RedisAddr string
	RedisPass string
	RedisDB   int
}

// New builds a Scheduler bound to redis (via its own asynq client,
// independent of the cache façade's go-redis client — asynq owns its
// connection pool and queue namespacing).
func New(log logrus.FieldLogger, cfg *Config, deps Deps) (*Scheduler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	redisOpt := asynq.RedisClientOpt{Addr: deps.RedisAddr, Password: deps.RedisPass, DB: deps.RedisDB}

	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(redisOpt, asynq.Config{
		Queues:      map[string]int{queueName: 1},
		Concurrency: cfg.MaxJobs,
	})
	mux := asynq.NewServeMux()
	inspector := asynq.NewInspector(redisOpt)

	ownerID := uuid.New().String()
	job := NewJob(log, cfg, deps.Cache, deps.CacheCfg, ownerID,
		deps.Ingesters, deps.Graphs, deps.Loaders, deps.Engine, deps.TSDB, deps.Publisher, deps.Registry, deps.Vitals)
	mux.HandleFunc(TaskTypeTick, job.Handle)

	tickers := make([]*ticker, 0, len(deps.Ingesters))
	for _, ing := range deps.Ingesters {
		tickers = append(tickers, newTicker(log, client, ing))
	}

	return &Scheduler{
		log:       log.WithField("component", "scheduler"),
		cfg:       cfg,
		client:    client,
		server:    server,
		mux:       mux,
		inspector: inspector,
		tickers:   tickers,
		job:       job,
	}, nil
}

// Start runs the asynq worker pool and every ingester's ticker until
// ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Run(s.mux); err != nil {
			s.log.WithError(err).Error("Asynq server stopped with error")
		}
	}()

	for _, t := range s.tickers {
		s.wg.Add(1)
		go func(t *ticker) {
			defer s.wg.Done()
			t.run(runCtx)
		}(t)
	}

	s.log.WithField("ingesters", len(s.tickers)).Info("Scheduler started")
	return nil
}

// Stop cancels every ticker and shuts down the asynq server and
// client, waiting up to ShutdownTimeout for in-flight jobs to finish.
func (s *Scheduler) Stop() error {
	if s.stop != nil {
		s.stop()
	}

	s.server.Shutdown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warn("Shutdown timeout exceeded, some goroutines may still be running")
	}

	if err := s.client.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close asynq client")
	}
	if err := s.inspector.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close asynq inspector")
	}

	s.log.Info("Scheduler stopped")
	return nil
}
