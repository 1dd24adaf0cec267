package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feed-collector/pkg/collector"
	"github.com/feed-collector/pkg/metrics"
	"github.com/feed-collector/pkg/notifier"
	"github.com/feed-collector/pkg/report"
	"github.com/feed-collector/pkg/storage"
)

type Stage string

const (
	StageCollect Stage = "collect"
	StageProcess Stage = "process"
	StageStore   Stage = "store"
	StagePublish Stage = "publish"
	StageReport  Stage = "report"
	StageNotify  Stage = "notify"
	StageDone    Stage = "done"
)

// Store 流水线用到的存储能力
type Store interface {
	Upsert(ctx context.Context, table string, record map[string]any) error
	ListRecipients(ctx context.Context) ([]storage.Recipient, error)
}

type Reporter interface {
	Generate(ctx context.Context, table string) (report.Artifacts, error)
}

type Notifier interface {
	Send(ctx context.Context, msg notifier.Message) error
}

// Publisher 可选，入库后把记录发到消息总线
type Publisher interface {
	Publish(ctx context.Context, collector, table string, rec map[string]any) error
}

// Delivery 单个接收人的投递结果
type Delivery struct {
	Recipient string
	Err       error
}

// Result 一次运行的结果。Stage 为运行结束时所在阶段，完整跑完为 StageDone。
// Err 是导致提前结束的错误；StoreErr/PublishErr 是记录后继续执行的错误。
type Result struct {
	RunID      string
	Collector  string
	Stage      Stage
	Record     collector.Record
	Artifacts  report.Artifacts
	Err        error
	StoreErr   error
	PublishErr error
	Deliveries []Delivery
	Started    time.Time
	Finished   time.Time
}

func (r Result) Completed() bool { return r.Stage == StageDone }

// Failed 投递失败的接收人数
func (r Result) Failed() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Runner 对单个采集器执行 collect→process→store→publish→report→notify
type Runner struct {
	store            Store
	reporter         Reporter
	notifier         Notifier
	publisher        Publisher
	defaultRecipient string
	sendInterval     time.Duration
	metrics          *metrics.Pipeline
	logger           *zap.Logger
	now              func() time.Time
}

type Option func(*Runner)

func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithSendInterval 相邻两封通知之间的间隔
func WithSendInterval(d time.Duration) Option {
	return func(r *Runner) { r.sendInterval = d }
}

func NewRunner(store Store, reporter Reporter, n Notifier, defaultRecipient string, opts ...Option) *Runner {
	r := &Runner{
		store:            store,
		reporter:         reporter,
		notifier:         n,
		defaultRecipient: defaultRecipient,
		logger:           zap.NewNop(),
		now:              time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run 执行一次完整流水线。不会 panic，也不返回 error：所有结果都在 Result 中。
func (r *Runner) Run(ctx context.Context, c collector.Collector) (res Result) {
	res = Result{
		RunID:     uuid.NewString(),
		Collector: c.Name(),
		Started:   r.now(),
	}
	log := r.logger.With(zap.String("collector", c.Name()), zap.String("run_id", res.RunID))
	log.Info("starting collector run")

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic in stage %s: %v", res.Stage, p)
			log.Error("collector run panicked", zap.String("stage", string(res.Stage)),
				zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
		}
		res.Finished = r.now()
		r.metrics.ObserveRun(res.Collector, string(res.Stage), res.Finished.Sub(res.Started))
		log.Info("collector run finished", zap.String("stage", string(res.Stage)),
			zap.Duration("elapsed", res.Finished.Sub(res.Started)), zap.Error(res.Err))
	}()

	// 1. collect
	res.Stage = StageCollect
	raw, err := c.Collect(ctx)
	if err != nil {
		var fe *collector.FetchError
		if errors.As(err, &fe) {
			r.metrics.FetchError(c.Name())
		}
		res.Err = err
		log.Warn("no data collected", zap.Error(err))
		return res
	}
	if raw == nil {
		log.Warn("no data collected")
		return res
	}

	// 2. process
	res.Stage = StageProcess
	rec, err := c.Process(raw)
	if err != nil || len(rec) == 0 {
		res.Err = err
		log.Warn("no data processed", zap.Error(err))
		return res
	}
	res.Record = rec

	// 3. store，失败继续
	res.Stage = StageStore
	table := c.TableName()
	mapped := collector.MapKeys(rec, c.Mapping())
	if err := r.store.Upsert(ctx, table, mapped); err != nil {
		res.StoreErr = err
		log.Error("failed to store record", zap.String("table", table), zap.Error(err))
	} else {
		log.Info("record stored", zap.String("table", table))
	}

	// 4. publish，可选，失败继续
	if r.publisher != nil {
		res.Stage = StagePublish
		if err := r.publisher.Publish(ctx, c.Name(), table, mapped); err != nil {
			res.PublishErr = err
			log.Error("failed to publish record", zap.Error(err))
		}
	}

	// 5. report，失败结束
	res.Stage = StageReport
	art, err := r.reporter.Generate(ctx, table)
	if err != nil {
		res.Err = err
		log.Error("failed to generate report", zap.String("table", table), zap.Error(err))
		return res
	}
	res.Artifacts = art

	// 6. notify
	res.Stage = StageNotify
	body, err := notifier.RenderRecord(rec)
	if err != nil {
		res.Err = err
		log.Error("failed to render notification", zap.Error(err))
		return res
	}
	recipients := r.recipients(ctx, log)
	subject := notifier.Subject(c.Name())
	for i, to := range recipients {
		if i > 0 && r.sendInterval > 0 {
			if !sleep(ctx, r.sendInterval) {
				res.Err = ctx.Err()
				return res
			}
		}
		err := r.notifier.Send(ctx, notifier.Message{
			To:        to,
			Subject:   subject,
			Body:      body,
			PlotPath:  art.Plot,
			TablePath: art.Table,
		})
		res.Deliveries = append(res.Deliveries, Delivery{Recipient: to, Err: err})
		r.metrics.Delivery(c.Name(), err == nil)
		if err != nil {
			log.Error("failed to send notification", zap.String("recipient", to), zap.Error(err))
			continue
		}
		log.Info("notification sent", zap.String("recipient", to))
	}

	res.Stage = StageDone
	return res
}

// recipients 没有登记接收人（或查询失败）时回退到默认接收人
func (r *Runner) recipients(ctx context.Context, log *zap.Logger) []string {
	list, err := r.store.ListRecipients(ctx)
	if err != nil {
		log.Error("failed to list recipients, using default", zap.Error(err))
	}
	out := make([]string, 0, len(list))
	for _, rc := range list {
		out = append(out, rc.Email)
	}
	if len(out) == 0 {
		log.Info("no user preferences found, using default recipient", zap.String("recipient", r.defaultRecipient))
		out = append(out, r.defaultRecipient)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
