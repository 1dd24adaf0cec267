package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/feed-collector/pkg/collector"
	"github.com/feed-collector/pkg/metrics"
	"github.com/feed-collector/pkg/pipeline"
	"github.com/feed-collector/pkg/schedule"
)

const defaultPollInterval = time.Second

// Runner 执行一次采集流水线，由 pipeline.Runner 实现
type Runner interface {
	Run(ctx context.Context, c collector.Collector) pipeline.Result
}

// entry 单个采集器的调度状态：Idle → Triggered → Running → Idle
type entry struct {
	c       collector.Collector
	spec    schedule.Spec
	specErr error
	running atomic.Bool

	// 以下字段由 Dispatcher.mu 保护
	next      time.Time
	lastRun   time.Time
	lastStage pipeline.Stage
	lastErr   error
	runs      int
	skipped   int
}

// Dispatcher 轮询各采集器的下次触发时间，到期后在新 goroutine 中执行流水线。
// 同一采集器上一次运行未结束时，本次触发记录日志后跳过，不排队。
type Dispatcher struct {
	runner  Runner
	entries []*entry
	poll    time.Duration
	now     func() time.Time
	metrics *metrics.Pipeline
	logger  *zap.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Dispatcher)

func WithPollInterval(d time.Duration) Option {
	return func(s *Dispatcher) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(s *Dispatcher) { s.now = now }
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(s *Dispatcher) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Dispatcher) { s.logger = l }
}

// New 为每个采集器计算首次触发时间。调度配置无效的采集器只记录一次错误，之后不会被调度。
func New(runner Runner, collectors []collector.Collector, opts ...Option) *Dispatcher {
	s := &Dispatcher{
		runner: runner,
		poll:   defaultPollInterval,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("scheduler")

	now := s.now()
	for _, c := range collectors {
		e := &entry{c: c}
		e.spec, e.specErr = c.Schedule()
		if e.specErr != nil {
			s.logger.Error("invalid schedule, collector will not be scheduled",
				zap.String("collector", c.Name()), zap.Error(e.specErr))
		} else {
			e.next = e.spec.Next(now)
			s.logger.Info("collector scheduled", zap.String("collector", c.Name()),
				zap.String("schedule", e.spec.String()), zap.Time("next_run", e.next))
		}
		s.entries = append(s.entries, e)
	}
	return s
}

// Start 启动调度循环（非阻塞）。ctx 会传给每次运行，取消 ctx 或调用 Stop 结束循环。
func (s *Dispatcher) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("dispatcher started", zap.Duration("poll_interval", s.poll),
		zap.Int("collectors", len(s.entries)))

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				s.logger.Info("dispatcher loop stopped", zap.Error(ctx.Err()))
				return
			}
		}
	}()
}

// Stop 结束调度循环并等待正在执行的运行退出，ctx 控制最长等待时间
func (s *Dispatcher) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		s.logger.Info("all in-flight runs finished")
		return nil
	case <-ctx.Done():
		s.logger.Warn("timed out waiting for in-flight runs", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// tick 检查所有到期的采集器并派发，自身从不等待运行结束
func (s *Dispatcher) tick(ctx context.Context) {
	now := s.now()
	for _, e := range s.entries {
		if e.specErr != nil {
			continue
		}
		s.mu.Lock()
		due := !now.Before(e.next)
		if due {
			e.next = e.spec.Next(now)
		}
		s.mu.Unlock()
		if due {
			s.dispatch(ctx, e)
		}
	}
}

func (s *Dispatcher) dispatch(ctx context.Context, e *entry) {
	name := e.c.Name()
	if !e.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		e.skipped++
		next := e.next
		s.mu.Unlock()
		s.metrics.SkippedRun(name)
		s.logger.Warn("previous run still in flight, skipping trigger",
			zap.String("collector", name), zap.Time("next_run", next))
		return
	}

	s.logger.Info("triggering collector", zap.String("collector", name))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer e.running.Store(false)

		res := s.runner.Run(ctx, e.c)

		s.mu.Lock()
		e.runs++
		e.lastRun = res.Started
		e.lastStage = res.Stage
		e.lastErr = res.Err
		s.mu.Unlock()
	}()
}

// Status /collectors 接口返回的单个采集器状态
type Status struct {
	Collector string `json:"collector"`
	Table     string `json:"table"`
	Schedule  string `json:"schedule,omitempty"`
	Scheduled bool   `json:"scheduled"`
	Error     string `json:"error,omitempty"`
	Running   bool   `json:"running"`
	NextRun   string `json:"next_run,omitempty"`
	LastRun   string `json:"last_run,omitempty"`
	LastStage string `json:"last_stage,omitempty"`
	LastError string `json:"last_error,omitempty"`
	Runs      int    `json:"runs"`
	Skipped   int    `json:"skipped"`
}

// Status 按注册顺序返回所有采集器的调度状态快照
func (s *Dispatcher) Status() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		st := Status{
			Collector: e.c.Name(),
			Table:     e.c.TableName(),
			Scheduled: e.specErr == nil,
			Running:   e.running.Load(),
			LastStage: string(e.lastStage),
			Runs:      e.runs,
			Skipped:   e.skipped,
		}
		if e.specErr != nil {
			st.Error = e.specErr.Error()
		} else {
			st.Schedule = e.spec.String()
			st.NextRun = e.next.Format(time.RFC3339)
		}
		if !e.lastRun.IsZero() {
			st.LastRun = e.lastRun.Format(time.RFC3339)
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}
