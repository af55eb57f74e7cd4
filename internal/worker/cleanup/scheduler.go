package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule はセッション削除の既定スケジュール。
const DefaultSchedule = "@hourly"

// defaultJobTimeout は1回のジョブ実行に許す時間。
const defaultJobTimeout = 5 * time.Minute

// Job はスケジューラに登録できるジョブ。
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler はcron式に従ってジョブを実行する。
// 前回の実行が終わっていない場合、その回はスキップする。
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// NewScheduler は新しいSchedulerを生成する。
// ジョブにはStopまで有効なコンテキストを渡す。
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger.With(slog.String("component", "scheduler")),
		ctx:     ctx,
		cancel:  cancel,
		timeout: defaultJobTimeout,
	}
}

// AddJob はcron式（5フィールドまたは@hourly等の記述子）でジョブを登録する。
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(job); err != nil {
			s.logger.Error("ジョブの実行に失敗しました",
				slog.String("job", job.Name()),
				slog.String("error", err.Error()),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
	}

	s.logger.Info("ジョブを登録しました",
		slog.String("job", job.Name()),
		slog.String("schedule", schedule),
	)
	return nil
}

// RunNow はスケジュールとは別にジョブを即時実行する。
func (s *Scheduler) RunNow(job Job) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	return job.Run(ctx)
}

// Start はスケジューラを起動する。
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("スケジューラを開始しました", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop は新規実行を止め、実行中のジョブの完了またはctxの終了を待つ。
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
	}
	s.cancel()
	s.logger.Info("スケジューラを停止しました")
}
