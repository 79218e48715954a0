// Package scheduler запускает анализ и проверку статусов по расписанию.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/bfsignals/internal/metrics"
	"github.com/skalibog/bfsignals/pkg/logger"
)

// Job периодическая задача. Запуски выровнены по Every от полуночи UTC.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// NextRun ближайшая граница периода строго после now
func NextRun(now time.Time, every time.Duration) time.Time {
	return now.UTC().Truncate(every).Add(every)
}

// Scheduler последовательно запускает каждую задачу на границах ее периода
type Scheduler struct {
	locker  Locker
	lockTTL time.Duration
	metrics *metrics.Recorder
	jobs    []Job

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New создает планировщик
func New(locker Locker, lockTTL time.Duration, rec *metrics.Recorder) *Scheduler {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Scheduler{
		locker:  locker,
		lockTTL: lockTTL,
		metrics: rec,
		now:     time.Now,
		after:   time.After,
	}
}

// Add регистрирует задачу
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("задача должна иметь имя и функцию запуска")
	}
	if job.Every <= 0 {
		return fmt.Errorf("задача %s: период должен быть положительным", job.Name)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start запускает все задачи и ждет отмены контекста
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return errors.New("нет задач для запуска")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	for {
		next := NextRun(s.now(), job.Every)
		logger.Debug("Следующий запуск задачи", zap.String("job", job.Name), zap.Time("at", next))

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
		}

		if _, err := s.RunOnce(ctx, job); err != nil && ctx.Err() == nil {
			logger.Error("Ошибка выполнения задачи", zap.String("job", job.Name), zap.Error(err))
		}
	}
}

// RunOnce выполняет задачу под блокировкой. ran=false, если задача уже выполняется.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) (ran bool, err error) {
	ok, err := s.locker.TryLock(ctx, job.Name, s.lockTTL)
	if err != nil {
		return false, fmt.Errorf("ошибка блокировки задачи %s: %w", job.Name, err)
	}
	if !ok {
		logger.Warn("Задача уже выполняется, запуск пропущен", zap.String("job", job.Name))
		return false, nil
	}
	defer func() {
		if uerr := s.locker.Unlock(context.WithoutCancel(ctx), job.Name); uerr != nil {
			logger.Warn("Ошибка снятия блокировки", zap.String("job", job.Name), zap.Error(uerr))
		}
	}()

	started := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в задаче %s: %v", job.Name, r)
		}
		s.metrics.ObserveRun(job.Name, s.now().Sub(started), err)
	}()

	logger.Info("Запуск задачи", zap.String("job", job.Name))
	ran = true
	err = job.Run(ctx)
	return ran, err
}
