package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/brand-images/pkg/jitter"
	"golang.org/x/sync/errgroup"
)

// runBatches делит n элементов на пакеты по size и вызывает fn для каждого индекса.
// Пакет N+1 стартует только после завершения пакета N и паузы delay (после последнего паузы нет).
// fn возвращает ошибку только если весь вызов нужно прервать; уже запущенные элементы пакета дорабатывают.
func runBatches(ctx context.Context, n, size int, delay time.Duration, onBatch func(size int), fn func(ctx context.Context, i int) error) error {
	if size <= 0 {
		size = 1
	}

	for start := 0; start < n; start += size {
		end := min(start+size, n)

		var g errgroup.Group
		g.SetLimit(size)
		for i := start; i < end; i++ {
			g.Go(func() error {
				return fn(ctx, i)
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		if onBatch != nil {
			onBatch(end - start)
		}

		if end < n {
			if err := jitter.Sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	return nil
}

type nopMetrics struct{}

func (nopMetrics) ObserveMatch(MatchStatus, MatchSource) {}
func (nopMetrics) ObserveProcess(ProcessStatus)          {}
func (nopMetrics) ObserveBatch(string, int)              {}
