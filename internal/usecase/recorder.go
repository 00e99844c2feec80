package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/brand-images/internal/domain"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/DRSN-tech/brand-images/pkg/logger"
)

// Recorder записывает канонический список изображений товара и строку истории в одной транзакции.
type Recorder struct {
	products  ProductRepository
	syncLog   SyncLogRepository
	trManager TxManager
	publisher MatchPublisher
	clock     func() time.Time
	logger    logger.Logger
}

// NewRecorder создаёт Recorder. publisher может быть nil.
func NewRecorder(products ProductRepository, syncLog SyncLogRepository, trManager TxManager,
	publisher MatchPublisher, clock func() time.Time, logger logger.Logger) *Recorder {
	if clock == nil {
		clock = time.Now
	}

	return &Recorder{
		products:  products,
		syncLog:   syncLog,
		trManager: trManager,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// Record сохраняет поля изображений. Пустой список тоже записывается: hasImages=false, imageCount=0.
func (r *Recorder) Record(ctx context.Context, req *RecordReq) (*domain.ImageFields, error) {
	const op = "Recorder.Record"

	if req == nil {
		return nil, e.Validation(op, e.ErrMissingSKU)
	}
	if err := domain.ValidateSKU(req.SKU); err != nil {
		return nil, e.Validation(op, err)
	}

	fields := domain.NewImageFields(req.Images, req.ManufacturerKey, r.clock())

	err := r.trManager.Do(ctx, func(ctx context.Context) error {
		if err := r.products.UpsertImages(ctx, req.SKU, fields); err != nil {
			return err
		}

		return r.syncLog.Append(ctx, NewSyncLogEntry(req, fields))
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if r.publisher != nil {
		if err := r.publisher.PublishMatch(ctx, NewMatchEvent(req, fields)); err != nil {
			r.logger.Warnf("publish match event for %s: %v", req.SKU, err)
		}
	}

	return fields, nil
}
