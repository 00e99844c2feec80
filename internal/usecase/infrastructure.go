package usecase

import (
	"context"
	"io"
)

// BlobStore — узкий контракт объектного хранилища.
type BlobStore interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	// MakePublic идемпотентна: уже публичный объект не считается ошибкой.
	MakePublic(ctx context.Context, key string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
	Bucket() string
}

type ImageTransformer interface {
	Transform(source []byte, name string, opts TransformOptions) (*TransformResult, error)
	Options() TransformOptions
}

// SourceFetcher скачивает удалённый источник изображения в w.
type SourceFetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// MatchPublisher публикует результат записи товара для внешних потребителей.
type MatchPublisher interface {
	PublishMatch(ctx context.Context, event *MatchEvent) error
}

type PipelineMetrics interface {
	ObserveMatch(status MatchStatus, source MatchSource)
	ObserveProcess(status ProcessStatus)
	ObserveBatch(stage string, size int)
}
