package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"sync"

	"github.com/DRSN-tech/brand-images/internal/cfg"
	"github.com/DRSN-tech/brand-images/internal/usecase"
	"github.com/DRSN-tech/brand-images/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// ImageRepo реализует usecase.BlobStore поверх MinIO.
type ImageRepo struct {
	mc  *minio.Client
	cfg *cfg.MinIOCfg

	mu             sync.Mutex
	publicPrefixes map[string]struct{}
}

func NewImageRepo(mc *minio.Client, cfg *cfg.MinIOCfg) *ImageRepo {
	return &ImageRepo{
		mc:             mc,
		cfg:            cfg,
		publicPrefixes: make(map[string]struct{}),
	}
}

// List возвращает все объекты с префиксом prefix (рекурсивно).
func (i *ImageRepo) List(ctx context.Context, prefix string) ([]usecase.ObjectInfo, error) {
	var out []usecase.ObjectInfo

	for obj := range i.mc.ListObjects(ctx, i.cfg.BucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, classify(whereami.WhereAmI(), obj.Err)
		}
		out = append(out, toObjectInfo(obj))
	}

	return out, nil
}

func (i *ImageRepo) Stat(ctx context.Context, key string) (*usecase.ObjectInfo, error) {
	obj, err := i.mc.StatObject(ctx, i.cfg.BucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, classify(whereami.WhereAmI(), err)
	}

	info := toObjectInfo(obj)
	return &info, nil
}

func (i *ImageRepo) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := i.mc.GetObject(ctx, i.cfg.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(whereami.WhereAmI(), err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(whereami.WhereAmI(), err)
	}

	return data, nil
}

// Put загружает объект с заданным Content-Type.
func (i *ImageRepo) Put(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)

	_, err := i.mc.PutObject(ctx, i.cfg.BucketName, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		return classify(whereami.WhereAmI(), err)
	}

	return nil
}

// Delete удаляет объект. Отсутствующий объект не считается ошибкой.
func (i *ImageRepo) Delete(ctx context.Context, key string) error {
	if err := i.mc.RemoveObject(ctx, i.cfg.BucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return classify(whereami.WhereAmI(), err)
	}
	return nil
}

// Bucket возвращает имя бакета, с которым работает репозиторий.
func (i *ImageRepo) Bucket() string {
	return i.cfg.BucketName
}

// MakePublic открывает анонимное чтение каталога объекта через политику бакета.
// Повторный вызов для того же каталога не обращается к MinIO.
func (i *ImageRepo) MakePublic(ctx context.Context, key string) error {
	prefix := path.Dir(key)

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.publicPrefixes[prefix]; ok {
		return nil
	}

	current, err := i.mc.GetBucketPolicy(ctx, i.cfg.BucketName)
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchBucketPolicy" {
		return classify(whereami.WhereAmI(), err)
	}

	updated, changed, err := withPublicRead(current, i.cfg.BucketName, prefix)
	if err != nil {
		return e.Transient(whereami.WhereAmI(), err)
	}

	if changed {
		if err := i.mc.SetBucketPolicy(ctx, i.cfg.BucketName, updated); err != nil {
			return classify(whereami.WhereAmI(), err)
		}
	}

	i.publicPrefixes[prefix] = struct{}{}
	return nil
}

// PublicURL — детерминированный адрес: {publicBaseURL}/{bucket}/{key}.
func (i *ImageRepo) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(i.publicBaseURL(), "/"), i.cfg.BucketName, strings.TrimLeft(key, "/"))
}

func (i *ImageRepo) publicBaseURL() string {
	if i.cfg.PublicBaseURL != "" {
		return i.cfg.PublicBaseURL
	}

	scheme := "http"
	if i.cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + i.cfg.Endpoint
}

func toObjectInfo(obj minio.ObjectInfo) usecase.ObjectInfo {
	return usecase.ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		ContentType:  obj.ContentType,
		LastModified: obj.LastModified,
	}
}

// classify переводит ошибки MinIO в классы: недоступное хранилище, отсутствующий бакет
// и ошибки доступа фатальны, остальное временно.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchBucket":
		return e.Fatal(op, fmt.Errorf("%w: %v", e.ErrBucketNotFound, err))
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return e.Fatal(op, fmt.Errorf("%w: %v", e.ErrStorageUnavailable, err))
	case "NoSuchKey":
		return e.Transient(op, fmt.Errorf("%w: %v", e.ErrObjectNotFound, err))
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return e.Fatal(op, fmt.Errorf("%w: %v", e.ErrStorageUnavailable, err))
	}

	return e.Transient(op, err)
}
