package e

import (
	"errors"
	"fmt"
)

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// Ошибки конфигурации
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect env variable")

	// Ошибки валидации продукта
	ErrMissingSKU           = fmt.Errorf("missing SKU")
	ErrInvalidSKU           = fmt.Errorf("invalid SKU")
	ErrNoImagesFound        = fmt.Errorf("no images found")
	ErrNoImageSources       = fmt.Errorf("no image sources")
	ErrProductNotFound      = fmt.Errorf("product not found")
	ErrAllSourcesFailed     = fmt.Errorf("all image sources failed")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")

	// Ошибки хранилищ
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
	ErrBucketNotFound     = fmt.Errorf("bucket not found")
	ErrObjectNotFound     = fmt.Errorf("object not found")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Class классифицирует ошибку по способу обработки.
type Class int

const (
	// ClassTransient — временная ошибка: пропускается затронутая единица (файл, вариант, продукт).
	ClassTransient Class = iota
	// ClassValidation — некорректные входные данные, повтор не имеет смысла.
	ClassValidation
	// ClassFatal — хранилище или база недоступны целиком, вызов прерывается.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassValidation:
		return "validation"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifiedError связывает ошибку с её классом.
type ClassifiedError struct {
	Class Class
	Op    string
	Err   error
}

func (c *ClassifiedError) Error() string {
	if c.Op == "" {
		return c.Err.Error()
	}
	return fmt.Sprintf("%s: %v", c.Op, c.Err)
}

func (c *ClassifiedError) Unwrap() error {
	return c.Err
}

func classify(class Class, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Op: op, Err: err}
}

// Transient помечает ошибку как временную.
func Transient(op string, err error) error { return classify(ClassTransient, op, err) }

// Validation помечает ошибку как ошибку валидации.
func Validation(op string, err error) error { return classify(ClassValidation, op, err) }

// Fatal помечает ошибку как фатальную для всего вызова.
func Fatal(op string, err error) error { return classify(ClassFatal, op, err) }

// ClassOf возвращает класс первой классифицированной ошибки в цепочке.
// Неклассифицированные ошибки считаются временными.
func ClassOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassTransient
}

func IsFatal(err error) bool {
	return err != nil && ClassOf(err) == ClassFatal
}

func IsValidation(err error) bool {
	return err != nil && ClassOf(err) == ClassValidation
}

func IsTransient(err error) bool {
	return err != nil && ClassOf(err) == ClassTransient
}

// ProcessingError описывает сбой обработки одного изображения.
type ProcessingError struct {
	Input string
	Stage string
	Err   error
}

func (p *ProcessingError) Error() string {
	return fmt.Sprintf("process %s (%s): %v", p.Input, p.Stage, p.Err)
}

func (p *ProcessingError) Unwrap() error {
	return p.Err
}

// NewProcessingError создаёт временную ошибку обработки, привязанную к входному файлу.
func NewProcessingError(input, stage string, err error) error {
	return Transient("", &ProcessingError{Input: input, Stage: stage, Err: err})
}
