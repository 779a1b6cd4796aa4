package syncer

import (
	"errors"
	"fmt"

	"github.com/iudanet/docsync/internal/models"
)

var (
	// ErrNotConfigured возвращается для операций над namespace без обработчика конфликтов
	ErrNotConfigured = errors.New("namespace is not configured for sync")

	// ErrUnknownOperation возвращается для ожидающей записи с неизвестным типом операции
	ErrUnknownOperation = errors.New("unknown operation type")

	// ErrUnsupportedVersion indicates a document version written by another protocol
	ErrUnsupportedVersion = errors.New("unsupported sync protocol version")

	// ErrEngineClosed возвращается после Close
	ErrEngineClosed = errors.New("sync engine is closed")
)

// ErrorKind класс ошибки синхронизации документа
type ErrorKind int

const (
	// KindDecoding версия документа не разбирается; документ перестает синхронизироваться
	KindDecoding ErrorKind = iota + 1
	// KindUnsupportedVersion версия документа записана другим протоколом
	KindUnsupportedVersion
	// KindDocumentDoesNotExist событие не содержит документа
	KindDocumentDoesNotExist
	// KindStore ошибка локального или удаленного хранилища; запись будет повторена
	KindStore
	// KindResolution обработчик конфликта вернул ошибку; документ поставлен на паузу
	KindResolution
	// KindFatal ошибка, прервавшая проход синхронизации или восстановление
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindDecoding:
		return "decoding"
	case KindUnsupportedVersion:
		return "unsupported_version"
	case KindDocumentDoesNotExist:
		return "document_does_not_exist"
	case KindStore:
		return "store"
	case KindResolution:
		return "resolution"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// SyncError ошибка синхронизации одного документа или всего прохода
type SyncError struct {
	Err        error
	Namespace  models.Namespace
	DocumentID string
	Kind       ErrorKind
}

func (e *SyncError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("sync %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("sync %s error for %s/%s: %v", e.Kind, e.Namespace, e.DocumentID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// ErrorListener получает ошибки синхронизации асинхронно, вне блокировок движка
type ErrorListener interface {
	OnSyncError(err *SyncError)
}

// ErrorListenerFunc adapts a function to ErrorListener.
type ErrorListenerFunc func(err *SyncError)

// OnSyncError calls f.
func (f ErrorListenerFunc) OnSyncError(err *SyncError) {
	f(err)
}
