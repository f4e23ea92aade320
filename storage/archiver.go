package storage

import (
	"context"
)

// PayloadArchiver складывает сырые тела вебхуков в долговременное хранилище
// для аудита и ручной сверки. Архивация — best-effort: её отказ не влияет
// на ответ шлюзу.
type PayloadArchiver interface {
	Archive(ctx context.Context, key string, contentType string, payload []byte) (string, error)
}
