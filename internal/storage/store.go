// Package storage — хранилище черновиков и ещё не прикреплённых файлов для сущностей,
// которых пока нет на сервере (аналог localStorage браузера).
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teamsync/internal/model"
)

// StagingTTL — сколько живёт неотправленный черновик.
const StagingTTL = 30 * 24 * time.Hour

// NewPlaceholder подставляется вместо id ещё не созданной сущности.
const NewPlaceholder = "new"

// StagingStore — key-value хранилище со строковыми ключами.
// Реализации: memory.Client, redis.Client, sqlite.Client, postgres.Client.
type StagingStore interface {
	// Get возвращает "" без ошибки, если ключа нет.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func compose(kind, teamID, parentID, childID string) string {
	if parentID == "" {
		parentID = NewPlaceholder
	}
	if childID == "" {
		childID = NewPlaceholder
	}
	return strings.Join([]string{kind, teamID, parentID, childID}, "-")
}

// FilesKey — ключ списка файлов: files-<team>-<parent|new>-<child|new>.
func FilesKey(teamID, parentID, childID string) string {
	return compose("files", teamID, parentID, childID)
}

// DraftKey — ключ черновика текста: draft-<team>-<parent|new>-<child|new>.
func DraftKey(teamID, parentID, childID string) string {
	return compose("draft", teamID, parentID, childID)
}

// GetFiles читает список файлов по ключу; отсутствие ключа — пустой список.
func GetFiles(ctx context.Context, s StagingStore, key string) ([]model.FileDTO, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var files []model.FileDTO
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil, fmt.Errorf("storage.GetFiles %s: %w", key, err)
	}
	return files, nil
}

// SetFiles сохраняет список файлов; пустой список удаляет ключ.
func SetFiles(ctx context.Context, s StagingStore, key string, files []model.FileDTO) error {
	if len(files) == 0 {
		return s.Delete(ctx, key)
	}
	raw, err := json.Marshal(files)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(raw))
}
