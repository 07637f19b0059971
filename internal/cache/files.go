package cache

import (
	"context"
	"slices"

	"github.com/teamsync/internal/logger"
	"github.com/teamsync/internal/model"
	"github.com/teamsync/internal/storage"
)

// addFile добавляет файл, если файла с таким URL ещё нет.
func addFile(files []model.FileDTO, f model.FileDTO) ([]model.FileDTO, bool) {
	if f.FileURL == "" && f.FileName == "" {
		return files, false
	}
	if slices.ContainsFunc(files, func(x model.FileDTO) bool { return sameFile(x, f.FileURL, f.FileName) }) {
		return files, false
	}
	return append(slices.Clone(files), f), true
}

func removeFile(files []model.FileDTO, fileURL, fileName string) ([]model.FileDTO, bool) {
	out := slices.DeleteFunc(slices.Clone(files), func(x model.FileDTO) bool { return sameFile(x, fileURL, fileName) })
	return out, len(out) != len(files)
}

// sameFile сравнивает по URL, а без URL по имени.
func sameFile(f model.FileDTO, fileURL, fileName string) bool {
	if fileURL != "" {
		return f.FileURL == fileURL
	}
	return fileName != "" && f.FileName == fileName
}

// stagedFiles читает файлы, подготовленные до создания сущности. Ошибки хранилища
// не мешают отправке: файлы просто не прикладываются.
func (s *Store) stagedFiles(ctx context.Context, teamID, parentID, childID string) []model.FileDTO {
	if s.opts.Staging == nil {
		return nil
	}
	files, err := storage.GetFiles(ctx, s.opts.Staging, storage.FilesKey(teamID, parentID, childID))
	if err != nil {
		logger.Errorf("cache: staged files: %v", err)
		return nil
	}
	return files
}

// clearStaged удаляет черновик и, если они были использованы, подготовленные файлы.
func (s *Store) clearStaged(ctx context.Context, teamID, parentID, childID string, files bool) {
	if s.opts.Staging == nil {
		return
	}
	keys := []string{storage.DraftKey(teamID, parentID, childID)}
	if files {
		keys = append(keys, storage.FilesKey(teamID, parentID, childID))
	}
	for _, key := range keys {
		if err := s.opts.Staging.Delete(ctx, key); err != nil {
			logger.Errorf("cache: clear staged %s: %v", key, err)
		}
	}
}

// withStaged возвращает файлы для отправки: переданные явно или подготовленные.
func (s *Store) withStaged(ctx context.Context, files []model.FileDTO, teamID, parentID, childID string) ([]model.FileDTO, bool) {
	if files != nil {
		return files, false
	}
	files = s.stagedFiles(ctx, teamID, parentID, childID)
	if files == nil {
		return []model.FileDTO{}, false
	}
	return files, true
}
