package model

import "time"

// FileDTO — файл, прикреплённый к комментарию или сообщению.
type FileDTO struct {
	FileName string    `json:"fileName"`
	FileURL  string    `json:"fileUrl"`
	AddedAt  time.Time `json:"addedAt"`
}
