package remote

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Signer подписывает запросы сессионным секретом: hex(HMAC-SHA256(secret, method+path+body+timestamp)).
// Сервер проверяет подпись и отклоняет timestamp с расхождением больше 30 секунд.
type Signer struct {
	SessionID string
	secret    []byte
	now       func() time.Time
}

// NewSigner принимает секрет в base64 (32 байта), как его выдаёт сервис авторизации.
func NewSigner(sessionID, secretB64 string) (*Signer, error) {
	secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secretB64))
	if err != nil {
		return nil, err
	}
	if len(secret) != 32 {
		return nil, errors.New("session secret must be 32 bytes")
	}
	return &Signer{SessionID: sessionID, secret: secret, now: time.Now}, nil
}

// Sign возвращает timestamp и подпись для запроса. path — только pathname, без query.
func (s *Signer) Sign(method, path string, body []byte) (timestamp, signature string) {
	timestamp = strconv.FormatInt(s.now().Unix(), 10)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(method + path + string(body) + timestamp))
	return timestamp, hex.EncodeToString(mac.Sum(nil))
}
