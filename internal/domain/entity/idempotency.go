package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IdempotencyRecord is the response produced for the first request carrying
// a given key on behalf of an account. (accountID, key) is unique.
type IdempotencyRecord struct {
	accountID    uuid.UUID
	key          string
	fingerprint  string
	responseCode int
	responseBody []byte
	createdAt    time.Time
}

func NewIdempotencyRecord(accountID uuid.UUID, key, fingerprint string, code int, body []byte) *IdempotencyRecord {
	return &IdempotencyRecord{
		accountID:    accountID,
		key:          key,
		fingerprint:  fingerprint,
		responseCode: code,
		responseBody: body,
		createdAt:    time.Now().UTC(),
	}
}

func ReconstructIdempotencyRecord(
	accountID uuid.UUID,
	key, fingerprint string,
	code int,
	body []byte,
	createdAt time.Time,
) *IdempotencyRecord {
	return &IdempotencyRecord{
		accountID:    accountID,
		key:          key,
		fingerprint:  fingerprint,
		responseCode: code,
		responseBody: body,
		createdAt:    createdAt,
	}
}

func (r *IdempotencyRecord) AccountID() uuid.UUID {
	return r.accountID
}

func (r *IdempotencyRecord) Key() string {
	return r.key
}

func (r *IdempotencyRecord) Fingerprint() string {
	return r.fingerprint
}

func (r *IdempotencyRecord) ResponseCode() int {
	return r.responseCode
}

func (r *IdempotencyRecord) ResponseBody() []byte {
	return r.responseBody
}

func (r *IdempotencyRecord) CreatedAt() time.Time {
	return r.createdAt
}

// TransferFingerprint identifies the payload of a transfer request so that a
// key reused for a different transfer can be told apart from a retry.
func TransferFingerprint(receiverID uuid.UUID, amount decimal.Decimal) string {
	h := sha256.New()
	_, _ = h.Write(receiverID[:])
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(FormatAmount(amount)))
	return hex.EncodeToString(h.Sum(nil))
}
