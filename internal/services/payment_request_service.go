package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"github.com/souqly/backend/internal/models"
)

const paymentRequestKeyPrefix = "payreq:"

var errNoRedis = fmt.Errorf("%w: payment requests are unavailable without redis", ErrResourceUnavailable)

// PaymentRequestService lets a receiver publish a short-lived code that any
// payer can settle with a P2P transfer.
type PaymentRequestService struct {
	redis     *redis.Client
	transfers *TransferService
	ttl       time.Duration
}

func NewPaymentRequestService(redis *redis.Client, transfers *TransferService, ttl time.Duration) *PaymentRequestService {
	return &PaymentRequestService{
		redis:     redis,
		transfers: transfers,
		ttl:       ttl,
	}
}

// Create stores a request for amount payable to receiverID and returns it
// with a base64 PNG QR code of its code.
func (s *PaymentRequestService) Create(ctx context.Context, receiverID, amount int64) (*models.PaymentRequest, string, error) {
	if amount <= 0 {
		return nil, "", fmt.Errorf("%w: amount must be greater than 0", ErrInvalidInput)
	}
	if s.redis == nil {
		return nil, "", errNoRedis
	}

	code, err := newRequestCode()
	if err != nil {
		return nil, "", err
	}
	req := &models.PaymentRequest{
		Code:       code,
		ReceiverID: receiverID,
		Amount:     amount,
		CreatedAt:  time.Now(),
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, "", err
	}
	if err := s.redis.Set(ctx, paymentRequestKeyPrefix+code, data, s.ttl).Err(); err != nil {
		return nil, "", fmt.Errorf("store payment request: %w", err)
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, "", err
	}

	return req, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Pay settles the request behind code from payerID's wallet. The transfer
// uses QR-{code} as client reference, so a request is paid at most once even
// if two payers race for it.
func (s *PaymentRequestService) Pay(ctx context.Context, payerID int64, code string) (*models.P2PTransfer, error) {
	if s.redis == nil {
		return nil, errNoRedis
	}
	key := paymentRequestKeyPrefix + code

	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: payment request is invalid or expired", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment request: %w", err)
	}

	var req models.PaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode payment request: %w", err)
	}

	transfer, err := s.transfers.Transfer(ctx, models.TransferRequest{
		SenderID:        payerID,
		ReceiverID:      req.ReceiverID,
		Amount:          req.Amount,
		Description:     "Payment request " + code,
		ClientReference: "QR-" + code,
		Metadata:        models.Metadata{"channel": "qr"},
	})
	if err != nil {
		return nil, err
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		log.Warn().Err(err).Str("component", "payment_request").Msg("failed to delete paid request")
	}
	return transfer, nil
}

func newRequestCode() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate request code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
