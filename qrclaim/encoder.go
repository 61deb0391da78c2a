// Package qrclaim turns a reward claim's identity into a scannable QR code.
package qrclaim

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/utils"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	dataURLPrefix = "data:image/png;base64,"
	defaultSize   = 256
)

// Payload is the JSON carried inside the QR code.
type Payload struct {
	ClaimId     string `json:"claimId"`
	PhoneNumber string `json:"phoneNumber"`
	CampaignId  string `json:"campaignId"`
	RewardType  string `json:"rewardType"`
	ReviewId    string `json:"reviewId"`
	StationId   string `json:"stationId"`
}

// Uploader archives the final PNG. nil disables archiving.
type Uploader func(ctx context.Context, objectName string, data []byte, contentType string) error

type Encoder struct {
	Size          int
	Level         qrcode.RecoveryLevel
	Upload        Uploader
	UploadTimeout time.Duration
	Logger        *logrus.Logger
}

// NewEncoder reads QR_STORAGE; "gcs" archives every final code to GCS_BUCKET.
func NewEncoder(logger *logrus.Logger) *Encoder {
	e := &Encoder{
		Size:          defaultSize,
		Level:         qrcode.Medium,
		UploadTimeout: 10 * time.Second,
		Logger:        logger,
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("QR_STORAGE")), "gcs") {
		e.Upload = utils.UploadBytesToGCS
	}
	return e
}

// EncodePNG returns the raw PNG bytes for the payload.
func (e *Encoder) EncodePNG(p Payload) ([]byte, error) {
	content, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	size := e.Size
	if size <= 0 {
		size = defaultSize
	}
	png, err := qrcode.Encode(string(content), e.Level, size)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return png, nil
}

// Encode returns the payload as a PNG data URL.
// When an uploader is set and the claim id is known, the PNG is also archived (best-effort).
func (e *Encoder) Encode(ctx context.Context, p Payload) (string, error) {
	png, err := e.EncodePNG(p)
	if err != nil {
		return "", err
	}
	if e.Upload != nil && p.ClaimId != "" {
		e.archive(ctx, p.ClaimId, png)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

func (e *Encoder) archive(ctx context.Context, claimId string, png []byte) {
	uctx, cancel := context.WithTimeout(ctx, e.UploadTimeout)
	defer cancel()
	object := ObjectName(claimId)
	if err := e.Upload(uctx, object, png, "image/png"); err != nil {
		config.LogError(e.Logger, "qrclaim", "archive", "upload claim code", object, err)
		return
	}
	if e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{
			"field":    "QRClaim",
			"claim_id": claimId,
			"url":      utils.BuildObjectAccessURL(object),
		}).Info("claim code archived")
	}
}

func ObjectName(claimId string) string {
	return "claims/" + claimId + ".png"
}

// DecodeDataURL returns the PNG bytes of a data URL produced by Encode.
func DecodeDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return nil, fmt.Errorf("not a png data url")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, dataURLPrefix))
}
