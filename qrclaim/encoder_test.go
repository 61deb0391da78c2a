package qrclaim

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestEncode_ReturnsPNGDataURL(t *testing.T) {
	e := NewEncoder(nil)
	e.Upload = nil

	url, err := e.Encode(context.Background(), Payload{
		PhoneNumber: "+923001234567",
		CampaignId:  "c1",
		RewardType:  "free_tea",
		ReviewId:    "r1",
		StationId:   "s1",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	png, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestEncode_SecondPassDiffersOnceClaimIdKnown(t *testing.T) {
	e := NewEncoder(nil)
	p := Payload{PhoneNumber: "+923001234567", CampaignId: "c1", RewardType: "free_tea"}

	first, err := e.Encode(context.Background(), p)
	require.NoError(t, err)
	p.ClaimId = "claim-1"
	second, err := e.Encode(context.Background(), p)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEncode_UploadOnlyWithClaimIdAndFailureIgnored(t *testing.T) {
	var objects []string
	e := NewEncoder(nil)
	e.Upload = func(ctx context.Context, objectName string, data []byte, contentType string) error {
		objects = append(objects, objectName)
		assert.Equal(t, "image/png", contentType)
		return errors.New("bucket unavailable")
	}

	_, err := e.Encode(context.Background(), Payload{CampaignId: "c1"})
	require.NoError(t, err)
	_, err = e.Encode(context.Background(), Payload{ClaimId: "abc", CampaignId: "c1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"claims/abc.png"}, objects)
}

func TestDecodeDataURL_RejectsOtherSchemes(t *testing.T) {
	_, err := DecodeDataURL("https://example.com/a.png")
	assert.Error(t, err)
}
