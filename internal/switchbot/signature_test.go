package switchbot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookSignature(secret, nonce, ts, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(secret + nonce + ts + payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	now := time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	payload := `{"eventType":"changeReport"}`
	sig := webhookSignature("whsec", "n1", ts, payload)

	ok, err := VerifyWebhookSignature(payload, sig, ts, "n1", "whsec", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyWebhookSignature(payload, sig, ts, "n1", "whsec", now.Add(6*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "stale")

	ok, err = VerifyWebhookSignature(payload+" ", sig, ts, "n1", "whsec", now)
	require.NoError(t, err)
	assert.False(t, ok, "tampered payload")

	ok, err = VerifyWebhookSignature(payload, sig, "not-a-number", "n1", "whsec", now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyWebhookSignature(payload, sig, ts, "", "whsec", now)
	assert.ErrorIs(t, err, ErrWebhookField)
}

func TestParseWebhookEvent(t *testing.T) {
	ev, err := ParseWebhookEvent([]byte(`{
		"eventType": "changeReport",
		"eventVersion": "1",
		"context": {"deviceType": "WoMeter", "deviceMac": "F66854E650BE", "temperature": 28.5, "humidity": 60}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "changeReport", ev.EventType)
	assert.Equal(t, "WoMeter", ev.DeviceType)
	assert.Equal(t, "F66854E650BE", ev.DeviceMac)
	assert.Equal(t, 28.5, ev.Data["temperature"])

	ev, err = ParseWebhookEvent([]byte(`{"eventType":"x"}`))
	require.NoError(t, err)
	assert.NotNil(t, ev.Data)

	_, err = ParseWebhookEvent([]byte(`nope`))
	assert.Error(t, err)
}
