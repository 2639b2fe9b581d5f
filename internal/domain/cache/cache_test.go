package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsDeterministicAndFixedLength(t *testing.T) {
	a := Key("http", "example.com")
	b := Key("http", "example.com")

	assert.Equal(t, a, b)
	assert.Len(t, a, KeyLength)
	assert.True(t, ValidKey(a))
}

func TestKeyNormalizesTarget(t *testing.T) {
	assert.Equal(t, Key("dns", "example.com"), Key("dns", " Example.COM. "))
}

func TestKeyKeepsPathAndQueryCase(t *testing.T) {
	assert.NotEqual(t, Key("http", "https://x.com/Admin"), Key("http", "https://x.com/admin"))
	assert.NotEqual(t, Key("http", "https://x.com/?token=ABC"), Key("http", "https://x.com/?token=abc"))
	assert.Equal(t, Key("http", "HTTPS://X.COM/Admin"), Key("http", "https://x.com/Admin"))
}

func TestKeySeparatesProbeAndTarget(t *testing.T) {
	keys := map[string]struct{}{
		Key("http", "example.com"): {},
		Key("dns", "example.com"):  {},
		Key("http", "example.org"): {},
		Key("httpe", "xample.com"): {},
	}
	assert.Len(t, keys, 4)
}

func TestKeyHandlesArbitraryTargets(t *testing.T) {
	key := Key("http", "../../etc/passwd?x=<script>"+strings.Repeat("a", 4096))
	assert.True(t, ValidKey(key))
}

func TestValidKey(t *testing.T) {
	assert.False(t, ValidKey(""))
	assert.False(t, ValidKey("../"+strings.Repeat("a", KeyLength-3)))
	assert.False(t, ValidKey(strings.Repeat("A", KeyLength)))
	assert.True(t, ValidKey(strings.Repeat("0", KeyLength)))
}

func TestRecordExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rec := NewRecord([]byte(`{"a":1}`), now, time.Hour)

	assert.False(t, rec.Expired(now))
	assert.False(t, rec.Expired(now.Add(time.Hour)))
	assert.True(t, rec.Expired(now.Add(time.Hour+time.Second)))
}

func TestRecordRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 500_000_000)
	rec := NewRecord([]byte(`{"status":"success"}`), now, 90*time.Second)

	data, err := rec.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stored_at":1700000000.5`)
	assert.Contains(t, string(data), `"ttl_seconds":90`)

	decoded, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success"}`, string(decoded.Value))
	assert.Equal(t, rec.StoredAt, decoded.StoredAt)
	assert.Equal(t, rec.TTLSeconds, decoded.TTLSeconds)
}

func TestRecordRoundTripNullValue(t *testing.T) {
	data, err := NewRecord([]byte("null"), time.Unix(1_700_000_000, 0), time.Minute).Encode()
	require.NoError(t, err)

	decoded, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, "null", string(decoded.Value))
}

func TestRecordEncodeRejectsInvalidValue(t *testing.T) {
	_, err := NewRecord([]byte("not json"), time.Now(), time.Minute).Encode()
	assert.Error(t, err)
}

func TestDecodeRecordRejectsIncompleteRecords(t *testing.T) {
	cases := map[string]string{
		"garbage":       "{{{",
		"missing value": `{"stored_at":1,"ttl_seconds":1}`,
		"missing time":  `{"value":{},"ttl_seconds":1}`,
		"missing ttl":   `{"value":{},"stored_at":1}`,
		"wrong type":    `{"value":{},"stored_at":"yesterday","ttl_seconds":1}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRecord([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestNopStore(t *testing.T) {
	ctx := context.Background()
	var s Store = Nop{}

	assert.False(t, s.Set(ctx, Key("http", "x"), []byte(`{}`), time.Minute))
	_, ok := s.Get(ctx, Key("http", "x"))
	assert.False(t, ok)
	assert.False(t, s.Delete(ctx, Key("http", "x")))
	assert.Zero(t, s.Clear(ctx))
	assert.Zero(t, s.PurgeExpired(ctx))
}
