package v1

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCollectPayload(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCount int
		wantBatch bool
		wantErr   bool
	}{
		{
			name:      "single event",
			body:      `{"siteId":"site-1","type":"pageview","url":"/","timestamp":1700000000000,"sessionId":"s"}`,
			wantCount: 1,
		},
		{
			name:      "batch envelope",
			body:      `{"batch":true,"events":[{"siteId":"a"},{"siteId":"b"},{"siteId":"c"}]}`,
			wantCount: 3,
			wantBatch: true,
		},
		{
			name:      "batch false is a single event",
			body:      `{"batch":false,"siteId":"a"}`,
			wantCount: 1,
		},
		{name: "array body rejected", body: `[{"siteId":"a"}]`, wantErr: true},
		{name: "empty body rejected", body: ``, wantErr: true},
		{name: "malformed json", body: `{"siteId":`, wantErr: true},
		{name: "malformed batch item", body: `{"batch":true,"events":[{"url":1}]}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events, batch, err := DecodeCollectPayload([]byte(tc.body))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, events, tc.wantCount)
			require.Equal(t, tc.wantBatch, batch)
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, ok := ParseKind(string(k))
		require.True(t, ok)
		require.Equal(t, k, got)
	}

	_, ok := ParseKind("click")
	require.False(t, ok)

	require.True(t, KindPageview.SessionBearing())
	require.True(t, KindHeartbeat.SessionBearing())
	require.False(t, KindEvent.SessionBearing())
}

func TestRawEvent_EffectivePath(t *testing.T) {
	r := RawEvent{URL: "https://example.com/a"}
	require.Equal(t, "https://example.com/a", r.EffectivePath())

	r.Path = "/b"
	require.Equal(t, "/b", r.EffectivePath())
}
