package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestCacheEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{
			name:    "expired entry",
			expires: time.Now().Add(-1 * time.Hour),
			want:    true,
		},
		{
			name:    "valid entry",
			expires: time.Now().Add(1 * time.Hour),
			want:    false,
		},
		{
			name:    "just expired",
			expires: time.Now().Add(-1 * time.Second),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_TTL(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "one hour remaining",
			expires: time.Now().Add(1 * time.Hour),
			wantMin: 59 * time.Minute,
			wantMax: 61 * time.Minute,
		},
		{
			name:    "already expired",
			expires: time.Now().Add(-1 * time.Hour),
			wantMin: 0,
			wantMax: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			got := entry.TTL()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestNewEntry_Lifetime(t *testing.T) {
	tests := []struct {
		name    string
		headers http.Header
		ttl     time.Duration
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "no headers uses ttl",
			headers: nil,
			ttl:     5 * time.Minute,
			wantMin: 5*time.Minute - time.Second,
			wantMax: 5 * time.Minute,
		},
		{
			name:    "shorter max-age wins",
			headers: http.Header{"Cache-Control": []string{"public, max-age=60"}},
			ttl:     5 * time.Minute,
			wantMin: 59 * time.Second,
			wantMax: 60 * time.Second,
		},
		{
			name:    "longer max-age capped by ttl",
			headers: http.Header{"Cache-Control": []string{"max-age=86400"}},
			ttl:     time.Minute,
			wantMin: 59 * time.Second,
			wantMax: time.Minute,
		},
		{
			name:    "no-store disables caching",
			headers: http.Header{"Cache-Control": []string{"no-store"}},
			ttl:     time.Minute,
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "expires header",
			headers: http.Header{"Expires": []string{time.Now().Add(2 * time.Minute).Format(http.TimeFormat)}},
			ttl:     time.Hour,
			wantMin: 118 * time.Second,
			wantMax: 2 * time.Minute,
		},
		{
			name:    "expires in the past",
			headers: http.Header{"Expires": []string{time.Now().Add(-time.Hour).Format(http.TimeFormat)}},
			ttl:     time.Hour,
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "invalid expires ignored",
			headers: http.Header{"Expires": []string{"not a date"}},
			ttl:     time.Minute,
			wantMin: 59 * time.Second,
			wantMax: time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewEntry([]byte(`{}`), http.StatusOK, tt.headers, tt.ttl)
			got := entry.TTL()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestNewEntry_CopiesResponse(t *testing.T) {
	headers := http.Header{"Content-Type": []string{"application/json"}}
	entry := NewEntry([]byte(`{"invoices": []}`), http.StatusOK, headers, time.Minute)

	if string(entry.Data) != `{"invoices": []}` {
		t.Errorf("Data = %s", entry.Data)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", entry.StatusCode)
	}
	if entry.ContentType != "application/json" {
		t.Errorf("ContentType = %q", entry.ContentType)
	}
	if entry.CachedAt.IsZero() {
		t.Error("CachedAt not set")
	}
}
