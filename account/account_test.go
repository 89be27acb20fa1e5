package account

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOffline(t *testing.T) {
	a, err := NewOffline("bob", "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.ID(), "offline-bob-"))
	assert.Len(t, a.ID(), len("offline-bob-")+suffixLen)
	assert.Equal(t, "bob", a.Profile.Name)
	assert.Equal(t, KindOffline, a.Type)
	assert.True(t, a.Offline)
	assert.Equal(t, OfflineUUID("bob"), a.Profile.UUID)
	assert.NoError(t, a.Validate())
}

func TestNewOffline_ExplicitID(t *testing.T) {
	a, err := NewOffline("bob", "offline-custom")
	require.NoError(t, err)
	assert.Equal(t, "offline-custom", a.ID())
}

func TestNewOffline_EmptyUsername(t *testing.T) {
	for _, name := range []string{"", "   "} {
		_, err := NewOffline(name, "")
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("NewOffline(%q) error = %v, want %v", name, err, ErrInvalidInput)
		}
	}
}

func TestNewOfflineID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id, err := NewOfflineID("alice")
		require.NoError(t, err)
		require.True(t, IsOfflineID(id))
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate offline id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestRandomSuffix(t *testing.T) {
	got, err := randomSuffix(bytes.NewReader([]byte{0, 1, 10, 35, 36, 37, 71, 251}))
	require.NoError(t, err)
	assert.Equal(t, "01az01zz", got)

	_, err = randomSuffix(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}

func TestRandomSuffix_DiscardsBiasedBytes(t *testing.T) {
	// 252 and 255 fall in the partial last cycle of the alphabet and are redrawn.
	got, err := randomSuffix(bytes.NewReader([]byte{0, 1, 10, 35, 252, 36, 37, 71, 255, 40}))
	require.NoError(t, err)
	assert.Equal(t, "01az01z4", got)

	_, err = randomSuffix(bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 6, 255}))
	assert.Error(t, err, "running out of randomness while redrawing must fail")
}

func TestRandomSuffix_Uniform(t *testing.T) {
	// Two passes over every byte value hold 2*maxUnbiased usable bytes.
	var all []byte
	for pass := 0; pass < 2; pass++ {
		for b := 0; b < 256; b++ {
			all = append(all, byte(b))
		}
	}

	counts := make(map[rune]int)
	r := bytes.NewReader(all)
	for i := 0; i < 2*maxUnbiased/suffixLen; i++ {
		s, err := randomSuffix(r)
		require.NoError(t, err)
		for _, c := range s {
			counts[c]++
		}
	}
	require.Len(t, counts, len(suffixAlphabet))
	for c, n := range counts {
		assert.Equal(t, 2*maxUnbiased/len(suffixAlphabet), n, "character %q", c)
	}
}

func TestOfflineUUID_Stable(t *testing.T) {
	assert.Equal(t, OfflineUUID("steve"), OfflineUUID("steve"))
	assert.NotEqual(t, OfflineUUID("steve"), OfflineUUID("alex"))
}

func TestNewOnline(t *testing.T) {
	a, err := NewOnline("4566e69f-c907-48ee-8d71-d7ba5aa00d20", "Notch")
	require.NoError(t, err)
	assert.Equal(t, KindOnline, a.Type)
	assert.False(t, a.Offline)

	_, err = NewOnline("", "x")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewOnline("offline-x-12345678", "x")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{"online", Account{Profile: Profile{ID: "abc"}, Type: KindOnline}, false},
		{"offline", Account{Profile: Profile{ID: "offline-a-1"}, Type: KindOffline, Offline: true}, false},
		{"empty id", Account{Type: KindOnline}, true},
		{"online flagged offline", Account{Profile: Profile{ID: "abc"}, Type: KindOnline, Offline: true}, true},
		{"online with offline prefix", Account{Profile: Profile{ID: "offline-a"}, Type: KindOnline}, true},
		{"offline not flagged", Account{Profile: Profile{ID: "offline-a"}, Type: KindOffline}, true},
		{"unknown type", Account{Profile: Profile{ID: "abc"}, Type: "msa"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAccount_JSONShape(t *testing.T) {
	var a Account
	err := json.Unmarshal([]byte(`{"profile":{"id":"offline-bob-abc12345","name":"bob"},"type":"offline","offline":true}`), &a)
	require.NoError(t, err)
	assert.Equal(t, "offline-bob-abc12345", a.ID())
	assert.NoError(t, a.Validate())
}
