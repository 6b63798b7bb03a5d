package session

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestUnusableReason(t *testing.T) {
	cases := []struct {
		name string
		h    *Handle
		want string
	}{
		{"nil", nil, ReasonMissing},
		{"absent", &Handle{}, ReasonMissing},
		{"disconnected without credentials", &Handle{Present: true, ConnectedKnown: true, HasKeyStore: true}, ReasonNoCredentials},
		{"disconnected without keys", &Handle{Present: true, ConnectedKnown: true, HasCredentials: true}, ReasonNoKeyStore},
		{"disconnected but usable", &Handle{Present: true, ConnectedKnown: true, HasCredentials: true, HasKeyStore: true}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, unusableReason(tc.h))
			assert.Equal(t, tc.want == "", IsUsable(tc.h))
		})
	}
}

func TestCheckerLogsUsableReason(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	defer func() { log.Logger = prev }()

	c := NewChecker(ProviderFunc(func(context.Context, string) (*Handle, error) {
		return &Handle{Present: true, ConnectedKnown: true, HasKeyStore: true}, nil
	}))

	assert.False(t, c.Usable(context.Background(), "t1"))
	assert.Contains(t, buf.String(), ReasonNoCredentials)
	assert.NotContains(t, buf.String(), ReasonNotConnected)
}
