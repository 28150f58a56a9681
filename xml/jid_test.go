/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJIDString(t *testing.T) {
	tests := []struct {
		in             string
		node, domain, resource string
	}{
		{"user@example.com", "user", "example.com", ""},
		{"user@example.com/res", "user", "example.com", "res"},
		{"example.com", "", "example.com", ""},
		{"example.com/res", "", "example.com", "res"},
		{"USER@EXAMPLE.COM", "user", "example.com", ""},
	}
	for _, tt := range tests {
		j, err := NewJIDString(tt.in, false)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.node, j.Node())
		require.Equal(t, tt.domain, j.Domain())
		require.Equal(t, tt.resource, j.Resource())
	}
}

func TestNewJIDStringInvalid(t *testing.T) {
	_, err := NewJIDString("", false)
	require.Error(t, err)

	_, err = NewJIDString("@example.com", false)
	require.Error(t, err)

	_, err = NewJIDString("user@example.com/", false)
	require.Error(t, err)
}

func TestJIDIsServerStrips(t *testing.T) {
	j, err := NewJIDString("user@example.com/res", true)
	require.NoError(t, err)
	require.Equal(t, "", j.Node())
	require.True(t, j.IsServer())
}

func TestJIDClassification(t *testing.T) {
	bare, _ := NewJIDString("user@example.com", false)
	require.True(t, bare.IsBare())
	require.False(t, bare.IsFull())

	full, _ := NewJIDString("user@example.com/res", false)
	require.True(t, full.IsFull())
	require.True(t, full.IsFullWithUser())
	require.True(t, full.MatchesBare(bare))
	require.False(t, full.Equal(bare))

	server, _ := NewJIDString("example.com", false)
	require.True(t, server.IsServer())
}

func TestJIDRoundTrip(t *testing.T) {
	j, err := NewJIDString("user@example.com/res", false)
	require.NoError(t, err)
	require.Equal(t, "user@example.com/res", j.String())

	bare := j.ToBareJID()
	require.Equal(t, "user@example.com", bare.String())

	srv := j.ToServerJID()
	require.Equal(t, "example.com", srv.String())
}

func TestJIDRejectsForbiddenCharacters(t *testing.T) {
	_, err := NewJID("us\"er", "example.com", "", false)
	require.Error(t, err)

	_, err = NewJID("", "", "", false)
	require.Error(t, err)
}
