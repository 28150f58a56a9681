/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package streamerror

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorElement(t *testing.T) {
	got := ErrNotWellFormed.Element()
	require.Equal(t, `<stream:error><not-well-formed xmlns="urn:ietf:params:xml:ns:xmpp-streams"/></stream:error>`, got)
}

func TestErrorImplementsError(t *testing.T) {
	var err error = ErrConflict
	require.Equal(t, "conflict", err.Error())
}

func TestDistinctConditions(t *testing.T) {
	require.NotEqual(t, ErrBadFormat.Error(), ErrHostUnknown.Error())
}
