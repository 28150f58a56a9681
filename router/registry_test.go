/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryBindAssignsRequestedResource(t *testing.T) {
	r := NewRegistry()
	resource, kicked := r.Bind("romeo@example.com", "balcony", "conn-1", ConflictSuffix)
	require.Equal(t, "balcony", resource)
	require.Equal(t, "", kicked)
}

func TestRegistryBindGeneratesResourceWhenEmpty(t *testing.T) {
	r := NewRegistry()
	resource, _ := r.Bind("romeo@example.com", "", "conn-1", ConflictSuffix)
	require.Contains(t, resource, "resource-")
}

func TestRegistryBindSuffixesOnConflict(t *testing.T) {
	r := NewRegistry()
	r.Bind("romeo@example.com", "phone", "conn-1", ConflictSuffix)
	resource, kicked := r.Bind("romeo@example.com", "phone", "conn-2", ConflictSuffix)

	require.NotEqual(t, "phone", resource)
	require.Contains(t, resource, "phone-")
	require.Equal(t, "", kicked)
}

func TestRegistryBindKicksOnConflictPolicy(t *testing.T) {
	r := NewRegistry()
	r.Bind("romeo@example.com", "phone", "conn-1", ConflictKick)
	resource, kicked := r.Bind("romeo@example.com", "phone", "conn-2", ConflictKick)

	require.Equal(t, "phone", resource)
	require.Equal(t, "conn-1", kicked)
}

func TestRegistryReleaseRequiresOwnership(t *testing.T) {
	r := NewRegistry()
	r.Bind("romeo@example.com", "phone", "conn-1", ConflictSuffix)

	require.False(t, r.Release("romeo@example.com", "phone", "conn-2"))
	require.True(t, r.Release("romeo@example.com", "phone", "conn-1"))
}

func TestRegistryReleaseConnectionRemovesAllBindings(t *testing.T) {
	r := NewRegistry()
	r.Bind("romeo@example.com", "phone", "conn-1", ConflictSuffix)
	r.Bind("juliet@example.com", "tablet", "conn-1", ConflictSuffix)

	n := r.ReleaseConnection("conn-1")
	require.Equal(t, 2, n)

	_, ok := r.Lookup("romeo@example.com", "phone")
	require.False(t, ok)
}

func TestRegistryLookupAll(t *testing.T) {
	r := NewRegistry()
	r.Bind("romeo@example.com", "phone", "conn-1", ConflictSuffix)
	r.Bind("romeo@example.com", "laptop", "conn-2", ConflictSuffix)

	bindings := r.LookupAll("romeo@example.com")
	require.Len(t, bindings, 2)
}

func TestNewConnectionIDUnique(t *testing.T) {
	require.NotEqual(t, NewConnectionID(), NewConnectionID())
}
