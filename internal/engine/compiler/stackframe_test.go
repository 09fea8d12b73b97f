package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStackframeInfo_pushPopNestsStrictly(t *testing.T) {
	const threadID = 1001
	outer := PushStackframeInfo(threadID, 0x1000, 0x2000, 0x3000, 0x4000)
	inner := PushStackframeInfo(threadID, 0x1100, 0x2100, 0x3100, 0x4100)

	chain := WalkStackframes(threadID)
	require.Len(t, chain, 2)
	require.Same(t, inner, chain[0])
	require.Same(t, outer, chain[1])

	PopStackframeInfo(threadID, inner)
	require.Equal(t, []*StackframeInfo{outer}, WalkStackframes(threadID))

	PopStackframeInfo(threadID, outer)
	require.Empty(t, WalkStackframes(threadID))
}

func TestStackframeInfo_popNonTopIsNoOp(t *testing.T) {
	const threadID = 1002
	outer := PushStackframeInfo(threadID, 1, 2, 3, 4)
	inner := PushStackframeInfo(threadID, 5, 6, 7, 8)

	// Popping a record that isn't the current top must not unlink it;
	// crossings nest strictly and an out-of-order pop is the caller's
	// bug to fix, not this chain's to paper over.
	PopStackframeInfo(threadID, outer)
	require.Equal(t, []*StackframeInfo{inner, outer}, WalkStackframes(threadID))

	PopStackframeInfo(threadID, inner)
	PopStackframeInfo(threadID, outer)
	require.Empty(t, WalkStackframes(threadID))
}

func TestStackframeInfo_distinctThreadsHaveDistinctChains(t *testing.T) {
	sfiA := PushStackframeInfo(2001, 1, 1, 1, 1)
	sfiB := PushStackframeInfo(2002, 2, 2, 2, 2)
	defer PopStackframeInfo(2001, sfiA)
	defer PopStackframeInfo(2002, sfiB)

	require.Equal(t, []*StackframeInfo{sfiA}, WalkStackframes(2001))
	require.Equal(t, []*StackframeInfo{sfiB}, WalkStackframes(2002))
}
