package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacao-jit/cacao/internal/platform"
)

func TestCodeInfo_newCodeInfoStartsEmitted(t *testing.T) {
	ci := NewCodeInfo(nil, make([]byte, 8), 0, codeStaticData{}, nil, nil, 4, RegisterAllocation{})
	require.Equal(t, StateEmitted, ci.State())
	require.EqualValues(t, 4, ci.FrameSlotSize)
}

func TestCodeInfo_entryPointAddressesTheEntryOffset(t *testing.T) {
	seg := make([]byte, 16)
	ci := NewCodeInfo(nil, seg, 8, codeStaticData{}, nil, nil, 0, RegisterAllocation{})
	require.Equal(t, uintptrOf(&seg[8]), ci.EntryPoint())
}

func TestCodeInfo_entryPointOfEmptyCodeIsZero(t *testing.T) {
	ci := NewCodeInfo(nil, nil, 0, codeStaticData{}, nil, nil, 0, RegisterAllocation{})
	require.Zero(t, ci.EntryPoint())
}

func TestCodeInfo_publishActivatesARealMapping(t *testing.T) {
	seg, err := platform.MmapCodeSegment(16)
	require.NoError(t, err)
	ci := NewCodeInfo(nil, seg, 0, codeStaticData{}, nil, nil, 0, RegisterAllocation{})
	require.NoError(t, ci.Publish())
	require.Equal(t, StateActive, ci.State())

	ci.Invalidate()
	require.Equal(t, StateInvalidated, ci.State())
}

func TestCodeInfo_patchReferenceAtLooksUpByCodeOffsetNotInstruction(t *testing.T) {
	ci := NewCodeInfo(nil, make([]byte, 8), 0, codeStaticData{}, []PatchReference{
		{CodeOffset: 12, Instruction: -1},
	}, nil, 0, RegisterAllocation{})
	p, applied := ci.patchReferenceAt(12)
	require.NotNil(t, p)
	require.False(t, applied)

	ci.markPatched(p)
	p2, applied2 := ci.patchReferenceAt(12)
	require.Same(t, p, p2)
	require.True(t, applied2)
}

func TestCodeInfo_patchReferenceAtMissOffsetReturnsNil(t *testing.T) {
	ci := NewCodeInfo(nil, make([]byte, 8), 0, codeStaticData{}, []PatchReference{{CodeOffset: 1}}, nil, 0, RegisterAllocation{})
	p, applied := ci.patchReferenceAt(2)
	require.Nil(t, p)
	require.False(t, applied)
}

func TestCodeInfo_newCodeInfoPublishesRegisterAllocationSummary(t *testing.T) {
	ci := NewCodeInfo(nil, make([]byte, 8), 0, codeStaticData{}, nil, nil, 0, RegisterAllocation{
		MemUse: 3, ArgIntRegUse: 2, ArgFltRegUse: 1, SavIntRegUse: 4, SavFltRegUse: 1,
	})
	require.EqualValues(t, 3, ci.MemUse)
	require.EqualValues(t, 2, ci.ArgIntRegUse)
	require.EqualValues(t, 1, ci.ArgFltRegUse)
	require.EqualValues(t, 5, ci.RegisterSaveCount)
}
