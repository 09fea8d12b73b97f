package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatch_exceptionKindsReturnException(t *testing.T) {
	for _, kind := range []TrapKind{
		TrapNullPointerException, TrapArithmeticException, TrapArrayIndexOutOfBounds,
		TrapArrayStoreException, TrapClassCastException, TrapCheckException,
	} {
		action, err := Dispatch(TrapContext{Kind: kind, ThreadID: 9000 + int64(kind)})
		require.NoError(t, err)
		require.Equal(t, kind, action.Kind)
		require.Error(t, action.Exception)
	}
}

func TestDispatch_arrayIndexOutOfBoundsMessageNamesTheIndex(t *testing.T) {
	action, err := Dispatch(TrapContext{Kind: TrapArrayIndexOutOfBounds, FaultingAddr: 7, ThreadID: 9100})
	require.NoError(t, err)
	require.EqualError(t, action.Exception, "ArrayIndexOutOfBoundsException: index 7")
}

func TestDispatch_unknownKindPanics(t *testing.T) {
	require.Panics(t, func() {
		_, _ = Dispatch(TrapContext{Kind: TrapKind(99), ThreadID: 9200})
	})
}

func TestDispatch_pushesAndPopsStackframeInfoAroundTheAction(t *testing.T) {
	const threadID = 9300
	_, err := Dispatch(TrapContext{Kind: TrapNullPointerException, ThreadID: threadID, PV: 1, SP: 2, RA: 3, XPC: 4})
	require.NoError(t, err)
	require.Empty(t, WalkStackframes(threadID))
}

func TestDispatch_patcherWithoutCodeInfoErrors(t *testing.T) {
	_, err := Dispatch(TrapContext{Kind: TrapPatcher, ThreadID: 9400})
	require.Error(t, err)
}

func TestDispatch_patcherAppliesOnceThenResumesIdempotently(t *testing.T) {
	code, patches := compileMethod(t, []byte{
		0xb2, 0x00, 0x05, // getstatic #5
		0x57, // pop
		0xb1, // return
	}, 2, 0, true)
	require.Len(t, patches, 1)

	ci := NewCodeInfo(nil, code, 0, codeStaticData{Bytes: make([]byte, 64)}, patches, nil, 0, RegisterAllocation{})
	xpc := ci.EntryPoint() + uintptr(patches[0].CodeOffset)

	action, err := Dispatch(TrapContext{Kind: TrapPatcher, ThreadID: 9500, CodeInfo: ci, XPC: xpc})
	require.NoError(t, err)
	require.Equal(t, xpc, action.ResumePC)
	require.True(t, ci.Patches[0].Applied)

	// A second thread racing the same breakpoint must observe Applied
	// and resume without re-running the patcher.
	action2, err := Dispatch(TrapContext{Kind: TrapPatcher, ThreadID: 9501, CodeInfo: ci, XPC: xpc})
	require.NoError(t, err)
	require.Equal(t, xpc, action2.ResumePC)
}

func TestDispatch_patcherAtUnknownOffsetErrors(t *testing.T) {
	ci := NewCodeInfo(nil, make([]byte, 16), 0, codeStaticData{}, nil, nil, 0, RegisterAllocation{})
	_, err := Dispatch(TrapContext{Kind: TrapPatcher, ThreadID: 9600, CodeInfo: ci, XPC: ci.EntryPoint() + 5})
	require.Error(t, err)
}

func TestDispatch_replacementTakesPrecedenceOverPatchAtSameOffset(t *testing.T) {
	ci := NewCodeInfo(nil, make([]byte, 16), 0, codeStaticData{}, []PatchReference{{CodeOffset: 3}}, []ReplacementPoint{{StartPC: 0, EndPC: 10}}, 0, RegisterAllocation{})
	action, err := Dispatch(TrapContext{Kind: TrapPatcher, ThreadID: 9700, CodeInfo: ci, XPC: ci.EntryPoint() + 3})
	require.NoError(t, err)
	require.Equal(t, TrapPatcher, action.Kind)
	require.False(t, ci.Patches[0].Applied)
}

func TestDispatch_compilerTrapResumesAtThePV(t *testing.T) {
	action, err := Dispatch(TrapContext{Kind: TrapCompiler, ThreadID: 9800, PV: 0xabc})
	require.NoError(t, err)
	require.Equal(t, TrapCompiler, action.Kind)
	require.EqualValues(t, 0xabc, action.ResumePC)
}
