package voicecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(seq uint32, durationMs int, nBytes int) AudioFrame {
	return AudioFrame{
		Kind:         FrameKindInput,
		Channels:     1,
		SampleRateHz: 24000,
		Seq:          seq,
		DurationMs:   uint16(durationMs),
		Bytes:        make([]byte, nBytes),
	}
}

func TestAppendInputFrameRejectsOutputKind(t *testing.T) {
	p := NewAudioPipeline(16)
	err := p.appendInputFrame(AudioFrame{Kind: FrameKindOutput})
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestConsumeCommitSnapshotBoundary(t *testing.T) {
	p := NewAudioPipeline(16)
	require.NoError(t, p.appendInputFrame(frame(1, 119, 100)))

	_, err := p.consumeCommitSnapshot(CommitRequest{MinMs: 120, MinBytes: 1}, 0)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	require.NoError(t, p.appendInputFrame(frame(2, 1, 10)))
	snap, err := p.consumeCommitSnapshot(CommitRequest{MinMs: 120, MinBytes: 1}, 1000)
	require.NoError(t, err)
	assert.Equal(t, 120, snap.BufferedMs)
	assert.Equal(t, 110, snap.BufferedBytes)
	assert.Equal(t, uint32(1), snap.FromSeq)
	assert.Equal(t, uint32(2), snap.ToSeq)
	assert.Len(t, snap.Frames, 2)

	ms, bytes := p.bufferedState()
	assert.Zero(t, ms)
	assert.Zero(t, bytes)
}

func TestConsumeCommitSnapshotEmptyBuffer(t *testing.T) {
	p := NewAudioPipeline(16)
	_, err := p.consumeCommitSnapshot(CommitRequest{MinMs: 120, MinBytes: 1}, 0)
	assert.ErrorIs(t, err, ErrEmptyBuffer)
}

func TestAckAndDropPendingCommits(t *testing.T) {
	p := NewAudioPipeline(16)
	require.NoError(t, p.appendInputFrame(frame(1, 200, 100)))
	snap, err := p.consumeCommitSnapshot(CommitRequest{MinMs: 1, MinBytes: 1, CommitID: "c1"}, 0)
	require.NoError(t, err)

	acked, ok := p.ackPendingCommit()
	require.True(t, ok)
	assert.Equal(t, snap.CommitID, acked.CommitID)

	_, ok = p.ackPendingCommit()
	assert.False(t, ok)

	require.NoError(t, p.appendInputFrame(frame(2, 200, 100)))
	_, err = p.consumeCommitSnapshot(CommitRequest{MinMs: 1, MinBytes: 1, CommitID: "c2"}, 0)
	require.NoError(t, err)
	dropped := p.dropPendingCommits("state changed")
	assert.Equal(t, 1, dropped)
}

func TestClearOutputFramesReturnsCount(t *testing.T) {
	p := NewAudioPipeline(16)
	p.appendOutputFrame(AudioFrame{Bytes: []byte{1, 2}})
	p.appendOutputFrame(AudioFrame{Bytes: []byte{3, 4}})

	cleared := p.clearOutputFrames()
	assert.Equal(t, 2, cleared)
	assert.Zero(t, p.clearOutputFrames())
}

func TestResetAll(t *testing.T) {
	p := NewAudioPipeline(16)
	require.NoError(t, p.appendInputFrame(frame(1, 200, 100)))
	p.appendOutputFrame(AudioFrame{Bytes: []byte{1, 2}})

	p.resetAll()

	ms, bytes := p.bufferedState()
	assert.Zero(t, ms)
	assert.Zero(t, bytes)
	assert.Zero(t, p.clearOutputFrames())
}
