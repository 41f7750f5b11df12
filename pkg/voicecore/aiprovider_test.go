package voicecore

import (
	"context"
	"testing"

	openairt "github.com/WqyJh/go-openai-realtime/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderVoiceMapping(t *testing.T) {
	assert.Equal(t, openairt.VoiceAlloy, providerVoice("alloy"))
	assert.Equal(t, openairt.VoiceEcho, providerVoice("echo"))
	assert.Equal(t, openairt.VoiceShimmer, providerVoice("shimmer"))
	assert.Equal(t, openairt.VoiceShimmer, providerVoice("unknown"))
}

func TestRealtimeProviderRejectsOperationsBeforeConnect(t *testing.T) {
	p := NewRealtimeProvider(DefaultConfig(), "test-key")
	ctx := context.Background()

	assert.ErrorIs(t, p.SendAudioAppend(ctx, []byte{1, 2}, 24000), ErrNotStarted)
	assert.ErrorIs(t, p.SendAudioCommit(ctx), ErrNotStarted)
	assert.ErrorIs(t, p.SendAudioClear(ctx), ErrNotStarted)
	assert.ErrorIs(t, p.CreateResponse(ctx), ErrNotStarted)
	assert.ErrorIs(t, p.CancelResponse(ctx, "resp_1"), ErrNotStarted)
	assert.ErrorIs(t, p.TruncateItem(ctx, "item_1", 0, 0), ErrNotStarted)
}

func TestRealtimeProviderChunksOutputAudioToFixedDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputChunkMs = 20
	cfg.ProviderSampleRateHz = 24000
	p := NewRealtimeProvider(cfg, "test-key")

	chunkBytes := p.outputChunkBytes()
	require.Equal(t, 960, chunkBytes) // 20ms * 24000Hz * 2 bytes/sample / 1000

	// A delta spanning two and a half chunks should yield two full chunks
	// immediately and carry the remainder.
	p.emitChunkedAudio(make([]byte, chunkBytes*2+chunkBytes/2))

	var got []ProviderEvent
	drain := func() {
		for {
			select {
			case evt := <-p.events:
				got = append(got, evt)
			default:
				return
			}
		}
	}
	drain()
	require.Len(t, got, 2)
	for _, evt := range got {
		assert.Equal(t, ProviderEventAudioDelta, evt.Type)
		assert.Len(t, evt.Audio, chunkBytes)
	}

	// The residual half-chunk is held until flush, not dropped or emitted
	// early.
	p.flushOutputCarry()
	drain()
	require.Len(t, got, 3)
	assert.Len(t, got[2].Audio, chunkBytes/2)
}

func TestRealtimeProviderDiscardsCarryOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputChunkMs = 20
	p := NewRealtimeProvider(cfg, "test-key")
	p.emitChunkedAudio(make([]byte, p.outputChunkBytes()/2))

	p.outputMu.Lock()
	before := len(p.outputCarry)
	p.outputMu.Unlock()
	require.Positive(t, before)

	p.discardOutputCarry()

	p.outputMu.Lock()
	after := len(p.outputCarry)
	p.outputMu.Unlock()
	assert.Zero(t, after)
}
