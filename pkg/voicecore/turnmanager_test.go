package voicecore

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loudFrame(durationMs int) AudioFrame {
	n := durationMs * 24 // 24 samples/ms @ 24kHz
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(20000)))
	}
	return AudioFrame{Bytes: buf, DurationMs: uint16(durationMs)}
}

func silentFrame(durationMs int) AudioFrame {
	n := durationMs * 24
	return AudioFrame{Bytes: make([]byte, n*2), DurationMs: uint16(durationMs)}
}

func TestTurnManagerVADStartStop(t *testing.T) {
	cfg := DefaultConfig()
	tm := NewTurnManager(cfg, true, nil)
	defer tm.Reset()

	tm.OnInputFrame(loudFrame(20))
	select {
	case evt := <-tm.Events():
		assert.Equal(t, TurnEventVADStart, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("expected VAD start event")
	}
}

func TestTurnManagerBargeInBelowThresholdNotConfirmed(t *testing.T) {
	cfg := DefaultConfig()
	tm := NewTurnManager(cfg, true, nil)
	defer tm.Reset()
	tm.SetAssistantSpeaking(true)

	// one frame short of BargeInMinMs worth of speech
	frameDur := 20
	totalMs := cfg.BargeInMinMs - frameDur
	for sent := 0; sent < totalMs; sent += frameDur {
		tm.OnInputFrame(loudFrame(frameDur))
	}

	select {
	case evt := <-tm.Events():
		require.NotEqual(t, TurnEventBargeInConfirmed, evt.Type)
	case <-time.After(50 * time.Millisecond):
		// no event in the window means no confirmation either; in practice
		// the first loud frame's VAD start is received above
	}
}

func TestTurnManagerBargeInAtThresholdConfirmed(t *testing.T) {
	cfg := DefaultConfig()
	tm := NewTurnManager(cfg, true, nil)
	defer tm.Reset()
	tm.SetAssistantSpeaking(true)

	frameDur := 20
	var confirmed bool
	for sent := 0; sent < cfg.BargeInMinMs+frameDur; sent += frameDur {
		tm.OnInputFrame(loudFrame(frameDur))
		select {
		case evt := <-tm.Events():
			if evt.Type == TurnEventBargeInConfirmed {
				confirmed = true
			}
		default:
		}
	}
	assert.True(t, confirmed)
}

func TestTurnManagerSilenceBelowHangoverKeepsSpeechActive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VADSilenceMs = 100
	cfg.VADHangoverMs = 50
	tm := NewTurnManager(cfg, true, nil)
	defer tm.Reset()

	tm.OnInputFrame(loudFrame(20))
	<-tm.Events() // drain VAD start

	tm.OnInputFrame(silentFrame(20))
	select {
	case evt := <-tm.Events():
		t.Fatalf("unexpected event before hangover elapsed: %v", evt.Type)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestComputeRMSSilenceIsZero(t *testing.T) {
	assert.Zero(t, computeRMS(make([]byte, 100)))
}

func TestComputeRMSLoudIsPositive(t *testing.T) {
	f := loudFrame(20)
	assert.Greater(t, computeRMS(f.Bytes), 0.5)
}
