package voicecore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEnvelopeHasMandatoryFields(t *testing.T) {
	env := buildEnvelope(TypeSessionStarted, map[string]string{"session_id": "sess_1"}, "sess_1", "msg_99", 12345)

	assert.Equal(t, protocolVersion, env.V)
	assert.Equal(t, TypeSessionStarted, env.Type)
	assert.Equal(t, "sess_1", env.SessionID)
	assert.NotEmpty(t, env.MsgID)
	assert.Equal(t, "msg_99", env.ReplyTo)
	assert.EqualValues(t, 12345, env.TsMs)
}

func TestValidateEnvelopeRejectsBadJSON(t *testing.T) {
	result := validateEnvelope([]byte("{not json"), ValidateOptions{})
	require.False(t, result.OK)
	assert.Equal(t, CodeBadJSON, result.Code)
}

func TestValidateEnvelopeRejectsUnknownType(t *testing.T) {
	raw, _ := json.Marshal(Envelope{V: 1, Type: "bogus.type", SessionID: "s1"})
	result := validateEnvelope(raw, ValidateOptions{RequireSessionID: true})
	require.False(t, result.OK)
	assert.Equal(t, CodeBadType, result.Code)
}

func TestValidateEnvelopeRequiresSessionID(t *testing.T) {
	raw, _ := json.Marshal(Envelope{V: 1, Type: TypeAudioCommit})
	result := validateEnvelope(raw, ValidateOptions{RequireSessionID: true})
	require.False(t, result.OK)
	assert.Equal(t, CodeMissingSessionID, result.Code)
}

func TestValidateEnvelopeAcceptsWellFormed(t *testing.T) {
	raw, _ := json.Marshal(Envelope{V: 1, Type: TypeSessionStart, SessionID: "s1"})
	result := validateEnvelope(raw, ValidateOptions{RequireSessionID: true})
	require.True(t, result.OK)
	assert.Equal(t, TypeSessionStart, result.Value.Type)
}

func TestAudioFrameRoundTrip(t *testing.T) {
	f := AudioFrame{
		Kind:         FrameKindInput,
		Codec:        CodecPCM16,
		Channels:     1,
		SampleRateHz: 24000,
		Seq:          42,
		DurationMs:   20,
		Bytes:        make([]byte, 960), // 20ms @ 24kHz mono 16-bit
	}
	for i := range f.Bytes {
		f.Bytes[i] = byte(i)
	}

	encoded, err := encodeAudioFrame(f)
	require.NoError(t, err)

	decoded, err := decodeAudioFrame(encoded)
	require.NoError(t, err)

	assert.Equal(t, f.Kind, decoded.Kind)
	assert.Equal(t, f.Codec, decoded.Codec)
	assert.Equal(t, f.Channels, decoded.Channels)
	assert.Equal(t, f.SampleRateHz, decoded.SampleRateHz)
	assert.Equal(t, f.Seq, decoded.Seq)
	assert.Equal(t, f.DurationMs, decoded.DurationMs)
	assert.Equal(t, f.Bytes, decoded.Bytes)
}

func TestEncodeAudioFrameRejectsOddLength(t *testing.T) {
	_, err := encodeAudioFrame(AudioFrame{Bytes: []byte{1, 2, 3}})
	require.Error(t, err)
}

func TestExpectedDurationMs(t *testing.T) {
	// 960 bytes = 480 samples mono 16-bit @ 24kHz = 20ms
	assert.Equal(t, 20, expectedDurationMs(960, 24000, 1))
}
