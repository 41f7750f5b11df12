package voicecore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EnvelopeType is the wire `type` field of a control envelope. The full
// vocabulary is listed in the external interfaces design section; values
// are not validated against an enum here because new server->client types
// may be added without touching the codec. VoiceSession.handleControl
// dispatches session.update, session.stop, audio.commit, text.input,
// assistant.interrupt and ping; any other type, session.start and
// audio.append included, gets an unsupported_type error.
type EnvelopeType string

const (
	TypeSessionStart      EnvelopeType = "session.start"
	TypeSessionUpdate     EnvelopeType = "session.update"
	TypeSessionStop       EnvelopeType = "session.stop"
	TypeAudioCommit       EnvelopeType = "audio.commit"
	TypeAudioAppend       EnvelopeType = "audio.append"
	TypeTextInput         EnvelopeType = "text.input"
	TypeAssistantInterrupt EnvelopeType = "assistant.interrupt"
	TypePing              EnvelopeType = "ping"

	TypeWelcome         EnvelopeType = "welcome"
	TypeSessionStarted  EnvelopeType = "session.started"
	TypeSessionState    EnvelopeType = "session.state"
	TypeAudioCommitted  EnvelopeType = "audio.committed"
	TypeAudioClear      EnvelopeType = "audio.clear"
	TypeSTTPartial      EnvelopeType = "stt.partial"
	TypeSTTFinal        EnvelopeType = "stt.final"
	TypeAssistantState  EnvelopeType = "assistant.state"
	TypeAssistantDelta  EnvelopeType = "assistant.text.delta"
	TypeAssistantFinal  EnvelopeType = "assistant.text.final"
	TypeAssistantAudio  EnvelopeType = "assistant.audio.chunk"
	TypeTurnEoT         EnvelopeType = "turn.eot"
	TypeMetricsTick     EnvelopeType = "metrics.tick"
	TypeWarning         EnvelopeType = "warning"
	TypeError           EnvelopeType = "error"
	TypePong            EnvelopeType = "pong"
)

const protocolVersion = 1

// Envelope is the control message exchanged over the client transport. See
// §3 of the design: msg_id is unique per sender, reply_to is set for every
// response to a client-initiated request, and ts_ms is monotonic per
// sender.
type Envelope struct {
	V         int             `json:"v"`
	Type      EnvelopeType    `json:"type"`
	SessionID string          `json:"session_id"`
	MsgID     string          `json:"msg_id"`
	ReplyTo   string          `json:"reply_to,omitempty"`
	TsMs      int64           `json:"ts_ms"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// buildEnvelope returns a frozen Envelope with every mandatory field set.
// payload is marshaled to JSON; passing a value that cannot be marshaled is
// a programmer error and panics, matching the "frozen, always well-formed"
// contract this function promises its callers.
func buildEnvelope(typ EnvelopeType, payload interface{}, sessionID, replyTo string, tsMs int64) Envelope {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("voicecore: envelope payload for %s does not marshal: %v", typ, err))
		}
		raw = b
	}
	return Envelope{
		V:         protocolVersion,
		Type:      typ,
		SessionID: sessionID,
		MsgID:     newMsgID(),
		ReplyTo:   replyTo,
		TsMs:      tsMs,
		Payload:   raw,
	}
}

func newMsgID() string {
	return "msg_" + uuid.New().String()[:12]
}

// ValidationResult is the outcome of validateEnvelope.
type ValidationResult struct {
	OK      bool
	Value   Envelope
	Code    string
	Message string
}

// ValidateOptions configures validateEnvelope. RequireSessionID is false
// only for session.start, which establishes the session id.
type ValidateOptions struct {
	RequireSessionID bool
}

// validateEnvelope parses and structurally validates a raw client envelope.
func validateEnvelope(raw []byte, opts ValidateOptions) ValidationResult {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ValidationResult{OK: false, Code: CodeBadJSON, Message: err.Error()}
	}

	if env.Type == "" {
		return ValidationResult{OK: false, Code: CodeBadShape, Message: "missing type"}
	}
	if env.V == 0 {
		return ValidationResult{OK: false, Code: CodeBadVersion, Message: "missing protocol version"}
	}
	if env.V != protocolVersion {
		return ValidationResult{OK: false, Code: CodeBadVersion, Message: fmt.Sprintf("unsupported version %d", env.V)}
	}
	if opts.RequireSessionID && env.SessionID == "" {
		return ValidationResult{OK: false, Code: CodeMissingSessionID, Message: "missing session_id"}
	}
	if !isKnownClientType(env.Type) {
		return ValidationResult{OK: false, Code: CodeBadType, Message: string(env.Type)}
	}

	return ValidationResult{OK: true, Value: env}
}

func isKnownClientType(t EnvelopeType) bool {
	switch t {
	case TypeSessionStart, TypeSessionUpdate, TypeSessionStop, TypeAudioCommit,
		TypeAudioAppend, TypeTextInput, TypeAssistantInterrupt, TypePing:
		return true
	default:
		return false
	}
}

// --- Binary audio frame wire format ---
//
// 1 byte version (=1); 1 byte kind (0=input,1=output); 1 byte codec
// (0=pcm16); 1 byte channels; 4 byte BE sample_rate_hz; 4 byte BE seq;
// 2 byte BE duration_ms; 2 byte reserved (0); payload bytes.

const audioFrameHeaderSize = 16

// FrameKind distinguishes input (mic) frames from output (assistant) frames.
type FrameKind uint8

const (
	FrameKindInput  FrameKind = 0
	FrameKindOutput FrameKind = 1
)

// AudioCodec identifies the payload encoding. Only PCM16 is supported; see
// the Non-goals in §1 ("media transcoding beyond 16-bit linear PCM mono").
type AudioCodec uint8

const (
	CodecPCM16 AudioCodec = 0
)

// AudioFrame is one chunk of linear PCM16 audio moving through the engine.
type AudioFrame struct {
	Kind         FrameKind
	Codec        AudioCodec
	Channels     uint8
	SampleRateHz uint32
	Seq          uint32
	DurationMs   uint16
	Bytes        []byte
}

// expectedDurationMs computes the duration implied by the payload size, used
// to validate the ±2ms invariant on decode.
func expectedDurationMs(byteLen int, sampleRateHz int, channels int) int {
	if sampleRateHz <= 0 || channels <= 0 {
		return 0
	}
	samples := byteLen / 2 / channels
	return samples * 1000 / sampleRateHz
}

// EncodeAudioFrameForTransport exposes the bit-exact binary wire format to
// external Transport implementations (e.g. a WebSocket server) that need to
// serialize outbound AudioFrames the same way the session's own codec does.
func EncodeAudioFrameForTransport(f AudioFrame) ([]byte, error) {
	return encodeAudioFrame(f)
}

// encodeAudioFrame serializes f to the bit-exact wire format. Returns an
// error if the payload length is not a whole number of 16-bit samples.
func encodeAudioFrame(f AudioFrame) ([]byte, error) {
	if len(f.Bytes)%2 != 0 {
		return nil, fmt.Errorf("voicecore: %w: payload length %d is not a multiple of 2", errBadShape, len(f.Bytes))
	}

	buf := make([]byte, audioFrameHeaderSize+len(f.Bytes))
	buf[0] = protocolVersion
	buf[1] = byte(f.Kind)
	buf[2] = byte(f.Codec)
	buf[3] = f.Channels
	binary.BigEndian.PutUint32(buf[4:8], f.SampleRateHz)
	binary.BigEndian.PutUint32(buf[8:12], f.Seq)
	binary.BigEndian.PutUint16(buf[12:14], f.DurationMs)
	binary.BigEndian.PutUint16(buf[14:16], 0)
	copy(buf[audioFrameHeaderSize:], f.Bytes)
	return buf, nil
}

// decodeAudioFrame parses the bit-exact wire format produced by
// encodeAudioFrame. It does not itself enforce the ±2ms duration invariant;
// callers that need strict validation should compare DurationMs against
// expectedDurationMs.
func decodeAudioFrame(raw []byte) (AudioFrame, error) {
	if len(raw) < audioFrameHeaderSize {
		return AudioFrame{}, fmt.Errorf("voicecore: %w: frame shorter than header", errBadShape)
	}
	if raw[0] != protocolVersion {
		return AudioFrame{}, fmt.Errorf("voicecore: %w: unsupported frame version %d", errBadVersion, raw[0])
	}
	payload := raw[audioFrameHeaderSize:]
	if len(payload)%2 != 0 {
		return AudioFrame{}, fmt.Errorf("voicecore: %w: payload length %d is not a multiple of 2", errBadShape, len(payload))
	}

	f := AudioFrame{
		Kind:         FrameKind(raw[1]),
		Codec:        AudioCodec(raw[2]),
		Channels:     raw[3],
		SampleRateHz: binary.BigEndian.Uint32(raw[4:8]),
		Seq:          binary.BigEndian.Uint32(raw[8:12]),
		DurationMs:   binary.BigEndian.Uint16(raw[12:14]),
		Bytes:        append([]byte(nil), payload...),
	}
	return f, nil
}

var (
	errBadShape   = errors.New(CodeBadShape)
	errBadVersion = errors.New(CodeBadVersion)
)
