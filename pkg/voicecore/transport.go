package voicecore

// Transport is the client-facing boundary a VoiceSession sends outbound
// envelopes and audio frames through. The WebSocket server, authentication,
// rate limiting, and binary-frame I/O itself live outside this package;
// only the shape a session needs to drive them is defined here.
type Transport interface {
	SendControl(env Envelope) error
	SendAudio(frame AudioFrame) error
	Close() error
}

// AudioSource is an inbound PCM16 producer external to the engine (a
// browser bridge, a meeting controller's capture pipeline).
type AudioSource interface {
	Frames() <-chan AudioFrame
}

// AudioSink plays assistant output frames and reports how much of the most
// recently sent audio has actually been rendered. VoiceSession does not call
// it: the played amount it passes as truncate_audio_ms on barge-in comes
// from the played_ms field of an assistant.interrupt payload.
type AudioSink interface {
	PlayFrame(frame AudioFrame) error
	PlayedMs() int
}
