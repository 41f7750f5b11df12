package voicecore

import (
	"sync"

	"github.com/google/uuid"
	"github.com/realtime-ai/realtime-ai/pkg/pipeline"
)

// CommitSnapshot is the immutable record produced when the engine decides a
// user turn is complete. All frames buffered since the previous commit (or
// session start) move into the snapshot atomically.
type CommitSnapshot struct {
	CommitID      string
	Reason        string
	FromSeq       uint32
	ToSeq         uint32
	Frames        []AudioFrame
	BufferedMs    int
	BufferedBytes int
	CreatedAtMs   int64
}

// CommitRequest parameterizes consumeCommitSnapshot.
type CommitRequest struct {
	CommitID string
	Reason   string
	MinMs    int
	MinBytes int
}

// AudioPipeline buffers ordered input frames and an output queue, per §4.2.
// It holds no goroutines of its own; all mutation happens on the calling
// session's single operation chain, so its fields need no lock beyond what
// protects concurrent reads from metrics/diagnostics callers.
type AudioPipeline struct {
	mu sync.Mutex

	inputFrames   []AudioFrame
	bufferedMs    int
	bufferedBytes int
	lastInSeq     uint32
	haveInSeq     bool

	pendingCommits []CommitSnapshot

	outputQueue *pipeline.ClearableChan
	lastOutSeq  uint32
	haveOutSeq  bool
}

// NewAudioPipeline creates an AudioPipeline with an output queue sized to
// outputQueueCapacity frames.
func NewAudioPipeline(outputQueueCapacity int) *AudioPipeline {
	return &AudioPipeline{
		outputQueue: pipeline.NewClearableChan(outputQueueCapacity),
	}
}

// appendInputFrame accepts one ordered input frame, updating buffered
// duration/byte counters. It rejects frames tagged as output.
func (p *AudioPipeline) appendInputFrame(f AudioFrame) error {
	if f.Kind != FrameKindInput {
		return ErrKindMismatch
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.inputFrames = append(p.inputFrames, f)
	p.bufferedMs += int(f.DurationMs)
	p.bufferedBytes += len(f.Bytes)
	p.lastInSeq = f.Seq
	p.haveInSeq = true
	return nil
}

// bufferedState reports the current buffered duration and byte count.
func (p *AudioPipeline) bufferedState() (ms, bytes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferedMs, p.bufferedBytes
}

// consumeCommitSnapshot moves all buffered input frames into a new
// CommitSnapshot, provided the gate in req is satisfied.
func (p *AudioPipeline) consumeCommitSnapshot(req CommitRequest, nowMs int64) (CommitSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bufferedBytes == 0 {
		return CommitSnapshot{}, ErrEmptyBuffer
	}
	if p.bufferedMs < req.MinMs || p.bufferedBytes < req.MinBytes {
		return CommitSnapshot{}, ErrBufferTooSmall
	}

	commitID := req.CommitID
	if commitID == "" {
		commitID = "commit_" + uuid.New().String()[:12]
	}

	var fromSeq uint32
	if len(p.inputFrames) > 0 {
		fromSeq = p.inputFrames[0].Seq
	}

	snapshot := CommitSnapshot{
		CommitID:      commitID,
		Reason:        req.Reason,
		FromSeq:       fromSeq,
		ToSeq:         p.lastInSeq,
		Frames:        p.inputFrames,
		BufferedMs:    p.bufferedMs,
		BufferedBytes: p.bufferedBytes,
		CreatedAtMs:   nowMs,
	}

	p.inputFrames = nil
	p.bufferedMs = 0
	p.bufferedBytes = 0
	p.pendingCommits = append(p.pendingCommits, snapshot)

	return snapshot, nil
}

// ackPendingCommit pops the oldest pending snapshot, used when the provider
// acknowledges input.committed.
func (p *AudioPipeline) ackPendingCommit() (CommitSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pendingCommits) == 0 {
		return CommitSnapshot{}, false
	}
	snap := p.pendingCommits[0]
	p.pendingCommits = p.pendingCommits[1:]
	return snap, true
}

// dropPendingCommits discards all pending snapshots, used when the session
// backs out of a commit because the state no longer permits it.
func (p *AudioPipeline) dropPendingCommits(reason string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.pendingCommits)
	p.pendingCommits = nil
	return n
}

// dropOldestInputFrame discards the single oldest buffered input frame,
// used by the 30s backpressure rule in §5.
func (p *AudioPipeline) dropOldestInputFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inputFrames) == 0 {
		return
	}
	oldest := p.inputFrames[0]
	p.inputFrames = p.inputFrames[1:]
	p.bufferedMs -= int(oldest.DurationMs)
	p.bufferedBytes -= len(oldest.Bytes)
	if p.bufferedMs < 0 {
		p.bufferedMs = 0
	}
	if p.bufferedBytes < 0 {
		p.bufferedBytes = 0
	}
}

// appendOutputFrame enqueues an assistant audio frame for the sink.
func (p *AudioPipeline) appendOutputFrame(f AudioFrame) {
	p.outputQueue.Send(&pipeline.PipelineMessage{
		Type: pipeline.MsgTypeAudio,
		AudioData: &pipeline.AudioData{
			Data:       f.Bytes,
			SampleRate: int(f.SampleRateHz),
			Channels:   int(f.Channels),
		},
	})
}

// outputChan returns the underlying output channel; callers typically
// select on it alongside a context-done channel.
func (p *AudioPipeline) outputChan() <-chan *pipeline.PipelineMessage {
	return p.outputQueue.Chan()
}

// clearOutputFrames discards every queued output frame, returning how many
// were discarded. Used on interrupt so stale assistant audio never reaches
// the sink after a barge-in.
func (p *AudioPipeline) clearOutputFrames() int {
	return p.outputQueue.ClearWithCount()
}

// resetAll clears every piece of pipeline state, used on session stop.
func (p *AudioPipeline) resetAll() {
	p.mu.Lock()
	p.inputFrames = nil
	p.bufferedMs = 0
	p.bufferedBytes = 0
	p.pendingCommits = nil
	p.mu.Unlock()
	p.clearOutputFrames()
}
