// Chunk recordings: length-prefixed msgpack frames.
//
// Information Hiding:
// - Frame layout (4-byte big-endian length prefix + msgpack payload)
// - Size limits applied when reading recordings
// - Replay pacing

package llm

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/model"
)

const (
	// MaxFrameSize bounds one recorded chunk, including its length prefix.
	MaxFrameSize     = 16 * 1024 * 1024
	lengthPrefixSize = 4
)

// ErrFrameTooLarge is returned for frames over MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Recorder writes chunks as length-prefixed msgpack frames.
type Recorder struct {
	w *bufio.Writer
}

// NewRecorder creates a recorder writing to w. Call Flush when done.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: bufio.NewWriter(w)}
}

// Write appends one chunk frame.
func (r *Recorder) Write(c chunk.Chunk) error {
	payload, err := msgpack.Marshal(&c)
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	if len(payload) > MaxFrameSize-lengthPrefixSize {
		return ErrFrameTooLarge
	}
	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := r.w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = r.w.Write(payload)
	return err
}

// Flush writes buffered frames to the underlying writer.
func (r *Recorder) Flush() error {
	return r.w.Flush()
}

// Record tees seq into rec. Chunks are passed through unchanged; a recording
// failure ends the sequence with that error.
func Record(seq iter.Seq2[chunk.Chunk, error], rec *Recorder) iter.Seq2[chunk.Chunk, error] {
	return func(yield func(chunk.Chunk, error) bool) {
		defer rec.Flush()
		for c, err := range seq {
			if err != nil {
				yield(c, err)
				return
			}
			if werr := rec.Write(c); werr != nil {
				yield(chunk.Chunk{}, fmt.Errorf("record chunk: %w", werr))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

// ReadRecording decodes every frame of a recording.
func ReadRecording(r io.Reader) ([]chunk.Chunk, error) {
	br := bufio.NewReader(r)
	var out []chunk.Chunk
	for {
		var prefix [lengthPrefixSize]byte
		if _, err := io.ReadFull(br, prefix[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, fmt.Errorf("read length prefix: %w", err)
		}
		size := binary.BigEndian.Uint32(prefix[:])
		if size > MaxFrameSize-lengthPrefixSize {
			return out, fmt.Errorf("payload size %d: %w", size, ErrFrameTooLarge)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			return out, fmt.Errorf("read payload: %w", err)
		}
		var c chunk.Chunk
		if err := msgpack.Unmarshal(payload, &c); err != nil {
			return out, fmt.Errorf("decode chunk: %w", err)
		}
		out = append(out, c)
	}
}

// ReplayProcessor replays recorded chunks as if they came from a vendor.
type ReplayProcessor struct {
	Base
	recorded []chunk.Chunk
	delay    time.Duration
}

// NewReplayProcessor serves the recorded chunks for every model in models.
func NewReplayProcessor(name string, models []model.AIModel, recorded []chunk.Chunk, delay time.Duration, logger *zap.Logger) *ReplayProcessor {
	if name == "" {
		name = "replay"
	}
	return &ReplayProcessor{
		Base:     newBase(name, models, logger),
		recorded: recorded,
		delay:    delay,
	}
}

// LoadReplayProcessor reads a recording file and serves it under one model id.
func LoadReplayProcessor(path, modelID string, delay time.Duration, logger *zap.Logger) (*ReplayProcessor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	recorded, err := ReadRecording(f)
	if err != nil {
		return nil, err
	}
	if modelID == "" {
		modelID = "replay"
	}
	m := model.AIModel{ID: modelID, Text: "Replay " + modelID, Icon: "replay", Stream: true}
	return NewReplayProcessor("replay", []model.AIModel{m}, recorded, delay, logger), nil
}

// Process yields the recorded chunks in order. Chunks keep their original
// processor stamp.
func (p *ReplayProcessor) Process(ctx context.Context, req Request) (iter.Seq2[chunk.Chunk, error], error) {
	if _, err := p.Validate(req.ModelID); err != nil {
		return nil, err
	}
	return p.stream(req.Cancel, func(e *emitter) {
		for _, c := range p.recorded {
			if err := ctx.Err(); err != nil {
				e.fail(err)
				return
			}
			if p.delay > 0 {
				select {
				case <-time.After(p.delay):
				case <-ctx.Done():
					e.fail(ctx.Err())
					return
				case <-req.Cancel.Done():
					return
				}
			}
			if !e.emit(c) {
				return
			}
		}
	}), nil
}

// Verify ReplayProcessor implements Processor
var _ Processor = (*ReplayProcessor)(nil)
