package capture

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is one captured frame plus acquisition metadata. The Mat is owned
// by whoever holds the Frame and must be closed by them.
type Frame struct {
	Mat       gocv.Mat
	Seq       int64
	Timestamp time.Time
}

// Close releases the frame's pixel data.
func (f Frame) Close() {
	f.Mat.Close()
}

// Buffer is a single-slot, latest-wins exchange between the acquisition
// loop (sole producer) and the processing loop (sole consumer). A write
// evicts any unread frame, so the consumer never works through a backlog:
// completeness is traded for freshness.
type Buffer struct {
	slot chan Frame
}

func NewBuffer() *Buffer {
	return &Buffer{slot: make(chan Frame, 1)}
}

// Put stores the frame, evicting and closing a pending unread frame first.
func (b *Buffer) Put(f Frame) {
	for {
		select {
		case b.slot <- f:
			return
		default:
		}
		select {
		case old := <-b.slot:
			old.Close()
		default:
		}
	}
}

// Read returns the pending frame without blocking. ok is false when no
// new frame has arrived since the last read; the caller keeps its loop
// responsive instead of stalling here.
func (b *Buffer) Read() (Frame, bool) {
	select {
	case f := <-b.slot:
		return f, true
	default:
		return Frame{}, false
	}
}

// Drain discards a pending frame, if any.
func (b *Buffer) Drain() {
	if f, ok := b.Read(); ok {
		f.Close()
	}
}
