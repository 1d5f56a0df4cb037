package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type writeRecord struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu       sync.Mutex
	writes   []writeRecord
	controls []writeRecord
	closed   bool
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writeRecord{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, writeRecord{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWSWriter) snapshotWrites() []writeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]writeRecord, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeWSWriter) snapshotControls() []writeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]writeRecord, len(f.controls))
	copy(out, f.controls)
	return out
}

func (f *fakeWSWriter) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestWriterDrainsPriorityBeforeNormal(t *testing.T) {
	ws := &fakeWSWriter{}
	priority := make(chan outboundFrame, 4)
	normal := make(chan outboundFrame, 4)

	// Normal frames were queued first, but the priority frame must still
	// go out ahead of them.
	normal <- outboundFrame{textPayload: []byte("n1")}
	normal <- outboundFrame{binaryPayload: []byte{0x01}}
	priority <- outboundFrame{textPayload: []byte("p1")}
	close(priority)
	close(normal)

	w := outboundWriter{ws: ws, ctx: context.Background(), priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	writes := ws.snapshotWrites()
	if len(writes) != 3 {
		t.Fatalf("wrote %d frames, want 3", len(writes))
	}
	if writes[0].data != "p1" {
		t.Errorf("first write = %q, want the priority frame", writes[0].data)
	}
	if writes[1].messageType != websocket.TextMessage || writes[1].data != "n1" {
		t.Errorf("second write = %+v", writes[1])
	}
	if writes[2].messageType != websocket.BinaryMessage {
		t.Errorf("third write type = %d, want binary", writes[2].messageType)
	}
}

func TestWriterStopsWhenBothChannelsClose(t *testing.T) {
	ws := &fakeWSWriter{}
	priority := make(chan outboundFrame)
	normal := make(chan outboundFrame)
	close(priority)
	close(normal)

	w := outboundWriter{ws: ws, ctx: context.Background(), priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(ws.snapshotWrites()) != 0 {
		t.Errorf("wrote %d frames, want 0", len(ws.snapshotWrites()))
	}
	if ws.isClosed() {
		t.Error("socket closed without a shutdown")
	}
}

func TestWriterShutdownFlushesPriorityAndCloses(t *testing.T) {
	ws := &fakeWSWriter{}
	priority := make(chan outboundFrame, 4)
	normal := make(chan outboundFrame, 4)
	priority <- outboundFrame{textPayload: []byte("handoff")}
	priority <- outboundFrame{textPayload: []byte("error")}
	normal <- outboundFrame{textPayload: []byte("stale")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := outboundWriter{ws: ws, ctx: ctx, priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	writes := ws.snapshotWrites()
	if len(writes) != 2 {
		t.Fatalf("flushed %d frames, want the 2 priority frames", len(writes))
	}
	if writes[0].data != "handoff" || writes[1].data != "error" {
		t.Errorf("flushed = %+v", writes)
	}

	controls := ws.snapshotControls()
	if len(controls) != 1 || controls[0].messageType != websocket.CloseMessage {
		t.Fatalf("controls = %+v, want one close frame", controls)
	}
	if !ws.isClosed() {
		t.Error("socket not closed after shutdown")
	}
}

func TestWriterPingsWhenIdle(t *testing.T) {
	ws := &fakeWSWriter{}
	priority := make(chan outboundFrame)
	normal := make(chan outboundFrame)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := outboundWriter{ws: ws, ctx: ctx, pingInterval: 10 * time.Millisecond, priority: priority, normal: normal}
	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		controls := ws.snapshotControls()
		if len(controls) > 0 && controls[0].messageType == websocket.PingMessage {
			cancel()
			<-done
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no ping sent while idle")
}
