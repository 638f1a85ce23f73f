package engine

import (
	"io"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bluepipe/bluepipe/audio"
	"github.com/bluepipe/bluepipe/codec"
	"github.com/bluepipe/bluepipe/control"
	"github.com/bluepipe/bluepipe/transport"
)

const stopTimeout = 2 * time.Second

func sbcConfig() codec.Config {
	return codec.Config{Codec: codec.SBC, SampleRate: 44100, Channels: 2, MinBitpool: 2, MaxBitpool: 53}
}

func cvsdConfig() codec.Config {
	return codec.Config{Codec: codec.CVSD, SampleRate: 8000, Channels: 1}
}

// sourceFixture wires an A2DP source connection to loopback
// endpoints and returns the remote ends.
func sourceFixture(t *testing.T, hooks transport.Hooks) (*transport.Transport, transport.FrameRW, io.ReadWriteCloser) {
	t.Helper()
	tr, err := transport.New(transport.A2DPSource, "00:11:22:33:44:55", sbcConfig(), hooks)
	require.NoError(t, err)

	bt, btRemote := transport.NewFramePipe(64)
	pcm, pcmRemote := transport.NewBytePipe(64 * 1024)
	tr.BT = bt
	tr.PCM = pcm
	tr.MTUWrite = 459
	tr.MTURead = 459
	return tr, btRemote, pcmRemote
}

// TestSourceEncodesWithinMTU drives the encoding worker end to end:
// sine PCM in, wire frames out, every frame within the write MTU and
// with strictly increasing sequence numbers.
func TestSourceEncodesWithinMTU(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr, btRemote, pcmRemote := sourceFixture(t, transport.Hooks{})
	workers, err := Start(tr)
	require.NoError(t, err)

	pcm := make([]int16, 1024*10)
	audio.Sine(pcm, 2, 0, 0.01)
	_, err = pcmRemote.Write(audio.Bytes(pcm))
	require.NoError(t, err)

	frames := collectFrames(btRemote)
	var lastSeq uint16
	for i := 0; i < 8; i++ {
		frame := nextFrame(t, frames)
		assert.LessOrEqual(t, len(frame), tr.MTUWrite)

		packet := &rtp.Packet{}
		require.NoError(t, packet.Unmarshal(frame))
		if i > 0 {
			assert.Equal(t, lastSeq+1, packet.SequenceNumber)
		}
		lastSeq = packet.SequenceNumber
	}

	require.NoError(t, StopAll(workers, stopTimeout))
	assert.Equal(t, transport.StateIdle, tr.State())
	pcmRemote.Close()
	btRemote.Close()
	tr.Unref()
}

// TestSinkDecodesContinuously feeds captured wire frames to a
// decoding worker and expects a continuously increasing count of
// decoded samples on the local endpoint.
func TestSinkDecodesContinuously(t *testing.T) {
	defer goleak.VerifyNone(t)

	enc, err := codec.NewStreamEncoder(sbcConfig(), 459)
	require.NoError(t, err)
	pcm := make([]int16, 1024*10)
	audio.Sine(pcm, 2, 0, 0.01)
	frames, consumed, err := enc.Encode(pcm)
	require.NoError(t, err)
	require.NotEmpty(t, frames)

	tr, err := transport.New(transport.A2DPSink, "00:11:22:33:44:55", sbcConfig(), transport.Hooks{})
	require.NoError(t, err)
	bt, btRemote := transport.NewFramePipe(len(frames))
	pcmLocal, pcmRemote := transport.NewBytePipe(64 * 1024)
	tr.BT = bt
	tr.PCM = pcmLocal
	tr.MTURead = 459
	tr.MTUWrite = 459

	workers, err := Start(tr)
	require.NoError(t, err)

	for _, frame := range frames {
		_, err := btRemote.WriteFrame(frame)
		require.NoError(t, err)
	}

	want := consumed * audio.BytesPerSample
	got := make([]byte, 0, want)
	buf := make([]byte, 4096)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		n, err := pcmRemote.Read(buf)
		require.NoError(t, err)
		require.Positive(t, n, "decoded sample count must keep increasing")
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, want, len(got), "decoded byte count matches encoded input")

	require.NoError(t, StopAll(workers, stopTimeout))
	pcmRemote.Close()
	btRemote.Close()
	tr.Unref()
}

// TestTerminateImmediatelyAfterStart verifies the mandatory release
// path: terminate with no data transferred still releases the
// channel and drops the worker's reference.
func TestTerminateImmediatelyAfterStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	released := 0
	tr, btRemote, pcmRemote := sourceFixture(t, transport.Hooks{
		Release: func(*transport.Transport) { released++ },
	})

	workers, err := Start(tr)
	require.NoError(t, err)
	require.NoError(t, StopAll(workers, stopTimeout))

	assert.Equal(t, 1, released, "channel released exactly once")
	assert.Equal(t, transport.StateIdle, tr.State())
	assert.Equal(t, int32(1), tr.Refs(), "worker reference dropped")

	pcmRemote.Close()
	btRemote.Close()
	tr.Unref()
}

// TestAcquireConflictPreventsStart verifies a held channel keeps the
// worker from starting and leaves the refcount untouched.
func TestAcquireConflictPreventsStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr, btRemote, pcmRemote := sourceFixture(t, transport.Hooks{})
	require.NoError(t, tr.Acquire(transport.DirOutbound))

	_, err := Start(tr)
	assert.ErrorIs(t, err, transport.ErrChannelHeld)
	assert.Equal(t, int32(1), tr.Refs())

	tr.ReleaseChannel(transport.DirOutbound)
	pcmRemote.Close()
	btRemote.Close()
	tr.Unref()
}

// TestPauseSuspendsTransfer verifies Pause stops wire writes until
// Resume, with the staged data surviving the suspension.
func TestPauseSuspendsTransfer(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr, btRemote, pcmRemote := sourceFixture(t, transport.Hooks{})
	workers, err := Start(tr)
	require.NoError(t, err)
	frames := collectFrames(btRemote)

	pcm := make([]int16, 1024*4)
	audio.Sine(pcm, 2, 0, 0.01)
	_, err = pcmRemote.Write(audio.Bytes(pcm))
	require.NoError(t, err)
	nextFrame(t, frames)

	tr.Signal(control.Pause)
	waitForState(t, tr, transport.StateSuspended)
	drainFrames(frames, 300*time.Millisecond)

	// More local data while suspended must not reach the wire.
	_, err = pcmRemote.Write(audio.Bytes(pcm))
	require.NoError(t, err)
	noFrame(t, frames, 300*time.Millisecond)

	tr.Signal(control.Resume)
	waitForState(t, tr, transport.StateActive)
	nextFrame(t, frames)

	require.NoError(t, StopAll(workers, stopTimeout))
	pcmRemote.Close()
	btRemote.Close()
	tr.Unref()
}

// TestPauseStopsChannelReads verifies the decode direction stops
// consuming Bluetooth frames while suspended. The frame pipe has
// capacity one, so of the writes attempted after the pause only the
// read outstanding at pause time plus the pipe's own buffer can
// complete; a third completed write would prove the worker kept
// reading the channel.
func TestPauseStopsChannelReads(t *testing.T) {
	defer goleak.VerifyNone(t)

	enc, err := codec.NewStreamEncoder(sbcConfig(), 459)
	require.NoError(t, err)
	pcm := make([]int16, 1024*8)
	audio.Sine(pcm, 2, 0, 0.01)
	frames, _, err := enc.Encode(pcm)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(frames), 4)

	tr, err := transport.New(transport.A2DPSink, "00:11:22:33:44:55", sbcConfig(), transport.Hooks{})
	require.NoError(t, err)
	bt, btRemote := transport.NewFramePipe(1)
	pcmLocal, pcmRemote := transport.NewBytePipe(64 * 1024)
	tr.BT = bt
	tr.PCM = pcmLocal
	tr.MTURead = 459
	tr.MTUWrite = 459

	workers, err := Start(tr)
	require.NoError(t, err)

	// Prime the stream so the pump sits in its next channel read.
	_, err = btRemote.WriteFrame(frames[0])
	require.NoError(t, err)
	buf := make([]byte, 4096)
	n, err := pcmRemote.Read(buf)
	require.NoError(t, err)
	require.Positive(t, n)

	tr.Signal(control.Pause)
	waitForState(t, tr, transport.StateSuspended)

	progress := make(chan int, 3)
	go func() {
		for i := 1; i <= 3; i++ {
			if _, err := btRemote.WriteFrame(frames[i]); err != nil {
				return
			}
			progress <- i
		}
	}()

	completed := 0
	settle := time.After(400 * time.Millisecond)
	for waiting := true; waiting; {
		select {
		case i := <-progress:
			completed = i
		case <-settle:
			waiting = false
		}
	}
	assert.LessOrEqual(t, completed, 2, "channel reads observed while suspended")

	tr.Signal(control.Resume)
	waitForState(t, tr, transport.StateActive)
	require.Eventually(t, func() bool {
		select {
		case i := <-progress:
			completed = i
		default:
		}
		return completed == 3
	}, 2*time.Second, 10*time.Millisecond, "backlogged frames flow again after resume")

	// The backlog decodes once resumed.
	n, err = pcmRemote.Read(buf)
	require.NoError(t, err)
	require.Positive(t, n)

	require.NoError(t, StopAll(workers, stopTimeout))
	pcmRemote.Close()
	btRemote.Close()
	tr.Unref()
}

// TestPingIsLivenessOnly verifies Ping changes no state and refreshes
// the worker's liveness stamp.
func TestPingIsLivenessOnly(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr, btRemote, pcmRemote := sourceFixture(t, transport.Hooks{})
	workers, err := Start(tr)
	require.NoError(t, err)
	w := workers[0]

	before := w.LastAlive()
	time.Sleep(20 * time.Millisecond)
	w.Signal(control.Ping)

	require.Eventually(t, func() bool {
		return w.LastAlive().After(before)
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, transport.StateActive, tr.State())

	require.NoError(t, StopAll(workers, stopTimeout))
	pcmRemote.Close()
	btRemote.Close()
	tr.Unref()
}

// TestLinkLossMarksIdle verifies a Bluetooth-side failure exits the
// worker and moves the connection to idle.
func TestLinkLossMarksIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	enc, err := codec.NewStreamEncoder(sbcConfig(), 459)
	require.NoError(t, err)
	pcm := make([]int16, 1024)
	audio.Sine(pcm, 2, 0, 0.01)
	frames, _, err := enc.Encode(pcm)
	require.NoError(t, err)
	require.NotEmpty(t, frames)

	tr, err := transport.New(transport.A2DPSink, "00:11:22:33:44:55", sbcConfig(), transport.Hooks{})
	require.NoError(t, err)
	bt, btRemote := transport.NewFramePipe(8)
	pcmLocal, pcmRemote := transport.NewBytePipe(64 * 1024)
	tr.BT = bt
	tr.PCM = pcmLocal
	tr.MTURead = 459
	tr.MTUWrite = 459

	workers, err := Start(tr)
	require.NoError(t, err)
	w := workers[0]

	_, err = btRemote.WriteFrame(frames[0])
	require.NoError(t, err)
	// Cutting the link must end the worker on its own.
	btRemote.Close()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on link loss")
	}
	assert.Equal(t, transport.StateIdle, tr.State())
	assert.Equal(t, int32(1), tr.Refs())

	pcmRemote.Close()
	tr.Unref()
}

// collectFrames runs a single reader over the remote frame endpoint
// so that timed-out waits never leave a stale reader competing for
// the next frame. The goroutine exits when the endpoint closes.
func collectFrames(rw transport.FrameRW) <-chan []byte {
	ch := make(chan []byte, 64)
	go func() {
		defer close(ch)
		buf := make([]byte, 4096)
		for {
			n, err := rw.ReadFrame(buf)
			if err != nil {
				return
			}
			frame := make([]byte, n)
			copy(frame, buf[:n])
			ch <- frame
		}
	}()
	return ch
}

func nextFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case frame, ok := <-frames:
		if !ok {
			t.Fatal("frame endpoint closed")
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a wire frame")
	}
	return nil
}

func drainFrames(frames <-chan []byte, window time.Duration) {
	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		select {
		case <-frames:
		case <-timer.C:
			return
		}
	}
}

func noFrame(t *testing.T, frames <-chan []byte, window time.Duration) {
	t.Helper()
	select {
	case frame := <-frames:
		t.Fatalf("unexpected wire frame of %d bytes", len(frame))
	case <-time.After(window):
	}
}

func waitForState(t *testing.T, tr *transport.Transport, want transport.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return tr.State() == want
	}, 2*time.Second, 10*time.Millisecond, "connection did not reach %s", want)
}
