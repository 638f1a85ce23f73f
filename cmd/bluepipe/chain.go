package main

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluepipe/bluepipe"
	"github.com/bluepipe/bluepipe/audio"
	"github.com/bluepipe/bluepipe/codec"
	"github.com/bluepipe/bluepipe/transport"
)

// agingChain is one self-contained loopback load chain. Streaming
// codecs run source encode, wire forward, sink decode; voice codecs
// run a duplex echo on a single connection. received counts the
// bytes that made it through the whole chain.
type agingChain struct {
	received atomic.Int64
	wg       sync.WaitGroup
	remotes  []io.Closer
}

func startChain(reg *bluepipe.Registry, addr string, cfg codec.Config, mtu int) (*agingChain, error) {
	if cfg.Codec.Voice() {
		return startVoiceChain(reg, addr, cfg, mtu)
	}
	return startStreamChain(reg, addr, cfg, mtu)
}

func startStreamChain(reg *bluepipe.Registry, addr string, cfg codec.Config, mtu int) (*agingChain, error) {
	c := &agingChain{}

	src, err := reg.Create(transport.A2DPSource, addr, cfg)
	if err != nil {
		return nil, err
	}
	srcBT, srcBTRemote := transport.NewFramePipe(256)
	srcPCM, srcPCMRemote := transport.NewBytePipe(256 * 1024)
	src.BT = srcBT
	src.PCM = srcPCM
	src.MTURead = mtu
	src.MTUWrite = mtu

	sink, err := reg.Create(transport.A2DPSink, addr, cfg)
	if err != nil {
		return nil, err
	}
	sinkBT, sinkBTRemote := transport.NewFramePipe(256)
	sinkPCM, sinkPCMRemote := transport.NewBytePipe(256 * 1024)
	sink.BT = sinkBT
	sink.PCM = sinkPCM
	sink.MTURead = mtu
	sink.MTUWrite = mtu

	c.remotes = []io.Closer{srcBTRemote, srcPCMRemote, sinkBTRemote, sinkPCMRemote}

	if err := src.Start(); err != nil {
		return nil, err
	}
	if err := sink.Start(); err != nil {
		return nil, err
	}

	c.feedSine(srcPCMRemote, cfg.Channels)
	c.forwardFrames(srcBTRemote, sinkBTRemote)
	c.drain(sinkPCMRemote)
	return c, nil
}

func startVoiceChain(reg *bluepipe.Registry, addr string, cfg codec.Config, mtu int) (*agingChain, error) {
	c := &agingChain{}

	conn, err := reg.Create(transport.SCOVoice, addr, cfg)
	if err != nil {
		return nil, err
	}
	bt, btRemote := transport.NewFramePipe(256)
	spk, spkRemote := transport.NewBytePipe(256 * 1024)
	mic, micRemote := transport.NewBytePipe(256 * 1024)
	conn.BT = bt
	conn.Spk = spk
	conn.Mic = mic
	conn.MTURead = mtu
	conn.MTUWrite = mtu

	c.remotes = []io.Closer{btRemote, spkRemote, micRemote}

	if err := conn.Start(); err != nil {
		return nil, err
	}

	c.feedSine(spkRemote, cfg.Channels)
	c.echoFrames(btRemote)
	c.drain(micRemote)
	return c, nil
}

// feedSine writes a paced endless sine into w until the pipe closes.
func (c *agingChain) feedSine(w io.Writer, channels uint8) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		pcm := make([]int16, 1024)
		x := 0
		for {
			x = audio.Sine(pcm, int(channels), x, 0.01)
			if _, err := w.Write(audio.Bytes(pcm)); err != nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
}

// forwardFrames relays wire frames from the source's far end to the
// sink's far end.
func (c *agingChain) forwardFrames(from, to transport.FrameRW) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		buf := make([]byte, 4096)
		for {
			n, err := from.ReadFrame(buf)
			if err != nil {
				return
			}
			if _, err := to.WriteFrame(buf[:n]); err != nil {
				return
			}
		}
	}()
}

// echoFrames bounces every outbound voice frame straight back.
func (c *agingChain) echoFrames(rw transport.FrameRW) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		buf := make([]byte, 4096)
		for {
			n, err := rw.ReadFrame(buf)
			if err != nil {
				return
			}
			if _, err := rw.WriteFrame(buf[:n]); err != nil {
				return
			}
		}
	}()
}

// drain counts the bytes arriving at the chain's end.
func (c *agingChain) drain(r io.Reader) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		buf := make([]byte, 8192)
		for {
			n, err := r.Read(buf)
			c.received.Add(int64(n))
			if err != nil {
				return
			}
		}
	}()
}

// wait closes the chain's far-end descriptors and waits for its
// goroutines to exit.
func (c *agingChain) wait() {
	for _, r := range c.remotes {
		_ = r.Close()
	}
	c.wg.Wait()
}
