// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"sync"
	"time"

	"github.com/iotgw/edgegateway/internal/bus"
	"github.com/iotgw/edgegateway/internal/northbound"
	"github.com/iotgw/edgegateway/pkg/log"
)

// forwarder is the glue between the frame bus and the northbound
// batcher: it subscribes to data frames, feeds each into the per-device
// batch, and flushes/compresses/enqueues a batch onto the outbound
// buffer whenever AddPoint signals a trigger, plus on a fixed ticker so
// a device with steady sub-batch traffic still flushes on its
// BatchTimeout even without a closing point arriving.
type forwarder struct {
	recv     *bus.Receiver
	batcher  *northbound.Batcher
	comp     *northbound.Compressor
	outbound *northbound.OutboundBuffer
	metrics  northbound.Metrics
	topic    string
	qos      byte

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func newForwarder(b *bus.Bus, batcher *northbound.Batcher, comp *northbound.Compressor, outbound *northbound.OutboundBuffer, metrics northbound.Metrics, topic string, qos byte) *forwarder {
	return &forwarder{
		recv:     b.Subscribe(bus.DataOnlyFilter()),
		batcher:  batcher,
		comp:     comp,
		outbound: outbound,
		metrics:  metrics,
		topic:    topic,
		qos:      qos,
		stopCh:   make(chan struct{}),
	}
}

func (f *forwarder) start() {
	f.wg.Add(2)
	go f.recvLoop()
	go f.tickLoop()
}

func (f *forwarder) stop() {
	f.stopped.Do(func() {
		close(f.stopCh)
		f.recv.Close()
	})
	f.wg.Wait()
}

func (f *forwarder) recvLoop() {
	defer f.wg.Done()
	for {
		env, err := f.recv.Recv()
		if err != nil {
			return
		}
		deviceID := env.Data.Meta["device_id"]
		if deviceID == "" {
			continue
		}
		if f.batcher.AddPoint(deviceID, env.Data) {
			f.flush(deviceID)
		}
	}
}

// tickLoop flushes every device whose batch has aged past its time
// trigger even when no new point arrives to notice it.
func (f *forwarder) tickLoop() {
	defer f.wg.Done()
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-f.stopCh:
			return
		case <-t.C:
			for _, deviceID := range f.batcher.PendingDevices() {
				if f.batcher.ShouldFlushNow(deviceID) {
					f.flush(deviceID)
				}
			}
		}
	}
}

func (f *forwarder) flush(deviceID string) {
	msg, ok := f.batcher.Flush(deviceID)
	if !ok {
		return
	}
	if err := northbound.PushMessage(f.outbound, f.comp, f.topic+"/"+deviceID, f.qos, msg, f.metrics); err != nil {
		log.Errorf("service: push message for device %s: %s", deviceID, err.Error())
	}
}
