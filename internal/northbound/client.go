// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package northbound

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iotgw/edgegateway/pkg/log"
)

// ConnState is the MQTT publisher's own reconnect state machine, tracked
// independently of paho's internal connection bookkeeping so spec.md
// 4.H's Disconnected/Connecting/Connected/Failed transitions are
// observable and drive our own backoff rather than paho's built-in
// auto-reconnect (disabled here via SetAutoReconnect(false)).
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ClientConfig configures the MQTT publisher.
type ClientConfig struct {
	Broker            string // e.g. tcp://broker.local:1883
	ClientID          string
	Username          string
	Password          string
	QoS               byte
	PublishTimeout    time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	MaxReconnectTries int // 0 = unlimited; exhausting it moves to StateFailed
}

func (c *ClientConfig) setDefaults() {
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 60 * time.Second
	}
}

// Client is a singleton-style MQTT publisher, grounded on pkg/nats/client.go's
// option-building and Connect/GetClient shape but generalized from NATS's
// own self-managed reconnection to an explicit state machine, since
// spec.md 4.H requires the gateway to own the Disconnected→Connecting→
// Connected→{Disconnected,Failed} transitions and backoff itself.
type Client struct {
	cfg     ClientConfig
	opts    *mqtt.ClientOptions
	buf     *OutboundBuffer
	metrics Metrics

	mu      sync.Mutex
	client  mqtt.Client
	state   atomic.Int32
	tries   int
	stopCh  chan struct{}
	stopped sync.Once
}

// Metrics is the narrow reporting interface for the northbound package,
// implemented by internal/metrics against prometheus/client_golang.
type Metrics interface {
	IncPublishTotal()
	IncPublishFailTotal()
	IncBufferDropTotal()
	SetConnState(state int32)
	SetBufferDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) IncPublishTotal()     {}
func (noopMetrics) IncPublishFailTotal() {}
func (noopMetrics) IncBufferDropTotal()  {}
func (noopMetrics) SetConnState(int32)   {}
func (noopMetrics) SetBufferDepth(int)   {}

// NewClient builds an MQTT publisher bound to buf. Call Start to begin
// connecting and draining the buffer.
func NewClient(cfg ClientConfig, buf *OutboundBuffer, metrics Metrics) *Client {
	cfg.setDefaults()
	if metrics == nil {
		metrics = noopMetrics{}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(false). // reconnection is driven by our own state machine
		SetCleanSession(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := &Client{cfg: cfg, opts: opts, buf: buf, metrics: metrics, stopCh: make(chan struct{})}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("northbound: mqtt connection lost: %v", err)
		c.setState(StateDisconnected)
	})
	return c
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
	c.metrics.SetConnState(int32(s))
}

// State returns the publisher's current reconnect state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Start launches the connect-and-publish loop in the background.
func (c *Client) Start() {
	go c.run()
}

// Stop disconnects and halts the publish loop.
func (c *Client) Stop() {
	c.stopped.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	c.mu.Unlock()
}

func (c *Client) run() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if c.State() != StateConnected {
			if !c.connectWithBackoff() {
				return // StateFailed: MaxReconnectTries exhausted
			}
		}
		c.drainLoop()
	}
}

// connectWithBackoff blocks until connected or stopped, retrying with
// exponential backoff (base doubling, capped at ReconnectMax, ±20%
// jitter) per attempt. Returns false if MaxReconnectTries is exhausted
// first, in which case the state is left at StateFailed.
func (c *Client) connectWithBackoff() bool {
	c.setState(StateConnecting)
	delay := c.cfg.ReconnectBase

	for {
		select {
		case <-c.stopCh:
			return false
		default:
		}

		c.mu.Lock()
		c.client = mqtt.NewClient(c.opts)
		token := c.client.Connect()
		c.mu.Unlock()

		ok := token.WaitTimeout(c.cfg.PublishTimeout)
		if ok && token.Error() == nil {
			c.setState(StateConnected)
			c.tries = 0
			return true
		}
		log.Warnf("northbound: mqtt connect failed: %v", token.Error())

		c.tries++
		if c.cfg.MaxReconnectTries > 0 && c.tries >= c.cfg.MaxReconnectTries {
			c.setState(StateFailed)
			return false
		}

		sleep := jitteredDelay(delay)
		select {
		case <-time.After(sleep):
		case <-c.stopCh:
			return false
		}
		delay = nextBackoff(delay, c.cfg.ReconnectMax)
	}
}

// jitteredDelay applies ±20% jitter to base.
func jitteredDelay(base time.Duration) time.Duration {
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(float64(base) * jitter)
}

// nextBackoff doubles cur, capped at max.
func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

// drainLoop publishes items from the front of buf while connected. QoS 0
// items are popped immediately after the publish call returns (fire and
// forget, matching spec.md 4.H's "dropped on disconnect" rule); QoS 1/2
// items stay at the head of the buffer until the broker acks them, so a
// mid-flight disconnect naturally retries the same item once reconnected.
func (c *Client) drainLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		if c.State() != StateConnected {
			return
		}

		item, ok := c.buf.Peek()
		if !ok {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		c.metrics.SetBufferDepth(c.buf.Len())
		topic := item.Topic
		if item.Compressed {
			topic = topic + "/zstd"
		}

		c.mu.Lock()
		cl := c.client
		c.mu.Unlock()
		token := cl.Publish(topic, item.QoS, false, item.Payload)

		if item.QoS == 0 {
			c.buf.Pop()
			c.metrics.IncPublishTotal()
			continue
		}

		if !token.WaitTimeout(c.cfg.PublishTimeout) || token.Error() != nil {
			c.metrics.IncPublishFailTotal()
			log.Warnf("northbound: publish failed, will retry: %v", token.Error())
			c.setState(StateDisconnected)
			return
		}
		c.buf.Pop()
		c.metrics.IncPublishTotal()
	}
}

// PushMessage serializes msg (compressing it if configured) and enqueues
// it on the outbound buffer, reporting a metric if an older item had to be
// dropped to make room.
func PushMessage(buf *OutboundBuffer, comp *Compressor, topic string, qos byte, msg Message, metrics Metrics) error {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	raw, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("northbound: marshal message: %w", err)
	}
	payload, compressed, err := comp.CompressIfAboveThreshold(raw)
	if err != nil {
		return err
	}
	if buf.Push(OutboundItem{Topic: topic, Payload: payload, Compressed: compressed, QoS: qos}) {
		metrics.IncBufferDropTotal()
	}
	return nil
}
