// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file adapts pkg/nats/client.go's connection/reconnect/subscription
// bookkeeping into a narrow bridge between a local Bus and a NATS subject,
// so a multi-process test harness can run several gateway processes
// against one frame stream without each needing its own WAL replay:
// one process's Publisher re-publishes every matching envelope onto a
// subject, any number of other processes' Subscribers replay them into
// their own local Bus, each at its own read cursor.
package bus

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/iotgw/edgegateway/internal/frame"
	"github.com/iotgw/edgegateway/pkg/log"
)

// ReplicationConfig points a Publisher or Subscriber at a NATS server and
// subject used purely as a frame-envelope relay, not a broker for any
// other part of the gateway.
type ReplicationConfig struct {
	Address       string `json:"address"`
	Subject       string `json:"subject"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	CredsFilePath string `json:"creds_file_path,omitempty"`
}

func (c *ReplicationConfig) dialOpts() []nats.Option {
	var opts []nats.Option
	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	if c.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(c.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("bus: replication disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("bus: replication reconnected to %s", nc.ConnectedUrl())
	}))
	return opts
}

// Publisher re-publishes every envelope a local Bus emits onto a NATS
// subject, encoded with frame.EncodeEnvelope so a Subscriber on another
// process can decode it without sharing the WAL.
type Publisher struct {
	conn *nats.Conn
	recv *Receiver

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewPublisher dials cfg.Address and subscribes to b with filter,
// forwarding every matching envelope onto cfg.Subject until Close.
func NewPublisher(b *Bus, cfg ReplicationConfig, filter Filter) (*Publisher, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("bus: replication address is required")
	}
	nc, err := nats.Connect(cfg.Address, cfg.dialOpts()...)
	if err != nil {
		return nil, fmt.Errorf("bus: replication connect: %w", err)
	}

	p := &Publisher{
		conn:   nc,
		recv:   b.Subscribe(filter),
		stopCh: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop(cfg.Subject)
	return p, nil
}

func (p *Publisher) loop(subject string) {
	defer p.wg.Done()
	for {
		env, err := p.recv.Recv()
		if err != nil {
			return
		}
		b, err := frame.EncodeEnvelope(env)
		if err != nil {
			log.Errorf("bus: replication encode: %v", err)
			continue
		}
		if err := p.conn.Publish(subject, b); err != nil {
			log.Errorf("bus: replication publish: %v", err)
		}
	}
}

// Close stops forwarding and releases the NATS connection.
func (p *Publisher) Close() {
	p.stopped.Do(func() {
		close(p.stopCh)
		p.recv.Close()
	})
	p.wg.Wait()
	p.conn.Close()
}

// Subscriber decodes envelopes received on a NATS subject and re-publishes
// each onto a local Bus, giving a second process its own independent copy
// of the stream (with its own sequence numbers assigned by the local
// Bus.Publish) without needing direct WAL access.
type Subscriber struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewSubscriber dials cfg.Address, subscribes to cfg.Subject, and injects
// every decoded envelope into dst via Publish.
func NewSubscriber(dst *Bus, cfg ReplicationConfig) (*Subscriber, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("bus: replication address is required")
	}
	nc, err := nats.Connect(cfg.Address, cfg.dialOpts()...)
	if err != nil {
		return nil, fmt.Errorf("bus: replication connect: %w", err)
	}

	sub, err := nc.Subscribe(cfg.Subject, func(msg *nats.Msg) {
		env, _, err := frame.DecodeEnvelope(msg.Data)
		if err != nil {
			log.Errorf("bus: replication decode: %v", err)
			return
		}
		if _, err := dst.Publish(env); err != nil {
			log.Errorf("bus: replication re-publish: %v", err)
		}
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: replication subscribe: %w", err)
	}

	return &Subscriber{conn: nc, sub: sub}, nil
}

// Close unsubscribes and releases the NATS connection.
func (s *Subscriber) Close() {
	if err := s.sub.Unsubscribe(); err != nil {
		log.Warnf("bus: replication unsubscribe: %v", err)
	}
	s.conn.Close()
}
