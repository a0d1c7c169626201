// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keeper

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject calibration records are published on.
const DefaultSubject = "optionpool.calibration"

// Publisher announces calibration records.
type Publisher interface {
	Publish(rec *Record) error
	Close()
}

// NATSPublisher publishes records as JSON on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to url. An empty subject means DefaultSubject.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("optionpool-keeper"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) Publish(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}

// Conn returns the underlying connection.
func (p *NATSPublisher) Conn() *nats.Conn {
	return p.conn
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}

type nopPublisher struct{}

func (nopPublisher) Publish(*Record) error { return nil }
func (nopPublisher) Close()                {}
