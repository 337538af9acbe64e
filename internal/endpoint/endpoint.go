// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package endpoint

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// Scheme is a supported endpoint transport (spec.md 4.C).
type Scheme string

const (
	SchemeTCP    Scheme = "tcp"
	SchemeTLS    Scheme = "tls"
	SchemeSerial Scheme = "serial"
	SchemeWS     Scheme = "ws"
)

// EndpointURL is a parsed endpoint address: scheme://host:port[/path].
// Serial endpoints encode the device path in Path (e.g. serial:///dev/ttyUSB0)
// and have no meaningful Host/Port.
type EndpointURL struct {
	Scheme Scheme
	Host   string
	Port   string
	Path   string
	Raw    string
}

// ParseEndpointURL validates and parses an endpoint address string.
func ParseEndpointURL(raw string) (EndpointURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return EndpointURL{}, fmt.Errorf("endpoint: invalid url %q: %w", raw, err)
	}
	scheme := Scheme(u.Scheme)
	switch scheme {
	case SchemeTCP, SchemeTLS, SchemeSerial, SchemeWS:
	default:
		return EndpointURL{}, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
	}
	eu := EndpointURL{Scheme: scheme, Host: u.Hostname(), Port: u.Port(), Path: u.Path, Raw: raw}
	if scheme == SchemeSerial && eu.Path == "" {
		eu.Path = u.Opaque
	}
	return eu, nil
}

// HostPort returns "host:port" for schemes dialed over net.Dial.
func (u EndpointURL) HostPort() string {
	return net.JoinHostPort(u.Host, u.Port)
}

// String returns the original address, for logging.
func (u EndpointURL) String() string { return u.Raw }

// Key returns the string used to look up this endpoint's singleton Pool.
func (u EndpointURL) Key() string { return u.Raw }

// defaultDialer resolves the Dialer to use for a given scheme, falling
// back to an error for schemes that require caller-supplied transports
// (serial, ws) when none was registered.
func defaultDialer(reg *Registry, scheme Scheme) Dialer {
	if d, ok := reg.customDialers[scheme]; ok {
		return d
	}
	switch scheme {
	case SchemeTCP:
		return tcpDialer
	case SchemeTLS:
		return tlsDialer
	default:
		return func(ctx context.Context, url EndpointURL) (net.Conn, error) {
			return nil, fmt.Errorf("%w: no dialer registered for scheme %q", ErrUnknownScheme, url.Scheme)
		}
	}
}
