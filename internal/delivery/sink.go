package delivery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"smarthub/internal/global"
	"smarthub/pkg/frame"
	"strings"
	"time"

	lumberjack "github.com/elastic/go-lumber/client/v2"
)

// Live connection to one backend
type Sink interface {
	Send(ctx context.Context, f frame.Frame) (err error)
	Close() (err error)
	Endpoint() (address string)
}

type dialFunc func(ctx context.Context, endpoint Endpoint, opts sinkOptions) (sink Sink, err error)

type sinkOptions struct {
	registry     *frame.Registry
	gateway      string
	dialTimeout  time.Duration
	writeTimeout time.Duration
}

const (
	SchemeTCP   string = "tcp"
	SchemeBeats string = "beats"
)

type Endpoint struct {
	Scheme string
	Host   string // host:port
}

func (endpoint Endpoint) String() (text string) {
	text = endpoint.Scheme + "://" + endpoint.Host
	return
}

// Parses "tcp://host:port", "beats://host:port" or a bare "host:port" (tcp)
func ParseEndpoint(address string) (endpoint Endpoint, err error) {
	address = strings.TrimSpace(address)
	if address == "" {
		err = fmt.Errorf("empty backend address")
		return
	}
	if !strings.Contains(address, "://") {
		address = SchemeTCP + "://" + address
	}

	parsed, err := url.Parse(address)
	if err != nil {
		err = fmt.Errorf("invalid backend address %q: %w", address, err)
		return
	}
	switch parsed.Scheme {
	case SchemeTCP, SchemeBeats:
	default:
		err = fmt.Errorf("unsupported backend scheme %q", parsed.Scheme)
		return
	}

	_, port, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		err = fmt.Errorf("invalid backend address %q: %w", address, err)
		return
	}
	if port == "" {
		err = fmt.Errorf("backend address %q has no port", address)
		return
	}

	endpoint = Endpoint{Scheme: parsed.Scheme, Host: parsed.Host}
	return
}

func dialSink(ctx context.Context, endpoint Endpoint, opts sinkOptions) (sink Sink, err error) {
	switch endpoint.Scheme {
	case SchemeBeats:
		sink, err = dialBeats(endpoint, opts)
	default:
		sink, err = dialLine(ctx, endpoint, opts)
	}
	return
}

// Line protocol over a plain TCP stream. Writes are fire and forget.
type lineSink struct {
	conn     net.Conn
	endpoint Endpoint
	opts     sinkOptions
}

func dialLine(ctx context.Context, endpoint Endpoint, opts sinkOptions) (sink *lineSink, err error) {
	dialer := net.Dialer{Timeout: opts.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.Host)
	if err != nil {
		err = fmt.Errorf("failed to connect to %s: %w", endpoint, err)
		return
	}

	sink = &lineSink{conn: conn, endpoint: endpoint, opts: opts}
	return
}

func (sink *lineSink) Send(ctx context.Context, f frame.Frame) (err error) {
	line, err := sink.opts.registry.LineProtocol(f, sink.opts.gateway)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConvert, err)
		return
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	deadline := time.Now().Add(sink.opts.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	err = sink.conn.SetWriteDeadline(deadline)
	if err != nil {
		return
	}

	_, err = sink.conn.Write([]byte(line))
	return
}

func (sink *lineSink) Close() (err error) {
	err = sink.conn.Close()
	return
}

func (sink *lineSink) Endpoint() (address string) {
	address = sink.endpoint.String()
	return
}

// Lumberjack v2 (Logstash beats input). Each frame is one event.
type beatsSink struct {
	client   *lumberjack.SyncClient
	endpoint Endpoint
	opts     sinkOptions
}

func dialBeats(endpoint Endpoint, opts sinkOptions) (sink *beatsSink, err error) {
	compression := lumberjack.CompressionLevel(0)
	timeout := lumberjack.Timeout(opts.writeTimeout)

	client, err := lumberjack.SyncDialWith(func(network, address string) (net.Conn, error) {
		return net.DialTimeout(network, address, opts.dialTimeout)
	}, endpoint.Host, compression, timeout)
	if err != nil {
		err = fmt.Errorf("failed connection to beats server %s: %w", endpoint, err)
		return
	}

	sink = &beatsSink{client: client, endpoint: endpoint, opts: opts}
	return
}

func (sink *beatsSink) Send(ctx context.Context, f frame.Frame) (err error) {
	event, err := beatsEvent(sink.opts.registry, f, sink.opts.gateway)
	if err != nil {
		return
	}

	_, err = sink.client.Send([]interface{}{event})
	return
}

func (sink *beatsSink) Close() (err error) {
	err = sink.client.Close()
	return
}

func (sink *beatsSink) Endpoint() (address string) {
	address = sink.endpoint.String()
	return
}

// Beats event carrying the same measurement, tags and fields as the line protocol output
func beatsEvent(registry *frame.Registry, f frame.Frame, gateway string) (event map[string]interface{}, err error) {
	point, err := registry.ToPoint(f, gateway)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConvert, err)
		return
	}
	line, err := registry.LineProtocol(f, gateway)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConvert, err)
		return
	}

	tags := make(map[string]interface{})
	for _, tag := range point.TagList() {
		tags[tag.Key] = tag.Value
	}
	fields := make(map[string]interface{})
	for _, field := range point.FieldList() {
		fields[field.Key] = field.Value
	}

	event = map[string]interface{}{
		// Minimum required fields
		"@timestamp": point.Time(),
		"message":    strings.TrimSuffix(line, "\n"),

		"measurement": point.Name(),
		"tags":        tags,
		"fields":      fields,
		"agent": map[string]interface{}{
			"name":    gateway,
			"program": global.ProgBaseName,
			"version": global.ProgVersion,
			"pid":     global.PID,
		},
	}
	return
}
