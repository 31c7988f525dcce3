package producer

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"

	"StreamMin-Cli/pkg/clients"
	"StreamMin-Cli/pkg/config"
	"StreamMin-Cli/pkg/messaging"
	"StreamMin-Cli/pkg/observability"
)

// Producer appends {header, body} payloads to one stream.
type Producer struct {
	stream messaging.Stream
	tracer trace.Tracer
}

// New returns a producer writing to stream.
func New(stream messaging.Stream) (*Producer, error) {
	if stream == nil {
		return nil, errors.New("producer requires a stream")
	}
	return &Producer{stream: stream, tracer: observability.Tracer()}, nil
}

// NewFromRedis connects to redis with cfg and returns a producer for cfg.Stream.
func NewFromRedis(cfg *config.Config) (*Producer, error) {
	cli, err := clients.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	stream, err := messaging.NewRedisStreamsWithClient(cli, cfg.Stream, cfg.MaxLen)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return New(stream)
}

// Produce appends body with header (nil means empty) and returns the new entry id.
func (p *Producer) Produce(ctx context.Context, body, header map[string]interface{}) (string, error) {
	ctx, span := p.tracer.Start(ctx, "producer.produce", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	payload, err := messaging.EncodePayload(body, header)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("encode payload: %w", err)
	}
	id, err := p.stream.Append(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("append to stream: %w", err)
	}
	span.SetAttributes(attribute.String("messaging.message.id", id))
	klog.V(4).Infof("produced message id=%s", id)
	return id, nil
}

// Stats reports the stream length and the pending count of group.
func (p *Producer) Stats(ctx context.Context, group string) (int64, int64, error) {
	return p.stream.Stats(ctx, group)
}

// Close releases the underlying stream.
func (p *Producer) Close(ctx context.Context) error {
	return p.stream.Close(ctx)
}
