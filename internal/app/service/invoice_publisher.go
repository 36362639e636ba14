package service

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/lnurlp/internal/app/model"
)

// NATSInvoicePublisher publishes invoice events to NATS JetStream.
type NATSInvoicePublisher struct {
	js nats.JetStreamContext
}

// NewInvoicePublisher creates a new invoice event publisher.
func NewInvoicePublisher(js nats.JetStreamContext) *NATSInvoicePublisher {
	return &NATSInvoicePublisher{js: js}
}

// EnsureStream creates the invoice stream if it does not exist yet.
func (p *NATSInvoicePublisher) EnsureStream() error {
	if _, err := p.js.StreamInfo(model.InvoiceStreamName); err == nil {
		return nil
	}
	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:     model.InvoiceStreamName,
		Subjects: []string{model.InvoiceStreamSubject},
		MaxBytes: model.InvoiceStreamMaxBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish publishes an invoice event to the stream.
func (p *NATSInvoicePublisher) Publish(event model.InvoiceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.InvoiceStreamSubject, data)
	return err
}
