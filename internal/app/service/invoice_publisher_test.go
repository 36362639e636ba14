package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/stretchr/testify/require"
)

// fakeJetStream records calls; unimplemented methods panic through the
// embedded nil interface.
type fakeJetStream struct {
	nats.JetStreamContext

	streams    map[string]*nats.StreamConfig
	addErr     error
	publishErr error
	subjects   []string
	payloads   [][]byte
}

func newFakeJetStream() *fakeJetStream {
	return &fakeJetStream{streams: map[string]*nats.StreamConfig{}}
}

func (f *fakeJetStream) StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	cfg, ok := f.streams[stream]
	if !ok {
		return nil, nats.ErrStreamNotFound
	}
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.streams[cfg.Name] = cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: model.InvoiceStreamName, Sequence: uint64(len(f.payloads))}, nil
}

func TestInvoicePublisher_EnsureStream(t *testing.T) {
	js := newFakeJetStream()
	p := NewInvoicePublisher(js)

	require.NoError(t, p.EnsureStream())
	cfg, ok := js.streams[model.InvoiceStreamName]
	require.True(t, ok)
	require.Equal(t, []string{model.InvoiceStreamSubject}, cfg.Subjects)
	require.EqualValues(t, model.InvoiceStreamMaxBytes, cfg.MaxBytes)

	// Existing stream is left alone.
	js.addErr = errors.New("must not be called")
	require.NoError(t, p.EnsureStream())
}

func TestInvoicePublisher_EnsureStreamFailure(t *testing.T) {
	js := newFakeJetStream()
	js.addErr = errors.New("insufficient resources")

	err := NewInvoicePublisher(js).EnsureStream()
	require.ErrorIs(t, err, js.addErr)
}

func TestInvoicePublisher_Publish(t *testing.T) {
	js := newFakeJetStream()
	p := NewInvoicePublisher(js)

	event := model.InvoiceEvent{
		ID:          "evt-1",
		LinkID:      "abc123",
		Wallet:      "wallet-1",
		PaymentHash: "ph",
		AmountMsat:  21_000,
		Comment:     "gm",
		CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.Publish(event))

	require.Equal(t, []string{model.InvoiceStreamSubject}, js.subjects)
	var got model.InvoiceEvent
	require.NoError(t, json.Unmarshal(js.payloads[0], &got))
	require.Equal(t, event, got)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(js.payloads[0], &raw))
	require.Equal(t, "abc123", raw["link_id"])
	require.NotContains(t, raw, "webhook_url")

	js.publishErr = nats.ErrNoStreamResponse
	require.ErrorIs(t, p.Publish(event), nats.ErrNoStreamResponse)
}
