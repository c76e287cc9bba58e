// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// feedPort is the appliance's fixed feed intake port.
const feedPort = 19900

// multipartBoundary is fixed by the appliance's feed parser.
const multipartBoundary = "<<"

// FailureKind classifies where a feed submission broke. The push engine
// consults a distinct error-handler method per kind.
type FailureKind int

const (
	// FailedToConnect covers connection establishment failures.
	FailedToConnect FailureKind = iota
	// FailedWriting covers failures while transmitting the manifest.
	FailedWriting
	// FailedReadingReply covers failures reading or understanding the
	// appliance's reply.
	FailedReadingReply
)

func (k FailureKind) String() string {
	switch k {
	case FailedToConnect:
		return "failed-to-connect"
	case FailedWriting:
		return "failed-writing"
	default:
		return "failed-reading-reply"
	}
}

// SendError is a classified feed submission failure. GsaResponse carries
// the appliance's reply body when one was read, for diagnostics.
type SendError struct {
	Kind        FailureKind
	Err         error
	GsaResponse string
}

func (e *SendError) Error() string {
	if e.GsaResponse != "" {
		return fmt.Sprintf("feed: %s: %v (appliance replied %q)", e.Kind, e.Err, e.GsaResponse)
	}
	return fmt.Sprintf("feed: %s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Sender submits one manifest per call.
type Sender interface {
	Send(ctx context.Context, datasource, xmlDoc string) error
}

// HTTPSender POSTs manifests to the appliance feed port, classifying
// failures. A circuit breaker in front of the POST fails fast while the
// appliance is unreachable so retry loops do not pile up dials.
type HTTPSender struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewHTTPSender targets the appliance at the given hostname. secure selects
// https for the feed connection.
func NewHTTPSender(gsaHostname string, secure bool, client *http.Client) *HTTPSender {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	settings := gobreaker.Settings{
		Name:    "gsa-feed",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &HTTPSender{
		url:     fmt.Sprintf("%s://%s:%d/xmlfeed", scheme, gsaHostname, feedPort),
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Send submits one manifest. The returned error, when non-nil, is always a
// *SendError.
func (s *HTTPSender) Send(ctx context.Context, datasource, xmlDoc string) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.post(ctx, datasource, xmlDoc)
	})
	if err == nil {
		return nil
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr
	}
	// Breaker-open errors never reached the network; treat as a connect
	// failure so the standard retry policy applies.
	return &SendError{Kind: FailedToConnect, Err: err}
}

func (s *HTTPSender) post(ctx context.Context, datasource, xmlDoc string) error {
	body, contentType, err := encodeMultipart(datasource, xmlDoc)
	if err != nil {
		return &SendError{Kind: FailedWriting, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return &SendError{Kind: FailedToConnect, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return &SendError{Kind: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SendError{Kind: FailedReadingReply, Err: err}
	}
	if got := strings.TrimSpace(string(reply)); got != "Success" {
		return &SendError{
			Kind:        FailedReadingReply,
			Err:         fmt.Errorf("appliance rejected feed (status %d)", resp.StatusCode),
			GsaResponse: got,
		}
	}
	return nil
}

// classifyTransportError separates connection establishment failures from
// failures while the request body was in flight.
func classifyTransportError(err error) FailureKind {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return FailedToConnect
	}
	return FailedWriting
}

// encodeMultipart renders the three-part form the feed parser expects,
// using its fixed boundary.
func encodeMultipart(datasource, xmlDoc string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(multipartBoundary); err != nil {
		return nil, "", err
	}
	if err := writePart(w, "datasource", "text/plain", datasource); err != nil {
		return nil, "", err
	}
	if err := writePart(w, "feedtype", "text/plain", FeedType); err != nil {
		return nil, "", err
	}
	if err := writePart(w, "data", "text/xml", xmlDoc); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writePart(w *multipart.Writer, name, contentType, value string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.WriteString(part, value)
	return err
}
