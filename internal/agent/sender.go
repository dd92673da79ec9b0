package agent

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"codeberg.org/mutker/thermowatch/internal/errors"
)

const maxErrorBody = 512

type sender struct {
	endpoint string
	client   *http.Client
}

// send posts one record. A 4xx answer yields ErrRejected, which the caller
// treats as final; anything else that is not 2xx yields ErrDeliveryFailed.
func (s *sender) send(ctx context.Context, payload []byte) error {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errFactory.WithData(ErrRejected, struct {
			Status int
			Body   string
		}{resp.StatusCode, string(bytes.TrimSpace(body))})
	default:
		return errFactory.WithData(ErrDeliveryFailed, struct {
			Status int
			Body   string
		}{resp.StatusCode, string(bytes.TrimSpace(body))})
	}
}
