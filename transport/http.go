package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type httpClient struct {
	client *http.Client
}

func newHTTPClient() *httpClient {
	return &httpClient{client: &http.Client{}}
}

// HTTPGet issues a GET with the given wall-clock timeout, used by the
// UPnP engine for LOCATION/device-description fetches (§4.7 Phase B).
func (n *Net) HTTPGet(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: build GET %s: %w", url, err)
	}

	resp, err := n.client.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read GET %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		return body, fmt.Errorf("transport: GET %s: http %d", url, resp.StatusCode)
	}
	return body, nil
}

// HTTPPost issues a POST with the given headers/body/timeout, used by the
// UPnP engine's SOAP invocations (§4.7 Phase C). Unlike HTTPGet, a non-2xx
// status is not an error: the caller (engine) inspects status+body itself,
// since UPnP surfaces SOAP faults as HTTP 500 with a meaningful body.
func (n *Net) HTTPPost(ctx context.Context, url string, headers map[string]string, body []byte, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("transport: build POST %s: %w", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("transport: POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("transport: read POST %s: %w", url, err)
	}
	return resp.StatusCode, respBody, nil
}
