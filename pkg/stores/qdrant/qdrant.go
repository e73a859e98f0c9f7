package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/stores"
)

// Client talks to a Qdrant instance over its HTTP API and implements
// stores.VectorIndex.  It wraps an endpoint + collection.
type Client struct {
	Endpoint   string // e.g. http://localhost:6333
	Collection string // e.g. "memorg"
	httpClient *http.Client
	retry      *errors.RetryConfig
}

// New returns a Client with sane defaults.
func New(endpoint, collection string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Collection: collection,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		retry: &errors.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      time.Second,
			BackoffFactor: 2,
		},
	}
}

// send issues one request, retrying transport failures and 5xx responses
// with backoff.  4xx responses are not transient and return immediately.
func (client *Client) send(
	ctx context.Context, method, url string, body []byte,
) (*http.Response, error) {
	var resp *http.Response

	err := errors.RetryWithBackoff(client.retry, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}

		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		r, err := client.httpClient.Do(req)
		if err != nil {
			return err
		}

		if r.StatusCode >= 500 {
			r.Body.Close()
			return fmt.Errorf("qdrant: status %s", r.Status)
		}

		resp = r
		return nil
	})

	return resp, err
}

// Upsert writes a single point.  The payload carries the exchange content so
// search hits can be rendered without a round-trip to durable storage.
func (client *Client) Upsert(
	ctx context.Context, id string, vector []float32, metadata map[string]any,
) error {
	point := map[string]any{
		"id":      id,
		"payload": metadata,
		"vector":  vector,
	}

	body := map[string]any{"points": []map[string]any{point}}
	b, _ := json.Marshal(body)

	resp, err := client.send(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points", client.Endpoint, client.Collection), b)

	if err != nil {
		return err
	}

	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: upsert status %s", resp.Status)
	}

	return nil
}

// SearchNearest performs a vector search returning the k nearest points with
// payloads attached.
func (client *Client) SearchNearest(
	ctx context.Context, vector []float32, k int,
) ([]stores.Point, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}

	b, _ := json.Marshal(body)

	resp, err := client.send(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", client.Endpoint, client.Collection), b)

	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant: search status %s", resp.Status)
	}

	var out struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	points := make([]stores.Point, 0, len(out.Result))

	for _, r := range out.Result {
		points = append(points, stores.Point{
			ID:          r.ID,
			Score:       r.Score,
			TextContent: fmt.Sprintf("%v", r.Payload["content"]),
			Metadata:    r.Payload,
		})
	}

	return points, nil
}

// Delete removes a point by ID.
func (client *Client) Delete(ctx context.Context, id string) error {
	resp, err := client.send(ctx, http.MethodDelete,
		fmt.Sprintf("%s/collections/%s/points/%s", client.Endpoint, client.Collection, id), nil)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant: delete status %s", resp.Status)
	}

	return nil
}

// Stats reads collection info: point count and an on-disk size estimate.
func (client *Client) Stats(ctx context.Context) (stores.VectorStats, error) {
	resp, err := client.send(ctx, http.MethodGet,
		fmt.Sprintf("%s/collections/%s", client.Endpoint, client.Collection), nil)

	if err != nil {
		return stores.VectorStats{}, err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return stores.VectorStats{}, fmt.Errorf("qdrant: stats status %s", resp.Status)
	}

	var out struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return stores.VectorStats{}, err
	}

	return stores.VectorStats{
		VectorCount: out.Result.PointsCount,
		IndexSize:   out.Result.PointsCount * out.Result.Config.Params.Vectors.Size * 4,
	}, nil
}

// Ping checks the collection is reachable.
func (client *Client) Ping(ctx context.Context) error {
	_, err := client.Stats(ctx)
	return err
}
