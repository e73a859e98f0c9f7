/*
Package neo4j implements the durable Storage contract against a Neo4j server
over its transactional HTTP API.  Each collection maps to a node label and
each document is stored whole as a JSON property, so the schema never has to
track engine fields.
*/
package neo4j

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/stores"
)

type Client struct {
	Endpoint   string
	Username   string
	Password   string
	httpClient *http.Client
	retry      *errors.RetryConfig
}

func New(endpoint, user, pass string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Username:   user,
		Password:   pass,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		retry: &errors.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      time.Second,
			BackoffFactor: 2,
		},
	}
}

// ExecCypher sends a single Cypher statement with optional parameters and
// returns the raw Neo4j JSON response.  Transport failures and 5xx responses
// are retried with backoff; anything else is final.
func (client *Client) ExecCypher(
	ctx context.Context, cypher string, params map[string]any,
) (map[string]any, error) {
	payload := map[string]any{
		"statements": []map[string]any{{
			"statement":  cypher,
			"parameters": params,
		}},
	}

	b, err := json.Marshal(payload)

	if err != nil {
		return nil, err
	}

	var resp *http.Response

	err = errors.RetryWithBackoff(client.retry, func() error {
		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			client.Endpoint+"/db/neo4j/tx/commit",
			bytes.NewReader(b),
		)

		if err != nil {
			return err
		}

		req.Header.Set("Content-Type", "application/json")

		if client.Username != "" {
			req.SetBasicAuth(client.Username, client.Password)
		}

		r, err := client.httpClient.Do(req)

		if err != nil {
			return err
		}

		if r.StatusCode >= 500 {
			r.Body.Close()
			return fmt.Errorf("neo4j: status %s", r.Status)
		}

		resp = r
		return nil
	})

	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("neo4j: status %s", resp.Status)
	}

	var out map[string]any

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	return out, nil
}

// Labels are a closed set; collection names never reach Cypher directly.
var labels = map[string]string{
	stores.CollectionSessions:      "Session",
	stores.CollectionConversations: "Conversation",
	stores.CollectionTopics:        "Topic",
	stores.CollectionExchanges:     "Exchange",
	stores.CollectionEntities:      "Entity",
}

// Store adapts the Cypher client to the Storage contract.
type Store struct {
	client *Client
}

func NewStore(client *Client) *Store {
	return &Store{client: client}
}

func (store *Store) Create(
	ctx context.Context, collection, id string, doc map[string]any,
) error {
	label, err := labelFor(collection)
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return &errors.StorageError{Op: "neo4j marshal", Err: err}
	}

	_, err = store.client.ExecCypher(ctx,
		"MERGE (n:"+label+" {id: $id}) SET n.doc = $doc",
		map[string]any{"id": id, "doc": string(data)},
	)
	if err != nil {
		return &errors.StorageError{Op: "neo4j create", Err: err}
	}

	return nil
}

func (store *Store) Get(
	ctx context.Context, collection, id string,
) (map[string]any, error) {
	label, err := labelFor(collection)
	if err != nil {
		return nil, err
	}

	out, err := store.client.ExecCypher(ctx,
		"MATCH (n:"+label+" {id: $id}) RETURN n.doc",
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, &errors.StorageError{Op: "neo4j get", Err: err}
	}

	docs, err := decodeRows(out)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		return nil, &errors.NotFoundError{Collection: collection, ID: id}
	}

	return docs[0], nil
}

func (store *Store) Update(
	ctx context.Context, collection, id string, fields map[string]any,
) error {
	doc, err := store.Get(ctx, collection, id)
	if err != nil {
		return err
	}

	for key, value := range fields {
		doc[key] = value
	}

	return store.Create(ctx, collection, id, doc)
}

func (store *Store) Query(
	ctx context.Context, collection string, filter stores.Filter,
) ([]map[string]any, error) {
	label, err := labelFor(collection)
	if err != nil {
		return nil, err
	}

	out, err := store.client.ExecCypher(ctx,
		"MATCH (n:"+label+") RETURN n.doc", nil,
	)
	if err != nil {
		return nil, &errors.StorageError{Op: "neo4j query", Err: err}
	}

	docs, err := decodeRows(out)
	if err != nil {
		return nil, err
	}

	// Filtering happens client side so the documented text semantics hold
	// identically across backends.
	var matched []map[string]any

	for _, doc := range docs {
		if !stores.MatchEquals(doc, filter.Equals) {
			continue
		}
		if filter.Text != "" && !stores.MatchText(doc, filter.Text) {
			continue
		}
		matched = append(matched, doc)
	}

	return matched, nil
}

func (store *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := store.Get(ctx, collection, id); err != nil {
		return err
	}

	label, _ := labelFor(collection)

	_, err := store.client.ExecCypher(ctx,
		"MATCH (n:"+label+" {id: $id}) DETACH DELETE n",
		map[string]any{"id": id},
	)
	if err != nil {
		return &errors.StorageError{Op: "neo4j delete", Err: err}
	}

	return nil
}

func (store *Store) Stats(ctx context.Context) (stores.StorageStats, error) {
	var stats stores.StorageStats

	for collection := range labels {
		docs, err := store.Query(ctx, collection, stores.Filter{})
		if err != nil {
			return stats, err
		}

		for _, doc := range docs {
			if stores.AsBool(doc["compressed"]) {
				stats.CompressedItems++
			} else {
				stats.ActiveItems++
			}
		}
	}

	return stats, nil
}

func labelFor(collection string) (string, error) {
	label, ok := labels[collection]
	if !ok {
		return "", &errors.ValidationError{
			Field: "collection", Message: "unknown collection " + collection,
		}
	}
	return label, nil
}

// decodeRows pulls the JSON documents out of a transactional API response.
func decodeRows(out map[string]any) ([]map[string]any, error) {
	if errs, ok := out["errors"].([]any); ok && len(errs) > 0 {
		return nil, &errors.StorageError{
			Op: "neo4j cypher", Err: fmt.Errorf("%v", errs[0]),
		}
	}

	results, ok := out["results"].([]any)
	if !ok || len(results) == 0 {
		return nil, nil
	}

	first, ok := results[0].(map[string]any)
	if !ok {
		return nil, nil
	}

	data, _ := first["data"].([]any)
	docs := make([]map[string]any, 0, len(data))

	for _, entry := range data {
		row, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		cells, _ := row["row"].([]any)
		if len(cells) == 0 {
			continue
		}

		raw, ok := cells[0].(string)
		if !ok {
			continue
		}

		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, &errors.StorageError{Op: "neo4j unmarshal", Err: err}
		}

		docs = append(docs, doc)
	}

	return docs, nil
}
