package s3

// Archive stores full exports of closed sessions as JSON objects.  History is
// never implicitly garbage collected, so closing a session archives its whole
// subtree for traceability before it goes cold.

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/types"
)

// SessionExport is the archived form of a session subtree.
type SessionExport struct {
	Session       types.Session        `json:"session"`
	Conversations []types.Conversation `json:"conversations"`
	Topics        []types.Topic        `json:"topics"`
	Exchanges     []types.Exchange     `json:"exchanges"`
}

// Archiver persists session exports.  The store facade calls it when a
// session is closed; a nil Archiver simply skips archival.
type Archiver interface {
	Archive(ctx context.Context, export *SessionExport) error
	Load(ctx context.Context, sessionID string) (*SessionExport, error)
}

// Store is the S3 implementation of Archiver.
type Store struct {
	conn *Conn
}

func NewStore(conn *Conn) *Store {
	return &Store{conn: conn}
}

func key(sessionID string) string {
	return "sessions/" + sessionID + ".json"
}

// Archive writes the export under sessions/<id>.json.
func (store *Store) Archive(ctx context.Context, export *SessionExport) error {
	data, err := json.Marshal(export)

	if err != nil {
		return &errors.StorageError{Op: "archive marshal", Err: err}
	}

	if err := store.conn.Put(ctx, key(export.Session.ID), data); err != nil {
		log.Error("failed to archive session", "session", export.Session.ID, "error", err)
		return &errors.StorageError{Op: "archive put", Err: err}
	}

	return nil
}

// Load reads an archived session back.
func (store *Store) Load(ctx context.Context, sessionID string) (*SessionExport, error) {
	data, err := store.conn.Get(ctx, key(sessionID))

	if err != nil {
		return nil, &errors.NotFoundError{Collection: "archive", ID: sessionID}
	}

	var export SessionExport

	if err := json.Unmarshal(data, &export); err != nil {
		return nil, &errors.StorageError{Op: "archive unmarshal", Err: err}
	}

	return &export, nil
}
