package store

import (
	"context"
	goerrors "errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/memorg/pkg/errors"
	"github.com/theapemachine/memorg/pkg/memory"
	"github.com/theapemachine/memorg/pkg/provider"
	"github.com/theapemachine/memorg/pkg/stores"
	"github.com/theapemachine/memorg/pkg/stores/s3"
	"github.com/theapemachine/memorg/pkg/types"
)

type capturingArchiver struct {
	export *s3.SessionExport
}

func (a *capturingArchiver) Archive(ctx context.Context, export *s3.SessionExport) error {
	a.export = export
	return nil
}

func (a *capturingArchiver) Load(ctx context.Context, sessionID string) (*s3.SessionExport, error) {
	if a.export == nil {
		return nil, &errors.NotFoundError{Collection: "archive", ID: sessionID}
	}
	return a.export, nil
}

func errorsAs(err error, target any) bool {
	return goerrors.As(err, target)
}

func newTestStore(options ...Option) (*ContextStore, *stores.InMemoryIndex) {
	cfg := types.DefaultConfig()
	logger := log.New(io.Discard)
	vectors := stores.NewInMemoryIndex()

	cs := New(
		stores.NewInMemoryStorage(),
		vectors,
		provider.NewMockProvider(),
		memory.NewContextManager(cfg, logger),
		logger,
		cfg,
		options...,
	)

	return cs, vectors
}

func seedTopic(ctx context.Context, cs *ContextStore) (*types.Session, *types.Topic) {
	session, _ := cs.CreateSession(ctx, "user-1", nil)
	conversation, _ := cs.CreateConversation(ctx, session.ID)
	topic, _ := cs.CreateTopic(ctx, conversation.ID, "travel plans")
	return session, topic
}

func TestCreateHierarchy(t *testing.T) {
	Convey("Given a context store", t, func() {
		cs, _ := newTestStore()
		ctx := context.Background()

		Convey("When the hierarchy is created top down", func() {
			session, err := cs.CreateSession(ctx, "user-1", map[string]any{"lang": "en"})
			So(err, ShouldBeNil)
			So(session.Status, ShouldEqual, types.SessionActive)

			conversation, err := cs.CreateConversation(ctx, session.ID)
			So(err, ShouldBeNil)
			So(conversation.SessionID, ShouldEqual, session.ID)

			topic, err := cs.CreateTopic(ctx, conversation.ID, "travel plans")
			So(err, ShouldBeNil)

			Convey("Then every level is durable and retrievable", func() {
				got, err := cs.GetTopic(ctx, topic.ID)
				So(err, ShouldBeNil)
				So(got.Title, ShouldEqual, "travel plans")
				So(got.ConversationID, ShouldEqual, conversation.ID)
			})
		})

		Convey("When a child references a missing parent", func() {
			_, err := cs.CreateConversation(ctx, "no-such-session")
			So(errors.IsNotFound(err), ShouldBeTrue)

			_, err = cs.CreateTopic(ctx, "no-such-conversation", "title")
			So(errors.IsNotFound(err), ShouldBeTrue)
		})

		Convey("When input is malformed", func() {
			_, err := cs.CreateSession(ctx, "", nil)

			var validation *errors.ValidationError
			So(err, ShouldNotBeNil)
			So(errorsAs(err, &validation), ShouldBeTrue)
		})
	})
}

func TestAddExchange(t *testing.T) {
	Convey("Given a seeded topic", t, func() {
		cs, vectors := newTestStore()
		ctx := context.Background()
		_, topic := seedTopic(ctx, cs)

		Convey("When an exchange is added", func() {
			exchange, err := cs.AddExchange(ctx, topic.ID,
				"book a flight to Lisbon next Tuesday", "looking at options now")
			So(err, ShouldBeNil)
			So(exchange.TokenCount, ShouldBeGreaterThan, 0)
			So(exchange.ImportanceScore, ShouldBeBetweenOrEqual, 0, 1)

			cs.Close()

			Convey("Then it is durable immediately", func() {
				got, err := cs.GetExchange(ctx, exchange.ID)
				So(err, ShouldBeNil)
				So(got.UserMessage, ShouldContainSubstring, "Lisbon")
			})

			Convey("Then the embedding lands in the vector index", func() {
				stats, err := vectors.Stats(ctx)
				So(err, ShouldBeNil)
				So(stats.VectorCount, ShouldEqual, 1)

				got, err := cs.GetExchange(ctx, exchange.ID)
				So(err, ShouldBeNil)
				So(got.VectorID, ShouldEqual, exchange.ID)
			})

			Convey("Then the topic's activity timestamp advances", func() {
				got, err := cs.GetTopic(ctx, topic.ID)
				So(err, ShouldBeNil)
				So(got.LastActiveAt.Before(exchange.CreatedAt), ShouldBeFalse)
			})
		})

		Convey("When the embedding collaborator is down", func() {
			prvdr := cs.Provider().(*provider.MockProvider)
			prvdr.FailEmbeddings = true

			exchange, err := cs.AddExchange(ctx, topic.ID, "remember this anyway", "noted")
			So(err, ShouldBeNil)

			cs.Close()

			Convey("Then ingestion still succeeds without a vector", func() {
				got, err := cs.GetExchange(ctx, exchange.ID)
				So(err, ShouldBeNil)
				So(got.VectorID, ShouldBeEmpty)

				stats, _ := vectors.Stats(ctx)
				So(stats.VectorCount, ShouldEqual, 0)
			})
		})

		Convey("When the exchange is malformed", func() {
			_, err := cs.AddExchange(ctx, topic.ID, "", "reply")
			So(err, ShouldNotBeNil)

			_, err = cs.AddExchange(ctx, "missing-topic", "hello", "hi")
			So(errors.IsNotFound(err), ShouldBeTrue)
		})
	})
}

func TestSessionLifecycle(t *testing.T) {
	Convey("Given a session with history", t, func() {
		cs, vectors := newTestStore()
		ctx := context.Background()
		archiver := &capturingArchiver{}
		cs.archiver = archiver

		session, topic := seedTopic(ctx, cs)
		_, err := cs.AddExchange(ctx, topic.ID, "the itinerary is final", "confirmed")
		So(err, ShouldBeNil)
		cs.Close()

		Convey("When the session is closed", func() {
			So(cs.CloseSession(ctx, session.ID), ShouldBeNil)

			got, err := cs.GetSession(ctx, session.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, types.SessionClosed)

			Convey("Then the whole subtree is archived", func() {
				So(archiver.export, ShouldNotBeNil)
				So(archiver.export.Session.ID, ShouldEqual, session.ID)
				So(len(archiver.export.Conversations), ShouldEqual, 1)
				So(len(archiver.export.Topics), ShouldEqual, 1)
				So(len(archiver.export.Exchanges), ShouldEqual, 1)
			})

			Convey("Then history remains queryable", func() {
				exchanges, err := cs.Exchanges(ctx, topic.ID)
				So(err, ShouldBeNil)
				So(len(exchanges), ShouldEqual, 1)
			})

			Convey("Then the archive can be read back", func() {
				export, err := cs.LoadArchive(ctx, session.ID)
				So(err, ShouldBeNil)
				So(export.Session.ID, ShouldEqual, session.ID)
				So(len(export.Exchanges), ShouldEqual, 1)
			})
		})

		Convey("When no archiver is configured", func() {
			cs.archiver = nil

			_, err := cs.LoadArchive(ctx, session.ID)
			So(errors.IsNotFound(err), ShouldBeTrue)
		})

		Convey("When the session is deleted", func() {
			So(cs.DeleteSession(ctx, session.ID), ShouldBeNil)

			Convey("Then nothing of the subtree remains", func() {
				_, err := cs.GetSession(ctx, session.ID)
				So(errors.IsNotFound(err), ShouldBeTrue)

				_, err = cs.GetTopic(ctx, topic.ID)
				So(errors.IsNotFound(err), ShouldBeTrue)

				exchanges, err := cs.Exchanges(ctx, topic.ID)
				So(err, ShouldBeNil)
				So(len(exchanges), ShouldEqual, 0)

				stats, _ := vectors.Stats(ctx)
				So(stats.VectorCount, ShouldEqual, 0)
			})
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given ingested history", t, func() {
		cs, _ := newTestStore()
		ctx := context.Background()
		_, topic := seedTopic(ctx, cs)

		_, err := cs.AddExchange(ctx, topic.ID, "first note about the trip", "saved")
		So(err, ShouldBeNil)
		cs.Close()

		Convey("When stats are requested", func() {
			usage, err := cs.Stats(ctx)
			So(err, ShouldBeNil)
			So(usage.ActiveItems, ShouldBeGreaterThan, 0)
			So(usage.VectorCount, ShouldEqual, 1)
			So(usage.TotalTokens, ShouldBeGreaterThan, 0)
		})
	})
}
