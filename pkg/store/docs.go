package store

import (
	"time"

	"github.com/theapemachine/memorg/pkg/stores"
	"github.com/theapemachine/memorg/pkg/types"
)

// The durable storage speaks map documents, the engine speaks typed structs.
// The conversions live here so field names cannot drift between operations.

func sessionDoc(session *types.Session) map[string]any {
	return map[string]any{
		"id":         session.ID,
		"user_id":    session.UserID,
		"created_at": session.CreatedAt,
		"config":     session.Config,
		"status":     string(session.Status),
	}
}

func sessionFromDoc(doc map[string]any) *types.Session {
	session := &types.Session{
		ID:     str(doc["id"]),
		UserID: str(doc["user_id"]),
		Status: types.SessionStatus(str(doc["status"])),
	}

	session.CreatedAt = when(doc["created_at"])

	if config, ok := doc["config"].(map[string]any); ok {
		session.Config = config
	}

	return session
}

func conversationDoc(conversation *types.Conversation) map[string]any {
	return map[string]any{
		"id":         conversation.ID,
		"session_id": conversation.SessionID,
		"created_at": conversation.CreatedAt,
		"status":     string(conversation.Status),
	}
}

func conversationFromDoc(doc map[string]any) *types.Conversation {
	return &types.Conversation{
		ID:        str(doc["id"]),
		SessionID: str(doc["session_id"]),
		CreatedAt: when(doc["created_at"]),
		Status:    types.SessionStatus(str(doc["status"])),
	}
}

func topicDoc(topic *types.Topic) map[string]any {
	return map[string]any{
		"id":              topic.ID,
		"conversation_id": topic.ConversationID,
		"title":           topic.Title,
		"created_at":      topic.CreatedAt,
		"last_active_at":  topic.LastActiveAt,
	}
}

func topicFromDoc(doc map[string]any) *types.Topic {
	return &types.Topic{
		ID:             str(doc["id"]),
		ConversationID: str(doc["conversation_id"]),
		Title:          str(doc["title"]),
		CreatedAt:      when(doc["created_at"]),
		LastActiveAt:   when(doc["last_active_at"]),
	}
}

func exchangeDoc(exchange *types.Exchange) map[string]any {
	return map[string]any{
		"id":               exchange.ID,
		"topic_id":         exchange.TopicID,
		"user_message":     exchange.UserMessage,
		"system_message":   exchange.SystemMessage,
		"created_at":       exchange.CreatedAt,
		"token_count":      exchange.TokenCount,
		"importance_score": exchange.ImportanceScore,
		"vector_id":        exchange.VectorID,
		"compressed":       false,
	}
}

func exchangeFromDoc(doc map[string]any) *types.Exchange {
	exchange := &types.Exchange{
		ID:            str(doc["id"]),
		TopicID:       str(doc["topic_id"]),
		UserMessage:   str(doc["user_message"]),
		SystemMessage: str(doc["system_message"]),
		CreatedAt:     when(doc["created_at"]),
		VectorID:      str(doc["vector_id"]),
	}

	exchange.TokenCount = stores.AsInt(doc["token_count"])
	exchange.ImportanceScore = stores.AsFloat(doc["importance_score"])

	return exchange
}

func str(v any) string {
	return stores.AsString(v)
}

func when(v any) time.Time {
	return stores.AsTime(v)
}
