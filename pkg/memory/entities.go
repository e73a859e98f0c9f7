package memory

import (
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/theapemachine/memorg/pkg/types"
)

/*
EntityExtractor spots named entities in exchange text and maintains the
entity↔exchange index.  References are kept in an explicit index (entity id →
exchange id set) rather than as embedded object links, so the data model
stays a strict tree with no ownership cycles.

The recogniser is a heuristic: multi-word capitalized spans, capitalized
words inside a sentence and quoted phrases.  Good enough to drive the novelty
boost and entity-protecting compression; callers needing real NER can feed
pre-extracted entities straight into the optimizer.
*/
type EntityExtractor struct {
	mu      sync.RWMutex
	byValue map[string]*types.Entity
	index   map[string]map[string]bool // entity id → exchange id set
	reverse map[string][]string        // exchange id → entity ids
}

func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{
		byValue: make(map[string]*types.Entity),
		index:   make(map[string]map[string]bool),
		reverse: make(map[string][]string),
	}
}

// Observe extracts entities from an exchange, updates the index and returns
// the entities that were never seen before this exchange.
func (extractor *EntityExtractor) Observe(exchangeID, text string) []types.Entity {
	values := ExtractValues(text)

	extractor.mu.Lock()
	defer extractor.mu.Unlock()

	var fresh []types.Entity

	for _, value := range values {
		key := strings.ToLower(value)
		entity, known := extractor.byValue[key]

		if !known {
			entity = &types.Entity{
				ID:                  uuid.NewString(),
				Type:                classify(value),
				Value:               value,
				FirstSeenExchangeID: exchangeID,
			}
			extractor.byValue[key] = entity
			extractor.index[entity.ID] = make(map[string]bool)
			fresh = append(fresh, *entity)
		}

		entity.MentionCount++

		if !extractor.index[entity.ID][exchangeID] {
			extractor.index[entity.ID][exchangeID] = true
			extractor.reverse[exchangeID] = append(extractor.reverse[exchangeID], entity.ID)
		}
	}

	return fresh
}

// ForExchange returns the entities mentioned by an exchange.
func (extractor *EntityExtractor) ForExchange(exchangeID string) []types.Entity {
	extractor.mu.RLock()
	defer extractor.mu.RUnlock()

	var out []types.Entity

	for _, entityID := range extractor.reverse[exchangeID] {
		for _, entity := range extractor.byValue {
			if entity.ID == entityID {
				out = append(out, *entity)
				break
			}
		}
	}

	return out
}

// Exchanges returns the exchange ids where an entity appears.
func (extractor *EntityExtractor) Exchanges(entityID string) []string {
	extractor.mu.RLock()
	defer extractor.mu.RUnlock()

	var out []string
	for exchangeID := range extractor.index[entityID] {
		out = append(out, exchangeID)
	}

	return out
}

// Forget removes an exchange from the index, dropping entities that lose
// their last reference.  Called on cascade deletion of a session.
func (extractor *EntityExtractor) Forget(exchangeID string) {
	extractor.mu.Lock()
	defer extractor.mu.Unlock()

	for _, entityID := range extractor.reverse[exchangeID] {
		delete(extractor.index[entityID], exchangeID)

		if len(extractor.index[entityID]) == 0 {
			delete(extractor.index, entityID)
			for key, entity := range extractor.byValue {
				if entity.ID == entityID {
					delete(extractor.byValue, key)
					break
				}
			}
		}
	}

	delete(extractor.reverse, exchangeID)
}

// ExtractValues pulls candidate entity values out of free text.
func ExtractValues(text string) []string {
	var values []string
	seen := map[string]bool{}

	add := func(value string) {
		value = strings.TrimSpace(value)
		if len(value) < 2 {
			return
		}
		key := strings.ToLower(value)
		if !seen[key] {
			seen[key] = true
			values = append(values, value)
		}
	}

	// Quoted phrases.
	for _, quote := range []byte{'"', '\''} {
		parts := strings.Split(text, string(quote))
		for i := 1; i < len(parts); i += 2 {
			if len(strings.Fields(parts[i])) <= 6 {
				add(parts[i])
			}
		}
	}

	// Capitalized spans.  The first word of a sentence only counts when it
	// extends into a multi-word span, which filters ordinary sentence case.
	words := strings.Fields(text)
	sentenceStart := true

	for i := 0; i < len(words); i++ {
		word := strings.Trim(words[i], ".,;:!?\"'()")

		if word == "" || !startsUpper(word) {
			sentenceStart = endsSentence(words[i])
			continue
		}

		span := []string{word}
		j := i + 1

		for j < len(words) {
			next := strings.Trim(words[j], ".,;:!?\"'()")
			if next == "" || !startsUpper(next) {
				break
			}
			span = append(span, next)
			if endsSentence(words[j]) {
				j++
				break
			}
			j++
		}

		if len(span) > 1 || !sentenceStart {
			add(strings.Join(span, " "))
		}

		sentenceStart = endsSentence(words[j-1])
		i = j - 1
	}

	return values
}

func startsUpper(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") ||
		strings.HasSuffix(word, "!") ||
		strings.HasSuffix(word, "?")
}

func classify(value string) types.EntityType {
	words := strings.Fields(value)

	for _, word := range words {
		for _, r := range word {
			if unicode.IsDigit(r) {
				return types.EntityFact
			}
		}
	}

	for _, suffix := range []string{"Inc", "Corp", "Ltd", "LLC", "GmbH"} {
		if strings.HasSuffix(value, suffix) {
			return types.EntityOrganization
		}
	}

	if len(words) >= 2 && len(words) <= 3 && allUpperInitial(words) {
		return types.EntityPerson
	}

	return types.EntityConcept
}

func allUpperInitial(words []string) bool {
	for _, word := range words {
		if !startsUpper(word) {
			return false
		}
	}
	return true
}
