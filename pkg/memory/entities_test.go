package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/memorg/pkg/types"
)

func TestObserveTracksMentions(t *testing.T) {
	extractor := NewEntityExtractor()

	fresh := extractor.Observe("ex-1", `We talked to Case Henderson about the "neural deck" upgrade.`)
	assert.NotEmpty(t, fresh)

	again := extractor.Observe("ex-2", "Case Henderson confirmed the plan.")
	assert.Empty(t, again, "a second mention must not count as fresh")

	found := false
	for _, entity := range extractor.ForExchange("ex-2") {
		if entity.Value == "Case Henderson" {
			found = true
			assert.Equal(t, types.EntityPerson, entity.Type)
			assert.Equal(t, 2, entity.MentionCount)
			assert.Equal(t, "ex-1", entity.FirstSeenExchangeID)
		}
	}
	assert.True(t, found)
}

func TestForgetDropsOrphanedEntities(t *testing.T) {
	extractor := NewEntityExtractor()

	extractor.Observe("ex-1", "Meeting with Tessier Ashpool went long.")
	extractor.Observe("ex-2", "Tessier Ashpool sent a followup note.")

	var entityID string
	for _, entity := range extractor.ForExchange("ex-1") {
		if entity.Value == "Tessier Ashpool" {
			entityID = entity.ID
		}
	}
	assert.NotEmpty(t, entityID)

	extractor.Forget("ex-1")
	assert.Len(t, extractor.Exchanges(entityID), 1, "entity survives while a reference remains")

	extractor.Forget("ex-2")
	assert.Empty(t, extractor.Exchanges(entityID), "last reference gone, entity gone")
	assert.Empty(t, extractor.ForExchange("ex-2"))
}

func TestExtractValues(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "multi word span",
			text: "I met Molly Millions downtown.",
			want: []string{"Molly Millions"},
		},
		{
			name: "sentence initial single word ignored",
			text: "Yesterday was uneventful.",
			want: nil,
		},
		{
			name: "quoted phrase",
			text: `The feature is called "smart recall" internally.`,
			want: []string{"smart recall"},
		},
		{
			name: "mid sentence capital",
			text: "The contract with Maelcum expired.",
			want: []string{"Maelcum"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractValues(tc.text)
			for _, want := range tc.want {
				assert.Contains(t, got, want)
			}
			if tc.want == nil {
				assert.Empty(t, got)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, types.EntityOrganization, classify("Freeside Corp"))
	assert.Equal(t, types.EntityPerson, classify("Peter Riviera"))
	assert.Equal(t, types.EntityFact, classify("Flight 417"))
	assert.Equal(t, types.EntityConcept, classify("Cyberspace"))
}
