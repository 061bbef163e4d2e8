package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaflow/ideaflow/internal/lineage"
	"github.com/ideaflow/ideaflow/internal/models"
)

func TestReadSeedFile(t *testing.T) {
	fixture, err := readSeedFile(strings.NewReader(`{
		"users": [{"id": "u1", "displayName": "Ada"}],
		"posts": [{"id": "p1", "authorId": "u1", "content": "hello"}],
		"ideas": [{"id": "i1", "title": "Kiosks", "creatorIds": ["u1"], "sourcePosts": ["p1"]}]
	}`))
	require.NoError(t, err)

	entities := fixture.entities()
	require.Len(t, entities, 3)
	assert.Equal(t, models.KindUser, entities[0].Kind())
	assert.Equal(t, models.KindPost, entities[1].Kind())
	assert.Equal(t, models.KindIdea, entities[2].Kind())
}

func TestReadSeedFile_RejectsUnknownFields(t *testing.T) {
	_, err := readSeedFile(strings.NewReader(`{"blocks": []}`))
	assert.Error(t, err)
}

func TestPrintChains(t *testing.T) {
	var buf bytes.Buffer
	printChains(&buf, []lineage.ContentChain{{
		Root:           models.PostRef("p1"),
		NodeCount:      1,
		MaxSupport:     2,
		LatestActivity: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Nodes:          []lineage.ChainNode{{Ref: models.PostRef("p1")}},
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ROOT")
	assert.Contains(t, lines[1], "post:p1")
	assert.Contains(t, lines[1], "2024-05-01 12:00")
}
