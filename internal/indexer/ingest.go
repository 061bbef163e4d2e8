package indexer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/store"
	"github.com/ideaflow/ideaflow/pkg/telemetry"
)

// Ingestor normalizes fetched payloads and merges them into the table.
type Ingestor struct {
	table  *store.Table
	logger *zap.Logger
}

// NewIngestor creates an ingestor writing into table.
func NewIngestor(table *store.Table, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{table: table, logger: logger}
}

// Feed merges one feed page. Users come first so embedded copies can fill
// any stubs the content records register.
func (i *Ingestor) Feed(ctx context.Context, result collab.FeedResult) (int, error) {
	entities := make([]models.Entity, 0, len(result.Users)+len(result.Posts)+len(result.Ideas)+len(result.Topics))
	for _, user := range result.Users {
		entities = append(entities, user)
	}
	for _, post := range result.Posts {
		entities = append(entities, post)
	}
	for _, idea := range result.Ideas {
		entities = append(entities, idea)
	}
	for _, topic := range result.Topics {
		entities = append(entities, topic)
	}
	return i.Entities(ctx, "feed", entities...)
}

// Entities normalizes and merges entities in a single commit. Invalid
// entries are skipped and reported in the returned error.
func (i *Ingestor) Entities(ctx context.Context, source string, entities ...models.Entity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	normalized := make([]models.Entity, 0, len(entities))
	for _, entity := range entities {
		normalized = append(normalized, normalize(entity))
	}
	err := i.table.UpsertMany(normalized...)
	if err != nil {
		i.logger.Warn("Skipped invalid entities", zap.String("source", source), zap.Error(err))
	}
	telemetry.RecordMerge(ctx, source, len(normalized))
	return len(normalized), err
}

func normalize(entity models.Entity) models.Entity {
	switch e := entity.(type) {
	case models.Idea:
		if len(e.Tags) > 0 {
			e.Tags = models.NormalizeTags(e.Tags)
		}
		return e
	case models.Community:
		if len(e.Tags) > 0 {
			e.Tags = models.NormalizeTags(e.Tags)
		}
		return e
	case models.CommunityMembership:
		e.Role = normalizeRole(e.Role)
		return e
	}
	return entity
}

// normalizeRole maps upstream role names onto the known roles. Unknown and
// empty names fall back to plain membership.
func normalizeRole(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "owner":
		return models.RoleOwner
	case "admin", "mod", "moderator":
		return models.RoleModerator
	default:
		return models.RoleMember
	}
}
