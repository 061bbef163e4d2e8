package mutation

import (
	"context"

	"github.com/ideaflow/ideaflow/internal/collab"
	"github.com/ideaflow/ideaflow/internal/models"
	"github.com/ideaflow/ideaflow/internal/notify"
	"github.com/ideaflow/ideaflow/internal/store"
)

// MembershipState is the outcome of a membership toggle.
type MembershipState struct {
	Member    bool             `json:"member"`
	Community models.Community `json:"community"`
}

// ToggleMembership joins or leaves a community and adjusts its member count.
func (s *Service) ToggleMembership(ctx context.Context, actorID, communityID string) (MembershipState, error) {
	if err := requireActor(opToggleMembership, actorID); err != nil {
		return MembershipState{}, err
	}

	var state MembershipState
	var wasMember bool
	_, err := s.table.Update(func(b *store.Builder) error {
		snap := b.Snapshot()
		community, ok := snap.Community(communityID)
		if !ok {
			return ErrNotFound
		}
		_, wasMember = snap.Membership(actorID, communityID)
		if wasMember {
			b.Remove(models.KindMembership, models.MembershipKey(actorID, communityID))
			if community.MemberCount > 0 {
				community.MemberCount--
			}
		} else {
			membership := models.CommunityMembership{
				UserID:      actorID,
				CommunityID: communityID,
				Role:        models.RoleMember,
				JoinedAt:    s.now(),
			}
			if err := b.Put(membership); err != nil {
				return err
			}
			community.MemberCount++
		}
		state = MembershipState{Member: !wasMember, Community: community}
		return b.Put(community)
	})
	if err != nil {
		return MembershipState{}, classify(opToggleMembership, err)
	}

	intent := collab.MembershipIntent{ActorID: actorID, CommunityID: communityID, WasMember: wasMember}
	s.dispatch(ctx, confirmation{
		operation: opToggleMembership,
		actorID:   actorID,
		kind:      notify.TypeMembership,
		entityIDs: []string{communityID},
		run: func(ctx context.Context) error {
			return s.mutator.ToggleMembership(ctx, intent)
		},
	})
	return state, nil
}
