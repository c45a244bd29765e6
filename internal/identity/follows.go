package identity

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/store"
)

// Follow creates the follower -> followed edge. Re-following is a no-op.
func (s *Service) Follow(ctx context.Context, follower, followed string) error {
	if follower == followed {
		return apperr.New(apperr.CodeValidation, "cannot follow yourself")
	}
	created, err := s.store.CreateFollow(ctx, follower, followed, s.now())
	if err != nil {
		return err
	}
	if created {
		s.log.WithFields(logrus.Fields{
			"follower": follower,
			"followed": followed,
		}).Debug("follow edge created")
	}
	return nil
}

// Unfollow removes the edge. Removing an absent edge is a no-op.
func (s *Service) Unfollow(ctx context.Context, follower, followed string) error {
	if follower == followed {
		return apperr.New(apperr.CodeValidation, "cannot unfollow yourself")
	}
	_, err := s.store.DeleteFollow(ctx, follower, followed)
	return err
}

// Followers pages the agents following did, newest edge first.
func (s *Service) Followers(ctx context.Context, did string, limit, offset int) ([]store.FollowAgent, int, error) {
	if err := s.requireAgent(ctx, did); err != nil {
		return nil, 0, err
	}
	return s.store.ListFollowers(ctx, did, limit, offset)
}

// Following pages the agents did follows, newest edge first.
func (s *Service) Following(ctx context.Context, did string, limit, offset int) ([]store.FollowAgent, int, error) {
	if err := s.requireAgent(ctx, did); err != nil {
		return nil, 0, err
	}
	return s.store.ListFollowing(ctx, did, limit, offset)
}

func (s *Service) requireAgent(ctx context.Context, did string) error {
	agent, err := s.store.GetAgent(ctx, did)
	if err != nil {
		return err
	}
	if agent == nil {
		return apperr.New(apperr.CodeNotFound, "agent not found")
	}
	return nil
}
