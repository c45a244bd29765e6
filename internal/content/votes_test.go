package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticesocial/lattice/internal/apperr"
	"github.com/latticesocial/lattice/internal/ratelimit"
	"github.com/latticesocial/lattice/internal/store"
)

const voter = "did:key:zVoter"

func votablePost(p *pipeline) *store.Post {
	post := &store.Post{ID: "01POST", AuthorDID: author, Content: "x", CreatedAt: time.Now()}
	p.store.posts[post.ID] = post
	return post
}

func TestVoteValidation(t *testing.T) {
	p := newPipeline()
	p.store.addAgent(author, 48*time.Hour)
	p.store.addAgent(voter, 48*time.Hour)
	post := votablePost(p)
	ctx := context.Background()

	_, _, err := p.svc.Vote(ctx, voter, post.ID, 0)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, _, err = p.svc.Vote(ctx, voter, post.ID, 2)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, _, err = p.svc.Vote(ctx, voter, "01NOPE", 1)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, _, err = p.svc.Vote(ctx, author, post.ID, 1)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestVoteOnDeletedPost(t *testing.T) {
	p := newPipeline()
	p.store.addAgent(voter, 48*time.Hour)
	post := votablePost(p)
	post.Deleted = true

	_, _, err := p.svc.Vote(context.Background(), voter, post.ID, 1)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestVoteUpsertAndEXPEffect(t *testing.T) {
	p := newPipeline()
	p.store.addAgent(author, 48*time.Hour)
	p.store.addAgent(voter, 48*time.Hour)
	post := votablePost(p)
	ctx := context.Background()

	res, _, err := p.svc.Vote(ctx, voter, post.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.EXPApplied)
	assert.Equal(t, []int{1}, p.ledger.votes)

	// Same value again: a no-op with no ledger or budget effect.
	res, _, err = p.svc.Vote(ctx, voter, post.ID, 1)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.False(t, res.EXPApplied)
	assert.Equal(t, []int{1}, p.ledger.votes)
	assert.Len(t, p.limiter.recorded, 1)

	// Flip: only the new value's effect is applied.
	res, _, err = p.svc.Vote(ctx, voter, post.ID, -1)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []int{1, -1}, p.ledger.votes)
	assert.Len(t, p.limiter.recorded, 2)
}

func TestVoteBelowGateMovesNothing(t *testing.T) {
	p := newPipeline()
	p.store.addAgent(author, 48*time.Hour)
	p.store.addAgent(voter, 48*time.Hour)
	p.ledger.gateOpen = false
	post := votablePost(p)

	res, _, err := p.svc.Vote(context.Background(), voter, post.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Changed, "the vote row still lands")
	assert.False(t, res.EXPApplied)
	assert.Empty(t, p.ledger.votes)
}

func TestVoteRateLimited(t *testing.T) {
	p := newPipeline()
	p.store.addAgent(voter, 48*time.Hour)
	p.limiter.allowed = false
	post := votablePost(p)

	_, _, err := p.svc.Vote(context.Background(), voter, post.ID, 1)
	assert.Equal(t, apperr.CodeRateLimited, apperr.CodeOf(err))
	assert.Equal(t, ratelimit.ActionComment, p.limiter.lastSeen, "votes spend the comment budget")
	assert.Empty(t, p.store.votes)
}
