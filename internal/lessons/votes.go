package lessons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultVoteDelta is the confidence step per vote.
const DefaultVoteDelta = 0.05

// SemanticIndex mirrors lesson mutations into a vector backend. All calls
// are best-effort for the vote manager: indexing failures are logged and
// swallowed so the repository stays the source of truth.
type SemanticIndex interface {
	Index(ctx context.Context, l *Lesson) error
	Remove(ctx context.Context, id string) error
}

// VoteManager applies up/down votes and removals to lessons. Votes adjust
// confidence by a fixed delta, clamped to [0,1], under optimistic
// concurrency with a single retry on conflict.
type VoteManager struct {
	repo     Repository
	semantic SemanticIndex
	delta    float64
	logger   *zap.Logger
}

// NewVoteManager creates a vote manager. delta <= 0 selects the default.
func NewVoteManager(repo Repository, semantic SemanticIndex, delta float64, logger *zap.Logger) (*VoteManager, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if delta <= 0 {
		delta = DefaultVoteDelta
	}
	if delta > 1 {
		return nil, fmt.Errorf("vote delta must be at most 1, got %g", delta)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoteManager{repo: repo, semantic: semantic, delta: delta, logger: logger}, nil
}

// Upvote raises the lesson's confidence by the configured delta and
// increments its upvote counter. The lesson is matched by
// case-insensitive trimmed title.
func (v *VoteManager) Upvote(ctx context.Context, title string) (*Lesson, error) {
	return v.vote(ctx, title, v.delta)
}

// Downvote lowers the lesson's confidence by the configured delta and
// increments its downvote counter.
func (v *VoteManager) Downvote(ctx context.Context, title string) (*Lesson, error) {
	return v.vote(ctx, title, -v.delta)
}

func (v *VoteManager) vote(ctx context.Context, title string, delta float64) (*Lesson, error) {
	l, err := v.apply(ctx, title, delta)
	if errors.Is(err, ErrVersionConflict) {
		// One retry against the fresh version; concurrent voters both
		// land, in either order.
		l, err = v.apply(ctx, title, delta)
	}
	if err != nil {
		return nil, err
	}
	v.logger.Debug("lesson voted",
		zap.String("lesson_id", l.ID),
		zap.Float64("delta", delta),
		zap.Float64("confidence", l.Confidence))
	return l, nil
}

func (v *VoteManager) apply(ctx context.Context, title string, delta float64) (*Lesson, error) {
	l, err := v.repo.GetByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	l.Confidence = ClampConfidence(l.Confidence + delta)
	if delta >= 0 {
		l.Upvotes++
	} else {
		l.Downvotes++
	}
	l.UpdatedAt = time.Now().UTC()
	if err := v.repo.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Remove deletes the lesson matching the title from the repository and,
// best-effort, from the semantic index.
func (v *VoteManager) Remove(ctx context.Context, title string) error {
	l, err := v.repo.GetByTitle(ctx, title)
	if err != nil {
		return err
	}
	if err := v.repo.Delete(ctx, l.ID); err != nil {
		return err
	}
	if v.semantic != nil {
		if err := v.semantic.Remove(ctx, l.ID); err != nil {
			v.logger.Warn("semantic index removal failed",
				zap.String("lesson_id", l.ID),
				zap.Error(err))
		}
	}
	return nil
}
