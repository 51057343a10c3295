package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"timeline-archive/internal/models"
)

// ProfileSync resolves usernames to fresh account snapshots, merges them into
// stored state, and decides which accounts are worth a timeline pull. The
// delta signal is the provider-reported posts_count: unchanged count means no
// new activity, so no fetch budget is spent on that account.
type ProfileSync struct {
	log      *slog.Logger
	accounts AccountStore
	source   ProfileSource
}

func NewProfileSync(log *slog.Logger, accounts AccountStore, source ProfileSource) *ProfileSync {
	return &ProfileSync{log: log, accounts: accounts, source: source}
}

// FlaggedAccount identifies an account that needs a timeline pull.
type FlaggedAccount struct {
	TwitterID string
	Username  string
}

// SyncProfiles runs one profile refresh for the username set. Partial upstream
// results are processed as far as they go; only a completely empty resolution
// is an acquisition failure.
func (ps *ProfileSync) SyncProfiles(ctx context.Context, usernames []string) ([]FlaggedAccount, error) {
	usernames = dedupe(usernames)
	if len(usernames) == 0 {
		return nil, fmt.Errorf("%w: empty username set", ErrAcquisition)
	}

	profiles, err := ps.source.LookupUsers(ctx, usernames)
	if err != nil && len(profiles) == 0 {
		return nil, fmt.Errorf("%w: profile lookup: %v", ErrAcquisition, err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: no profiles resolved for %d usernames", ErrAcquisition, len(usernames))
	}
	if len(profiles) < len(usernames) {
		ps.log.Warn("profiles_partially_resolved", "requested", len(usernames), "resolved", len(profiles))
	}

	stored, err := ps.accounts.PostCounts(ctx, usernames)
	if err != nil {
		return nil, fmt.Errorf("%w: load stored counts: %v", ErrStorage, err)
	}

	merged := make([]models.Account, 0, len(profiles))
	var flagged []FlaggedAccount
	for _, p := range profiles {
		twitterID := p.ID
		merged = append(merged, models.Account{
			TwitterID:      &twitterID,
			Username:       p.Username,
			Name:           p.Name,
			FollowingCount: p.FollowingCount,
			FollowersCount: p.FollowersCount,
			Description:    p.Description,
			PostsCount:     p.PostsCount,
		})

		storedCount, exists := stored[p.Username]
		if !exists || storedCount != p.PostsCount {
			flagged = append(flagged, FlaggedAccount{TwitterID: p.ID, Username: p.Username})
		}
	}

	failed, err := ps.accounts.UpsertBatch(ctx, merged)
	if err != nil {
		return nil, fmt.Errorf("%w: persist profiles: %v", ErrStorage, err)
	}

	// drop flags for accounts whose snapshot could not be written; the next
	// refresh will see the same delta and flag them again
	if len(failed) > 0 {
		failedSet := make(map[string]bool, len(failed))
		for _, u := range failed {
			failedSet[u] = true
		}
		kept := flagged[:0]
		for _, f := range flagged {
			if !failedSet[f.Username] {
				kept = append(kept, f)
			}
		}
		flagged = kept
	}

	ps.log.Info("profile_sync_complete",
		"requested", len(usernames),
		"resolved", len(profiles),
		"flagged", len(flagged),
	)
	return flagged, nil
}

func dedupe(usernames []string) []string {
	seen := make(map[string]bool, len(usernames))
	out := usernames[:0]
	for _, u := range usernames {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
