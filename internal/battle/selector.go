package battle

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/codebattle/codebattle/internal/apperr"
	"github.com/codebattle/codebattle/internal/codeforces"
	"github.com/codebattle/codebattle/internal/database/models"

	"go.uber.org/zap"
)

// ChooseProblems draws count distinct problems rated within [minRating,
// maxRating] from the Codeforces catalog, uniformly at random. Only standard
// programming problems qualify; anything tagged *special is excluded, and so
// is any problem a participant has already solved. The solved lookup is
// best-effort: a handle whose history cannot be fetched does not fail the
// selection.
func ChooseProblems(ctx context.Context, cf ContestClient, minRating, maxRating, count int, handles []string) ([]codeforces.Problem, error) {
	set, err := cf.ListProblems(ctx, nil)
	if err != nil {
		return nil, err
	}

	solved := solvedByAny(ctx, cf, handles)

	candidates := make([]codeforces.Problem, 0, count)
	for _, p := range set.Problems {
		if p.Rating < minRating || p.Rating > maxRating {
			continue
		}
		if p.Type != "PROGRAMMING" {
			continue
		}
		if hasTag(p.Tags, "*special") {
			continue
		}
		if solved[problemKey(p.ContestID, p.Index)] {
			continue
		}
		candidates = append(candidates, p)
	}

	if len(candidates) < count {
		return nil, fmt.Errorf("%w: rating range %d-%d has %d candidates, need %d",
			apperr.ErrInsufficientProblems, minRating, maxRating, len(candidates), count)
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates[:count], nil
}

// solvedByAny collects every (contest, index) pair any of the handles has an
// accepted submission for.
func solvedByAny(ctx context.Context, cf ContestClient, handles []string) map[string]bool {
	solved := make(map[string]bool)
	for _, handle := range handles {
		subs, err := cf.ListSubmissions(ctx, handle)
		if err != nil {
			zap.S().Warnf("could not fetch solved problems for %s, skipping exclusion: %v", handle, err)
			continue
		}
		for _, sub := range subs {
			if sub.Verdict == models.VerdictOK {
				solved[problemKey(sub.Problem.ContestID, sub.Problem.Index)] = true
			}
		}
	}
	return solved
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func problemKey(contestID int, index string) string {
	return fmt.Sprintf("%d/%s", contestID, index)
}
