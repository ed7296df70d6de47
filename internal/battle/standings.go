package battle

import (
	"sort"
	"time"

	"github.com/codebattle/codebattle/internal/database/models"
)

// ProblemCell is one participant's state on one problem.
type ProblemCell struct {
	WrongSubmissions int  `json:"wrong_submissions"`
	SolveTimeSeconds int  `json:"solve_time_seconds"`
	Solved           bool `json:"solved"`
}

// Row is one participant's line in the standings.
type Row struct {
	User     models.User            `json:"user"`
	Solved   int                    `json:"solved"`
	Penalty  int                    `json:"penalty"`
	Problems map[string]ProblemCell `json:"problems"` // keyed by problem row ID
}

// Compute derives the ranked standings from stored data. Pure: it reads its
// inputs and nothing else.
//
// Scoring follows the classic penalty rule: the earliest accepted submission
// to a problem is the solve; it adds the whole minutes between the solve and
// the battle start, plus 10 minutes for each earlier rejected attempt that
// passed at least one test. Attempts that pass zero tests never cost
// anything. Unsolved problems contribute nothing beyond their wrong-attempt
// count.
//
// Ranking is by solved count descending, then penalty ascending. The order
// of rows tied on both is unspecified (the sort is stable over participant
// join order).
func Compute(problems []models.Problem, submissions []models.Submission, participants []models.Participant, startTime time.Time) []Row {
	byUser := make(map[string][]models.Submission)
	for _, sub := range submissions {
		byUser[sub.UserID] = append(byUser[sub.UserID], sub)
	}

	rows := make([]Row, 0, len(participants))
	for _, p := range participants {
		row := Row{
			User:     p.User,
			Problems: make(map[string]ProblemCell, len(problems)),
		}

		for _, problem := range problems {
			var attempts []models.Submission
			for _, sub := range byUser[p.UserID] {
				if sub.ContestID == problem.ContestID && sub.ProblemIndex == problem.ProblemIndex {
					attempts = append(attempts, sub)
				}
			}

			solve, found := firstAccepted(attempts)
			if !found {
				row.Problems[problem.ID] = ProblemCell{
					WrongSubmissions: countWrong(attempts, time.Time{}),
				}
				continue
			}

			wrong := countWrong(attempts, solve.SubmittedAt)
			row.Solved++
			row.Penalty += int(solve.SubmittedAt.Sub(startTime).Minutes())
			row.Penalty += wrong * 10
			row.Problems[problem.ID] = ProblemCell{
				WrongSubmissions: wrong,
				SolveTimeSeconds: int(solve.SubmittedAt.Sub(startTime).Seconds()),
				Solved:           true,
			}
		}

		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Solved != rows[j].Solved {
			return rows[i].Solved > rows[j].Solved
		}
		return rows[i].Penalty < rows[j].Penalty
	})
	return rows
}

// firstAccepted finds the earliest submission with an accepting verdict.
func firstAccepted(attempts []models.Submission) (models.Submission, bool) {
	var best models.Submission
	found := false
	for _, sub := range attempts {
		if sub.Verdict != models.VerdictOK {
			continue
		}
		if !found || sub.SubmittedAt.Before(best.SubmittedAt) {
			best = sub
			found = true
		}
	}
	return best, found
}

// countWrong counts rejected attempts that passed at least one test. When
// before is non-zero only attempts strictly before it count, so attempts
// after the solve are free.
func countWrong(attempts []models.Submission, before time.Time) int {
	count := 0
	for _, sub := range attempts {
		if sub.Verdict == models.VerdictOK || sub.PassedTests == 0 {
			continue
		}
		if !before.IsZero() && !sub.SubmittedAt.Before(before) {
			continue
		}
		count++
	}
	return count
}
