package app

import (
	"sort"
	"strings"

	"live-quiz-service/internal/domain"
)

// Grade checks a submitted answer against the question's answer key and
// returns (correct, points awarded). It is a pure function: re-grading the
// same inputs always yields the same result. Absent submissions are handled
// by the caller and never reach here.
func Grade(q domain.Question, answer string) (bool, int) {
	var correct bool
	switch q.Type {
	case domain.QuestionFreeText:
		correct = normalizeText(answer) == normalizeText(q.Answer)
	default:
		// Option keys tolerate trim + case-fold but nothing more.
		correct = normalizeKey(answer) == normalizeKey(q.Answer)
	}
	if !correct {
		return false, 0
	}
	points := q.Points
	if points == 0 {
		points = 1
	}
	return true, points
}

// normalizeKey applies the documented option-key normalization.
func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeText additionally collapses internal whitespace for free-text
// comparison.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Rank orders teams by descending cumulative score using standard
// competition ranking: tied teams share a rank, and the next distinct score
// takes rank = number of teams strictly above it, plus one.
func Rank(teams []*domain.Team) []domain.Standing {
	standings := make([]domain.Standing, 0, len(teams))
	for _, t := range teams {
		standings = append(standings, domain.Standing{
			TeamID: t.ID,
			Name:   t.Name,
			Score:  t.Score,
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].Name < standings[j].Name
	})

	for i := range standings {
		if i > 0 && standings[i].Score == standings[i-1].Score {
			standings[i].Rank = standings[i-1].Rank
		} else {
			standings[i].Rank = i + 1
		}
	}
	for i := range standings {
		prev := i > 0 && standings[i-1].Score == standings[i].Score
		next := i+1 < len(standings) && standings[i+1].Score == standings[i].Score
		standings[i].Tied = prev || next
	}
	return standings
}

// Distribution recomputes the answer distribution for the open question from
// its submissions. Teams that never submitted are excluded from the
// per-answer counts and surface only in the Unanswered aggregate.
func Distribution(q domain.Question, subs map[string]*domain.Submission, teamCount int) domain.AnswerDistribution {
	dist := domain.AnswerDistribution{Counts: make(map[string]int)}
	for _, sub := range subs {
		label := sub.Answer
		if q.Type == domain.QuestionMultipleChoice {
			label = normalizeKey(sub.Answer)
		}
		dist.Counts[label]++
		if sub.Correct {
			dist.Correct++
		} else {
			dist.Incorrect++
		}
	}
	dist.Unanswered = teamCount - len(subs)
	return dist
}
