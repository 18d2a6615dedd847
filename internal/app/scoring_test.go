package app

import (
	"testing"

	"live-quiz-service/internal/domain"
)

func TestGradeMultipleChoice(t *testing.T) {
	q := domain.Question{
		ID:     "q1",
		Type:   domain.QuestionMultipleChoice,
		Answer: "B",
		Points: 10,
	}

	correct, points := Grade(q, " b ")
	if !correct || points != 10 {
		t.Fatalf("expected trim+case-fold match worth 10, got correct=%v points=%d", correct, points)
	}

	correct, points = Grade(q, "a")
	if correct || points != 0 {
		t.Fatalf("expected wrong option to score zero, got correct=%v points=%d", correct, points)
	}
}

func TestGradeFreeText(t *testing.T) {
	q := domain.Question{
		ID:     "q2",
		Type:   domain.QuestionFreeText,
		Answer: "New York City",
		Points: 5,
	}

	correct, points := Grade(q, "  new   YORK city ")
	if !correct || points != 5 {
		t.Fatalf("expected normalized free-text match worth 5, got correct=%v points=%d", correct, points)
	}

	if correct, _ := Grade(q, "new jersey"); correct {
		t.Fatalf("expected mismatch to be incorrect")
	}
}

func TestGradeDefaultsToOnePoint(t *testing.T) {
	q := domain.Question{Type: domain.QuestionMultipleChoice, Answer: "a"}
	if _, points := Grade(q, "a"); points != 1 {
		t.Fatalf("expected default point value 1, got %d", points)
	}
}

func TestRankCompetitionStyle(t *testing.T) {
	teams := []*domain.Team{
		{ID: "t1", Name: "Alpha", Score: 50},
		{ID: "t2", Name: "Bravo", Score: 50},
		{ID: "t3", Name: "Charlie", Score: 30},
	}

	standings := Rank(teams)
	if len(standings) != 3 {
		t.Fatalf("expected 3 standings, got %d", len(standings))
	}
	if standings[0].Rank != 1 || standings[1].Rank != 1 || standings[2].Rank != 3 {
		t.Fatalf("expected ranks [1 1 3], got [%d %d %d]", standings[0].Rank, standings[1].Rank, standings[2].Rank)
	}
	if !standings[0].Tied || !standings[1].Tied || standings[2].Tied {
		t.Fatalf("expected tie flags [true true false], got [%v %v %v]", standings[0].Tied, standings[1].Tied, standings[2].Tied)
	}
	if standings[2].TeamID != "t3" {
		t.Fatalf("expected Charlie last, got %s", standings[2].TeamID)
	}
}

func TestDistributionExcludesSilentTeams(t *testing.T) {
	q := domain.Question{ID: "q1", Type: domain.QuestionMultipleChoice, Answer: "b"}
	subs := map[string]*domain.Submission{
		"t1": {TeamID: "t1", QuestionID: "q1", Answer: "b", Correct: true},
		"t2": {TeamID: "t2", QuestionID: "q1", Answer: "A", Correct: false},
	}

	dist := Distribution(q, subs, 4)
	if dist.Counts["b"] != 1 || dist.Counts["a"] != 1 {
		t.Fatalf("expected per-option counts b=1 a=1, got %v", dist.Counts)
	}
	if dist.Correct != 1 || dist.Incorrect != 1 || dist.Unanswered != 2 {
		t.Fatalf("expected 1 correct, 1 incorrect, 2 unanswered, got %+v", dist)
	}
}
