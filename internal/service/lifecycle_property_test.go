package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"hr-portal/internal/model"
)

var allStatuses = []model.UserTaskStatus{
	model.StatusTaken,
	model.StatusSubmitted,
	model.StatusApproved,
	model.StatusRejected,
	model.StatusRevision,
	model.StatusExpired,
}

// TestLevelOrderingProperty checks that Satisfies follows the tier order and
// is transitive.
func TestLevelOrderingProperty(t *testing.T) {
	levels := model.Levels()
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SampledFrom(levels).Draw(t, "a")
		b := rapid.SampledFrom(levels).Draw(t, "b")
		c := rapid.SampledFrom(levels).Draw(t, "c")

		if a.Satisfies(b) != (a.Rank() >= b.Rank()) {
			t.Fatalf("%s.Satisfies(%s) disagrees with rank", a, b)
		}
		if a.Satisfies(b) && b.Satisfies(c) && !a.Satisfies(c) {
			t.Fatalf("not transitive: %s >= %s >= %s", a, b, c)
		}
		if !a.Satisfies(a) {
			t.Fatalf("%s does not satisfy itself", a)
		}
	})
}

// TestTerminalStatesHaveNoExitsProperty checks that no edge leaves a terminal
// state and that submission is only possible from taken or revision.
func TestTerminalStatesHaveNoExitsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(allStatuses).Draw(t, "from")
		to := rapid.SampledFrom(allStatuses).Draw(t, "to")

		if from.IsTerminal() && from.CanTransitionTo(to) {
			t.Fatalf("terminal %s has edge to %s", from, to)
		}
		if to == model.StatusSubmitted && from.CanTransitionTo(to) != from.CanSubmit() {
			t.Fatalf("submit edge from %s disagrees with CanSubmit", from)
		}
		if to == model.StatusApproved && from.CanTransitionTo(to) && from != model.StatusSubmitted {
			t.Fatalf("approval reachable from %s", from)
		}
	})
}

func TestReviewDecisionTargets(t *testing.T) {
	cases := map[model.ReviewDecision]model.UserTaskStatus{
		model.DecisionApprove:  model.StatusApproved,
		model.DecisionReject:   model.StatusRejected,
		model.DecisionRevision: model.StatusRevision,
	}
	for decision, want := range cases {
		got, err := decision.TargetStatus()
		if err != nil || got != want {
			t.Fatalf("%s: got %s, %v", decision, got, err)
		}
		if !model.StatusSubmitted.CanTransitionTo(got) {
			t.Fatalf("submitted cannot move to %s", got)
		}
	}
	if _, err := model.ReviewDecision("maybe").TargetStatus(); err == nil {
		t.Fatalf("unknown decision accepted")
	}
}

// TestAttemptDeadlineProperty checks that the deadline uses the task's own
// limit when positive and the fallback otherwise.
func TestAttemptDeadlineProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		takenAt := time.Unix(rapid.Int64Range(0, 4_000_000_000).Draw(t, "taken"), 0).UTC()
		fallback := time.Duration(rapid.IntRange(1, 240).Draw(t, "fallback")) * time.Hour

		var limit *int
		if rapid.Bool().Draw(t, "hasLimit") {
			h := rapid.IntRange(-5, 500).Draw(t, "limit")
			limit = &h
		}

		got := model.AttemptDeadline(takenAt, limit, fallback)

		want := takenAt.Add(fallback)
		if limit != nil && *limit > 0 {
			want = takenAt.Add(time.Duration(*limit) * time.Hour)
		}
		if !got.Equal(want) {
			t.Fatalf("deadline %v, want %v", got, want)
		}
		if !got.After(takenAt) {
			t.Fatalf("deadline %v not after taken %v", got, takenAt)
		}
	})
}

// TestOverdueOnlyForTakenProperty checks that only taken attempts past their
// deadline are overdue. An attempt is not overdue at the deadline itself.
func TestOverdueOnlyForTakenProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deadline := time.Unix(rapid.Int64Range(1_000_000, 2_000_000).Draw(t, "deadline"), 0)
		offset := time.Duration(rapid.Int64Range(-1000, 1000).Draw(t, "offset")) * time.Second
		status := rapid.SampledFrom(allStatuses).Draw(t, "status")

		ut := &model.UserTask{Status: status, ExpiresAt: deadline}
		want := status == model.StatusTaken && offset > 0
		if got := ut.Overdue(deadline.Add(offset)); got != want {
			t.Fatalf("status=%s offset=%v overdue=%v want %v", status, offset, got, want)
		}
	})
}

// TestParseSettingsProperty checks that well-formed minimums are read and
// anything else falls back to the default.
func TestParseSettingsProperty(t *testing.T) {
	defaults := SettingsSnapshot{GlobalMinWithdrawal: decimal.RequireFromString("50")}
	rapid.Check(t, func(t *rapid.T) {
		values := map[string]string{}
		var want decimal.Decimal

		switch rapid.IntRange(0, 2).Draw(t, "shape") {
		case 0:
			want = defaults.GlobalMinWithdrawal
		case 1:
			want = decimal.New(rapid.Int64Range(0, 1_000_000).Draw(t, "value"), -2)
			values[model.SettingGlobalMinWithdrawal] = want.StringFixed(2)
		default:
			values[model.SettingGlobalMinWithdrawal] = rapid.SampledFrom([]string{"", "abc", "-1", "1,5"}).Draw(t, "garbage")
			want = defaults.GlobalMinWithdrawal
		}

		snap := parseSettings(values, defaults)
		if !snap.GlobalMinWithdrawal.Equal(want) {
			t.Fatalf("parsed %s from %v, want %s", snap.GlobalMinWithdrawal, values, want)
		}
	})
}

func TestMergeProof(t *testing.T) {
	old := "old text"
	current := &model.UserTask{
		Proof:      &old,
		ProofFiles: []string{"/uploads/a.png"},
		ProofLinks: []string{"https://example.org/a"},
	}

	text, files, links := mergeProof(current, Proof{Text: "  "})
	if text == nil || *text != old || len(files) != 1 || len(links) != 1 {
		t.Fatalf("empty resubmission should keep previous proof: %v %v %v", text, files, links)
	}

	text, files, links = mergeProof(current, Proof{
		Text:  "new",
		Files: []string{"/uploads/b.png", "/uploads/c.png"},
		Links: []string{" ", "https://example.org/b"},
	})
	if *text != "new" || len(files) != 2 || len(links) != 1 || links[0] != "https://example.org/b" {
		t.Fatalf("resubmission should overwrite provided fields: %v %v %v", *text, files, links)
	}
}

func TestErrorKinds(t *testing.T) {
	if !errors.Is(ErrAlreadyReviewed, ErrConflict) || !errors.Is(ErrAlreadyReviewed, ErrInvalidState) {
		t.Fatalf("ErrAlreadyReviewed must be both conflict and invalid state")
	}
	wrapped := storageErr("op", errors.New("boom"))
	if !errors.Is(wrapped, ErrStorage) {
		t.Fatalf("storage error does not match ErrStorage")
	}
	if got := storageErr("op", ErrTaskNotFound); got != ErrTaskNotFound {
		t.Fatalf("storageErr must pass kinded errors through, got %v", got)
	}
	if !errors.Is(invalidInput("x %d", 1), ErrPolicy) {
		t.Fatalf("invalid input must be a policy error")
	}
}
