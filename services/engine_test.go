package services

import (
	"strings"
	"testing"
	"time"

	"versus-service/models"
)

const (
	playerA = "user-a"
	playerB = "user-b"
)

func testQuestions() []models.Question {
	return []models.Question{
		{Prompt: "Q1", Options: []string{"x", "y", "z", "w"}, CorrectIndex: 1, Topic: "general"},
		{Prompt: "Q2", Options: []string{"x", "y", "z", "w"}, CorrectIndex: 0, Topic: "general"},
		{Prompt: "Q3", Options: []string{"x", "y", "z", "w"}, CorrectIndex: 3, Topic: "science"},
	}
}

// newActiveMatch 构造一场已接受、已生成题目的比赛
func newActiveMatch(t *testing.T) *models.Match {
	t.Helper()
	m := NewMatch("code-1", playerA, playerB, 3, time.Now())

	if err := AcceptMatch(m, playerB, time.Now()); err != nil {
		t.Fatalf("AcceptMatch failed: %v", err)
	}
	if err := SetQuestions(m, playerA, testQuestions()); err != nil {
		t.Fatalf("SetQuestions failed: %v", err)
	}
	return m
}

func TestScoreDelta(t *testing.T) {
	cases := []struct {
		correct    bool
		isPassBack bool
		want       int
	}{
		{true, false, 100},
		{true, true, 50},
		{false, false, -50},
		{false, true, 0},
	}

	for _, c := range cases {
		got := scoreDelta(c.correct, c.isPassBack)
		if got != c.want {
			t.Errorf("scoreDelta(correct=%v, passBack=%v) = %d, want %d", c.correct, c.isPassBack, got, c.want)
		}
	}
}

func TestAcceptMatch(t *testing.T) {
	m := NewMatch("code-1", playerA, playerB, 3, time.Now())

	if err := AcceptMatch(m, playerA, time.Now()); KindOf(err) != KindForbidden {
		t.Errorf("Expected Forbidden when challenger accepts, got %v", err)
	}

	if err := AcceptMatch(m, playerB, time.Now()); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if m.Status != models.StatusActive {
		t.Errorf("Expected status active, got %s", m.Status)
	}
	if m.StartedAt == nil {
		t.Error("Expected StartedAt to be set")
	}

	if err := AcceptMatch(m, playerB, time.Now()); KindOf(err) != KindInvalidState {
		t.Errorf("Expected InvalidState on double accept, got %v", err)
	}
}

func TestCancelMatch(t *testing.T) {
	// 被邀请者拒绝
	m := NewMatch("code-1", playerA, playerB, 3, time.Now())
	if err := CancelMatch(m, playerB); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if m.Status != models.StatusCancelled {
		t.Errorf("Expected status cancelled, got %s", m.Status)
	}

	// 发起者撤回
	m = NewMatch("code-2", playerA, playerB, 3, time.Now())
	if err := CancelMatch(m, playerA); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	// 非参与者
	m = NewMatch("code-3", playerA, playerB, 3, time.Now())
	if err := CancelMatch(m, "stranger"); KindOf(err) != KindForbidden {
		t.Errorf("Expected Forbidden for stranger, got %v", err)
	}

	// 已激活的比赛不能取消
	m = newActiveMatch(t)
	if err := CancelMatch(m, playerA); KindOf(err) != KindInvalidState {
		t.Errorf("Expected InvalidState cancelling active match, got %v", err)
	}
}

func TestSetQuestionsOnlyOnce(t *testing.T) {
	m := NewMatch("code-1", playerA, playerB, 3, time.Now())
	if err := AcceptMatch(m, playerB, time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := SetQuestions(m, playerB, testQuestions()); KindOf(err) != KindForbidden {
		t.Errorf("Expected Forbidden when opponent generates, got %v", err)
	}

	if err := SetQuestions(m, playerA, testQuestions()); err != nil {
		t.Fatalf("SetQuestions failed: %v", err)
	}
	if len(m.State.History) != 3 {
		t.Errorf("Expected 3 history slots, got %d", len(m.State.History))
	}
	if m.State.Phase != models.PhaseAwaitingBuzz {
		t.Errorf("Expected phase awaiting_buzz, got %s", m.State.Phase)
	}

	err := SetQuestions(m, playerA, testQuestions())
	if KindOf(err) != KindConflict {
		t.Errorf("Expected Conflict on second generation, got %v", err)
	}
	if err.Error() != "AlreadyGenerated" {
		t.Errorf("Expected AlreadyGenerated message, got %q", err.Error())
	}
}

func TestBuzzAtMostOne(t *testing.T) {
	m := newActiveMatch(t)

	if err := BuzzIn(m, playerA, time.Now()); err != nil {
		t.Fatalf("Buzz failed: %v", err)
	}
	if m.State.BuzzHolder != playerA {
		t.Errorf("Expected buzz holder %s, got %s", playerA, m.State.BuzzHolder)
	}
	if m.State.Phase != models.PhaseAwaitingFirstAnswer {
		t.Errorf("Expected phase awaiting_first_answer, got %s", m.State.Phase)
	}

	// Scenario D: B 抢答落后于 A,收到 Conflict,A 仍持有抢答权
	err := BuzzIn(m, playerB, time.Now())
	if KindOf(err) != KindConflict {
		t.Fatalf("Expected Conflict for second buzz, got %v", err)
	}
	if err.Error() != "AlreadyBuzzed" {
		t.Errorf("Expected AlreadyBuzzed message, got %q", err.Error())
	}
	if m.State.BuzzHolder != playerA {
		t.Errorf("Buzz holder changed after rejected buzz: %s", m.State.BuzzHolder)
	}
}

func TestBuzzRequiresActiveQuestions(t *testing.T) {
	m := NewMatch("code-1", playerA, playerB, 3, time.Now())
	if err := BuzzIn(m, playerA, time.Now()); KindOf(err) != KindInvalidState {
		t.Errorf("Expected InvalidState buzzing pending match, got %v", err)
	}

	if err := AcceptMatch(m, playerB, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := BuzzIn(m, playerA, time.Now()); KindOf(err) != KindInvalidState {
		t.Errorf("Expected InvalidState before questions generated, got %v", err)
	}
}

// Scenario B: 首答正确,+100,直接推进,无转答
func TestAnswerFirstCorrect(t *testing.T) {
	m := newActiveMatch(t)
	if err := BuzzIn(m, playerA, time.Now()); err != nil {
		t.Fatal(err)
	}

	outcome, err := SubmitAnswer(m, playerA, 1, nil, time.Now())
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}

	if !outcome.Correct || outcome.Points != 100 {
		t.Errorf("Expected correct +100, got correct=%v points=%d", outcome.Correct, outcome.Points)
	}
	if !outcome.Finalized {
		t.Error("Expected question to be finalized")
	}
	if m.CurrentQuestionIndex != 1 {
		t.Errorf("Expected index 1, got %d", m.CurrentQuestionIndex)
	}
	if m.Player1Score != 100 {
		t.Errorf("Expected player1 score 100, got %d", m.Player1Score)
	}
	if m.State.BuzzHolder != "" || m.State.PassedTo != "" {
		t.Error("Transient fields not cleared after finalize")
	}

	slot := m.State.History[0]
	if slot.AnsweredCorrectly != playerA || slot.PointsAwarded != 100 || !slot.Finalized {
		t.Errorf("Unexpected history slot: %+v", slot)
	}
}

// Scenario A: A 首答错误 -50 转给 B,B 转答正确 +50,本题结算
func TestAnswerPassBackFlow(t *testing.T) {
	m := newActiveMatch(t)
	if err := BuzzIn(m, playerA, time.Now()); err != nil {
		t.Fatal(err)
	}

	outcome, err := SubmitAnswer(m, playerA, 0, nil, time.Now())
	if err != nil {
		t.Fatalf("First answer failed: %v", err)
	}

	if outcome.Correct || outcome.Points != -50 {
		t.Errorf("Expected wrong -50, got correct=%v points=%d", outcome.Correct, outcome.Points)
	}
	if outcome.Finalized {
		t.Error("First wrong answer must not finalize the question")
	}
	if outcome.PassedTo != playerB {
		t.Errorf("Expected passed to %s, got %s", playerB, outcome.PassedTo)
	}
	// 首答错误的结果不得携带正确答案
	if outcome.CorrectIndex != 0 || outcome.Explanation != "" {
		t.Error("First-wrong outcome leaked the correct answer")
	}
	if m.CurrentQuestionIndex != 0 {
		t.Errorf("Index must stay at 0, got %d", m.CurrentQuestionIndex)
	}
	// 不变量: 抢答者与转答者不能同时存在
	if m.State.BuzzHolder != "" {
		t.Errorf("BuzzHolder must be cleared during pass-back, got %s", m.State.BuzzHolder)
	}
	if m.State.PassedTo != playerB {
		t.Errorf("Expected PassedTo %s, got %s", playerB, m.State.PassedTo)
	}
	if m.State.Phase != models.PhaseAwaitingPassBack {
		t.Errorf("Expected phase awaiting_pass_back, got %s", m.State.Phase)
	}

	outcome, err = SubmitAnswer(m, playerB, 1, nil, time.Now())
	if err != nil {
		t.Fatalf("Pass-back answer failed: %v", err)
	}
	if !outcome.Correct || outcome.Points != 50 || !outcome.IsPassBack {
		t.Errorf("Expected pass-back correct +50, got %+v", outcome)
	}
	if m.CurrentQuestionIndex != 1 {
		t.Errorf("Expected index 1 after finalize, got %d", m.CurrentQuestionIndex)
	}
	if m.Player1Score != -50 || m.Player2Score != 50 {
		t.Errorf("Unexpected scores: %d / %d", m.Player1Score, m.Player2Score)
	}

	slot := m.State.History[0]
	if slot.BuzzedBy != playerA || slot.PassedTo != playerB ||
		slot.AnsweredCorrectly != playerB || slot.PointsAwarded != 50 {
		t.Errorf("Unexpected history slot: %+v", slot)
	}
}

func TestAnswerWrongPassBack(t *testing.T) {
	m := newActiveMatch(t)
	if err := BuzzIn(m, playerB, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := SubmitAnswer(m, playerB, 2, nil, time.Now()); err != nil {
		t.Fatal(err)
	}

	outcome, err := SubmitAnswer(m, playerA, 3, nil, time.Now())
	if err != nil {
		t.Fatalf("Wrong pass-back answer failed: %v", err)
	}
	if outcome.Correct || outcome.Points != 0 || !outcome.Finalized {
		t.Errorf("Expected wrong pass-back to finalize with 0 points, got %+v", outcome)
	}
	if m.State.History[0].AnsweredCorrectly != "" {
		t.Error("Expected no correct answerer recorded")
	}
	if m.CurrentQuestionIndex != 1 {
		t.Errorf("Expected index 1, got %d", m.CurrentQuestionIndex)
	}
}

func TestAnswerForbidden(t *testing.T) {
	m := newActiveMatch(t)
	if err := BuzzIn(m, playerA, time.Now()); err != nil {
		t.Fatal(err)
	}

	// 没抢到答题权的一方不能作答
	_, err := SubmitAnswer(m, playerB, 1, nil, time.Now())
	if KindOf(err) != KindForbidden {
		t.Fatalf("Expected Forbidden, got %v", err)
	}
	if err.Error() != "You didn't buzz first" {
		t.Errorf("Unexpected message: %q", err.Error())
	}

	// 首答错误后,首答者在转答窗口内重复提交
	if _, err := SubmitAnswer(m, playerA, 0, nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	_, err = SubmitAnswer(m, playerA, 1, nil, time.Now())
	if KindOf(err) != KindConflict || err.Error() != "AlreadySubmitted" {
		t.Errorf("Expected Conflict AlreadySubmitted, got %v", err)
	}
}

func TestAnswerValidation(t *testing.T) {
	m := newActiveMatch(t)
	if err := BuzzIn(m, playerA, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := SubmitAnswer(m, playerA, 7, nil, time.Now()); KindOf(err) != KindValidation {
		t.Errorf("Expected Validation for out-of-range index, got %v", err)
	}
	if _, err := SubmitAnswer(m, playerA, -1, nil, time.Now()); KindOf(err) != KindValidation {
		t.Errorf("Expected Validation for negative index, got %v", err)
	}
}

func TestPassQuestion(t *testing.T) {
	m := newActiveMatch(t)
	if err := BuzzIn(m, playerA, time.Now()); err != nil {
		t.Fatal(err)
	}

	// 只有转答持有者能弃答
	if _, err := PassQuestion(m, playerA, time.Now()); KindOf(err) != KindForbidden {
		t.Errorf("Expected Forbidden before pass-back exists, got %v", err)
	}

	if _, err := SubmitAnswer(m, playerA, 0, nil, time.Now()); err != nil {
		t.Fatal(err)
	}

	outcome, err := PassQuestion(m, playerB, time.Now())
	if err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if !outcome.Finalized || outcome.Points != 0 {
		t.Errorf("Expected finalize with 0 points, got %+v", outcome)
	}
	if m.CurrentQuestionIndex != 1 {
		t.Errorf("Expected index 1, got %d", m.CurrentQuestionIndex)
	}
	if m.Player2Score != 0 {
		t.Errorf("Pass must not change score, got %d", m.Player2Score)
	}
	if m.State.History[0].AnsweredCorrectly != "" || m.State.History[0].PointsAwarded != 0 {
		t.Errorf("Unexpected history slot: %+v", m.State.History[0])
	}
}

// 打满全部题目: 状态只能走 active -> completed,胜者按原始分判定
func TestCompletionAndWinner(t *testing.T) {
	m := newActiveMatch(t)

	answers := []struct {
		player string
		index  int
	}{
		{playerA, 1}, // A +100
		{playerB, 0}, // B +100
		{playerA, 3}, // A +100
	}

	for i, a := range answers {
		if m.CurrentQuestionIndex != i {
			t.Fatalf("Expected index %d, got %d", i, m.CurrentQuestionIndex)
		}
		if err := BuzzIn(m, a.player, time.Now()); err != nil {
			t.Fatalf("Buzz %d failed: %v", i, err)
		}
		outcome, err := SubmitAnswer(m, a.player, a.index, nil, time.Now())
		if err != nil {
			t.Fatalf("Answer %d failed: %v", i, err)
		}
		if !outcome.Correct {
			t.Fatalf("Answer %d expected correct", i)
		}
	}

	if m.Status != models.StatusCompleted {
		t.Fatalf("Expected completed, got %s", m.Status)
	}
	if m.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
	if m.WinnerID == nil || *m.WinnerID != playerA {
		t.Errorf("Expected winner %s, got %v", playerA, m.WinnerID)
	}

	// 比赛结束后不能再有任何动作
	if err := BuzzIn(m, playerB, time.Now()); KindOf(err) != KindInvalidState {
		t.Errorf("Expected InvalidState buzzing completed match, got %v", err)
	}
}

// Scenario C: 平分 -> winnerId 为空。两题局,双方各首答对一题。
func TestDrawHasNoWinner(t *testing.T) {
	m := NewMatch("draw", playerA, playerB, 2, time.Now())
	if err := AcceptMatch(m, playerB, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := SetQuestions(m, playerA, testQuestions()[:2]); err != nil {
		t.Fatal(err)
	}

	for i, p := range []string{playerA, playerB} {
		q := m.State.Questions[i]
		if err := BuzzIn(m, p, time.Now()); err != nil {
			t.Fatal(err)
		}
		if _, err := SubmitAnswer(m, p, q.CorrectIndex, nil, time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	if m.Status != models.StatusCompleted {
		t.Fatalf("Expected completed, got %s", m.Status)
	}
	if m.Player1Score != m.Player2Score {
		t.Fatalf("Expected equal scores, got %d / %d", m.Player1Score, m.Player2Score)
	}
	if m.WinnerID != nil {
		t.Errorf("Expected nil winner on draw, got %v", *m.WinnerID)
	}
}

func TestAppendChat(t *testing.T) {
	m := newActiveMatch(t)

	msg, err := AppendChat(m, playerA, "  gg let's go  ", time.Now())
	if err != nil {
		t.Fatalf("AppendChat failed: %v", err)
	}
	if msg.Text != "gg let's go" {
		t.Errorf("Expected trimmed text, got %q", msg.Text)
	}
	if len(m.Chat) != 1 {
		t.Errorf("Expected 1 chat message, got %d", len(m.Chat))
	}

	if _, err := AppendChat(m, playerA, "   ", time.Now()); KindOf(err) != KindValidation {
		t.Errorf("Expected Validation for empty message, got %v", err)
	}

	long := strings.Repeat("a", models.MaxChatMessageLength+1)
	if _, err := AppendChat(m, playerA, long, time.Now()); KindOf(err) != KindValidation {
		t.Errorf("Expected Validation for oversized message, got %v", err)
	}
}

func TestBuildRecap(t *testing.T) {
	m := newActiveMatch(t)
	if err := BuzzIn(m, playerA, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := SubmitAnswer(m, playerA, 1, nil, time.Now()); err != nil {
		t.Fatal(err)
	}

	recap := models.BuildRecap(m)
	if len(recap) != 3 {
		t.Fatalf("Expected 3 recap entries, got %d", len(recap))
	}
	if recap[0].AnsweredCorrectly != playerA || recap[0].CorrectIndex != 1 {
		t.Errorf("Unexpected recap entry: %+v", recap[0])
	}
}
