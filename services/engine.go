package services

import (
	"strings"
	"time"

	"versus-service/models"
)

// 比赛状态机。本文件只做纯状态转换,不做任何 I/O:
// 所有函数在并发守卫 (store.Update) 拿到的最新记录上执行,
// 前置条件校验与写入在同一个原子单元内完成。

// AnswerOutcome 一次作答/弃答的结果,同时作为响应与广播的数据源
type AnswerOutcome struct {
	QuestionIndex  int    // 作答的题目下标
	Correct        bool   // 是否答对
	IsPassBack     bool   // 是否转答
	Points         int    // 本次得分变化
	PassedTo       string // 首答错误时设置: 转答持有者
	Finalized      bool   // 本题是否已结算
	MatchCompleted bool   // 结算后比赛是否结束
	CorrectIndex   int    // 正确选项,仅 Finalized 时有意义
	Explanation    string // 题目解析,仅 Finalized 时有意义
}

// NewMatch 创建一场待接受的比赛
func NewMatch(code, challengerID, opponentID string, totalQuestions int, now time.Time) *models.Match {
	return &models.Match{
		MatchCode:      code,
		Player1ID:      challengerID,
		Player2ID:      opponentID,
		Status:         models.StatusPending,
		TotalQuestions: totalQuestions,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AcceptMatch 被邀请者接受比赛: pending -> active
func AcceptMatch(m *models.Match, callerID string, now time.Time) error {
	if m.Status != models.StatusPending {
		return InvalidState("match is %s, cannot accept", m.Status)
	}
	if callerID != m.Player2ID {
		return Forbidden("only the invited player can accept")
	}
	m.Status = models.StatusActive
	m.StartedAt = &now
	return nil
}

// CancelMatch 取消比赛: pending -> cancelled。
// 被邀请者拒绝邀请,或发起者撤回邀请,都走这条转换。
func CancelMatch(m *models.Match, callerID string) error {
	if m.Status != models.StatusPending {
		return InvalidState("match is %s, cannot cancel", m.Status)
	}
	if callerID != m.Player1ID && callerID != m.Player2ID {
		return Forbidden("not a participant of this match")
	}
	m.Status = models.StatusCancelled
	return nil
}

// SetQuestions 写入题目列表。题目集合只能从空变为非空一次,
// 重复触发返回 Conflict,竞态下由并发守卫保证只有一次成功。
func SetQuestions(m *models.Match, callerID string, questions []models.Question) error {
	if callerID != m.Player1ID {
		return Forbidden("only the challenger can generate questions")
	}
	if m.Status == models.StatusCompleted || m.Status == models.StatusCancelled {
		return InvalidState("match is %s, cannot generate questions", m.Status)
	}
	if len(m.State.Questions) > 0 {
		return Conflict("AlreadyGenerated")
	}
	if len(questions) == 0 {
		return Validation("question list is empty")
	}

	m.State.Questions = questions
	m.State.History = make([]models.QuestionResult, len(questions))
	m.TotalQuestions = len(questions)
	m.State.Phase = models.PhaseAwaitingBuzz
	return nil
}

// BuzzIn 抢答。同一题至多一人抢答成功,竞争失败方收到 Conflict。
func BuzzIn(m *models.Match, callerID string, now time.Time) error {
	if m.Status != models.StatusActive {
		return InvalidState("match is %s, cannot buzz", m.Status)
	}
	if len(m.State.Questions) == 0 {
		return InvalidState("questions not generated yet")
	}
	if m.State.BuzzHolder != "" || m.State.PassedTo != "" {
		return Conflict("AlreadyBuzzed")
	}

	m.State.Phase = models.PhaseAwaitingFirstAnswer
	m.State.BuzzHolder = callerID
	m.State.BuzzedAt = now.UnixMilli()
	m.CurrentSlot().BuzzedBy = callerID
	return nil
}

// SubmitAnswer 作答。调用者必须是当前抢答者(首答)或转答持有者(转答)。
//
// 计分: 首答对 +100 / 转答对 +50 / 首答错 -50 / 转答错 0。
// 首答错误不结算本题,转给对手;其余情况结算并推进题目下标。
func SubmitAnswer(m *models.Match, callerID string, answerIndex int, timeRemaining *int, now time.Time) (*AnswerOutcome, error) {
	if m.Status != models.StatusActive {
		return nil, InvalidState("match is %s, cannot answer", m.Status)
	}

	question := m.CurrentQuestion()
	if question == nil {
		return nil, InvalidState("no active question")
	}
	if answerIndex < 0 || answerIndex >= len(question.Options) {
		return nil, Validation("answer index %d out of range", answerIndex)
	}

	isPassBack := false
	switch callerID {
	case m.State.BuzzHolder:
		// 首答
	case m.State.PassedTo:
		isPassBack = true
	default:
		if callerID == m.State.FirstAnswerBy && m.State.PassedTo != "" {
			// 首答者在转答窗口内重复提交
			return nil, Conflict("AlreadySubmitted")
		}
		return nil, Forbidden("You didn't buzz first")
	}

	correct := answerIndex == question.CorrectIndex
	points := scoreDelta(correct, isPassBack)
	applyScore(m, callerID, points)

	slot := m.CurrentSlot()
	recordAnswer(m, slot, callerID, answerIndex)
	if timeRemaining != nil {
		slot.TimeRemaining = timeRemaining
	}

	outcome := &AnswerOutcome{
		QuestionIndex: m.CurrentQuestionIndex,
		Correct:       correct,
		IsPassBack:    isPassBack,
		Points:        points,
	}

	if !correct && !isPassBack {
		// 分支 A: 首答错误,不结算。题目转给对手,正确答案不暴露。
		opponent := m.Opponent(callerID)
		m.State.Phase = models.PhaseAwaitingPassBack
		m.State.BuzzHolder = ""
		m.State.PassedTo = opponent
		m.State.FirstAnswerBy = callerID
		m.State.FirstAnswer = &answerIndex
		slot.PassedTo = opponent
		outcome.PassedTo = opponent
		return outcome, nil
	}

	// 分支 B: 答对(任一轮次)或转答错误,结算本题
	answeredBy := ""
	if correct {
		answeredBy = callerID
	}
	finalizeQuestion(m, slot, answeredBy, points, now)

	outcome.Finalized = true
	outcome.MatchCompleted = m.Status == models.StatusCompleted
	outcome.CorrectIndex = question.CorrectIndex
	outcome.Explanation = question.Explanation
	return outcome, nil
}

// PassQuestion 转答持有者主动弃答,本题无人得分,直接结算
func PassQuestion(m *models.Match, callerID string, now time.Time) (*AnswerOutcome, error) {
	if m.Status != models.StatusActive {
		return nil, InvalidState("match is %s, cannot pass", m.Status)
	}
	if callerID != m.State.PassedTo {
		return nil, Forbidden("only the pass-back holder can pass")
	}

	question := m.CurrentQuestion()
	slot := m.CurrentSlot()

	outcome := &AnswerOutcome{
		QuestionIndex: m.CurrentQuestionIndex,
		IsPassBack:    true,
		Finalized:     true,
		CorrectIndex:  question.CorrectIndex,
		Explanation:   question.Explanation,
	}

	finalizeQuestion(m, slot, "", 0, now)
	outcome.MatchCompleted = m.Status == models.StatusCompleted
	return outcome, nil
}

// AppendChat 追加聊天消息,不影响比分与状态
func AppendChat(m *models.Match, callerID, text string, now time.Time) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, Validation("message is empty")
	}
	if len(text) > models.MaxChatMessageLength {
		return nil, Validation("message exceeds %d characters", models.MaxChatMessageLength)
	}

	msg := models.ChatMessage{
		AuthorID:  callerID,
		Text:      text,
		Timestamp: now,
	}
	m.Chat = append(m.Chat, msg)
	return &msg, nil
}

func scoreDelta(correct, isPassBack bool) int {
	switch {
	case correct && !isPassBack:
		return models.PointsFirstCorrect
	case correct && isPassBack:
		return models.PointsPassBackCorrect
	case !correct && !isPassBack:
		return models.PointsFirstWrong
	default:
		return models.PointsPassBackWrong
	}
}

func applyScore(m *models.Match, playerID string, delta int) {
	if playerID == m.Player1ID {
		m.Player1Score += delta
	} else {
		m.Player2Score += delta
	}
}

func recordAnswer(m *models.Match, slot *models.QuestionResult, playerID string, answerIndex int) {
	idx := answerIndex
	if playerID == m.Player1ID {
		slot.Player1Answer = &idx
	} else {
		slot.Player2Answer = &idx
	}
}

// finalizeQuestion 结算当前题目: 写历史槽位,清空瞬时状态,
// 下标 +1;到达最后一题时结束比赛并判定胜者。
func finalizeQuestion(m *models.Match, slot *models.QuestionResult, answeredBy string, points int, now time.Time) {
	slot.AnsweredCorrectly = answeredBy
	slot.PointsAwarded = points
	slot.Finalized = true

	m.State.BuzzHolder = ""
	m.State.PassedTo = ""
	m.State.FirstAnswerBy = ""
	m.State.FirstAnswer = nil
	m.State.BuzzedAt = 0
	m.State.Phase = models.PhaseAwaitingBuzz

	m.CurrentQuestionIndex++

	if m.CurrentQuestionIndex >= m.TotalQuestions {
		m.Status = models.StatusCompleted
		m.CompletedAt = &now
		m.State.Phase = ""
		m.WinnerID = decideWinner(m)
	}
}

// decideWinner 按原始分判定胜者,平分返回 nil
func decideWinner(m *models.Match) *string {
	switch {
	case m.Player1Score > m.Player2Score:
		w := m.Player1ID
		return &w
	case m.Player2Score > m.Player1Score:
		w := m.Player2ID
		return &w
	default:
		return nil
	}
}
