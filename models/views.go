package models

import (
	"time"
)

// QuestionView 面向玩家的题目视图,绝不包含正确答案
type QuestionView struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Topic   string   `json:"topic,omitempty"`
}

// RecapEntry 比赛结束后的逐题回顾(题目与历史槽位合并)
type RecapEntry struct {
	Index             int      `json:"index"`
	Prompt            string   `json:"prompt"`
	Options           []string `json:"options"`
	CorrectIndex      int      `json:"correct_index"`
	Explanation       string   `json:"explanation,omitempty"`
	BuzzedBy          string   `json:"buzzed_by,omitempty"`
	PassedTo          string   `json:"passed_to,omitempty"`
	Player1Answer     *int     `json:"player1_answer,omitempty"`
	Player2Answer     *int     `json:"player2_answer,omitempty"`
	AnsweredCorrectly string   `json:"answered_correctly,omitempty"`
	PointsAwarded     int      `json:"points_awarded"`
}

// MatchView 按调用者裁剪后的比赛视图
type MatchView struct {
	MatchCode            string        `json:"match_code"`
	Status               string        `json:"status"`
	Player1ID            string        `json:"player1_id"`
	Player2ID            string        `json:"player2_id"`
	YourRole             string        `json:"your_role"` // player1 | player2
	CurrentQuestionIndex int           `json:"current_question_index"`
	TotalQuestions       int           `json:"total_questions"`
	YourScore            int           `json:"your_score"`     // 展示分,负数归零
	OpponentScore        int           `json:"opponent_score"` // 展示分,负数归零
	QuestionsReady       bool          `json:"questions_ready"`
	CurrentQuestion      *QuestionView `json:"current_question,omitempty"`
	Phase                string        `json:"phase,omitempty"`
	BuzzHolder           string        `json:"buzz_holder,omitempty"`
	PassedTo             string        `json:"passed_to,omitempty"`
	YouHoldBuzz          bool          `json:"you_hold_buzz"`
	YouHoldPassBack      bool          `json:"you_hold_pass_back"`
	WinnerID             *string       `json:"winner_id,omitempty"`
	StartedAt            *time.Time    `json:"started_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	Chat                 []ChatMessage `json:"chat,omitempty"`
	Recap                []RecapEntry  `json:"recap,omitempty"` // 仅比赛结束后返回
}

// MatchSummary 对称广播用的公共视图: 双方收到同一份数据,
// 不含任何一方视角的私有信息,也不含正确答案。
type MatchSummary struct {
	MatchCode            string     `json:"match_code"`
	Status               string     `json:"status"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	TotalQuestions       int        `json:"total_questions"`
	Player1Score         int        `json:"player1_score"`
	Player2Score         int        `json:"player2_score"`
	QuestionsReady       bool       `json:"questions_ready"`
	Phase                string     `json:"phase,omitempty"`
	BuzzHolder           string     `json:"buzz_holder,omitempty"`
	PassedTo             string     `json:"passed_to,omitempty"`
	WinnerID             *string    `json:"winner_id,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// NewMatchSummary 构造公共视图
func NewMatchSummary(m *Match) *MatchSummary {
	return &MatchSummary{
		MatchCode:            m.MatchCode,
		Status:               m.Status,
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		TotalQuestions:       m.TotalQuestions,
		Player1Score:         displayScore(m.Player1Score),
		Player2Score:         displayScore(m.Player2Score),
		QuestionsReady:       len(m.State.Questions) > 0,
		Phase:                m.State.Phase,
		BuzzHolder:           m.State.BuzzHolder,
		PassedTo:             m.State.PassedTo,
		WinnerID:             m.WinnerID,
		CompletedAt:          m.CompletedAt,
	}
}

// displayScore 展示分:原始分允许为负,但展示时归零
func displayScore(raw int) int {
	if raw < 0 {
		return 0
	}
	return raw
}

// NewMatchView 构造调用者视角的比赛视图。当前题目的正确答案
// 永远不出现在视图里;完整回顾只在比赛完成后生成。
func NewMatchView(m *Match, callerID string) *MatchView {
	role := "player2"
	if callerID == m.Player1ID {
		role = "player1"
	}

	v := &MatchView{
		MatchCode:            m.MatchCode,
		Status:               m.Status,
		Player1ID:            m.Player1ID,
		Player2ID:            m.Player2ID,
		YourRole:             role,
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		TotalQuestions:       m.TotalQuestions,
		YourScore:            displayScore(m.ScoreOf(callerID)),
		OpponentScore:        displayScore(m.ScoreOf(m.Opponent(callerID))),
		QuestionsReady:       len(m.State.Questions) > 0,
		Phase:                m.State.Phase,
		BuzzHolder:           m.State.BuzzHolder,
		PassedTo:             m.State.PassedTo,
		YouHoldBuzz:          m.State.BuzzHolder == callerID,
		YouHoldPassBack:      m.State.PassedTo == callerID,
		WinnerID:             m.WinnerID,
		StartedAt:            m.StartedAt,
		CompletedAt:          m.CompletedAt,
		Chat:                 m.Chat,
	}

	if q := m.CurrentQuestion(); q != nil && m.Status == StatusActive {
		v.CurrentQuestion = &QuestionView{
			Index:   m.CurrentQuestionIndex,
			Prompt:  q.Prompt,
			Options: q.Options,
			Topic:   q.Topic,
		}
	}

	if m.Status == StatusCompleted {
		v.Recap = BuildRecap(m)
	}

	return v
}

// BuildRecap 把题目列表与历史槽位按序合并成逐题回顾
func BuildRecap(m *Match) []RecapEntry {
	recap := make([]RecapEntry, 0, len(m.State.Questions))
	for i, q := range m.State.Questions {
		entry := RecapEntry{
			Index:        i,
			Prompt:       q.Prompt,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Explanation,
		}
		if i < len(m.State.History) {
			h := m.State.History[i]
			entry.BuzzedBy = h.BuzzedBy
			entry.PassedTo = h.PassedTo
			entry.Player1Answer = h.Player1Answer
			entry.Player2Answer = h.Player2Answer
			entry.AnsweredCorrectly = h.AnsweredCorrectly
			entry.PointsAwarded = h.PointsAwarded
		}
		recap = append(recap, entry)
	}
	return recap
}
