package models

import (
	"time"
)

// 比赛状态
const (
	StatusPending   = "pending"   // 等待对手接受
	StatusActive    = "active"    // 进行中
	StatusCompleted = "completed" // 已完成
	StatusCancelled = "cancelled" // 已取消
)

// 当前题目阶段 (每题一个显式状态机,非法组合不可表示)
const (
	PhaseAwaitingBuzz        = "awaiting_buzz"         // 等待抢答
	PhaseAwaitingFirstAnswer = "awaiting_first_answer" // 抢答者作答中
	PhaseAwaitingPassBack    = "awaiting_pass_back"    // 首答错误,转给对手
)

// 计分规则
const (
	PointsFirstCorrect    = 100 // 首答正确
	PointsPassBackCorrect = 50  // 转答正确
	PointsFirstWrong      = -50 // 首答错误
	PointsPassBackWrong   = 0   // 转答错误不扣分
)

// MaxChatMessageLength 聊天消息最大长度
const MaxChatMessageLength = 500

// Question 题库返回的单条题目
type Question struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Topic        string   `json:"topic,omitempty"`
	Explanation  string   `json:"explanation,omitempty"`
}

// QuestionResult 每道题的历史记录槽位
type QuestionResult struct {
	BuzzedBy          string `json:"buzzed_by,omitempty"`
	PassedTo          string `json:"passed_to,omitempty"`
	Player1Answer     *int   `json:"player1_answer,omitempty"`
	Player2Answer     *int   `json:"player2_answer,omitempty"`
	AnsweredCorrectly string `json:"answered_correctly,omitempty"` // 答对者的用户ID,空表示无人答对
	PointsAwarded     int    `json:"points_awarded"`
	Finalized         bool   `json:"finalized"`
	// 客户端上报的剩余时间(秒),仅作展示,服务端不做超时判定
	TimeRemaining *int `json:"time_remaining,omitempty"`
}

// MatchState 比赛内部状态文档,整体序列化为 JSONB 存储
type MatchState struct {
	Questions []Question       `json:"questions,omitempty"`
	History   []QuestionResult `json:"history,omitempty"`

	// 当前题目的瞬时状态
	Phase         string `json:"phase,omitempty"`
	BuzzHolder    string `json:"buzz_holder,omitempty"`     // 抢答成功者
	PassedTo      string `json:"passed_to,omitempty"`       // 转答持有者(必为抢答者的对手)
	FirstAnswerBy string `json:"first_answer_by,omitempty"` // 首答者
	FirstAnswer   *int   `json:"first_answer,omitempty"`    // 首答选项
	BuzzedAt      int64  `json:"buzzed_at,omitempty"`       // 抢答时间戳(毫秒)
}

// ChatMessage 比赛内聊天消息,追加写入
type ChatMessage struct {
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Match 一场比赛的完整持久化记录,原子更新的最小单元
type Match struct {
	MatchCode            string        `json:"match_code"`
	Player1ID            string        `json:"player1_id"` // 发起者
	Player2ID            string        `json:"player2_id"` // 被邀请者
	Status               string        `json:"status"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	TotalQuestions       int           `json:"total_questions"`
	Player1Score         int           `json:"player1_score"` // 原始分,可为负
	Player2Score         int           `json:"player2_score"`
	WinnerID             *string       `json:"winner_id,omitempty"` // nil = 平局或未结束
	StartedAt            *time.Time    `json:"started_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	Chat                 []ChatMessage `json:"chat,omitempty"`
	State                MatchState    `json:"state"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// IsParticipant 判断用户是否是本场比赛的参与者
func (m *Match) IsParticipant(userID string) bool {
	return userID != "" && (userID == m.Player1ID || userID == m.Player2ID)
}

// Opponent 返回对手的用户ID
func (m *Match) Opponent(userID string) string {
	if userID == m.Player1ID {
		return m.Player2ID
	}
	if userID == m.Player2ID {
		return m.Player1ID
	}
	return ""
}

// ScoreOf 返回指定玩家的原始分
func (m *Match) ScoreOf(userID string) int {
	if userID == m.Player1ID {
		return m.Player1Score
	}
	return m.Player2Score
}

// CurrentQuestion 返回当前题目,比赛结束或题目未生成时返回 nil
func (m *Match) CurrentQuestion() *Question {
	if m.CurrentQuestionIndex < 0 || m.CurrentQuestionIndex >= len(m.State.Questions) {
		return nil
	}
	return &m.State.Questions[m.CurrentQuestionIndex]
}

// CurrentSlot 返回当前题目的历史槽位,按需创建
func (m *Match) CurrentSlot() *QuestionResult {
	idx := m.CurrentQuestionIndex
	for len(m.State.History) <= idx {
		m.State.History = append(m.State.History, QuestionResult{})
	}
	return &m.State.History[idx]
}

// Clone 深拷贝比赛记录,供内存存储实现使用
func (m *Match) Clone() *Match {
	c := *m

	if m.WinnerID != nil {
		w := *m.WinnerID
		c.WinnerID = &w
	}
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		c.CompletedAt = &t
	}

	c.Chat = append([]ChatMessage(nil), m.Chat...)

	c.State.Questions = make([]Question, len(m.State.Questions))
	for i, q := range m.State.Questions {
		q.Options = append([]string(nil), q.Options...)
		c.State.Questions[i] = q
	}

	c.State.History = make([]QuestionResult, len(m.State.History))
	for i, h := range m.State.History {
		if h.Player1Answer != nil {
			v := *h.Player1Answer
			h.Player1Answer = &v
		}
		if h.Player2Answer != nil {
			v := *h.Player2Answer
			h.Player2Answer = &v
		}
		if h.TimeRemaining != nil {
			v := *h.TimeRemaining
			h.TimeRemaining = &v
		}
		c.State.History[i] = h
	}

	if m.State.FirstAnswer != nil {
		v := *m.State.FirstAnswer
		c.State.FirstAnswer = &v
	}

	return &c
}
