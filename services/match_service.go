package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"versus-service/logger"
	"versus-service/models"
)

// MatchService 比赛服务: 在存储的原子 Update 里执行状态机转换
// (并发守卫),提交成功后把事件发布到 Broker。
//
// 并发守卫是全系统唯一的正确性关键: 所有前置条件都在 Update
// 的回调里、针对刚读出的最新记录重新校验,绝不使用调用前
// 缓存的副本。两次并发抢答中,后串行执行的那次一定看到
// BuzzHolder 已被占用,收到 Conflict("AlreadyBuzzed")。
// 比赛之间互不共享可变状态,无需跨记录协调。
type MatchService struct {
	store     RecordStore
	broker    EventBroker
	questions QuestionProvider

	defaultQuestionCount int
	maxQuestionCount     int
}

func NewMatchService(store RecordStore, broker EventBroker, questions QuestionProvider, defaultCount, maxCount int) *MatchService {
	if defaultCount <= 0 {
		defaultCount = 5
	}
	if maxCount <= 0 {
		maxCount = 20
	}
	return &MatchService{
		store:                store,
		broker:               broker,
		questions:            questions,
		defaultQuestionCount: defaultCount,
		maxQuestionCount:     maxCount,
	}
}

// CreateMatch 创建比赛邀请 (pending),并通知被邀请者
func (s *MatchService) CreateMatch(ctx context.Context, challengerID, opponentID string, totalQuestions int) (*models.Match, error) {
	if challengerID == "" {
		return nil, Unauthorized("missing caller identity")
	}
	if opponentID == "" {
		return nil, Validation("opponent_id is required")
	}
	if opponentID == challengerID {
		return nil, Validation("cannot challenge yourself")
	}
	if totalQuestions <= 0 {
		totalQuestions = s.defaultQuestionCount
	}
	if totalQuestions > s.maxQuestionCount {
		return nil, Validation("total_questions exceeds maximum of %d", s.maxQuestionCount)
	}

	m := NewMatch(uuid.NewString(), challengerID, opponentID, totalQuestions, time.Now())
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}

	logger.Printf("[MatchService] Match %s created: %s vs %s (%d questions)", m.MatchCode, challengerID, opponentID, totalQuestions)

	s.publish(EventNotification, m.MatchCode, map[string]interface{}{
		"kind":          "match-invite",
		"match_code":    m.MatchCode,
		"challenger_id": challengerID,
		"opponent_id":   opponentID,
	})
	return m, nil
}

// GetMatch 读取比赛记录,仅参与者可见
func (s *MatchService) GetMatch(ctx context.Context, code, callerID string) (*models.Match, error) {
	if callerID == "" {
		return nil, Unauthorized("missing caller identity")
	}
	m, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !m.IsParticipant(callerID) {
		return nil, Forbidden("not a participant of this match")
	}
	return m, nil
}

// Accept 被邀请者接受比赛
func (s *MatchService) Accept(ctx context.Context, code, callerID string) (*models.Match, error) {
	m, err := s.apply(ctx, code, callerID, func(m *models.Match) error {
		return AcceptMatch(m, callerID, time.Now())
	})
	if err != nil {
		return nil, err
	}

	logger.Printf("[MatchService] Match %s accepted by %s", code, callerID)
	s.publishUpdate(m)
	return m, nil
}

// Decline 拒绝或撤回比赛邀请
func (s *MatchService) Decline(ctx context.Context, code, callerID string) (*models.Match, error) {
	m, err := s.apply(ctx, code, callerID, func(m *models.Match) error {
		return CancelMatch(m, callerID)
	})
	if err != nil {
		return nil, err
	}

	logger.Printf("[MatchService] Match %s cancelled by %s", code, callerID)
	s.publishUpdate(m)
	return m, nil
}

// GenerateQuestions 拉取题库并写入题目列表。只有发起者可触发,
// 且只能成功一次。题库调用在锁外执行;写入时在 Update 内
// 重新校验题目集合仍为空,并发触发只有一次能写入成功
// (check-then-act 竞态由守卫闭合,不依赖锁外的检查)。
func (s *MatchService) GenerateQuestions(ctx context.Context, code, callerID string, topics []string) (*models.Match, []models.Question, error) {
	// 锁外快速失败: 避免权限不足/重复触发时白打一次题库
	m, err := s.GetMatch(ctx, code, callerID)
	if err != nil {
		return nil, nil, err
	}
	if callerID != m.Player1ID {
		return nil, nil, Forbidden("only the challenger can generate questions")
	}
	if len(m.State.Questions) > 0 {
		return nil, nil, Conflict("AlreadyGenerated")
	}

	fetched, err := s.questions.FetchQuestions(ctx, topics, m.TotalQuestions)
	if err != nil {
		return nil, nil, err
	}

	m, err = s.apply(ctx, code, callerID, func(m *models.Match) error {
		return SetQuestions(m, callerID, fetched)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Printf("[MatchService] Match %s questions generated (%d)", code, len(fetched))
	s.publishUpdate(m)
	return m, fetched, nil
}

// Buzz 抢答
func (s *MatchService) Buzz(ctx context.Context, code, callerID string) (*models.Match, error) {
	m, err := s.apply(ctx, code, callerID, func(m *models.Match) error {
		return BuzzIn(m, callerID, time.Now())
	})
	if err != nil {
		return nil, err
	}

	s.publish(EventPlayerBuzzed, code, map[string]interface{}{
		"player_id":      callerID,
		"question_index": m.CurrentQuestionIndex,
		"buzzed_at":      m.State.BuzzedAt,
	})
	s.publishUpdate(m)
	return m, nil
}

// Answer 作答。timeRemaining 为客户端上报的剩余秒数,仅记录,
// 服务端不做超时判定。
func (s *MatchService) Answer(ctx context.Context, code, callerID string, answerIndex int, timeRemaining *int) (*models.Match, *AnswerOutcome, error) {
	var outcome *AnswerOutcome
	m, err := s.apply(ctx, code, callerID, func(m *models.Match) error {
		var err error
		outcome, err = SubmitAnswer(m, callerID, answerIndex, timeRemaining, time.Now())
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishAnswerResult(m, callerID, outcome)
	s.publishUpdate(m)
	return m, outcome, nil
}

// Pass 转答持有者弃答
func (s *MatchService) Pass(ctx context.Context, code, callerID string) (*models.Match, *AnswerOutcome, error) {
	var outcome *AnswerOutcome
	m, err := s.apply(ctx, code, callerID, func(m *models.Match) error {
		var err error
		outcome, err = PassQuestion(m, callerID, time.Now())
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishAnswerResult(m, callerID, outcome)
	s.publishUpdate(m)
	return m, outcome, nil
}

// Chat 发送聊天消息
func (s *MatchService) Chat(ctx context.Context, code, callerID, text string) (*models.Match, *models.ChatMessage, error) {
	var msg *models.ChatMessage
	m, err := s.apply(ctx, code, callerID, func(m *models.Match) error {
		var err error
		msg, err = AppendChat(m, callerID, text, time.Now())
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.publish(EventChatMessage, code, msg)
	return m, msg, nil
}

// apply 并发守卫: 在存储的原子 Update 内做参与者校验和
// 状态机转换。fn 返回错误时存储内容保持不变。
func (s *MatchService) apply(ctx context.Context, code, callerID string, fn func(*models.Match) error) (*models.Match, error) {
	if callerID == "" {
		return nil, Unauthorized("missing caller identity")
	}
	return s.store.Update(ctx, code, func(m *models.Match) error {
		if !m.IsParticipant(callerID) {
			return Forbidden("not a participant of this match")
		}
		return fn(m)
	})
}

// publishAnswerResult 广播作答结果。首答错误时不带正确答案,
// 双方看到的都只是 "转给对手";结算后才带答案与解析。
func (s *MatchService) publishAnswerResult(m *models.Match, callerID string, outcome *AnswerOutcome) {
	data := map[string]interface{}{
		"player_id":      callerID,
		"question_index": outcome.QuestionIndex,
		"correct":        outcome.Correct,
		"points":         outcome.Points,
		"is_pass_back":   outcome.IsPassBack,
		"finalized":      outcome.Finalized,
	}
	if outcome.PassedTo != "" {
		data["passed_to"] = outcome.PassedTo
	}
	if outcome.Finalized {
		data["correct_answer"] = outcome.CorrectIndex
		if outcome.Explanation != "" {
			data["explanation"] = outcome.Explanation
		}
		data["match_completed"] = outcome.MatchCompleted
	}
	s.publish(EventAnswerResult, m.MatchCode, data)
}

func (s *MatchService) publishUpdate(m *models.Match) {
	s.publish(EventMatchUpdate, m.MatchCode, models.NewMatchSummary(m))
}

// publish 把事件编码后交给 Broker。广播是尽力而为的:
// 发布失败只记日志,不影响已提交的状态变更。
func (s *MatchService) publish(eventType, code string, data interface{}) {
	event := NewMatchEvent(eventType, code, data)
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("[MatchService] Failed to marshal %s event: %v", eventType, err)
		return
	}
	if err := s.broker.Publish(BrokerMessage{Topic: MatchEventsTopic, Key: code, Value: payload}); err != nil {
		logger.Errorf("[MatchService] Failed to publish %s event for match %s: %v", eventType, code, err)
	}
}
