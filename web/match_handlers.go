package web

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"versus-service/logger"
	"versus-service/models"
	"versus-service/services"
)

// 比赛 API 门面: 解析请求,调用 MatchService,按调用者身份
// 裁剪响应。当前题目的正确答案只会出现在结算后的结果里,
// 首答错误的响应与广播都不包含它。

type createMatchRequest struct {
	OpponentID     string `json:"opponent_id"`
	TotalQuestions int    `json:"total_questions"`
}

type matchActionRequest struct {
	Action string          `json:"action"` // accept | decline | chat | buzz | answer | pass
	Data   json.RawMessage `json:"data,omitempty"`
}

type chatActionData struct {
	Message string `json:"message"`
}

type answerActionData struct {
	AnswerIndex   *int `json:"answer_index"`
	TimeRemaining *int `json:"time_remaining,omitempty"` // 客户端上报,仅作记录
}

// actionResult 动作级别的结果,附在比赛视图旁边返回
type actionResult struct {
	Correct       *bool  `json:"correct,omitempty"`
	Points        *int   `json:"points,omitempty"`
	PassedTo      string `json:"passed_to,omitempty"`
	CorrectAnswer *int   `json:"correct_answer,omitempty"` // 仅结算后返回
	Explanation   string `json:"explanation,omitempty"`
	Message       string `json:"message,omitempty"`
}

// handleCreateMatch POST /api/matches
func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return
	}

	m, err := s.matches.CreateMatch(r.Context(), callerID(r), req.OpponentID, req.TotalQuestions)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"match": models.NewMatchView(m, callerID(r)),
	})
}

// handleGetMatch GET /api/matches/{match_code}
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["match_code"]

	m, err := s.matches.GetMatch(r.Context(), code, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match": models.NewMatchView(m, callerID(r)),
	})
}

// handleGenerateQuestions POST /api/matches/{match_code}/questions
func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["match_code"]

	var req struct {
		Topics []string `json:"topics,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, services.Validation("invalid request body"))
			return
		}
	}

	_, questions, err := s.matches.GenerateQuestions(r.Context(), code, callerID(r), req.Topics)
	if err != nil {
		writeError(w, err)
		return
	}

	topics := make([]string, 0, len(questions))
	seen := make(map[string]bool)
	for _, q := range questions {
		if q.Topic != "" && !seen[q.Topic] {
			seen[q.Topic] = true
			topics = append(topics, q.Topic)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"question_count": len(questions),
		"topics":         topics,
	})
}

// handleMatchAction PATCH /api/matches/{match_code}
func (s *Server) handleMatchAction(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["match_code"]
	caller := callerID(r)

	var req matchActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return
	}

	var (
		m      *models.Match
		result *actionResult
		err    error
	)

	switch req.Action {
	case "accept":
		m, err = s.matches.Accept(r.Context(), code, caller)

	case "decline":
		m, err = s.matches.Decline(r.Context(), code, caller)

	case "buzz":
		m, err = s.matches.Buzz(r.Context(), code, caller)

	case "answer":
		var data answerActionData
		if jsonErr := json.Unmarshal(req.Data, &data); jsonErr != nil || data.AnswerIndex == nil {
			writeError(w, services.Validation("answer_index must be a number"))
			return
		}
		var outcome *services.AnswerOutcome
		m, outcome, err = s.matches.Answer(r.Context(), code, caller, *data.AnswerIndex, data.TimeRemaining)
		if err == nil {
			result = answerResultFor(outcome)
		}

	case "pass":
		var outcome *services.AnswerOutcome
		m, outcome, err = s.matches.Pass(r.Context(), code, caller)
		if err == nil {
			result = answerResultFor(outcome)
		}

	case "chat":
		var data chatActionData
		if jsonErr := json.Unmarshal(req.Data, &data); jsonErr != nil {
			writeError(w, services.Validation("invalid chat data"))
			return
		}
		m, _, err = s.matches.Chat(r.Context(), code, caller, data.Message)

	default:
		writeError(w, services.Validation("unknown action %q", req.Action))
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"match": models.NewMatchView(m, caller),
	}
	if result != nil {
		response["result"] = result
	}
	writeJSON(w, http.StatusOK, response)
}

// answerResultFor 把作答结果裁剪成响应结构。
// 首答错误时只告知 "已转给对手",正确答案与解析一概不带。
func answerResultFor(outcome *services.AnswerOutcome) *actionResult {
	correct := outcome.Correct
	points := outcome.Points
	result := &actionResult{
		Correct:  &correct,
		Points:   &points,
		PassedTo: outcome.PassedTo,
	}
	if outcome.Finalized {
		idx := outcome.CorrectIndex
		result.CorrectAnswer = &idx
		result.Explanation = outcome.Explanation
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := services.KindOf(err)
	if kind == "" {
		logger.Errorf("Internal error: %v", err)
		kind = "internal"
	}
	writeJSON(w, services.HTTPStatus(err), map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    string(kind),
			"message": err.Error(),
		},
	})
}
