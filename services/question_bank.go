package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"versus-service/models"
)

// QuestionProvider 题库服务抽象。题目生成本身是外部系统的职责,
// 这里只定义拉取接口。
type QuestionProvider interface {
	// FetchQuestions 按主题拉取指定数量的题目
	FetchQuestions(ctx context.Context, topics []string, count int) ([]models.Question, error)
}

// QuestionBankAPIError 题库服务返回的错误
type QuestionBankAPIError struct {
	Code    int
	Message string
}

func (e *QuestionBankAPIError) Error() string {
	return fmt.Sprintf("question bank error %d: %s", e.Code, e.Message)
}

// QuestionBankClient 题库服务的 HTTP 客户端
type QuestionBankClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewQuestionBankClient(baseURL, token string) *QuestionBankClient {
	return &QuestionBankClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchQuestions 实现 QuestionProvider 接口
func (c *QuestionBankClient) FetchQuestions(ctx context.Context, topics []string, count int) ([]models.Question, error) {
	endpoint := fmt.Sprintf("%s/questions?%s", c.baseURL, url.Values{
		"count":  {strconv.Itoa(count)},
		"topics": {strings.Join(topics, ",")},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-access-token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach question bank: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &QuestionBankAPIError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var payload struct {
		Questions []models.Question `json:"questions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode question bank response: %w", err)
	}

	// 题库偶尔返回缺选项的脏数据,直接拒绝,不要让坏题进入比赛
	for i, q := range payload.Questions {
		if len(q.Options) < 2 || q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return nil, fmt.Errorf("question bank returned malformed question at index %d", i)
		}
	}

	return payload.Questions, nil
}

// StaticQuestionProvider 固定题目列表,供测试与本地开发使用
type StaticQuestionProvider struct {
	Questions []models.Question
}

// FetchQuestions 实现 QuestionProvider 接口
func (p *StaticQuestionProvider) FetchQuestions(ctx context.Context, topics []string, count int) ([]models.Question, error) {
	if count > len(p.Questions) {
		count = len(p.Questions)
	}
	out := make([]models.Question, count)
	copy(out, p.Questions[:count])
	return out, nil
}
