package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/internal/util"
	"cypher_quest_backend/pkg/logger"
)

type SessionState string

const (
	StateAnswering SessionState = "answering"
	StateFeedback  SessionState = "feedback"
	StateFinished  SessionState = "finished"
)

// Session 单个学习者的答题会话。Epoch 在题池重置时递增，
// 迟到的查询响应凭 epoch+题目 id 判定是否过期
type Session struct {
	mu sync.Mutex

	UserID uint
	Mode   string // story / practice
	Theme  string
	Pool   []*model.Question
	Index  int
	State  SessionState
	Epoch  uint64

	Pending    bool
	LastGrade  *GradeResult
	LastRows   []model.Row
	Degraded   bool
	Message    string
	EnteredAt  time.Time
}

// FeedbackView 提交后的反馈载荷
type FeedbackView struct {
	State     SessionState `json:"state"`
	Grade     *GradeResult `json:"grade,omitempty"`
	Rows      []model.Row  `json:"rows,omitempty"`
	Degraded  bool         `json:"degraded,omitempty"`
	Message   string       `json:"message,omitempty"`
	Stale     bool         `json:"stale,omitempty"`
}

// SubmitRequest 作答载荷：选择题给 choiceId，查询题给 queryText
type SubmitRequest struct {
	ChoiceID  string `json:"choiceId"`
	QueryText string `json:"queryText"`
	ElapsedMs *int64 `json:"elapsedMs"`
}

// SessionService 答题会话状态机：Answering → Feedback → (Answering | Finished)。
// 会话常驻内存，进度快照才是持久权威
type SessionService struct {
	mu       sync.Mutex
	sessions map[uint]*Session

	questions *QuestionService
	grading   *GradingService
	relay     *RelayService
	progress  *ProgressService
	safety    *SafetyService
}

func NewSessionService(questions *QuestionService, grading *GradingService, relay *RelayService, progress *ProgressService, safety *SafetyService) *SessionService {
	return &SessionService{
		sessions:  map[uint]*Session{},
		questions: questions,
		grading:   grading,
		relay:     relay,
		progress:  progress,
		safety:    safety,
	}
}

func (s *SessionService) session(userID uint) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, State: StateAnswering, Mode: util.ModeStory, Theme: model.DefaultTheme}
		s.sessions[userID] = sess
	}
	return sess
}

// Start 重建题池并硬重置会话。story 模式从书签位置继续，
// practice 模式总是从头开始；进行中的反馈状态一律丢弃
func (s *SessionService) Start(ctx context.Context, userID uint, mode, theme string, filter QuestionFilter, onlyWeak bool) (*Session, error) {
	var pool []*model.Question
	startIndex := 0

	switch mode {
	case util.ModeStory:
		if theme == "" {
			theme = model.DefaultTheme
		}
		pool = s.questions.StoryPool(theme)
		snap, err := s.progress.Load(ctx, userID)
		if err != nil {
			return nil, err
		}
		startIndex = snap.StoryIndices[theme]
	case util.ModePractice:
		pool = s.questions.Filter(filter)
		if onlyWeak {
			snap, err := s.progress.Load(ctx, userID)
			if err != nil {
				return nil, err
			}
			pool = s.progress.WeakPool(pool, snap, time.Now())
		}
	default:
		return nil, util.ErrSessionNotFound
	}

	if len(pool) == 0 {
		startIndex = 0
	} else if startIndex >= len(pool) {
		startIndex = 0
	} else if startIndex < 0 {
		startIndex = 0
	}

	sess := s.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.Mode = mode
	sess.Theme = theme
	sess.Pool = pool
	sess.Index = startIndex
	sess.State = StateAnswering
	sess.Epoch++
	sess.Pending = false
	sess.LastGrade = nil
	sess.LastRows = nil
	sess.Degraded = false
	sess.Message = ""
	sess.EnteredAt = time.Now()
	return sess, nil
}

// Current 返回当前会话。不存在的学习者视为未开局
func (s *SessionService) Current(userID uint) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	return sess, nil
}

// CurrentQuestion 当前题目，Finished 或空题池时返回 nil
func (sess *Session) CurrentQuestion() *model.Question {
	if sess.State == StateFinished || sess.Index < 0 || sess.Index >= len(sess.Pool) {
		return nil
	}
	return sess.Pool[sess.Index]
}

// Submit 提交作答。选择题同步评分；查询题要经过建议层安全检查、
// 中继执行与归一化，期间会话挂起禁止重复提交
func (s *SessionService) Submit(ctx context.Context, userID uint, req SubmitRequest) (*FeedbackView, error) {
	sess, err := s.Current(userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.State == StateFinished {
		sess.mu.Unlock()
		return nil, util.ErrSessionFinished
	}
	if sess.State != StateAnswering {
		sess.mu.Unlock()
		return nil, util.ErrNotInFeedback
	}
	if sess.Pending {
		sess.mu.Unlock()
		return nil, util.ErrSubmissionPending
	}
	q := sess.CurrentQuestion()
	if q == nil {
		sess.mu.Unlock()
		return nil, util.ErrSessionFinished
	}

	if q.Type == model.QuestionMCQ {
		if req.ChoiceID == "" {
			sess.Message = "보기를 선택해 주세요."
			sess.mu.Unlock()
			return nil, util.ErrEmptyAnswer
		}
		grade := s.grading.GradeChoice(q, req.ChoiceID)
		sess.State = StateFeedback
		sess.LastGrade = &grade
		sess.LastRows = nil
		sess.Degraded = false
		sess.Message = ""
		mode := sess.Mode
		sess.mu.Unlock()

		if _, recErr := s.progress.RecordAttempt(ctx, userID, q.ID, grade.IsCorrect, req.ElapsedMs, mode); recErr != nil {
			logger.Log.Error("进度记录失败", zap.Uint("user_id", userID), zap.Error(recErr))
		}
		return &FeedbackView{State: StateFeedback, Grade: &grade}, nil
	}

	// query 题
	if req.QueryText == "" {
		sess.Message = "쿼리를 입력해 주세요."
		sess.mu.Unlock()
		return nil, util.ErrEmptyAnswer
	}
	if verdict := s.safety.Advise(req.QueryText, q.AllowedOps); verdict.Forbidden {
		sess.Message = verdict.Reason
		sess.mu.Unlock()
		return nil, util.ErrQueryForbidden
	}

	// 挂起会话后释放锁执行网络往返。epoch+题目 id 用于识别迟到响应
	sess.Pending = true
	epoch := sess.Epoch
	questionID := q.ID
	mode := sess.Mode
	sess.mu.Unlock()

	result, execErr := s.relay.Execute(ctx, req.QueryText, nil)

	sess.mu.Lock()
	stale := sess.Epoch != epoch ||
		sess.CurrentQuestion() == nil ||
		sess.CurrentQuestion().ID != questionID
	if stale {
		// 题目已经换了，丢弃迟到结果，不产生任何副作用
		if sess.Epoch == epoch {
			sess.Pending = false
		}
		sess.mu.Unlock()
		return &FeedbackView{Stale: true}, nil
	}
	sess.Pending = false

	if execErr != nil {
		// 未执行成功的提交不计入台账，会话留在作答态允许重试
		sess.Message = execErr.Error()
		sess.mu.Unlock()
		return nil, execErr
	}

	grade := s.grading.GradeRows(q, result.Rows)
	sess.State = StateFeedback
	sess.LastGrade = &grade
	sess.LastRows = result.Rows
	sess.Degraded = result.Degraded
	sess.Message = ""
	sess.mu.Unlock()

	if _, recErr := s.progress.RecordAttempt(ctx, userID, q.ID, grade.IsCorrect, req.ElapsedMs, mode); recErr != nil {
		logger.Log.Error("进度记录失败", zap.Uint("user_id", userID), zap.Error(recErr))
	}
	return &FeedbackView{
		State:    StateFeedback,
		Grade:    &grade,
		Rows:     result.Rows,
		Degraded: result.Degraded,
	}, nil
}

// Next 反馈态推进：还有题则进入下一题作答态，否则会话完结。
// story 模式在推进时落一次书签，practice 模式不记位置
func (s *SessionService) Next(ctx context.Context, userID uint) (*Session, error) {
	sess, err := s.Current(userID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.State != StateFeedback {
		return nil, util.ErrNotInFeedback
	}
	sess.Index++
	sess.LastGrade = nil
	sess.LastRows = nil
	sess.Degraded = false
	sess.Message = ""
	sess.Pending = false
	sess.EnteredAt = time.Now()

	if sess.Index >= len(sess.Pool) {
		sess.State = StateFinished
		return sess, nil
	}
	sess.State = StateAnswering
	if sess.Mode == util.ModeStory {
		if _, posErr := s.progress.UpdatePosition(ctx, userID, sess.Theme, sess.Index); posErr != nil {
			logger.Log.Error("书签更新失败", zap.Uint("user_id", userID), zap.Error(posErr))
		}
	}
	return sess, nil
}

// SessionView 会话对外视图，复制值避免暴露内部状态
type SessionView struct {
	State      SessionState    `json:"state"`
	Mode       string          `json:"mode"`
	Theme      string          `json:"theme,omitempty"`
	Index      int             `json:"index"`
	Total      int             `json:"total"`
	QuestionID string          `json:"questionId,omitempty"`
	Question   *model.Question `json:"-"`
	Pending    bool            `json:"pending"`
	Grade      *GradeResult    `json:"grade,omitempty"`
	Rows       []model.Row     `json:"rows,omitempty"`
	Degraded   bool            `json:"degraded,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// View 加锁拍一份会话快照
func (sess *Session) View() SessionView {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	view := SessionView{
		State:    sess.State,
		Mode:     sess.Mode,
		Theme:    sess.Theme,
		Index:    sess.Index,
		Total:    len(sess.Pool),
		Pending:  sess.Pending,
		Grade:    sess.LastGrade,
		Rows:     sess.LastRows,
		Degraded: sess.Degraded,
		Message:  sess.Message,
	}
	if q := sess.CurrentQuestion(); q != nil {
		view.QuestionID = q.ID
		view.Question = q
	}
	return view
}

// Restart 回到第 0 题重新开始，保留题池
func (s *SessionService) Restart(userID uint) (*Session, error) {
	sess, err := s.Current(userID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.Index = 0
	sess.State = StateAnswering
	sess.Epoch++
	sess.Pending = false
	sess.LastGrade = nil
	sess.LastRows = nil
	sess.Degraded = false
	sess.Message = ""
	sess.EnteredAt = time.Now()
	return sess, nil
}
