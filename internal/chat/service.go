// Package chat answers a user's message inside a conversation, creating
// reminder tasks when the message asks for one.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/llm"
	"github.com/ent0n29/saba/internal/logger"
	"github.com/ent0n29/saba/internal/policy"
	"github.com/ent0n29/saba/internal/prompts"
	"github.com/ent0n29/saba/internal/taskservice"
	"github.com/ent0n29/saba/internal/tasks"
)

var ErrEmptyMessage = errors.New("message is required")

const (
	titleMaxRunes          = 50
	summaryMessagesPerConv = 5
	reminderTag            = "auto-from-chat"
)

// ConversationStore is the part of the conversation repository chat needs.
type ConversationStore interface {
	Create(ctx context.Context, userID, title string) (conversations.Conversation, error)
	Get(ctx context.Context, convID, userID string) (conversations.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]conversations.Conversation, error)
	AppendMessage(ctx context.Context, convID, userID string, role conversations.Role, content string) (conversations.Message, error)
	UpdateTitle(ctx context.Context, convID, userID, title string) error
}

// Reply is the outcome of Send. Task is set when a reminder was created.
type Reply struct {
	Response       string
	ConversationID string
	Task           *tasks.Task
}

type Options struct {
	HistoryLimit int
	Logger       *slog.Logger
	Now          func() time.Time
}

type Service struct {
	conversations ConversationStore
	tasks         taskservice.API
	adapter       llm.Adapter
	prompts       prompts.Set
	historyLimit  int
	log           *slog.Logger
	now           func() time.Time
}

// NewService builds a chat service. A nil adapter answers every non-reminder
// message with the fallback reply.
func NewService(convs ConversationStore, taskAPI taskservice.API, adapter llm.Adapter, p prompts.Set, opts Options) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		conversations: convs,
		tasks:         taskAPI,
		adapter:       adapter,
		prompts:       p,
		historyLimit:  opts.HistoryLimit,
		log:           opts.Logger,
		now:           opts.Now,
	}
}

// Send records the user's message and the assistant's reply. An owned
// conversation with messages is continued; otherwise the message starts a
// conversation whose id is returned. Generation and task-service failures
// become reply text, not errors.
func (s *Service) Send(ctx context.Context, userID, token, message, conversationID string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}

	conv, err := s.resolveConversation(ctx, userID, message, conversationID)
	if err != nil {
		return Reply{}, err
	}

	var (
		response string
		created  *tasks.Task
	)
	if intent := policy.ParseReminderIntent(message, s.now()); intent.IsReminder {
		response, created = s.createReminder(ctx, token, message, intent)
	} else {
		response = s.generate(ctx, userID, message, conv)
	}

	if _, err := s.conversations.AppendMessage(ctx, conv.ID, userID, conversations.RoleUser, message); err != nil {
		return Reply{}, fmt.Errorf("append user message: %w", err)
	}
	if _, err := s.conversations.AppendMessage(ctx, conv.ID, userID, conversations.RoleAssistant, response); err != nil {
		return Reply{}, fmt.Errorf("append assistant message: %w", err)
	}

	s.log.Info("chat reply",
		"conversation_id", conv.ID,
		"reminder", created != nil,
		"message", policy.Preview(message, 80),
	)
	return Reply{Response: response, ConversationID: conv.ID, Task: created}, nil
}

func (s *Service) resolveConversation(ctx context.Context, userID, message, conversationID string) (conversations.Conversation, error) {
	title := truncateRunes(strings.TrimSpace(message), titleMaxRunes)
	if id := strings.TrimSpace(conversationID); id != "" {
		conv, err := s.conversations.Get(ctx, id, userID)
		switch {
		case err == nil && len(conv.Messages) > 0:
			return conv, nil
		case err == nil:
			if err := s.conversations.UpdateTitle(ctx, conv.ID, userID, title); err != nil {
				return conversations.Conversation{}, fmt.Errorf("title conversation: %w", err)
			}
			conv.Title = title
			return conv, nil
		case !errors.Is(err, conversations.ErrNotFound):
			return conversations.Conversation{}, fmt.Errorf("load conversation: %w", err)
		}
	}
	conv, err := s.conversations.Create(ctx, userID, title)
	if err != nil {
		return conversations.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) createReminder(ctx context.Context, token, message string, intent policy.ReminderIntent) (string, *tasks.Task) {
	if s.tasks == nil {
		return "I couldn't reach the task service to create a reminder.", nil
	}
	content := intent.Content
	if content == "" {
		content = message
	}
	task, err := s.tasks.Create(ctx, token, tasks.CreateRequest{
		Content:  content,
		Type:     tasks.TaskTypeReminder,
		Priority: tasks.PriorityMedium,
		DueDate:  intent.Due,
		Tags:     []string{reminderTag},
	})
	if err != nil {
		s.log.Warn("reminder create failed", "err", err)
		if errors.Is(err, taskservice.ErrRejected) {
			return "I tried to create a reminder but the server responded with an error: " + rejectionDetail(err), nil
		}
		return "I couldn't reach the task service to create a reminder.", nil
	}
	response := "Okay, I've created a reminder for you."
	if intent.Due != nil {
		response += " I'll remind you at " + intent.Due.Format("3:04 PM") + "."
	}
	return response, &task
}

func (s *Service) generate(ctx context.Context, userID, message string, conv conversations.Conversation) string {
	if s.adapter == nil {
		return s.prompts.FallbackReply
	}
	others, err := s.conversations.ListByUser(ctx, userID)
	if err != nil {
		s.log.Warn("load conversation summary failed", "err", err)
		others = nil
	}
	system, err := s.prompts.ChatSystemPrompt(Summary(others, conv.ID))
	if err != nil {
		s.log.Error("render system prompt failed", "err", err)
		return s.prompts.FallbackReply
	}

	text, err := s.adapter.Generate(ctx, llm.Request{
		Purpose: "chat",
		System:  system,
		History: History(conv.Messages, s.historyLimit),
		Prompt:  message,
	})
	if err != nil {
		s.log.Warn("chat generation failed", "conversation_id", conv.ID, "err", err)
		return s.prompts.FallbackReply
	}
	return text
}

// Summary recaps the last messages of every conversation except current.
func Summary(convs []conversations.Conversation, current string) string {
	var b strings.Builder
	n := 0
	for _, c := range convs {
		if c.ID == current || len(c.Messages) == 0 {
			continue
		}
		n++
		fmt.Fprintf(&b, "Conversation %d: %q\n", n, c.Title)
		msgs := c.Messages
		if len(msgs) > summaryMessagesPerConv {
			msgs = msgs[len(msgs)-summaryMessagesPerConv:]
		}
		for _, m := range msgs {
			speaker := "User"
			if m.Role == conversations.RoleAssistant {
				speaker = "SABA"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// History maps the last limit messages to generation turns.
func History(msgs []conversations.Message, limit int) []llm.Turn {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == conversations.RoleAssistant {
			role = llm.RoleModel
		}
		out = append(out, llm.Turn{Role: role, Text: m.Content})
	}
	return out
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func rejectionDetail(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, taskservice.ErrRejected.Error()+": "); i >= 0 {
		msg = msg[i+len(taskservice.ErrRejected.Error())+2:]
	}
	return msg
}
