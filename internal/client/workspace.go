package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/logger"
	"github.com/ent0n29/saba/internal/memory"
	"github.com/ent0n29/saba/internal/tasks"
)

var (
	ErrClosed               = errors.New("workspace closed")
	ErrEmptyMessage         = errors.New("message is required")
	ErrUnknownTask          = errors.New("unknown task")
	ErrUnknownConversation  = errors.New("unknown conversation")
	errTaskAbandonedLocally = errors.New("task deleted locally before the server confirmed it")
)

const tempIDPrefix = "tmp-"

// Task is a task as the workspace holds it. Pending tasks exist only
// locally: their create call failed or has not returned yet, and their ID is
// a temporary one.
type Task struct {
	tasks.Task
	Pending bool `json:"pending,omitempty"`
}

type Options struct {
	// SyncInitialDelay is the wait before the first periodic refresh.
	SyncInitialDelay time.Duration
	// SyncInterval separates later periodic refreshes.
	SyncInterval time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Workspace owns one signed-in user's client state. Create it at sign-in and
// Close it at sign-out; nothing in it outlives the session.
type Workspace struct {
	api  API
	log  *slog.Logger
	now  func() time.Time
	opts Options

	mu            sync.Mutex
	tasks         []Task
	memories      []memory.Memory
	conversations []conversations.Conversation
	active        string
	messages      []conversations.Message
	nextTemp      int
	creating      map[string]bool
	abandoned     map[string]bool
	rewritten     map[string]string // temp id -> server id
	closed        bool

	inflight   atomic.Int32
	generation atomic.Uint64

	syncOnce   sync.Once
	syncCancel context.CancelFunc
	syncDone   chan struct{}
}

func NewWorkspace(api API, opts Options) *Workspace {
	if opts.SyncInitialDelay <= 0 {
		opts.SyncInitialDelay = 5 * time.Second
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Workspace{
		api:       api,
		log:       opts.Logger,
		now:       opts.Now,
		opts:      opts,
		creating:  make(map[string]bool),
		abandoned: make(map[string]bool),
		rewritten: make(map[string]string),
	}
}

// Load fetches tasks, memories and conversations.
func (w *Workspace) Load(ctx context.Context) error {
	if err := w.RefreshTasks(ctx); err != nil {
		return err
	}
	if err := w.RefreshMemories(ctx); err != nil {
		return err
	}
	return w.RefreshConversations(ctx)
}

func (w *Workspace) Tasks() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Task(nil), w.tasks...)
}

func (w *Workspace) Memories() []memory.Memory {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]memory.Memory(nil), w.memories...)
}

func (w *Workspace) Conversations() []conversations.Conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]conversations.Conversation(nil), w.conversations...)
}

// ActiveConversation is the id of the conversation being shown, or "" for a
// new chat the server has not assigned an id to yet.
func (w *Workspace) ActiveConversation() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Messages returns the messages of the active conversation.
func (w *Workspace) Messages() []conversations.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]conversations.Message(nil), w.messages...)
}

// begin marks a mutation in flight. Periodic refreshes skip while any is.
func (w *Workspace) begin() (func(), error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	w.inflight.Add(1)
	w.generation.Add(1)
	return func() { w.inflight.Add(-1) }, nil
}

// RefreshTasks replaces local tasks with the server's list. Pending tasks
// are kept after the server's tasks.
func (w *Workspace) RefreshTasks(ctx context.Context) error {
	list, err := w.api.ListTasks(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.replaceTasksLocked(list)
	return nil
}

func (w *Workspace) replaceTasksLocked(list []tasks.Task) {
	next := make([]Task, 0, len(list)+len(w.tasks))
	for _, t := range list {
		next = append(next, Task{Task: t})
	}
	for _, t := range w.tasks {
		if t.Pending {
			next = append(next, t)
		}
	}
	w.tasks = next
}

func (w *Workspace) RefreshMemories(ctx context.Context) error {
	list, err := w.api.ListMemories(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.memories = list
	w.mu.Unlock()
	return nil
}

// RefreshConversations replaces the conversation list. The active
// conversation's messages are left alone so an in-progress exchange is not
// overwritten by an older server copy.
func (w *Workspace) RefreshConversations(ctx context.Context) error {
	list, err := w.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.conversations = list
	w.mu.Unlock()
	return nil
}

// CreateTask adds the task locally under a temporary id, then asks the
// server for it. On success every local reference to the temporary id is
// rewritten to the server's id. On failure the pending task stays and the
// error is returned.
func (w *Workspace) CreateTask(ctx context.Context, req tasks.CreateRequest) (Task, error) {
	done, err := w.begin()
	if err != nil {
		return Task{}, err
	}
	defer done()

	if req.Type == "" {
		req.Type = tasks.TaskTypeTask
	}
	if req.Priority == "" {
		req.Priority = tasks.PriorityMedium
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}

	w.mu.Lock()
	w.nextTemp++
	tempID := fmt.Sprintf("%s%d", tempIDPrefix, w.nextTemp)
	now := w.now()
	local := Task{
		Task: tasks.Task{
			ID:        tempID,
			Content:   strings.TrimSpace(req.Content),
			Type:      req.Type,
			Priority:  req.Priority,
			Completed: req.Completed,
			DueDate:   req.DueDate,
			Tags:      append([]string(nil), req.Tags...),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Pending: true,
	}
	w.tasks = append(w.tasks, local)
	w.creating[tempID] = true
	w.mu.Unlock()

	created, err := w.api.CreateTask(ctx, req)

	w.mu.Lock()
	delete(w.creating, tempID)
	abandoned := w.abandoned[tempID]
	delete(w.abandoned, tempID)
	if err != nil {
		w.mu.Unlock()
		w.log.Warn("task kept locally", "temp_id", tempID, "err", err)
		return local, err
	}
	if abandoned {
		w.mu.Unlock()
		// Deleted locally while the create was in flight.
		if delErr := w.api.DeleteTask(ctx, created.ID); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			w.log.Warn("delete of abandoned task failed", "task_id", created.ID, "err", delErr)
		}
		return Task{}, errTaskAbandonedLocally
	}
	confirmed := Task{Task: created}
	w.rewritten[tempID] = created.ID
	for i := range w.tasks {
		if w.tasks[i].ID == tempID {
			w.tasks[i] = confirmed
		}
	}
	w.mu.Unlock()

	if err := w.RefreshTasks(ctx); err != nil {
		w.log.Debug("refresh after create failed", "err", err)
	}
	return confirmed, nil
}

// DeleteTask removes the task locally, then on the server. A failed server
// call restores the pre-delete list, carrying over temp ids rewritten and
// tasks added while the call was out. Unknown ids are a no-op, and a pending
// task is only removed locally.
func (w *Workspace) DeleteTask(ctx context.Context, id string) error {
	done, err := w.begin()
	if err != nil {
		return err
	}
	defer done()

	w.mu.Lock()
	idx := w.taskIndexLocked(id)
	if idx < 0 {
		w.mu.Unlock()
		return nil
	}
	snapshot := append([]Task(nil), w.tasks...)
	pending := w.tasks[idx].Pending
	w.tasks = append(w.tasks[:idx:idx], w.tasks[idx+1:]...)
	if pending && w.creating[id] {
		w.abandoned[id] = true
	}
	w.mu.Unlock()

	if pending {
		return nil
	}

	if err := w.api.DeleteTask(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		w.mu.Lock()
		w.restoreLocked(snapshot)
		w.mu.Unlock()
		w.log.Warn("task delete rolled back", "task_id", id, "err", err)
		return err
	}
	if err := w.RefreshTasks(ctx); err != nil {
		w.log.Debug("refresh after delete failed", "err", err)
	}
	return nil
}

// ToggleTask flips completion locally, patches the server, then replaces
// local tasks with the server's list whatever the patch outcome. A pending
// task is only toggled locally.
func (w *Workspace) ToggleTask(ctx context.Context, id string) error {
	done, err := w.begin()
	if err != nil {
		return err
	}
	defer done()

	w.mu.Lock()
	idx := w.taskIndexLocked(id)
	if idx < 0 {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	completed := !w.tasks[idx].Completed
	w.tasks[idx].Completed = completed
	pending := w.tasks[idx].Pending
	w.mu.Unlock()

	if pending {
		return nil
	}

	patchErr := w.api.PatchTask(ctx, id, tasks.Patch{Completed: &completed})
	if patchErr != nil {
		w.log.Warn("task toggle failed", "task_id", id, "err", patchErr)
	}
	refreshErr := w.RefreshTasks(ctx)
	if patchErr != nil {
		if refreshErr != nil {
			w.mu.Lock()
			if i := w.taskIndexLocked(id); i >= 0 {
				w.tasks[i].Completed = !completed
			}
			w.mu.Unlock()
		}
		return patchErr
	}
	return refreshErr
}

// restoreLocked puts snapshot back in its order. A pending entry whose
// create has since confirmed becomes the confirmed task; one that has since
// been removed stays removed. Tasks that appeared after the snapshot are
// kept after it.
func (w *Workspace) restoreLocked(snapshot []Task) {
	current := make(map[string]Task, len(w.tasks))
	for _, t := range w.tasks {
		current[t.ID] = t
	}
	out := make([]Task, 0, len(snapshot)+len(w.tasks))
	seen := make(map[string]bool, len(snapshot)+len(w.tasks))
	for _, t := range snapshot {
		if t.Pending {
			id := t.ID
			if serverID, ok := w.rewritten[id]; ok {
				id = serverID
			}
			cur, ok := current[id]
			if !ok {
				continue
			}
			t = cur
		}
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	for _, t := range w.tasks {
		if !seen[t.ID] {
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	w.tasks = out
}

func (w *Workspace) taskIndexLocked(id string) int {
	for i := range w.tasks {
		if w.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// SendMessage shows the user's message at once and sends it. The reply's
// conversation id becomes the active conversation, and a task created from
// the message is merged into local tasks. On failure an inline assistant
// message describes the error and the error is returned.
func (w *Workspace) SendMessage(ctx context.Context, text string) (ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatReply{}, ErrEmptyMessage
	}
	done, err := w.begin()
	if err != nil {
		return ChatReply{}, err
	}
	defer done()

	w.mu.Lock()
	convID := w.active
	w.messages = append(w.messages, w.localMessageLocked(conversations.RoleUser, text))
	w.mu.Unlock()

	reply, err := w.api.SendMessage(ctx, text, convID)

	w.mu.Lock()
	if err != nil {
		w.messages = append(w.messages, w.localMessageLocked(conversations.RoleAssistant, "Sorry, I encountered an error: "+err.Error()))
		w.mu.Unlock()
		return ChatReply{}, err
	}
	if reply.ConversationID != "" && w.active == convID {
		w.active = reply.ConversationID
	}
	w.messages = append(w.messages, w.localMessageLocked(conversations.RoleAssistant, reply.Response))
	if reply.Task != nil && w.taskIndexLocked(reply.Task.ID) < 0 {
		w.tasks = append(w.tasks, Task{Task: *reply.Task})
	}
	w.mu.Unlock()

	if err := w.RefreshConversations(ctx); err != nil {
		w.log.Debug("refresh after send failed", "err", err)
	}
	return reply, nil
}

func (w *Workspace) localMessageLocked(role conversations.Role, content string) conversations.Message {
	w.nextTemp++
	return conversations.Message{
		ID:        fmt.Sprintf("%smsg-%d", tempIDPrefix, w.nextTemp),
		Role:      role,
		Content:   content,
		Timestamp: w.now().UnixMilli(),
	}
}

// SwitchConversation leaves the active conversation for id, or for a new
// chat when id is "". Facts are extracted from the conversation being left
// and memories refreshed before the switch; failures there are logged only.
func (w *Workspace) SwitchConversation(ctx context.Context, id string) error {
	done, err := w.begin()
	if err != nil {
		return err
	}
	defer done()

	w.mu.Lock()
	leaving := w.active
	w.mu.Unlock()
	if leaving == id && id != "" {
		return nil
	}
	w.extractBeforeLeaving(ctx, leaving)

	w.mu.Lock()
	defer w.mu.Unlock()
	if id == "" {
		w.active = ""
		w.messages = nil
		return nil
	}
	for _, c := range w.conversations {
		if c.ID == id {
			w.active = id
			w.messages = append([]conversations.Message(nil), c.Messages...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownConversation, id)
}

// DeleteConversation extracts facts from the conversation and refreshes
// memories, then deletes it. Deleting the active conversation leaves an
// empty new chat.
func (w *Workspace) DeleteConversation(ctx context.Context, id string) error {
	done, err := w.begin()
	if err != nil {
		return err
	}
	defer done()

	w.extractBeforeLeaving(ctx, id)

	if err := w.api.DeleteConversation(ctx, id); err != nil {
		return err
	}
	w.mu.Lock()
	kept := w.conversations[:0:0]
	for _, c := range w.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	w.conversations = kept
	if w.active == id {
		w.active = ""
		w.messages = nil
	}
	w.mu.Unlock()
	return nil
}

func (w *Workspace) extractBeforeLeaving(ctx context.Context, convID string) {
	if convID == "" {
		return
	}
	res, err := w.api.ExtractMemories(ctx, convID)
	if err != nil {
		w.log.Warn("memory extraction failed", "conversation_id", convID, "err", err)
	} else {
		w.log.Debug("memory extraction", "conversation_id", convID, "added", len(res.Added), "skipped", res.Skipped)
	}
	if err := w.RefreshMemories(ctx); err != nil {
		w.log.Warn("memory refresh failed", "err", err)
	}
}

// AddMemory stores content and refreshes memories. A duplicate is silently
// dropped by the server.
func (w *Workspace) AddMemory(ctx context.Context, content string) error {
	done, err := w.begin()
	if err != nil {
		return err
	}
	defer done()

	if _, err := w.api.AddMemories(ctx, []string{content}); err != nil {
		return err
	}
	return w.RefreshMemories(ctx)
}

// EditMemory patches a memory and refreshes memories. A collision with
// another memory returns an error matching ErrDuplicateMemory and leaves
// local state unchanged.
func (w *Workspace) EditMemory(ctx context.Context, id string, patch memory.Patch) error {
	done, err := w.begin()
	if err != nil {
		return err
	}
	defer done()

	if _, err := w.api.UpdateMemory(ctx, id, patch); err != nil {
		return err
	}
	return w.RefreshMemories(ctx)
}

func (w *Workspace) DeleteMemory(ctx context.Context, id string) error {
	done, err := w.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := w.api.DeleteMemory(ctx, id); err != nil {
		return err
	}
	return w.RefreshMemories(ctx)
}

// Close stops periodic refreshes and drops all local state.
func (w *Workspace) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel, syncDone := w.syncCancel, w.syncDone
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-syncDone
	}

	w.mu.Lock()
	w.tasks = nil
	w.memories = nil
	w.conversations = nil
	w.messages = nil
	w.active = ""
	w.rewritten = make(map[string]string)
	w.mu.Unlock()
	return nil
}
