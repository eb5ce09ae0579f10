package client_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/ent0n29/saba/internal/client"
	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/memory"
	"github.com/ent0n29/saba/internal/tasks"
)

// fakeAPI is an in-process server double. calls records every method name in
// order.
type fakeAPI struct {
	mu sync.Mutex

	tasks    []tasks.Task
	memories []memory.Memory
	convs    []conversations.Conversation
	nextID   int

	createGate chan struct{}
	deleteGate chan struct{}
	createErr  error
	deleteErr  error
	patchErr   error
	listErr    error
	sendErr    error
	updateErr  error
	extractErr error
	reply      client.ChatReply

	calls []string
}

func (f *fakeAPI) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) Count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAPI) SetTasks(list ...tasks.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = list
}

func (f *fakeAPI) ListTasks(context.Context) ([]tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListTasks")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]tasks.Task(nil), f.tasks...), nil
}

func (f *fakeAPI) CreateTask(ctx context.Context, req tasks.CreateRequest) (tasks.Task, error) {
	f.mu.Lock()
	f.record("CreateTask")
	gate := f.createGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return tasks.Task{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return tasks.Task{}, f.createErr
	}
	f.nextID++
	t := tasks.Task{ID: fmt.Sprintf("srv-%d", f.nextID), UserID: "user-1", Content: req.Content, Type: req.Type, Priority: req.Priority, Tags: req.Tags}
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeAPI) PatchTask(_ context.Context, id string, patch tasks.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PatchTask")
	if f.patchErr != nil {
		return f.patchErr
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id && patch.Completed != nil {
			f.tasks[i].Completed = *patch.Completed
		}
	}
	return nil
}

func (f *fakeAPI) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	f.record("DeleteTask")
	gate := f.deleteGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	kept := f.tasks[:0:0]
	for _, t := range f.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
	return nil
}

func (f *fakeAPI) ListConversations(context.Context) ([]conversations.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListConversations")
	return append([]conversations.Conversation(nil), f.convs...), nil
}

func (f *fakeAPI) DeleteConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteConversation")
	kept := f.convs[:0:0]
	for _, c := range f.convs {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.convs = kept
	return nil
}

func (f *fakeAPI) SendMessage(_ context.Context, message, conversationID string) (client.ChatReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendMessage:" + conversationID)
	if f.sendErr != nil {
		return client.ChatReply{}, f.sendErr
	}
	return f.reply, nil
}

func (f *fakeAPI) ListMemories(context.Context) ([]memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListMemories")
	return append([]memory.Memory(nil), f.memories...), nil
}

func (f *fakeAPI) AddMemories(_ context.Context, contents []string) ([]memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddMemories")
	var added []memory.Memory
	for _, c := range contents {
		f.nextID++
		m := memory.Memory{ID: fmt.Sprintf("mem-%d", f.nextID), Content: c}
		f.memories = append(f.memories, m)
		added = append(added, m)
	}
	return added, nil
}

func (f *fakeAPI) UpdateMemory(_ context.Context, id string, patch memory.Patch) (memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateMemory")
	if f.updateErr != nil {
		return memory.Memory{}, f.updateErr
	}
	for i := range f.memories {
		if f.memories[i].ID == id {
			if patch.Content != nil {
				f.memories[i].Content = *patch.Content
			}
			return f.memories[i], nil
		}
	}
	return memory.Memory{}, &client.APIError{Status: 404, Code: "memory_not_found"}
}

func (f *fakeAPI) DeleteMemory(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteMemory")
	kept := f.memories[:0:0]
	for _, m := range f.memories {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	f.memories = kept
	return nil
}

func (f *fakeAPI) ExtractMemories(_ context.Context, conversationID string) (client.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ExtractMemories:" + conversationID)
	if f.extractErr != nil {
		return client.Extraction{}, f.extractErr
	}
	return client.Extraction{}, nil
}
