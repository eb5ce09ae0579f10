package client_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ent0n29/saba/internal/client"
	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/memory"
	"github.com/ent0n29/saba/internal/tasks"
)

var errBackendDown = errors.New("backend down")

func taskIDs(list []client.Task) []string {
	ids := make([]string, 0, len(list))
	for _, t := range list {
		ids = append(ids, t.ID)
	}
	return ids
}

var _ = Describe("Workspace", func() {
	var (
		ctx context.Context
		api *fakeAPI
		ws  *client.Workspace
	)

	BeforeEach(func() {
		ctx = context.Background()
		api = &fakeAPI{}
		ws = client.NewWorkspace(api, client.Options{})
	})

	AfterEach(func() {
		Expect(ws.Close()).To(Succeed())
	})

	Describe("CreateTask", func() {
		It("rewrites the temporary id to the server id", func() {
			created, err := ws.CreateTask(ctx, tasks.CreateRequest{Content: "Buy milk"})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.ID).To(Equal("srv-1"))
			Expect(created.Pending).To(BeFalse())
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"srv-1"}))
		})

		It("shows the task as pending under a tmp- id while the call is in flight", func() {
			api.createGate = make(chan struct{})
			done := make(chan error, 1)
			go func() {
				_, err := ws.CreateTask(ctx, tasks.CreateRequest{Content: "Buy milk"})
				done <- err
			}()

			Eventually(ws.Tasks).Should(HaveLen(1))
			pending := ws.Tasks()[0]
			Expect(pending.ID).To(HavePrefix("tmp-"))
			Expect(pending.Pending).To(BeTrue())
			Expect(pending.Type).To(Equal(tasks.TaskTypeTask))
			Expect(pending.Priority).To(Equal(tasks.PriorityMedium))

			close(api.createGate)
			Eventually(done).Should(Receive(BeNil()))
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"srv-1"}))
		})

		It("keeps the pending task when the server fails", func() {
			api.createErr = errBackendDown
			local, err := ws.CreateTask(ctx, tasks.CreateRequest{Content: "Buy milk"})
			Expect(err).To(MatchError(errBackendDown))
			Expect(local.Pending).To(BeTrue())

			Expect(ws.Tasks()).To(HaveLen(1))
			Expect(ws.Tasks()[0].Pending).To(BeTrue())

			By("surviving a refresh from the server")
			api.SetTasks(tasks.Task{ID: "srv-9", Content: "Existing"})
			Expect(ws.RefreshTasks(ctx)).To(Succeed())
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"srv-9", local.ID}))
		})

		It("deletes the server copy when the pending task was deleted during the call", func() {
			api.createGate = make(chan struct{})
			done := make(chan error, 1)
			go func() {
				_, err := ws.CreateTask(ctx, tasks.CreateRequest{Content: "Buy milk"})
				done <- err
			}()
			Eventually(ws.Tasks).Should(HaveLen(1))

			Expect(ws.DeleteTask(ctx, ws.Tasks()[0].ID)).To(Succeed())
			close(api.createGate)
			Eventually(done).Should(Receive(HaveOccurred()))

			Expect(ws.Tasks()).To(BeEmpty())
			Expect(api.Count("DeleteTask")).To(Equal(1))
			list, _ := api.ListTasks(ctx)
			Expect(list).To(BeEmpty())
		})
	})

	Describe("DeleteTask", func() {
		BeforeEach(func() {
			api.SetTasks(
				tasks.Task{ID: "a", Content: "one"},
				tasks.Task{ID: "b", Content: "two"},
				tasks.Task{ID: "c", Content: "three"},
			)
			Expect(ws.RefreshTasks(ctx)).To(Succeed())
		})

		It("removes the task locally and on the server", func() {
			Expect(ws.DeleteTask(ctx, "b")).To(Succeed())
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"a", "c"}))
			Expect(api.Count("DeleteTask")).To(Equal(1))
		})

		It("restores the exact snapshot when the server fails", func() {
			api.deleteErr = errBackendDown
			Expect(ws.DeleteTask(ctx, "b")).To(MatchError(errBackendDown))
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"a", "b", "c"}))
		})

		It("rewrites a temp id confirmed while the failed delete was out", func() {
			api.createGate = make(chan struct{})
			created := make(chan error, 1)
			go func() {
				_, err := ws.CreateTask(ctx, tasks.CreateRequest{Content: "Buy milk"})
				created <- err
			}()
			Eventually(ws.Tasks).Should(HaveLen(4))

			api.mu.Lock()
			api.deleteGate = make(chan struct{})
			api.deleteErr = errBackendDown
			api.mu.Unlock()
			deleted := make(chan error, 1)
			go func() { deleted <- ws.DeleteTask(ctx, "b") }()
			Eventually(func() int { return api.Count("DeleteTask") }).Should(Equal(1))

			close(api.createGate)
			Eventually(created).Should(Receive(BeNil()))
			close(api.deleteGate)
			Eventually(deleted).Should(Receive(MatchError(errBackendDown)))

			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"a", "b", "c", "srv-1"}))
			Expect(ws.RefreshTasks(ctx)).To(Succeed())
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"a", "b", "c", "srv-1"}))
		})

		It("keeps a task created while the failed delete was out", func() {
			api.mu.Lock()
			api.deleteGate = make(chan struct{})
			api.deleteErr = errBackendDown
			api.mu.Unlock()
			deleted := make(chan error, 1)
			go func() { deleted <- ws.DeleteTask(ctx, "b") }()
			Eventually(func() int { return api.Count("DeleteTask") }).Should(Equal(1))

			api.mu.Lock()
			api.createErr = errBackendDown
			api.mu.Unlock()
			local, err := ws.CreateTask(ctx, tasks.CreateRequest{Content: "offline"})
			Expect(err).To(MatchError(errBackendDown))

			close(api.deleteGate)
			Eventually(deleted).Should(Receive(MatchError(errBackendDown)))
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"a", "b", "c", local.ID}))
		})

		It("is a no-op without a server call for an unknown or rewritten id", func() {
			Expect(ws.DeleteTask(ctx, "tmp-1")).To(Succeed())
			Expect(api.Count("DeleteTask")).To(BeZero())
			Expect(ws.Tasks()).To(HaveLen(3))
		})

		It("removes a pending task without a server call", func() {
			api.createErr = errBackendDown
			local, _ := ws.CreateTask(ctx, tasks.CreateRequest{Content: "offline"})
			Expect(ws.DeleteTask(ctx, local.ID)).To(Succeed())
			Expect(api.Count("DeleteTask")).To(BeZero())
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"a", "b", "c"}))
		})
	})

	Describe("ToggleTask", func() {
		BeforeEach(func() {
			api.SetTasks(tasks.Task{ID: "a", Content: "one"})
			Expect(ws.RefreshTasks(ctx)).To(Succeed())
		})

		It("patches and then adopts the server list", func() {
			Expect(ws.ToggleTask(ctx, "a")).To(Succeed())
			Expect(ws.Tasks()[0].Completed).To(BeTrue())
			Expect(api.Calls()).To(HaveExactElements("ListTasks", "PatchTask", "ListTasks"))
		})

		It("refetches even when the patch fails", func() {
			api.patchErr = errBackendDown
			Expect(ws.ToggleTask(ctx, "a")).To(MatchError(errBackendDown))
			Expect(ws.Tasks()[0].Completed).To(BeFalse())
			Expect(api.Count("ListTasks")).To(Equal(2))
		})

		It("undoes the local flip when the patch and the refetch both fail", func() {
			api.patchErr = errBackendDown
			api.listErr = errBackendDown
			Expect(ws.ToggleTask(ctx, "a")).To(MatchError(errBackendDown))
			Expect(ws.Tasks()[0].Completed).To(BeFalse())
		})

		It("rejects an unknown id", func() {
			Expect(ws.ToggleTask(ctx, "zzz")).To(MatchError(client.ErrUnknownTask))
		})
	})

	Describe("StartSync", func() {
		BeforeEach(func() {
			ws = client.NewWorkspace(api, client.Options{
				SyncInitialDelay: 10 * time.Millisecond,
				SyncInterval:     20 * time.Millisecond,
			})
		})

		It("picks up server-side changes", func() {
			api.SetTasks(tasks.Task{ID: "r1", Type: tasks.TaskTypeReminder, Completed: true})
			ws.StartSync(ctx)
			Eventually(ws.Tasks).Should(HaveLen(1))
			Expect(ws.Tasks()[0].Completed).To(BeTrue())
			Eventually(func() int { return api.Count("ListTasks") }).Should(BeNumerically(">=", 3))
		})

		It("skips while a mutation is in flight", func() {
			api.createGate = make(chan struct{})
			done := make(chan error, 1)
			go func() {
				_, err := ws.CreateTask(ctx, tasks.CreateRequest{Content: "slow"})
				done <- err
			}()
			Eventually(func() int { return api.Count("CreateTask") }).Should(Equal(1))

			ws.StartSync(ctx)
			Consistently(func() int { return api.Count("ListTasks") }, 80*time.Millisecond, 10*time.Millisecond).Should(BeZero())

			close(api.createGate)
			Eventually(done).Should(Receive(BeNil()))
			Eventually(func() int { return api.Count("ListTasks") }).Should(BeNumerically(">=", 2))
		})

		It("stops on Close", func() {
			ws.StartSync(ctx)
			Eventually(func() int { return api.Count("ListTasks") }).Should(BeNumerically(">=", 1))
			Expect(ws.Close()).To(Succeed())
			n := api.Count("ListTasks")
			Consistently(func() int { return api.Count("ListTasks") }, 60*time.Millisecond).Should(Equal(n))
			Expect(ws.Tasks()).To(BeEmpty())
		})
	})

	Describe("conversations", func() {
		BeforeEach(func() {
			api.convs = []conversations.Conversation{
				{ID: "c1", Title: "Trip", Messages: []conversations.Message{{ID: "m1", Role: conversations.RoleUser, Content: "hi"}}},
				{ID: "c2", Title: "Work"},
			}
			Expect(ws.RefreshConversations(ctx)).To(Succeed())
			Expect(ws.SwitchConversation(ctx, "c1")).To(Succeed())
		})

		It("extracts and refreshes memories before switching", func() {
			Expect(ws.SwitchConversation(ctx, "c2")).To(Succeed())
			Expect(ws.ActiveConversation()).To(Equal("c2"))
			Expect(api.Calls()).To(ContainElements("ExtractMemories:c1", "ListMemories"))

			calls := api.Calls()
			Expect(calls[len(calls)-2:]).To(Equal([]string{"ExtractMemories:c1", "ListMemories"}))
		})

		It("switches even when extraction fails", func() {
			api.extractErr = errBackendDown
			Expect(ws.SwitchConversation(ctx, "")).To(Succeed())
			Expect(ws.ActiveConversation()).To(BeEmpty())
			Expect(ws.Messages()).To(BeEmpty())
		})

		It("loads the messages of the conversation switched to", func() {
			Expect(ws.Messages()).To(HaveLen(1))
			Expect(ws.SwitchConversation(ctx, "missing")).To(MatchError(client.ErrUnknownConversation))
		})

		It("extracts before deleting and resets the active conversation", func() {
			Expect(ws.DeleteConversation(ctx, "c1")).To(Succeed())
			calls := api.Calls()
			Expect(calls[len(calls)-3:]).To(Equal([]string{"ExtractMemories:c1", "ListMemories", "DeleteConversation"}))
			Expect(ws.ActiveConversation()).To(BeEmpty())
			Expect(ws.Conversations()).To(HaveLen(1))
		})
	})

	Describe("SendMessage", func() {
		It("adopts the canonical conversation id and merges a created task", func() {
			task := tasks.Task{ID: "srv-7", Content: "call mom", Type: tasks.TaskTypeReminder}
			api.reply = client.ChatReply{Response: "Okay", ConversationID: "conv-42", Task: &task}

			reply, err := ws.SendMessage(ctx, "Remind me to call mom")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.ConversationID).To(Equal("conv-42"))
			Expect(ws.ActiveConversation()).To(Equal("conv-42"))
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"srv-7"}))

			msgs := ws.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Role).To(Equal(conversations.RoleUser))
			Expect(msgs[1].Content).To(Equal("Okay"))

			By("continuing in the adopted conversation")
			_, err = ws.SendMessage(ctx, "thanks")
			Expect(err).NotTo(HaveOccurred())
			Expect(api.Calls()).To(ContainElement("SendMessage:conv-42"))
			Expect(taskIDs(ws.Tasks())).To(Equal([]string{"srv-7"}))
		})

		It("appends an inline error message on failure", func() {
			api.sendErr = errBackendDown
			_, err := ws.SendMessage(ctx, "hello")
			Expect(err).To(MatchError(errBackendDown))

			msgs := ws.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Role).To(Equal(conversations.RoleAssistant))
			Expect(msgs[1].Content).To(ContainSubstring("backend down"))
			Expect(ws.ActiveConversation()).To(BeEmpty())
		})

		It("rejects an empty message", func() {
			_, err := ws.SendMessage(ctx, "  ")
			Expect(err).To(MatchError(client.ErrEmptyMessage))
		})
	})

	Describe("memories", func() {
		It("refreshes after add and delete", func() {
			Expect(ws.AddMemory(ctx, "Likes tea")).To(Succeed())
			Expect(ws.Memories()).To(HaveLen(1))
			Expect(ws.DeleteMemory(ctx, ws.Memories()[0].ID)).To(Succeed())
			Expect(ws.Memories()).To(BeEmpty())
		})

		It("surfaces a duplicate edit and leaves local state alone", func() {
			Expect(ws.AddMemory(ctx, "Likes tea")).To(Succeed())
			before := ws.Memories()
			api.updateErr = &client.APIError{Status: 409, Code: "duplicate_memory", Message: "Duplicate memory content"}

			content := "Likes coffee"
			err := ws.EditMemory(ctx, before[0].ID, memory.Patch{Content: &content})
			Expect(errors.Is(err, client.ErrDuplicateMemory)).To(BeTrue())
			Expect(ws.Memories()).To(Equal(before))
		})
	})

	It("rejects mutations after Close", func() {
		Expect(ws.Close()).To(Succeed())
		_, err := ws.CreateTask(ctx, tasks.CreateRequest{Content: "late"})
		Expect(err).To(MatchError(client.ErrClosed))
	})
})
