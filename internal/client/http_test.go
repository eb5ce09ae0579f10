package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ent0n29/saba/internal/chat"
	"github.com/ent0n29/saba/internal/client"
	"github.com/ent0n29/saba/internal/config"
	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/extraction"
	"github.com/ent0n29/saba/internal/httpapi"
	"github.com/ent0n29/saba/internal/identity"
	"github.com/ent0n29/saba/internal/memory"
	"github.com/ent0n29/saba/internal/prompts"
	"github.com/ent0n29/saba/internal/recordstore"
	"github.com/ent0n29/saba/internal/reliability"
	"github.com/ent0n29/saba/internal/taskservice"
	"github.com/ent0n29/saba/internal/tasks"
	"github.com/ent0n29/saba/internal/users"
)

var _ = Describe("Workspace over HTTP", func() {
	var (
		ctx      context.Context
		api      *httptest.Server
		upstream *httptest.Server
		ws       *client.Workspace
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager := tasks.NewManager(tasks.NewInMemoryStore(), time.Second, nil)
		upstream = httptest.NewServer(tasks.NewHandler(manager, nil, nil).Router())
		taskAPI := taskservice.NewClient(upstream.URL, time.Second, reliability.Policy{}, nil)

		store := recordstore.NewInMemoryStore()
		convs := conversations.NewRepository(store, nil)
		mems := memory.NewRepository(store, nil)
		p := prompts.Default()
		srv := httpapi.New(config.Config{}, httpapi.Deps{
			Store:         store,
			Users:         users.NewRepository(store, nil),
			Conversations: convs,
			Memories:      mems,
			Extraction:    extraction.NewEngine(convs, mems, nil, p, nil, nil),
			Chat:          chat.NewService(convs, taskAPI, nil, p, chat.Options{}),
			Tasks:         taskAPI,
		})
		api = httptest.NewServer(srv.Router())

		token := identity.IssueLegacyToken("user-1", "user-1@example.com", "User", time.Now())
		ws = client.NewWorkspace(client.NewHTTPClient(api.URL, token, time.Second, reliability.Policy{}), client.Options{})
		Expect(ws.Load(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(ws.Close()).To(Succeed())
		api.Close()
		upstream.Close()
	})

	It("round-trips tasks", func() {
		created, err := ws.CreateTask(ctx, tasks.CreateRequest{Content: "Buy milk"})
		Expect(err).NotTo(HaveOccurred())
		Expect(created.ID).NotTo(HavePrefix("tmp-"))

		Expect(ws.ToggleTask(ctx, created.ID)).To(Succeed())
		Expect(ws.Tasks()[0].Completed).To(BeTrue())

		Expect(ws.DeleteTask(ctx, created.ID)).To(Succeed())
		Expect(ws.Tasks()).To(BeEmpty())
	})

	It("chats, creates reminders and extracts on switch", func() {
		reply, err := ws.SendMessage(ctx, "My name is Alex.")
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.ConversationID).NotTo(BeEmpty())

		_, err = ws.SendMessage(ctx, "Remind me to stretch at 6pm")
		Expect(err).NotTo(HaveOccurred())
		Expect(ws.Tasks()).To(HaveLen(1))
		Expect(ws.Tasks()[0].Tags).To(ContainElement("auto-from-chat"))
		Expect(ws.Conversations()).To(HaveLen(1))

		Expect(ws.SwitchConversation(ctx, "")).To(Succeed())
		Expect(ws.Memories()).To(ContainElement(HaveField("Content", "User's name is alex")))
	})

	It("reports a duplicate memory edit", func() {
		Expect(ws.AddMemory(ctx, "Likes tea")).To(Succeed())
		Expect(ws.AddMemory(ctx, "Likes coffee")).To(Succeed())
		mems := ws.Memories()
		Expect(mems).To(HaveLen(2))

		var coffee memory.Memory
		for _, m := range mems {
			if m.Content == "Likes coffee" {
				coffee = m
			}
		}
		dup := "likes TEA"
		err := ws.EditMemory(ctx, coffee.ID, memory.Patch{Content: &dup})
		Expect(errors.Is(err, client.ErrDuplicateMemory)).To(BeTrue())
	})
})
