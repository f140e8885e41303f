// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/chatd/internal/auth"
	"github.com/holomush/chatd/internal/identity"
	"github.com/holomush/chatd/internal/session"
)

var _ = Describe("Claiming a name", func() {
	var (
		ctx      context.Context
		registry *session.Registry
		index    *auth.Index
		protocol *identity.Protocol
	)

	BeforeEach(func() {
		ctx = context.Background()
		registry = session.NewRegistry()
		index = auth.NewIndex()

		var err error
		protocol, err = identity.NewProtocol(auth.DefaultNamePolicy(), index, registry)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("when the name is not registered", func() {
		It("registers it and authenticates the connection", func() {
			c := registry.Connect("", nil)

			resp := protocol.Authenticate(ctx, c, "alice", "H1")

			Expect(resp.Success).To(BeTrue())
			Expect(resp.Message).To(Equal("alice"))
			Expect(c.Name()).To(Equal("alice"))
			Expect(c.IsAuthenticated()).To(BeTrue())

			hash, ok := index.Lookup("alice")
			Expect(ok).To(BeTrue())
			Expect(hash).To(Equal("H1"))
		})
	})

	Context("when the name is registered", func() {
		BeforeEach(func() {
			Expect(index.Register(ctx, "alice", "H1")).To(Succeed())
		})

		It("rejects a different credential without touching the index", func() {
			c := registry.Connect("", nil)

			resp := protocol.Authenticate(ctx, c, "alice", "H2")

			Expect(resp).To(Equal(identity.Response{Message: "Incorrect username or password."}))
			Expect(index.Len()).To(Equal(1))
			hash, _ := index.Lookup("alice")
			Expect(hash).To(Equal("H1"))
		})

		It("accepts the same credential repeatedly", func() {
			c := registry.Connect("", nil)

			for range 2 {
				resp := protocol.Authenticate(ctx, c, "alice", "H1")
				Expect(resp).To(Equal(identity.Response{Success: true}))
			}
			Expect(index.Len()).To(Equal(1))
		})
	})

	DescribeTable("guest-shaped names are refused",
		func(name string) {
			c := registry.Connect("", nil)

			resp := protocol.Authenticate(ctx, c, name, "H1")

			Expect(resp).To(Equal(identity.Response{Message: "You may not authenticate as a guest.\nPick another name."}))
			Expect(c.IsAuthenticated()).To(BeFalse())
			Expect(index.Len()).To(BeZero())
		},
		Entry("guest7", "guest7"),
		Entry("guest42", "guest42"),
		Entry("guest007", "guest007"),
	)

	DescribeTable("near-guest names are ordinary names",
		func(name string) {
			c := registry.Connect("", nil)
			Expect(protocol.Authenticate(ctx, c, name, "H1").Success).To(BeTrue())
		},
		Entry("guestly", "guestly"),
		Entry("Guest1", "Guest1"),
		Entry("xguest1", "xguest1"),
	)

	Context("when many connections race for the same name", func() {
		It("lets exactly one of them register it", func() {
			const racers = 16
			clients := make([]*session.Client, racers)
			for i := range clients {
				clients[i] = registry.Connect("", nil)
			}

			start := make(chan struct{})
			var wg sync.WaitGroup
			var mu sync.Mutex
			winners := 0
			for i, c := range clients {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					resp := protocol.Authenticate(ctx, c, "bob", fmt.Sprintf("hash-%d", i))
					if resp.Success {
						mu.Lock()
						winners++
						mu.Unlock()
						return
					}
					Expect(resp.Message).To(BeElementOf(identity.MsgInvalidName, identity.MsgCredentialMismatch))
				}()
			}
			close(start)
			wg.Wait()

			Expect(winners).To(Equal(1))
			Expect(index.Len()).To(Equal(1))

			holders := 0
			for _, c := range clients {
				if c.Name() == "bob" {
					holders++
					Expect(c.IsAuthenticated()).To(BeTrue())
					hash, _ := index.Lookup("bob")
					Expect(c.Credential()).To(Equal(hash))
				}
			}
			Expect(holders).To(Equal(1))
		})
	})
})
