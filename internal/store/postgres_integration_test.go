// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/chatd/internal/auth"
	"github.com/holomush/chatd/internal/store"
	"github.com/holomush/chatd/pkg/errutil"
)

var _ = Describe("CredentialRepository", func() {
	var repo *store.CredentialRepository

	BeforeEach(func() {
		repo = store.NewCredentialRepository(pool)
	})

	It("round-trips records", func() {
		ctx := context.Background()
		createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		Expect(repo.Insert(ctx, auth.Record{Username: "alice", CredentialHash: "H1", CreatedAt: createdAt})).To(Succeed())

		recs, err := repo.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(1))
		Expect(recs[0].Username).To(Equal("alice"))
		Expect(recs[0].CredentialHash).To(Equal("H1"))
		Expect(recs[0].CreatedAt.Equal(createdAt)).To(BeTrue())
	})

	It("rejects a second record for the same name", func() {
		ctx := context.Background()
		Expect(repo.Insert(ctx, auth.Record{Username: "bob", CredentialHash: "H1", CreatedAt: time.Now()})).To(Succeed())

		err := repo.Insert(ctx, auth.Record{Username: "bob", CredentialHash: "H2", CreatedAt: time.Now()})
		Expect(errutil.Code(err)).To(Equal(auth.CodeNameRegistered))
	})

	It("lets exactly one of two servers register a name", func() {
		ctx := context.Background()
		first, err := auth.NewIndexWithStore(repo)
		Expect(err).NotTo(HaveOccurred())
		second, err := auth.NewIndexWithStore(store.NewCredentialRepository(pool))
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, idx := range []*auth.Index{first, second} {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				errs[i] = idx.Register(ctx, "carol", "H"+string(rune('1'+i)))
			}()
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
			} else {
				Expect(errutil.Code(err)).To(Equal(auth.CodeNameRegistered))
			}
		}
		Expect(successes).To(Equal(1))

		recs, err := repo.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(1))
	})

	It("reloads records into a fresh index", func() {
		ctx := context.Background()
		idx, err := auth.NewIndexWithStore(repo)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Register(ctx, "dave", "H1")).To(Succeed())

		restarted, err := auth.NewIndexWithStore(store.NewCredentialRepository(pool))
		Expect(err).NotTo(HaveOccurred())
		Expect(restarted.Load(ctx)).To(Succeed())

		stored, ok := restarted.Lookup("dave")
		Expect(ok).To(BeTrue())
		Expect(stored).To(Equal("H1"))
	})

	It("reports the migrated schema version", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = migrator.Close() }()

		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(Equal(uint(1)))
		Expect(st.Name).To(Equal("000001_auth_records"))
		Expect(st.Dirty).To(BeFalse())
		Expect(st.Pending).To(BeEmpty())
	})
})
