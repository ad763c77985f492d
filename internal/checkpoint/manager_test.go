package checkpoint_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penguin-run/penguin/internal/checkpoint"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/internal/storage"
	"github.com/penguin-run/penguin/pkg/types"
)

func newManager(cfg types.CheckpointConfig) (*checkpoint.Manager, *session.Store) {
	store := storage.New(GinkgoT().TempDir())
	sessions := session.New(store)
	mgr := checkpoint.New(store, sessions, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	DeferCleanup(func() {
		cancel()
		mgr.Stop()
	})
	return mgr, sessions
}

func seedMessages(ctx context.Context, sessions *session.Store, sess *types.Session, n int) string {
	existing, err := sessions.GetMessages(ctx, sess.ID)
	Expect(err).NotTo(HaveOccurred())
	var lastID string
	for i := len(existing); i < len(existing)+n; i++ {
		msg := &types.Message{
			ID:        generateTestID(i),
			SessionID: sess.ID,
			Role:      "user",
			Category:  types.CategoryDialog,
		}
		Expect(sessions.AddMessage(ctx, msg)).To(Succeed())
		Expect(sessions.AddPart(ctx, &types.TextPart{
			ID:        generateTestID(i) + "-p",
			SessionID: sess.ID,
			MessageID: msg.ID,
			Type:      "text",
			Text:      "hello",
		})).To(Succeed())
		lastID = msg.ID
	}
	return lastID
}

func generateTestID(i int) string {
	return time.Unix(int64(i), 0).Format("20060102150405") + "-msg"
}

var _ = Describe("Manager capture", func() {
	var (
		ctx  context.Context
		mgr  *checkpoint.Manager
		sess *types.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		var sessions *session.Store
		mgr, sessions = newManager(types.CheckpointConfig{Enabled: true, MaxAuto: 10})
		var err error
		sess, err = sessions.Create(ctx, "/work/proj", nil)
		Expect(err).NotTo(HaveOccurred())
		seedMessages(ctx, sessions, sess, 3)
	})

	It("commits a manual checkpoint synchronously", func() {
		cp, err := mgr.Capture(ctx, sess.ID, "", types.CheckpointManual, "before refactor")
		Expect(err).NotTo(HaveOccurred())
		Expect(cp).NotTo(BeNil())
		Expect(cp.State).To(Equal("committed"))
		Expect(cp.PayloadHash).NotTo(BeEmpty())

		list, err := mgr.List(ctx, sess.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
		Expect(list[0].ID).To(Equal(cp.ID))
	})

	It("is a no-op when disabled", func() {
		disabled, sessions := newManager(types.CheckpointConfig{Enabled: false})
		s, _ := sessions.Create(ctx, "/work/proj", nil)
		cp, err := disabled.Capture(ctx, s.ID, "", types.CheckpointManual, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(cp).To(BeNil())
	})
})

var _ = Describe("Manager restore and branch", func() {
	var (
		ctx      context.Context
		mgr      *checkpoint.Manager
		sessions *session.Store
		sess     *types.Session
		headID   string
		cp       *types.Checkpoint
	)

	BeforeEach(func() {
		ctx = context.Background()
		mgr, sessions = newManager(types.CheckpointConfig{Enabled: true, MaxAuto: 10})
		var err error
		sess, err = sessions.Create(ctx, "/work/proj", nil)
		Expect(err).NotTo(HaveOccurred())
		headID = seedMessages(ctx, sessions, sess, 3)

		cp, err = mgr.Capture(ctx, sess.ID, headID, types.CheckpointManual, "checkpoint A")
		Expect(err).NotTo(HaveOccurred())

		seedMessages(ctx, sessions, sess, 2) // add more history after the checkpoint
	})

	It("restores into a brand new session without mutating the source", func() {
		restored, err := mgr.Restore(ctx, sess.ID, cp.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored.ID).NotTo(Equal(sess.ID))
		Expect(restored.BranchPoint).NotTo(BeNil())
		Expect(*restored.BranchPoint).To(Equal(cp.MessageID))
		Expect(restored.SourceCheckpoint).NotTo(BeNil())
		Expect(*restored.SourceCheckpoint).To(Equal(cp.ID))

		restoredMessages, err := sessions.GetMessages(ctx, restored.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(restoredMessages).To(HaveLen(3))

		original, err := sessions.Get(ctx, sess.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(original.Revert).To(BeNil()) // cleared once restore completes

		originalMessages, err := sessions.GetMessages(ctx, sess.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(originalMessages).To(HaveLen(5)) // untouched
	})

	It("branches without disturbing the source session", func() {
		branched, err := mgr.Branch(ctx, sess.ID, cp.ID, "experiment")
		Expect(err).NotTo(HaveOccurred())
		Expect(branched.Title).To(Equal("experiment"))
		Expect(branched.ParentID).NotTo(BeNil())
		Expect(*branched.ParentID).To(Equal(sess.ID))
		Expect(branched.BranchPoint).NotTo(BeNil())
		Expect(*branched.BranchPoint).To(Equal(cp.MessageID))
		Expect(branched.SourceCheckpoint).NotTo(BeNil())
		Expect(*branched.SourceCheckpoint).To(Equal(cp.ID))

		branchedMessages, err := sessions.GetMessages(ctx, branched.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(branchedMessages).To(HaveLen(3))

		originalMessages, err := sessions.GetMessages(ctx, sess.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(originalMessages).To(HaveLen(5))
	})
})

var _ = Describe("Retention", func() {
	It("never expires a manual checkpoint regardless of age", func() {
		ctx := context.Background()
		mgr, sessions := newManager(types.CheckpointConfig{
			Enabled: true,
			MaxAuto: 1,
			Retention: types.RetentionConfig{
				MaxAgeDays: 1,
			},
		})
		sess, err := sessions.Create(ctx, "/work/proj", nil)
		Expect(err).NotTo(HaveOccurred())
		seedMessages(ctx, sessions, sess, 1)

		manual, err := mgr.Capture(ctx, sess.ID, "", types.CheckpointManual, "keep me")
		Expect(err).NotTo(HaveOccurred())

		// a second auto capture should trip max_auto against any auto
		// checkpoints, but must never touch the manual one above.
		_, err = mgr.Capture(ctx, sess.ID, "", types.CheckpointPostTurn, "")
		Expect(err).NotTo(HaveOccurred())

		list, err := mgr.List(ctx, sess.ID)
		Expect(err).NotTo(HaveOccurred())
		var found bool
		for _, c := range list {
			if c.ID == manual.ID {
				found = true
			}
		}
		Expect(found).To(BeTrue())
	})
})
