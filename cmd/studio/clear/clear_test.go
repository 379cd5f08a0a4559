package clearcmder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/persist"
	"github.com/papercomputeco/studio/pkg/storage/sqlite"
)

var _ = Describe("Clear Command", func() {
	var (
		ctx    context.Context
		tmpDir string
		dbPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "studio-clear-test-*")
		Expect(err).NotTo(HaveOccurred())
		dbPath = filepath.Join(tmpDir, "studio.db")

		driver, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		repo := persist.NewRepository(driver, nil)
		Expect(repo.SaveConversation(ctx, []history.Turn{
			history.NewTurn(history.RoleSystem, "be a pirate"),
			history.NewTurn(history.RoleUser, "ahoy"),
			history.NewTurn(history.RoleAssistant, "arr"),
		})).To(Succeed())
		Expect(repo.SavePreferences(ctx, persist.Preferences{
			Model: "mixtral-8x7b", Persona: "tutor", Temperature: 0.2, Theme: "cyber",
		})).To(Succeed())
		driver.Close()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	load := func() (*persist.Repository, func() error) {
		driver, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		return persist.NewRepository(driver, nil), driver.Close
	}

	It("resets the conversation to its system turn", func() {
		var out bytes.Buffer
		cmd := NewClearCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--sqlite", dbPath})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Cleared 2 turns"))

		repo, closeFn := load()
		defer closeFn()

		turns, ok, err := repo.LoadConversation(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(turns).To(HaveLen(1))
		Expect(turns[0].Role).To(Equal(history.RoleSystem))
		Expect(turns[0].Content).To(Equal("be a pirate"))

		prefs, err := repo.LoadPreferences(ctx, persist.DefaultPreferences())
		Expect(err).NotTo(HaveOccurred())
		Expect(prefs.Persona).To(Equal("tutor"))
	})

	It("forgets preferences with --all", func() {
		cmd := NewClearCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--sqlite", dbPath, "--all"})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())

		repo, closeFn := load()
		defer closeFn()

		_, ok, err := repo.LoadConversation(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		prefs, err := repo.LoadPreferences(ctx, persist.DefaultPreferences())
		Expect(err).NotTo(HaveOccurred())
		Expect(prefs).To(Equal(persist.DefaultPreferences()))
	})

	It("is a no-op on an empty database", func() {
		emptyPath := filepath.Join(tmpDir, "empty.db")

		var out bytes.Buffer
		cmd := NewClearCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--sqlite", emptyPath})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Cleared 0 turns"))
	})
})
