package persist_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/persist"
	"github.com/papercomputeco/studio/pkg/storage"
	"github.com/papercomputeco/studio/pkg/storage/inmemory"
	"github.com/papercomputeco/studio/pkg/storage/sqlite"
)

// failingDriver fails every read.
type failingDriver struct {
	*inmemory.Driver
}

func (failingDriver) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func conversation() []history.Turn {
	assistant := history.NewTurn(history.RoleAssistant, "Hello")
	assistant.Metadata = map[string]string{"model": "llama-3.1-8b-instant"}
	return []history.Turn{
		history.NewTurn(history.RoleSystem, "You are helpful."),
		history.NewTurn(history.RoleUser, "Hi"),
		assistant,
	}
}

var _ = Describe("Repository", func() {
	var (
		ctx    context.Context
		driver storage.Driver
		repo   *persist.Repository
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		repo = persist.NewRepository(driver, nil)
	})

	Describe("conversation", func() {
		It("round-trips an ordered sequence of turns", func() {
			turns := conversation()
			Expect(repo.SaveConversation(ctx, turns)).To(Succeed())

			loaded, ok, err := repo.LoadConversation(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(loaded).To(HaveLen(len(turns)))
			for i := range turns {
				Expect(loaded[i].Role).To(Equal(turns[i].Role))
				Expect(loaded[i].Content).To(Equal(turns[i].Content))
				Expect(loaded[i].Timestamp.Equal(turns[i].Timestamp)).To(BeTrue())
				Expect(loaded[i].Metadata).To(Equal(turns[i].Metadata))
			}
		})

		It("round-trips through the sqlite driver", func() {
			db, err := sqlite.NewDriver(ctx, ":memory:")
			Expect(err).NotTo(HaveOccurred())
			defer db.Close()
			repo := persist.NewRepository(db, nil)

			turns := conversation()
			Expect(repo.SaveConversation(ctx, turns)).To(Succeed())
			loaded, ok, err := repo.LoadConversation(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(loaded).To(Equal(turns))
		})

		It("reports a missing conversation as absent", func() {
			loaded, ok, err := repo.LoadConversation(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(loaded).To(BeNil())
		})

		It("treats malformed JSON as absent", func() {
			Expect(driver.Put(ctx, persist.KeyMessages, []byte(`[{"role":"user",`))).To(Succeed())

			_, ok, err := repo.LoadConversation(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("treats an unknown role as absent", func() {
			Expect(driver.Put(ctx, persist.KeyMessages, []byte(`[{"role":"wizard","content":"x","ts":0}]`))).To(Succeed())

			_, ok, err := repo.LoadConversation(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("stores an empty conversation as an empty array", func() {
			Expect(repo.SaveConversation(ctx, nil)).To(Succeed())

			raw, ok, err := driver.Get(ctx, persist.KeyMessages)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(string(raw)).To(Equal("[]"))
		})

		It("returns driver failures", func() {
			repo := persist.NewRepository(failingDriver{inmemory.NewDriver()}, nil)
			_, _, err := repo.LoadConversation(ctx)
			Expect(err).To(MatchError(ContainSubstring("disk on fire")))
		})
	})

	Describe("preferences", func() {
		It("defaults everything when nothing is stored", func() {
			prefs, err := repo.LoadPreferences(ctx, persist.DefaultPreferences())
			Expect(err).NotTo(HaveOccurred())
			Expect(prefs).To(Equal(persist.DefaultPreferences()))
			Expect(prefs.Model).To(Equal("llama-3.1-8b-instant"))
			Expect(prefs.Persona).To(Equal("assistant"))
			Expect(prefs.Temperature).To(Equal(0.7))
		})

		It("takes missing values from the fallback", func() {
			Expect(driver.Put(ctx, persist.KeyModel, []byte(`"llama-3.1-405b"`))).To(Succeed())

			fallback := persist.Preferences{Model: "m", Persona: "code", Temperature: 0.5, Theme: "github"}
			prefs, err := repo.LoadPreferences(ctx, fallback)
			Expect(err).NotTo(HaveOccurred())
			Expect(prefs).To(Equal(persist.Preferences{
				Model:       "llama-3.1-405b",
				Persona:     "code",
				Temperature: 0.5,
				Theme:       "github",
			}))
		})

		It("round-trips saved preferences", func() {
			want := persist.Preferences{
				Model:       "mixtral-8x7b",
				Persona:     "tutor",
				Temperature: 0.2,
				Theme:       "cyber",
			}
			Expect(repo.SavePreferences(ctx, want)).To(Succeed())

			got, err := repo.LoadPreferences(ctx, persist.DefaultPreferences())
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		})

		It("falls back per key on corrupt values", func() {
			Expect(driver.Put(ctx, persist.KeyModel, []byte(`"llama-3.1-70b"`))).To(Succeed())
			Expect(driver.Put(ctx, persist.KeyPersona, []byte(`"pirate"`))).To(Succeed())
			Expect(driver.Put(ctx, persist.KeyTemperature, []byte(`"hot"`))).To(Succeed())
			Expect(driver.Put(ctx, persist.KeyTheme, []byte(`{`))).To(Succeed())

			prefs, err := repo.LoadPreferences(ctx, persist.DefaultPreferences())
			Expect(err).NotTo(HaveOccurred())
			Expect(prefs.Model).To(Equal("llama-3.1-70b"))
			Expect(prefs.Persona).To(Equal("assistant"))
			Expect(prefs.Temperature).To(Equal(0.7))
			Expect(prefs.Theme).To(Equal("vsc"))
		})

		It("rejects an out-of-range temperature", func() {
			Expect(driver.Put(ctx, persist.KeyTemperature, []byte(`7.5`))).To(Succeed())

			prefs, err := repo.LoadPreferences(ctx, persist.DefaultPreferences())
			Expect(err).NotTo(HaveOccurred())
			Expect(prefs.Temperature).To(Equal(0.7))
		})
	})

	Describe("notes", func() {
		It("is empty when nothing is stored", func() {
			notes, err := repo.LoadNotes(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(notes).To(BeEmpty())
		})

		It("round-trips the scratchpad under ai:notes", func() {
			Expect(repo.SaveNotes(ctx, "ask about retries\ncheck the budget")).To(Succeed())

			raw, ok, err := driver.Get(ctx, persist.KeyNotes)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(string(raw)).To(Equal(`"ask about retries\ncheck the budget"`))

			notes, err := repo.LoadNotes(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(notes).To(Equal("ask about retries\ncheck the budget"))
		})

		It("treats a corrupt value as empty", func() {
			Expect(driver.Put(ctx, persist.KeyNotes, []byte(`{"oops"`))).To(Succeed())

			notes, err := repo.LoadNotes(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(notes).To(BeEmpty())
		})

		It("returns driver failures", func() {
			repo := persist.NewRepository(failingDriver{inmemory.NewDriver()}, nil)
			_, err := repo.LoadNotes(ctx)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Clear", func() {
		It("removes every ai: key and leaves other keys alone", func() {
			Expect(repo.SaveConversation(ctx, conversation())).To(Succeed())
			Expect(repo.SavePreferences(ctx, persist.DefaultPreferences())).To(Succeed())
			Expect(repo.SaveNotes(ctx, "scratch")).To(Succeed())
			Expect(driver.Put(ctx, "unrelated", []byte("1"))).To(Succeed())

			Expect(repo.Clear(ctx)).To(Succeed())

			keys, err := driver.Keys(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]string{"unrelated"}))
		})
	})
})
