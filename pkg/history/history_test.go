package history_test

import (
	"encoding/json"
	"math/rand/v2"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/history"
)

// text returns a string whose estimated size is exactly size.
func text(size int) string {
	return strings.Repeat("abcd", size)
}

func totalSize(turns []history.Turn) int {
	total := 0
	for _, t := range turns {
		total += t.Size()
	}
	return total
}

var _ = Describe("EstimateSize", func() {
	It("is zero for empty text", func() {
		Expect(history.EstimateSize("")).To(Equal(0))
	})

	It("rounds partial tokens up", func() {
		Expect(history.EstimateSize("a")).To(Equal(1))
		Expect(history.EstimateSize("abcd")).To(Equal(1))
		Expect(history.EstimateSize("abcde")).To(Equal(2))
	})

	It("counts runes rather than bytes", func() {
		Expect(history.EstimateSize("héllo wörld")).To(Equal(3))
	})

	It("is monotonic in length", func() {
		prev := 0
		for i := 0; i < 200; i++ {
			size := history.EstimateSize(strings.Repeat("x", i))
			Expect(size).To(BeNumerically(">=", prev))
			prev = size
		}
	})
})

var _ = Describe("History", func() {
	var h *history.History

	BeforeEach(func() {
		h = history.New(text(20), nil)
	})

	Describe("New", func() {
		It("starts with a single system turn", func() {
			Expect(h.Len()).To(Equal(1))
			Expect(h.System().Role).To(Equal(history.RoleSystem))
			Expect(h.System().Size()).To(Equal(20))
		})
	})

	Describe("Append", func() {
		It("adds turns at the end in insertion order", func() {
			h.Append(history.NewTurn(history.RoleUser, "one"))
			h.Append(history.NewTurn(history.RoleAssistant, "two"))

			turns := h.Turns()
			Expect(turns).To(HaveLen(3))
			Expect(turns[1].Content).To(Equal("one"))
			Expect(turns[2].Content).To(Equal("two"))
		})

		It("appends unconditionally even beyond any budget", func() {
			h.Append(history.NewTurn(history.RoleUser, text(10_000)))
			Expect(h.Len()).To(Equal(2))
		})
	})

	Describe("Turns", func() {
		It("returns a copy that does not alias internal state", func() {
			h.Append(history.NewTurn(history.RoleUser, "hello"))
			turns := h.Turns()
			turns[1].Content = "mutated"

			Expect(h.Turns()[1].Content).To(Equal("hello"))
		})
	})

	Describe("SetSystem", func() {
		It("replaces the system turn and keeps it first", func() {
			h.Append(history.NewTurn(history.RoleUser, "hello"))
			h.SetSystem("new persona")

			turns := h.Turns()
			Expect(turns[0].Role).To(Equal(history.RoleSystem))
			Expect(turns[0].Content).To(Equal("new persona"))
			Expect(turns[1].Content).To(Equal("hello"))
		})
	})

	Describe("Clear", func() {
		It("keeps only the system turn", func() {
			h.Append(history.NewTurn(history.RoleUser, "hello"))
			h.Append(history.NewTurn(history.RoleAssistant, "hi"))
			h.Clear()

			Expect(h.Len()).To(Equal(1))
			Expect(h.System().Role).To(Equal(history.RoleSystem))

			h.Append(history.NewTurn(history.RoleUser, "again"))
			Expect(h.Len()).To(Equal(2))
		})
	})

	Describe("Restore", func() {
		It("replaces stored system turns with the current persona", func() {
			stored := []history.Turn{
				history.NewTurn(history.RoleSystem, "old persona"),
				history.NewTurn(history.RoleUser, "hello"),
				history.NewTurn(history.RoleAssistant, "hi"),
			}
			r := history.Restore("current persona", stored, nil)

			turns := r.Turns()
			Expect(turns).To(HaveLen(3))
			Expect(turns[0].Content).To(Equal("current persona"))
			Expect(turns[1].Content).To(Equal("hello"))
			Expect(turns[2].Content).To(Equal("hi"))
		})
	})

	Describe("Budgeted", func() {
		It("returns only the system turn for an empty conversation", func() {
			out := h.Budgeted(50)
			Expect(out).To(HaveLen(1))
			Expect(out[0].Role).To(Equal(history.RoleSystem))
		})

		It("keeps everything when it fits", func() {
			h.Append(history.NewTurn(history.RoleUser, text(10)))
			h.Append(history.NewTurn(history.RoleAssistant, text(10)))

			out := h.Budgeted(50)
			Expect(out).To(HaveLen(3))
			Expect(totalSize(out)).To(Equal(40))
		})

		It("drops the oldest non-system turns first", func() {
			h.Append(history.NewTurn(history.RoleUser, text(10)+"1"))
			h.Append(history.NewTurn(history.RoleAssistant, text(10)))
			h.Append(history.NewTurn(history.RoleUser, text(10)))

			out := h.Budgeted(45)
			Expect(out).To(HaveLen(3))
			Expect(out[0].Role).To(Equal(history.RoleSystem))
			Expect(out[1].Role).To(Equal(history.RoleAssistant))
			Expect(out[2].Role).To(Equal(history.RoleUser))
			Expect(totalSize(out)).To(BeNumerically("<=", 45))
		})

		It("includes a turn that fits exactly", func() {
			h.Append(history.NewTurn(history.RoleUser, text(15)))
			h.Append(history.NewTurn(history.RoleAssistant, text(15)))

			Expect(h.Budgeted(50)).To(HaveLen(3))
			Expect(h.Budgeted(49)).To(HaveLen(2))
		})

		It("never returns fewer than the most recent turn (soft cap)", func() {
			h.Append(history.NewTurn(history.RoleUser, text(5)))
			h.Append(history.NewTurn(history.RoleUser, text(100)))

			out := h.Budgeted(50)
			Expect(out).To(HaveLen(2))
			Expect(out[0].Role).To(Equal(history.RoleSystem))
			Expect(out[1].Size()).To(Equal(100))
		})

		It("keeps the system turn even when it alone exceeds the budget", func() {
			h.Append(history.NewTurn(history.RoleUser, "hi"))

			out := h.Budgeted(5)
			Expect(out).To(HaveLen(2))
			Expect(out[0].Role).To(Equal(history.RoleSystem))
		})

		It("is idempotent without intervening appends", func() {
			for i := 0; i < 10; i++ {
				h.Append(history.NewTurn(history.RoleUser, text(i+1)))
			}
			Expect(h.Budgeted(40)).To(Equal(h.Budgeted(40)))
		})

		It("does not modify the conversation", func() {
			for i := 0; i < 10; i++ {
				h.Append(history.NewTurn(history.RoleUser, text(10)))
			}
			h.Budgeted(30)
			Expect(h.Len()).To(Equal(11))
		})

		It("holds its invariants over random conversations and budgets", func() {
			rng := rand.New(rand.NewPCG(42, 7))
			roles := []history.Role{history.RoleUser, history.RoleAssistant, history.RoleTool}

			for iteration := 0; iteration < 500; iteration++ {
				conv := history.New(text(rng.IntN(30)), nil)
				n := rng.IntN(25)
				for i := 0; i < n; i++ {
					t := history.NewTurn(roles[rng.IntN(len(roles))], text(rng.IntN(40)))
					t.Metadata = map[string]string{"i": string(rune('a' + i))}
					conv.Append(t)
				}
				budget := rng.IntN(200)
				all := conv.Turns()
				out := conv.Budgeted(budget)

				Expect(out[0]).To(Equal(all[0]), "system turn first")

				if n == 0 {
					Expect(out).To(HaveLen(1))
					continue
				}

				// A contiguous suffix of the non-system turns.
				suffix := out[1:]
				Expect(suffix).NotTo(BeEmpty())
				Expect(suffix).To(Equal(all[len(all)-len(suffix):]))

				softCap := len(out) == 2 && all[0].Size()+all[len(all)-1].Size() > budget
				if !softCap {
					Expect(totalSize(out)).To(BeNumerically("<=", budget))
				}

				// Maximal: the next older turn would not have fit.
				if len(suffix) < n {
					next := all[len(all)-len(suffix)-1]
					Expect(totalSize(out) + next.Size()).To(BeNumerically(">", budget))
				}
			}
		})
	})

	Describe("Evict", func() {
		It("removes what the budgeted view leaves out", func() {
			for i := 0; i < 5; i++ {
				h.Append(history.NewTurn(history.RoleUser, text(10)))
			}
			view := h.Budgeted(40)

			Expect(h.Evict(40)).To(Equal(3))
			Expect(h.Turns()).To(Equal(view))
			Expect(h.System().Role).To(Equal(history.RoleSystem))
		})

		It("is a no-op when everything fits", func() {
			h.Append(history.NewTurn(history.RoleUser, text(1)))
			Expect(h.Evict(100)).To(Equal(0))
			Expect(h.Len()).To(Equal(2))
		})
	})
})

var _ = Describe("Turn JSON", func() {
	It("round-trips role, content, timestamp and metadata", func() {
		original := history.Turn{
			Role:      history.RoleAssistant,
			Content:   "Hello",
			Timestamp: time.UnixMilli(1_700_000_000_123).UTC(),
			Metadata:  map[string]string{"model": "llama-3.1-8b-instant"},
		}

		data, err := json.Marshal(original)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"ts":1700000000123`))

		var decoded history.Turn
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.Role).To(Equal(original.Role))
		Expect(decoded.Content).To(Equal(original.Content))
		Expect(decoded.Timestamp.Equal(original.Timestamp)).To(BeTrue())
		Expect(decoded.Metadata).To(Equal(original.Metadata))
	})

	It("rejects unknown roles", func() {
		var decoded history.Turn
		err := json.Unmarshal([]byte(`{"role":"narrator","content":"x","ts":0}`), &decoded)
		Expect(err).To(HaveOccurred())
	})
})
