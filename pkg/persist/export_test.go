package persist_test

import (
	"bytes"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/persist"
)

var _ = Describe("Export", func() {
	It("writes user and assistant turns with ISO timestamps", func() {
		ts := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
		turns := []history.Turn{
			{Role: history.RoleSystem, Content: "persona", Timestamp: ts},
			{Role: history.RoleUser, Content: "Hi", Timestamp: ts},
			{Role: history.RoleAssistant, Content: "Hello", Timestamp: ts.Add(time.Second)},
		}

		var buf bytes.Buffer
		Expect(persist.Export(&buf, turns)).To(Succeed())

		var exported []persist.ExportedTurn
		Expect(json.Unmarshal(buf.Bytes(), &exported)).To(Succeed())
		Expect(exported).To(Equal([]persist.ExportedTurn{
			{Role: history.RoleUser, Content: "Hi", Time: "2025-03-14T09:26:53.589Z"},
			{Role: history.RoleAssistant, Content: "Hello", Time: "2025-03-14T09:26:54.589Z"},
		}))
		Expect(buf.String()).To(ContainSubstring("\n  {"))
	})

	It("writes an empty array for a fresh conversation", func() {
		var buf bytes.Buffer
		Expect(persist.Export(&buf, []history.Turn{history.NewTurn(history.RoleSystem, "s")})).To(Succeed())
		Expect(buf.String()).To(Equal("[]\n"))
	})
})
