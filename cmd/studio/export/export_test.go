package exportcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/persist"
	"github.com/papercomputeco/studio/pkg/storage/sqlite"
)

var _ = Describe("Export Command", func() {
	var (
		ctx    context.Context
		tmpDir string
		dbPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "studio-export-test-*")
		Expect(err).NotTo(HaveOccurred())
		dbPath = filepath.Join(tmpDir, "studio.db")

		driver, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(persist.NewRepository(driver, nil).SaveConversation(ctx, []history.Turn{
			history.NewTurn(history.RoleSystem, "persona"),
			history.NewTurn(history.RoleUser, "Hi"),
			history.NewTurn(history.RoleAssistant, "Hello"),
		})).To(Succeed())
		driver.Close()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("writes the conversation to the named file", func() {
		target := filepath.Join(tmpDir, "out.json")

		var out bytes.Buffer
		cmd := NewExportCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--sqlite", dbPath, target})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Exported 2 turns to " + target))

		raw, err := os.ReadFile(target)
		Expect(err).NotTo(HaveOccurred())

		var exported []persist.ExportedTurn
		Expect(json.Unmarshal(raw, &exported)).To(Succeed())
		Expect(exported).To(HaveLen(2))
		Expect(exported[0].Role).To(Equal(history.RoleUser))
		Expect(exported[0].Content).To(Equal("Hi"))
		Expect(exported[1].Content).To(Equal("Hello"))
		Expect(exported[1].Time).To(MatchRegexp(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`))
	})

	It("writes to stdout for -", func() {
		var out bytes.Buffer
		cmd := NewExportCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--sqlite", dbPath, "-"})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())

		var exported []persist.ExportedTurn
		Expect(json.Unmarshal(out.Bytes(), &exported)).To(Succeed())
		Expect(exported).To(HaveLen(2))
	})

	It("defaults to chat-export.json in the working directory", func() {
		wd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		defer os.Chdir(wd)

		cmd := NewExportCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--sqlite", dbPath})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())

		_, err = os.Stat(filepath.Join(tmpDir, persist.DefaultExportFile))
		Expect(err).NotTo(HaveOccurred())
	})

	It("fails for an unwritable target", func() {
		cmd := NewExportCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--sqlite", dbPath, filepath.Join(tmpDir, "missing", "dir", "out.json")})
		Expect(cmd.ExecuteContext(ctx)).To(HaveOccurred())
	})
})
