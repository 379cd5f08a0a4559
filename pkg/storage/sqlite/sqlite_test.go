package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/storage"
	"github.com/papercomputeco/studio/pkg/storage/sqlite"
	"github.com/papercomputeco/studio/pkg/storage/storagetest"
)

var _ = storagetest.DescribeDriver("sqlite.Driver", func() storage.Driver {
	driver, err := sqlite.NewDriver(context.Background(), ":memory:")
	Expect(err).NotTo(HaveOccurred())
	return driver
})

var _ = Describe("NewDriver", func() {
	It("rejects an empty path", func() {
		_, err := sqlite.NewDriver(context.Background(), "  ")
		Expect(err).To(HaveOccurred())
	})

	It("creates a file database that survives reopening", func() {
		ctx := context.Background()
		dbPath := filepath.Join(GinkgoT().TempDir(), "studio.db")

		driver, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.Put(ctx, "ai:persona", []byte(`"tutor"`))).To(Succeed())
		Expect(driver.Close()).To(Succeed())

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())

		reopened, err := sqlite.NewDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		value, ok, err := reopened.Get(ctx, "ai:persona")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(value)).To(Equal(`"tutor"`))
	})
})
