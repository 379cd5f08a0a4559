// Package storagetest holds the ginkgo specs every storage.Driver must pass.
package storagetest

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/storage"
)

// DescribeDriver registers the shared driver tests. newDriver is called before
// every test and the driver it returns is closed afterwards.
func DescribeDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name, func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		Describe("Get", func() {
			It("reports a missing key without error", func() {
				value, ok, err := driver.Get(ctx, "missing")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
				Expect(value).To(BeNil())
			})
		})

		Describe("Put and Get", func() {
			It("stores and retrieves a value", func() {
				Expect(driver.Put(ctx, "ai:model", []byte(`"llama"`))).To(Succeed())

				value, ok, err := driver.Get(ctx, "ai:model")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(string(value)).To(Equal(`"llama"`))
			})

			It("replaces an existing value", func() {
				Expect(driver.Put(ctx, "k", []byte("one"))).To(Succeed())
				Expect(driver.Put(ctx, "k", []byte("two"))).To(Succeed())

				value, _, err := driver.Get(ctx, "k")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(value)).To(Equal("two"))
			})

			It("stores an empty value as present", func() {
				Expect(driver.Put(ctx, "empty", nil)).To(Succeed())

				value, ok, err := driver.Get(ctx, "empty")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(value).To(BeEmpty())
			})

			It("does not alias the caller's buffer", func() {
				buf := []byte("original")
				Expect(driver.Put(ctx, "k", buf)).To(Succeed())
				copy(buf, "mutated!")

				value, _, err := driver.Get(ctx, "k")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(value)).To(Equal("original"))
			})
		})

		Describe("Delete", func() {
			It("removes a key", func() {
				Expect(driver.Put(ctx, "k", []byte("v"))).To(Succeed())
				Expect(driver.Delete(ctx, "k")).To(Succeed())

				_, ok, err := driver.Get(ctx, "k")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})

			It("ignores a missing key", func() {
				Expect(driver.Delete(ctx, "missing")).To(Succeed())
			})
		})

		Describe("Keys", func() {
			BeforeEach(func() {
				for _, key := range []string{"ai:theme", "ai:messages", "other", "ai:model"} {
					Expect(driver.Put(ctx, key, []byte("x"))).To(Succeed())
				}
			})

			It("lists keys with a prefix in sorted order", func() {
				keys, err := driver.Keys(ctx, "ai:")
				Expect(err).NotTo(HaveOccurred())
				Expect(keys).To(Equal([]string{"ai:messages", "ai:model", "ai:theme"}))
			})

			It("lists every key for an empty prefix", func() {
				keys, err := driver.Keys(ctx, "")
				Expect(err).NotTo(HaveOccurred())
				Expect(keys).To(HaveLen(4))
			})

			It("returns nothing for an unknown prefix", func() {
				keys, err := driver.Keys(ctx, "nope:")
				Expect(err).NotTo(HaveOccurred())
				Expect(keys).To(BeEmpty())
			})
		})

		Describe("concurrent access", func() {
			It("serializes concurrent writers", func() {
				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						Expect(driver.Put(ctx, "shared", []byte("v"))).To(Succeed())
					}()
				}
				wg.Wait()

				keys, err := driver.Keys(ctx, "shared")
				Expect(err).NotTo(HaveOccurred())
				Expect(keys).To(Equal([]string{"shared"}))
			})
		})
	})
}
