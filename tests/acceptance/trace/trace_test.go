package acceptance_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgecomet/pagegraph/internal/browser"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
	"github.com/edgecomet/pagegraph/internal/har"
	"github.com/edgecomet/pagegraph/pkg/types"
)

var _ = Describe("Page trace", func() {
	Context("when the entry URL redirects", func() {
		var res *browser.Result

		BeforeEach(func() {
			var err error
			res, err = testEnv.Trace("/start")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Snapshot).NotTo(BeNil())
		})

		It("records the final document and resolves the earliest source", func() {
			Expect(res.Snapshot.DocumentURL).To(Equal(testEnv.URL("/page")))
			Expect(res.Snapshot.EarliestSource).To(Equal(testEnv.URL("/start")))
			Expect(res.Snapshot.PageLoadStart).NotTo(BeNil())
			Expect(res.Snapshot.OnLoad).NotTo(BeNil())
		})

		It("records every hop of the chain", func() {
			var sources []string
			for _, v := range res.Snapshot.OfType(resource.TypeRedirect) {
				sources = append(sources, v.URL)
			}
			Expect(sources).To(ContainElements(testEnv.URL("/start"), testEnv.URL("/hop")))

			start, ok := res.Snapshot.Find(testEnv.URL("/start"))
			Expect(ok).To(BeTrue())
			Expect(start.Destinations).To(ContainElement(testEnv.URL("/hop")))
			Expect(start.ResponseCode).To(Equal(301))
		})

		It("classifies subresources", func() {
			css, ok := res.Snapshot.Find(testEnv.URL("/style.css"))
			Expect(ok).To(BeTrue())
			Expect(css.Type).To(Equal(resource.TypeStylesheet))

			js, ok := res.Snapshot.Find(testEnv.URL("/app.js"))
			Expect(ok).To(BeTrue())
			Expect(js.Type).To(Equal(resource.TypeScript))
			Expect(js.ResponseCode).To(Equal(200))

			logo, ok := res.Snapshot.Find(testEnv.URL("/logo.gif"))
			Expect(ok).To(BeTrue())
			Expect(logo.Type).To(Equal(resource.TypeImage))
			Expect(logo.LiveElements).To(BeNumerically(">=", 1))

			Expect(res.Snapshot.OfType(resource.TypeSubdocument)).NotTo(BeEmpty())
		})

		It("exports and stores a HAR", func() {
			h := har.FromSnapshot(res.Snapshot, res.TraceID, res.BrowserVersion)
			Expect(h.Log.Entries).NotTo(BeEmpty())
			Expect(h.Metadata.EarliestSource).To(Equal(testEnv.URL("/start")))

			data, err := json.Marshal(h)
			Expect(err).NotTo(HaveOccurred())

			ctx := context.Background()
			Expect(testEnv.Store.Put(ctx, testEnv.URL("/start"), res.TraceID, types.OutputHAR, data)).To(Succeed())

			stored, err := testEnv.Store.Latest(ctx, testEnv.URL("/start"))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).NotTo(BeNil())
			Expect(stored.TraceID).To(Equal(res.TraceID))
			Expect(stored.Data).To(MatchJSON(data))
		})
	})

	Context("when the page refreshes through a meta tag", func() {
		It("links the refreshed document to the page that requested it", func() {
			res, err := testEnv.Trace("/refresh")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Snapshot.DocumentURL).To(Equal(testEnv.URL("/page")))
			Expect(res.Snapshot.EarliestSource).To(Equal(testEnv.URL("/refresh")))
		})
	})

	Context("when the target is private and not allowed", func() {
		It("refuses to trace", func() {
			original := testEnv.Config.Chrome.AllowPrivate
			testEnv.Config.Chrome.AllowPrivate = false
			defer func() { testEnv.Config.Chrome.AllowPrivate = original }()

			_, err := testEnv.Trace("/page")
			Expect(err).To(MatchError(browser.ErrInvalidTarget))
		})
	})
})
