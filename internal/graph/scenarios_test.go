package graph_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"

	"github.com/edgecomet/pagegraph/internal/graph"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

const startURL = "https://start.example.com/"

var _ = Describe("Page load correlation", func() {
	var (
		host  *graph.TestHost
		clock *graph.TestClock
		logs  *observer.ObservedLogs
		c     *graph.Collector
		page  *graph.TestPage
	)

	navigate := func(url string) time.Time {
		started := clock.Now()
		c.ClassifyAndRecord(graph.Load{HostType: resource.HostDocument, Location: url, Initiator: page.Document()})
		clock.Advance(20 * time.Millisecond)
		return started
	}

	request := func(url, originalURL string, replace bool) {
		c.OnRequest(graph.Channel{URL: url, OriginalURL: originalURL, Method: "GET", ReplaceHistory: replace, Context: page})
		clock.Advance(20 * time.Millisecond)
	}

	respond := func(url string, status int) {
		c.OnResponse(graph.Channel{URL: url, Status: status, Context: page}, false, false)
		clock.Advance(20 * time.Millisecond)
	}

	commit := func(url, markup string) {
		host.Navigate(page, url, markup)
		c.OnNavigationCommitted(page)
	}

	BeforeEach(func() {
		core, observed := observer.New(zap.DebugLevel)
		logs = observed
		host = graph.NewTestHost()
		clock = graph.NewTestClock()
		c = graph.NewCollector(host, zap.New(core), graph.WithClock(clock.Now))
		page = host.Open("tab-1", startURL, graph.TestPageMarkup)
	})

	Describe("HTTP redirects of the main document", func() {
		var started time.Time

		BeforeEach(func() {
			started = navigate("https://a.example.com/")
			request("https://a.example.com/", "", false)
			respond("https://a.example.com/", 301)
			// Each hop reports the first URL of the chain as its original URL
			request("https://b.example.com/", "https://a.example.com/", false)
			respond("https://b.example.com/", 302)
			request("https://c.example.com/", "https://a.example.com/", false)
			respond("https://c.example.com/", 200)
		})

		It("keeps the chain pending until the final document shows up", func() {
			Expect(c.PendingEntries()).To(Equal(3))
			Expect(c.Table(page)).To(BeNil())
		})

		It("turns every hop into a redirect record", func() {
			commit("https://c.example.com/", graph.TestPageMarkup)
			c.OnLoad(page.Document())

			snap := c.Snapshot(page)
			Expect(snap).NotTo(BeNil())
			Expect(snap.DocumentURL).To(Equal("https://c.example.com/"))
			Expect(snap.Redirects).To(Equal(map[string][]string{
				"https://a.example.com/": {"https://b.example.com/"},
				"https://b.example.com/": {"https://c.example.com/"},
			}))

			first, ok := snap.Find("https://a.example.com/")
			Expect(ok).To(BeTrue())
			Expect(first.ResponseCode).To(Equal(301))
			second, ok := snap.Find("https://b.example.com/")
			Expect(ok).To(BeTrue())
			Expect(second.ResponseCode).To(Equal(302))
			Expect(c.PendingEntries()).To(BeZero())
		})

		It("starts the page load at the first hop", func() {
			commit("https://c.example.com/", graph.TestPageMarkup)
			c.OnLoad(page.Document())

			snap := c.Snapshot(page)
			Expect(snap.EarliestSource).To(Equal("https://a.example.com/"))
			Expect(snap.PageLoadStart).NotTo(BeNil())
			Expect(snap.PageLoadStart.Equal(started)).To(BeTrue())
			Expect(snap.OnLoad).NotTo(BeNil())
		})

		It("forgets the chain when the document arrives after the age bound", func() {
			clock.Advance(3 * time.Minute)
			commit("https://c.example.com/", graph.TestPageMarkup)
			c.OnLoad(page.Document())

			snap := c.Snapshot(page)
			Expect(snap.Redirects).To(BeEmpty())
			Expect(snap.PageLoadStart).To(BeNil())
			Expect(snap.EarliestSource).To(Equal("https://c.example.com/"))
			Expect(c.PendingEntries()).To(BeZero())
		})
	})

	Describe("HTTP redirect followed by a meta refresh", func() {
		BeforeEach(func() {
			navigate("https://a.example.com/")
			request("https://a.example.com/", "", false)
			respond("https://a.example.com/", 302)
			request("https://b.example.com/", "https://a.example.com/", false)
			respond("https://b.example.com/", 200)
			commit("https://b.example.com/", `<html><head><meta http-equiv="refresh" content="0;url=https://c.example.com/"></head></html>`)

			navigate("https://c.example.com/")
			request("https://c.example.com/", "", true)
			respond("https://c.example.com/", 200)
			commit("https://c.example.com/", graph.TestPageMarkup)
		})

		It("links the refresh to the HTTP chain", func() {
			c.ClassifyAndRecord(graph.Load{HostType: resource.HostScript, Location: "https://c.example.com/app.js", Initiator: page.Element("script")})

			Expect(c.EarliestSource(page, "https://c.example.com/")).To(Equal("https://a.example.com/"))
			redirects := c.ComponentsOfType(page, resource.TypeRedirect)
			Expect(redirects).To(HaveKey("https://a.example.com/"))
			Expect(redirects).To(HaveKey("https://b.example.com/"))
			Expect(redirects["https://b.example.com/"].Destinations()).To(ConsistOf("https://c.example.com/"))
		})
	})

	Describe("resources of a page", func() {
		BeforeEach(func() {
			navigate("https://www.example.com/")
			request("https://www.example.com/", "", false)
			respond("https://www.example.com/", 200)
			commit("https://www.example.com/", graph.TestPageMarkup)
		})

		It("records frame subresources in the top-level table", func() {
			iframe := page.Element("iframe")
			hosted := host.AttachFrame(page, iframe, `<html><body><img src="https://ads.example.net/banner.gif"></body></html>`)
			banner := graph.FindElement(hosted, func(n *html.Node) bool { return n.Data == "img" })

			c.ClassifyAndRecord(graph.Load{HostType: resource.HostSubdocument, Location: "https://ads.example.net/frame", Initiator: iframe})
			c.ClassifyAndRecord(graph.Load{HostType: resource.HostImage, Location: "https://ads.example.net/banner.gif", Initiator: banner})
			c.OnLoad(hosted)

			tbl := c.Table(page)
			Expect(tbl[resource.TypeSubdocument]).To(HaveKey("https://ads.example.net/frame"))
			Expect(tbl[resource.TypeImage]).To(HaveKey("https://ads.example.net/banner.gif"))
			Expect(tbl[resource.TypeSubdocument]["https://ads.example.net/frame"].OnLoadTime).NotTo(BeNil())
			Expect(tbl[resource.TypeDocument]["https://www.example.com/"].OnLoadTime).To(BeNil())
		})

		It("follows a moved stylesheet to its final URL", func() {
			link := page.ElementWithAttr("rel", "stylesheet")
			c.ClassifyAndRecord(graph.Load{HostType: resource.HostStylesheet, Location: "https://www.example.com/site.css", Initiator: link})
			request("https://www.example.com/site.css", "", false)
			respond("https://www.example.com/site.css", 301)
			request("https://static.example.com/site.v2.css", "https://www.example.com/site.css", false)
			respond("https://static.example.com/site.v2.css", 200)

			snap := c.Snapshot(page)
			sheets := snap.OfType(resource.TypeStylesheet)
			Expect(sheets).To(HaveLen(1))
			Expect(sheets[0].URL).To(Equal("https://static.example.com/site.v2.css"))
			Expect(sheets[0].ResponseCode).To(Equal(200))
			Expect(sheets[0].RequestMethod).To(Equal("GET"))

			hop, ok := snap.Find("https://www.example.com/site.css")
			Expect(ok).To(BeTrue())
			Expect(hop.Type).To(Equal(resource.TypeRedirect))
			Expect(hop.ResponseCode).To(Equal(301))

			Expect(c.EarliestSource(page, "https://static.example.com/site.v2.css#print")).To(Equal("https://www.example.com/site.css"))
			Expect(logs.FilterMessage("Unable to bind response data").Len()).To(BeZero())
		})
	})
})
