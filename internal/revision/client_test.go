package revision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/apptrail-sh/revisions/internal/schema"
	"github.com/apptrail-sh/revisions/internal/transport"
)

type recordedCall struct {
	path  string
	query url.Values
}

// fakeTransport records every call and answers with a canned body or error
type fakeTransport struct {
	mu    sync.Mutex
	calls []recordedCall
	body  string
	err   error
}

func (f *fakeTransport) Get(_ context.Context, path string, query url.Values, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{path: path, query: query})
	f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.body), out)
}

var _ = Describe("Client", func() {
	var (
		ctx  context.Context
		fake *fakeTransport
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeTransport{}
	})

	Describe("ListRevisions", func() {
		It("issues one GET to the list path with the query passed through", func() {
			fake.body = `{"items": [], "total": 0}`
			client := NewClient(fake)

			_, err := client.ListRevisions(ctx, "prod", "web", schema.ListQuery{"start": 0, "count": 10})
			Expect(err).NotTo(HaveOccurred())

			Expect(fake.calls).To(HaveLen(1))
			Expect(fake.calls[0].path).To(Equal("/api/v1/clusters/prod/deployments/web/revisions"))
			Expect(fake.calls[0].query).To(Equal(url.Values{"start": {"0"}, "count": {"10"}}))
		})

		It("sends an empty query when none is given", func() {
			fake.body = `{"items": [], "total": 0}`
			client := NewClient(fake)

			_, err := client.ListRevisions(ctx, "prod", "web", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.calls[0].query).To(BeEmpty())
		})

		It("returns the decoded list", func() {
			fake.body = `{"items": [{"uid": "a"}, {"uid": "b"}, {"uid": "c"}], "total": 3}`
			client := NewClient(fake)

			list, err := client.ListRevisions(ctx, "prod", "web", schema.NewListQuery(0, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Total).To(BeEquivalentTo(3))
			Expect(list.Items).To(HaveLen(3))
			Expect(list.Items[2].Uid).To(Equal("c"))
		})

		It("returns the transport error unchanged", func() {
			terr := &transport.TransportError{Method: http.MethodGet, StatusCode: http.StatusBadGateway}
			fake.err = terr
			client := NewClient(fake)

			_, err := client.ListRevisions(ctx, "prod", "web", nil)
			Expect(err).To(BeIdenticalTo(terr))
			Expect(fake.calls).To(HaveLen(1))
		})

		It("fails before sending when the query cannot be encoded", func() {
			client := NewClient(fake)

			_, err := client.ListRevisions(ctx, "prod", "web", schema.ListQuery{"bad": struct{}{}})
			Expect(err).To(HaveOccurred())
			Expect(fake.calls).To(BeEmpty())
		})

		It("does not check the body shape by default", func() {
			fake.body = `{"items": [{"name": "no-uid"}], "total": 0}`
			client := NewClient(fake)

			list, err := client.ListRevisions(ctx, "prod", "web", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Items).To(HaveLen(1))
		})

		It("returns a validation error when validation is enabled", func() {
			fake.body = `{"items": [{"name": "no-uid"}], "total": 1}`
			client := NewClient(fake, WithValidation())

			_, err := client.ListRevisions(ctx, "prod", "web", nil)
			var verr *schema.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("items[0].uid"))
		})
	})

	Describe("FetchRevision", func() {
		It("issues one GET to the revision path without a query", func() {
			fake.body = `{"uid": "rev-123", "status": "active"}`
			client := NewClient(fake)

			rev, err := client.FetchRevision(ctx, "prod", "web", "rev-123")
			Expect(err).NotTo(HaveOccurred())
			Expect(rev.Uid).To(Equal("rev-123"))
			Expect(rev.IsActive()).To(BeTrue())

			Expect(fake.calls).To(HaveLen(1))
			Expect(fake.calls[0].path).To(Equal("/api/v1/clusters/prod/deployments/web/revisions/rev-123"))
			Expect(fake.calls[0].query).To(BeNil())
		})

		It("returns a validation error for a body without uid", func() {
			fake.body = `{"status": "active"}`
			client := NewClient(fake, WithValidation())

			_, err := client.FetchRevision(ctx, "prod", "web", "rev-123")
			var verr *schema.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})
	})

	Describe("paths", func() {
		It("percent-encodes unsafe identifiers as single segments", func() {
			Expect(RevisionsPath("prod/eu", "web app")).
				To(Equal("/api/v1/clusters/prod%2Feu/deployments/web%20app/revisions"))
			Expect(RevisionPath("prod", "web", "rev?1")).
				To(Equal("/api/v1/clusters/prod/deployments/web/revisions/rev%3F1"))
		})

		It("leaves plain identifiers untouched", func() {
			Expect(RevisionPath("prod", "web", "rev-123")).
				To(Equal("/api/v1/clusters/prod/deployments/web/revisions/rev-123"))
		})
	})

	Context("over HTTP", func() {
		var (
			server  *httptest.Server
			calls   atomic.Int32
			lastURL atomic.Value
			status  int
			body    string
			restTr  *transport.RESTTransport
			client  *Client
		)

		BeforeEach(func() {
			calls.Store(0)
			status = http.StatusOK
			body = `{"items": [{"uid": "a"}, {"uid": "b"}, {"uid": "c"}], "total": 3}`

			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				lastURL.Store(r.URL.EscapedPath() + "?" + r.URL.RawQuery)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(body))
			}))

			cfg := transport.DefaultConfig()
			cfg.BaseURL = server.URL
			cfg.Timeout = 2 * time.Second
			var err error
			restTr, err = transport.NewRESTTransport(cfg)
			Expect(err).NotTo(HaveOccurred())
			client = NewClient(restTr)
		})

		AfterEach(func() {
			_ = restTr.Close()
			server.Close()
		})

		It("lists revisions with start and count", func() {
			list, err := client.ListRevisions(ctx, "prod", "web", schema.NewListQuery(0, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Total).To(BeEquivalentTo(3))
			Expect(calls.Load()).To(BeEquivalentTo(1))

			u, err := url.Parse(lastURL.Load().(string))
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Path).To(Equal("/api/v1/clusters/prod/deployments/web/revisions"))
			Expect(u.Query()).To(Equal(url.Values{"start": {"0"}, "count": {"10"}}))
		})

		It("fetches a revision without a query string", func() {
			body = `{"uid": "rev-123"}`

			rev, err := client.FetchRevision(ctx, "prod", "web", "rev-123")
			Expect(err).NotTo(HaveOccurred())
			Expect(rev.Uid).To(Equal("rev-123"))
			Expect(lastURL.Load()).To(Equal("/api/v1/clusters/prod/deployments/web/revisions/rev-123?"))
		})

		It("fails on 404 without retrying", func() {
			status = http.StatusNotFound
			body = `{"error": "revision not found"}`

			_, err := client.FetchRevision(ctx, "prod", "web", "missing")
			Expect(err).To(HaveOccurred())
			Expect(transport.IsNotFound(err)).To(BeTrue())
			Expect(calls.Load()).To(BeEquivalentTo(1))
		})

		It("sends escaped identifiers on the wire", func() {
			body = `{"uid": "r"}`

			_, err := client.FetchRevision(ctx, "prod/eu", "web", "r")
			Expect(err).NotTo(HaveOccurred())
			Expect(lastURL.Load()).To(Equal("/api/v1/clusters/prod%2Feu/deployments/web/revisions/r?"))
		})
	})
})
