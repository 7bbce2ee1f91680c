// Package crawler implements the frontier queue, visited-URL set,
// dispatcher, link-extraction pipeline, and URL resolver that together
// enforce the crawl's concurrency limit and termination.
package crawler

import (
	"net/http"
	"time"

	"github.com/yanrbts/wscan/internal/httpclient"
	"github.com/yanrbts/wscan/internal/linkextract"
	"github.com/yanrbts/wscan/internal/logging"
	"github.com/yanrbts/wscan/internal/reactor"
	"github.com/yanrbts/wscan/internal/urlutil"
)

// Page is delivered to the page callback on a successful (2xx) fetch.
type Page struct {
	URL         string
	Depth       int
	StatusCode  int
	ContentType string
	Body        []byte
}

// PageCallback is invoked exactly once per successfully fetched URL.
type PageCallback func(Page)

// ErrorCallback is invoked exactly once per URL whose fetch failed.
type ErrorCallback func(url string, depth int, err error)

// Options configures a Crawler.
type Options struct {
	Parallelism int
	MaxDepth    int
	MaxPageSize int64
	Timeout     time.Duration

	OnPage  PageCallback
	OnError ErrorCallback
}

type frontierNode struct {
	url   string
	depth int
}

// Crawler owns the frontier FIFO, the visited set, and the dispatch loop.
// Every field below is touched only from the reactor's dispatch goroutine,
// so none of them need locking.
type Crawler struct {
	r      *reactor.Reactor
	client *httpclient.Client
	ex     *linkextract.Extractor
	log    *logging.Logger
	opts   Options

	frontier []frontierNode
	visited  map[string]struct{}
	inFlight int
	stopped  bool

	dispatchTimer reactor.Handle
}

// New constructs a Crawler. r, client, and ex must already be usable;
// the Crawler does not own their lifecycles beyond Stop()-ping the reactor.
func New(r *reactor.Reactor, client *httpclient.Client, ex *linkextract.Extractor, log *logging.Logger, opts Options) *Crawler {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Crawler{
		r:       r,
		client:  client,
		ex:      ex,
		log:     log,
		opts:    opts,
		visited: make(map[string]struct{}),
	}
}

// AddURL enqueues rawURL at the given depth. Null/empty URLs are rejected;
// already-visited URLs are silently dropped (visited is checked again at
// dispatch time, but checking here avoids growing the frontier with
// certain duplicates).
func (cr *Crawler) AddURL(rawURL string, depth int) {
	if rawURL == "" {
		return
	}
	canon, ok := urlutil.CanonicalURL(rawURL)
	if !ok {
		return
	}
	if _, seen := cr.visited[canon]; seen {
		return
	}
	cr.frontier = append(cr.frontier, frontierNode{url: canon, depth: depth})
}

// Start seeds the dispatch timer and runs the first dispatch round. Call
// once before Reactor.Dispatch.
func (cr *Crawler) Start() {
	cr.dispatchTimer = cr.r.SubmitTimer(50*time.Millisecond, true, cr.dispatchTick)
	cr.dispatch()
}

func (cr *Crawler) dispatchTick() {
	cr.dispatch()
}

// dispatch pops frontier entries and submits them to the HTTP client while
// capacity and availability allow.
func (cr *Crawler) dispatch() {
	for cr.inFlight < cr.opts.Parallelism && len(cr.frontier) > 0 && !cr.stopped {
		node := cr.frontier[0]
		cr.frontier = cr.frontier[1:]

		if _, seen := cr.visited[node.url]; seen {
			continue
		}
		if cr.opts.MaxDepth > 0 && node.depth > cr.opts.MaxDepth {
			continue
		}
		cr.visited[node.url] = struct{}{}

		if err := cr.submit(node); err != nil {
			cr.log.Warnf("submit failed for %s: %v", node.url, err)
			continue
		}
		cr.inFlight++
	}

	cr.checkTermination()
}

// accumulator reassembles the chunks httpclient delivers via OnBody into
// one contiguous body for link extraction and the page callback. The
// MaxPageSize cap itself is enforced upstream, in httpclient's bounded
// body reader (Request.MaxBodySize), so by the time a chunk reaches add
// the transfer is already known to fit.
type accumulator struct {
	body []byte
}

func (a *accumulator) add(chunk []byte) {
	a.body = append(a.body, chunk...)
}

func (cr *Crawler) submit(node frontierNode) error {
	acc := &accumulator{}
	contentType := ""

	req := &httpclient.Request{
		Method:      http.MethodGet,
		URL:         node.url,
		Timeout:     cr.opts.Timeout,
		MaxBodySize: cr.opts.MaxPageSize,
		OnHeader: func(h http.Header) {
			contentType = h.Get("Content-Type")
		},
		OnBody: acc.add,
	}
	req.OnComplete = func(resp *httpclient.Response, err error) {
		cr.onComplete(node, resp, acc, contentType, err)
	}

	_, err := cr.client.Submit(req)
	return err
}

// onComplete is the HTTP client's completion callback, always invoked on
// the reactor's dispatch goroutine.
func (cr *Crawler) onComplete(node frontierNode, resp *httpclient.Response, acc *accumulator, contentType string, err error) {
	cr.inFlight--

	if err != nil || resp == nil {
		if cr.opts.OnError != nil {
			cr.opts.OnError(node.url, node.depth, err)
		}
		cr.dispatch()
		return
	}

	if cr.opts.OnPage != nil {
		cr.opts.OnPage(Page{
			URL:         resp.EffectiveURL,
			Depth:       node.depth,
			StatusCode:  resp.StatusCode,
			ContentType: contentType,
			Body:        acc.body,
		})
	}

	for _, candidate := range cr.ex.Extract(acc.body, contentType, resp.EffectiveURL) {
		if abs, ok := urlutil.Resolve(resp.EffectiveURL, candidate); ok {
			cr.AddURL(abs, node.depth+1)
		}
	}

	cr.dispatch()
}

// checkTermination stops the reactor once there is nothing left to do.
func (cr *Crawler) checkTermination() {
	if cr.inFlight == 0 && len(cr.frontier) == 0 {
		cr.stopped = true
		if cr.dispatchTimer != (reactor.Handle{}) {
			cr.r.FreeHandle(cr.dispatchTimer)
		}
		cr.r.Stop()
	}
}

// InFlight returns the current in-flight transfer count, for tests
// asserting the bounded-concurrency property.
func (cr *Crawler) InFlight() int { return cr.inFlight }

// FrontierLen returns the current frontier length, for tests.
func (cr *Crawler) FrontierLen() int { return len(cr.frontier) }
