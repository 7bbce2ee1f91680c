// Package httpclient drives many in-flight HTTP/HTTPS transfers over the
// reactor. Each request runs on its own goroutine against stdlib
// net/http; completions are handed back onto the reactor's single
// dispatch goroutine via Reactor.Post, so every callback a caller
// registers still runs serialized and never re-entrant.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/yanrbts/wscan/internal/cookiejar"
	"github.com/yanrbts/wscan/internal/logging"
	"github.com/yanrbts/wscan/internal/reactor"
	"github.com/yanrbts/wscan/internal/tlsglue"
	"github.com/yanrbts/wscan/internal/werr"
)

// Request is one submitted HTTP request.
type Request struct {
	Method  string // GET, POST, PUT, DELETE
	URL     string
	Body    []byte
	Headers http.Header
	Timeout time.Duration

	// MaxBodySize caps the response body read from the wire. Zero means
	// unlimited. The cap is enforced while streaming the response, not
	// after the fact: the transfer aborts as soon as the cumulative read
	// exceeds it, so an oversized response never has to be fully buffered.
	MaxBodySize int64

	OnHeader   func(http.Header)
	OnBody     func([]byte)
	OnComplete func(*Response, error)

	UserData any
}

// Response is what the completion callback receives whenever a response
// arrives: with a nil error on 2xx, and alongside ErrHTTPStatus otherwise.
type Response struct {
	EffectiveURL string
	StatusCode   int
	Body         []byte
	Headers      http.Header
}

// transferState is the per-transfer lifecycle: in flight, cancelled before
// completion, or done.
type transferState int

const (
	stateInFlight transferState = iota
	stateCancelled
	stateDone
)

// transfer is the runtime record of one in-flight request. It is
// referenced from exactly one place: the client's in-flight map, until
// freed.
type transfer struct {
	id      uint64
	req     *Request
	cancel  context.CancelFunc
	session *tlsglue.Session

	mu    sync.Mutex
	state transferState
}

// Client drives transfers through the reactor. One Client owns one
// http.Client (the Go-native "multi-handle") and one in-flight table
// keyed by a synthetic private-pointer analogue (an incrementing id).
type Client struct {
	r       *reactor.Reactor
	log     *logging.Logger
	jar     *cookiejar.Jar
	tlsCtx  *tlsglue.Context
	http    *http.Client
	userAgent string

	mu       sync.Mutex
	nextID   uint64
	inFlight map[uint64]*transfer
}

// New constructs a Client bound to r. tlsCtx and jar may be nil to disable
// TLS session attachment / cookie handling respectively (tests use this).
func New(r *reactor.Reactor, log *logging.Logger, jar *cookiejar.Jar, tlsCtx *tlsglue.Context, userAgent string) *Client {
	return &Client{
		r:         r,
		log:       log,
		jar:       jar,
		tlsCtx:    tlsCtx,
		userAgent: userAgent,
		http: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("httpclient: stopped after 10 redirects")
				}
				return nil
			},
		},
		inFlight: make(map[uint64]*transfer),
	}
}

// Submit creates a Transfer for req and drives it through the reactor,
// returning an id usable with Cancel. Submit failures (malformed URL,
// request construction failure) are reported by the returned error; no
// callback fires in that case.
func (c *Client) Submit(req *Request) (uint64, error) {
	httpReq, err := c.buildRequest(req)
	if err != nil {
		return 0, fmt.Errorf("httpclient: build request: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if req.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, req.Timeout)
		// wrap cancel so both the timeout context and the outer cancel
		// are released together on Cancel/completion.
		outer := cancel
		cancel = func() {
			timeoutCancel()
			outer()
		}
	}
	httpReq = httpReq.WithContext(ctx)

	var sess *tlsglue.Session
	httpTransport := http.DefaultTransport
	if httpReq.URL.Scheme == "https" && c.tlsCtx != nil {
		sess = c.tlsCtx.NewSession(httpReq.URL.Hostname())
		httpTransport = &http.Transport{TLSClientConfig: sess.Config}
		// sess's ownership transfers to this per-request Transport; the
		// transfer record below keeps a reference only until it is dropped.
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	t := &transfer{id: id, req: req, cancel: cancel, session: sess, state: stateInFlight}
	c.inFlight[id] = t
	c.mu.Unlock()

	clientCopy := &http.Client{
		Transport:     httpTransport,
		CheckRedirect: c.http.CheckRedirect,
	}

	// A long-period persistent timer stands in for the transfer's socket
	// interest: it keeps Dispatch from reporting the reactor drained while
	// the transfer is still running, and is freed when its outcome arrives.
	hold := c.r.SubmitTimer(time.Hour, true, func() {})

	go c.runTransfer(clientCopy, httpReq, t, hold)

	return id, nil
}

func (c *Client) buildRequest(req *Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequest(req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	if req.Headers != nil {
		for k, vv := range req.Headers {
			for _, v := range vv {
				httpReq.Header.Add(k, v)
			}
		}
	}
	if httpReq.Header.Get("User-Agent") == "" && c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	if c.jar != nil {
		isHTTPS := httpReq.URL.Scheme == "https"
		path := httpReq.URL.Path
		if path == "" {
			path = "/"
		}
		if header, ok := c.jar.Header(httpReq.URL.Hostname(), path, isHTTPS); ok {
			httpReq.Header.Set("Cookie", header)
		}
	}

	return httpReq, nil
}

// runTransfer performs the blocking round-trip on its own goroutine (the
// stand-in for libcurl's socket-driven state machine) and posts the
// outcome back onto the reactor's dispatch goroutine.
func (c *Client) runTransfer(hc *http.Client, httpReq *http.Request, t *transfer, hold reactor.Handle) {
	resp, err := hc.Do(httpReq)

	c.r.Post(func() {
		c.r.FreeHandle(hold)
		c.finish(t, resp, httpReq, err)
	})
}

// finish runs on the reactor's dispatch goroutine: it stores cookies,
// invokes the user's completion callback (unless cancelled), and removes
// the transfer from the in-flight map.
func (c *Client) finish(t *transfer, resp *http.Response, httpReq *http.Request, err error) {
	t.mu.Lock()
	if t.state == stateCancelled {
		t.mu.Unlock()
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		c.drop(t)
		return
	}
	t.state = stateDone
	t.mu.Unlock()

	defer c.drop(t)

	if err != nil {
		errKind := werr.ErrTransport
		if httpReq.Context().Err() == context.DeadlineExceeded {
			errKind = werr.ErrTimeout
		}
		t.req.OnComplete(nil, fmt.Errorf("%w: %v", errKind, err))
		return
	}
	defer resp.Body.Close()

	if c.jar != nil {
		for _, sc := range resp.Header.Values("Set-Cookie") {
			isHTTPS := httpReq.URL.Scheme == "https"
			if acceptErr := c.jar.Accept(sc, resp.Request.URL.Hostname(), resp.Request.URL.Path, isHTTPS); acceptErr != nil {
				c.log.Warnf("cookie rejected from %s: %v", resp.Request.URL, acceptErr)
			}
		}
	}

	if t.req.OnHeader != nil {
		t.req.OnHeader(resp.Header)
	}

	body, tooLarge, readErr := readBodyBounded(resp.Body, t.req.MaxBodySize, t.req.OnBody)
	if readErr != nil {
		t.req.OnComplete(nil, fmt.Errorf("%w: reading body: %v", werr.ErrTransport, readErr))
		return
	}
	if tooLarge {
		t.req.OnComplete(nil, fmt.Errorf("%w: %s", werr.ErrBodyTooLarge, resp.Request.URL))
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.req.OnComplete(&Response{
			EffectiveURL: resp.Request.URL.String(),
			StatusCode:   resp.StatusCode,
			Body:         body,
			Headers:      resp.Header,
		}, fmt.Errorf("%w: %s", werr.ErrHTTPStatus, resp.Status))
		return
	}

	t.req.OnComplete(&Response{
		EffectiveURL: resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		Body:         body,
		Headers:      resp.Header,
	}, nil)
}

func (c *Client) drop(t *transfer) {
	c.mu.Lock()
	delete(c.inFlight, t.id)
	c.mu.Unlock()
}

// readBodyBounded streams r in fixed-size chunks, invoking onBody once per
// chunk as it arrives, and stops the moment the cumulative read exceeds
// maxBytes (maxBytes <= 0 means unlimited) instead of buffering the whole
// body first. On overflow it returns immediately without reading the rest
// of r; the caller is responsible for closing it.
func readBodyBounded(r io.Reader, maxBytes int64, onBody func([]byte)) (body []byte, tooLarge bool, err error) {
	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	var total int64

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if maxBytes > 0 && total > maxBytes {
				return nil, true, nil
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if onBody != nil {
				onBody(chunk)
			}
			body = append(body, chunk...)
		}
		if readErr != nil {
			if readErr == io.EOF {
				return body, false, nil
			}
			return nil, false, readErr
		}
	}
}

// Cancel marks transfer cancelled so any in-flight or racing completion is
// suppressed, cancels its context so the goroutine blocked in client.Do
// unwinds promptly, and removes it from the in-flight table. Idempotent.
func (c *Client) Cancel(id uint64) {
	c.mu.Lock()
	t, ok := c.inFlight[id]
	c.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	if t.state != stateInFlight {
		t.mu.Unlock()
		return
	}
	t.state = stateCancelled
	t.mu.Unlock()

	t.cancel()
	c.drop(t)
}

// InFlight returns the current count of transfers neither done nor
// cancelled-and-freed.
func (c *Client) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// BuildMultipart builds a multipart/form-data body from named byte fields,
// the nearest Go idiom to the source's libcurl MIME-tree builder for
// POST-with-file-upload requests.
func BuildMultipart(fields map[string][]byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range fields {
		part, err := w.CreateFormField(name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
