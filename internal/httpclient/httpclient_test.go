package httpclient

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanrbts/wscan/internal/cookiejar"
	"github.com/yanrbts/wscan/internal/logging"
	"github.com/yanrbts/wscan/internal/reactor"
	"github.com/yanrbts/wscan/internal/werr"
)

func newTestClient(t *testing.T, jar *cookiejar.Jar) (*Client, *reactor.Reactor) {
	t.Helper()
	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	log := logging.New()
	c := New(r, log, jar, nil, "wscan-test/1.0")
	return c, r
}

func TestSubmit_SuccessDeliversBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c, r := newTestClient(t, nil)

	var gotBody []byte
	var gotStatus int

	_, err := c.Submit(&Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 2 * time.Second,
		OnBody:  func(b []byte) { gotBody = append(gotBody, b...) },
		OnComplete: func(resp *Response, err error) {
			require.NoError(t, err)
			gotStatus = resp.StatusCode
			r.Stop()
		},
	})
	require.NoError(t, err)

	// Safety net in case the completion callback never fires.
	r.SubmitTimer(5*time.Second, false, func() { r.Stop() })

	_, err = r.Dispatch()
	require.NoError(t, err)

	assert.Equal(t, "hello", string(gotBody))
	assert.Equal(t, http.StatusOK, gotStatus)
}

func TestSubmit_NonHTTPStatusIsErrorCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, r := newTestClient(t, nil)

	done := make(chan struct{})
	var gotErr error

	_, err := c.Submit(&Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 2 * time.Second,
		OnComplete: func(resp *Response, err error) {
			gotErr = err
			close(done)
		},
	})
	require.NoError(t, err)

	go func() { <-done; r.Stop() }()
	_, err = r.Dispatch()
	require.NoError(t, err)

	assert.Error(t, gotErr)
}

func TestSubmit_RedirectDeliversEffectiveURL(t *testing.T) {
	var targetURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, targetURL, http.StatusMovedPermanently)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	targetURL = srv.URL + "/end"

	c, r := newTestClient(t, nil)

	done := make(chan struct{})
	var effective string

	_, err := c.Submit(&Request{
		Method:  http.MethodGet,
		URL:     srv.URL + "/start",
		Timeout: 2 * time.Second,
		OnComplete: func(resp *Response, err error) {
			require.NoError(t, err)
			effective = resp.EffectiveURL
			close(done)
		},
	})
	require.NoError(t, err)

	go func() { <-done; r.Stop() }()
	_, err = r.Dispatch()
	require.NoError(t, err)

	assert.Equal(t, targetURL, effective)
}

func TestSubmit_CancelSuppressesCallback(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte("late"))
	}))
	defer srv.Close()
	defer close(block)

	c, r := newTestClient(t, nil)

	called := false
	id, err := c.Submit(&Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 5 * time.Second,
		OnComplete: func(resp *Response, err error) {
			called = true
		},
	})
	require.NoError(t, err)

	r.SubmitTimer(20*time.Millisecond, false, func() {
		c.Cancel(id)
		r.SubmitTimer(50*time.Millisecond, false, func() { r.Stop() })
	})

	_, err = r.Dispatch()
	require.NoError(t, err)

	assert.False(t, called, "completion callback must not fire for a cancelled transfer")
	assert.Equal(t, 0, c.InFlight())
}

func TestSubmit_CookieHeaderSentOnRequest(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	jar := cookiejar.New()
	hostOnly, _, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	require.NoError(t, jar.Accept("sess=abc; Domain="+hostOnly, hostOnly, "/", false))

	c, r := newTestClient(t, jar)

	done := make(chan struct{})
	_, err = c.Submit(&Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 2 * time.Second,
		OnComplete: func(resp *Response, err error) {
			require.NoError(t, err)
			close(done)
		},
	})
	require.NoError(t, err)

	go func() { <-done; r.Stop() }()
	_, err = r.Dispatch()
	require.NoError(t, err)

	assert.Equal(t, "sess=abc", gotCookie)
}

func TestSubmit_MaxBodySizeAbortsBeforeFullyBuffering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1<<20)) // 1 MiB, far past the cap below
	}))
	defer srv.Close()

	c, r := newTestClient(t, nil)

	done := make(chan struct{})
	var gotResp *Response
	var gotErr error
	var onBodyCalls int

	_, err := c.Submit(&Request{
		Method:      http.MethodGet,
		URL:         srv.URL,
		Timeout:     2 * time.Second,
		MaxBodySize: 64,
		OnBody:      func(b []byte) { onBodyCalls++ },
		OnComplete: func(resp *Response, err error) {
			gotResp = resp
			gotErr = err
			close(done)
		},
	})
	require.NoError(t, err)

	go func() { <-done; r.Stop() }()
	_, err = r.Dispatch()
	require.NoError(t, err)

	assert.Nil(t, gotResp)
	require.Error(t, gotErr)
	assert.True(t, errors.Is(gotErr, werr.ErrBodyTooLarge))
	assert.Equal(t, 0, onBodyCalls, "OnBody must not be invoked with a chunk that pushes past the cap")
}

func TestSubmit_StreamsBodyInMultipleChunks(t *testing.T) {
	const chunkSize = 32 * 1024
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			w.Write(bytes.Repeat([]byte{'a'}, chunkSize))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	c, r := newTestClient(t, nil)

	done := make(chan struct{})
	var onBodyCalls int
	var total int

	_, err := c.Submit(&Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 2 * time.Second,
		OnBody: func(b []byte) {
			onBodyCalls++
			total += len(b)
		},
		OnComplete: func(resp *Response, err error) {
			require.NoError(t, err)
			close(done)
		},
	})
	require.NoError(t, err)

	go func() { <-done; r.Stop() }()
	_, err = r.Dispatch()
	require.NoError(t, err)

	assert.Greater(t, onBodyCalls, 1, "a large response should be delivered across more than one OnBody call")
	assert.Equal(t, 3*chunkSize, total)
}

func TestSubmit_POSTWithMultipartBody(t *testing.T) {
	body, contentType, err := BuildMultipart(map[string][]byte{
		"username": []byte("wscan"),
		"payload":  []byte("abc123"),
	})
	require.NoError(t, err)

	var gotMethod string
	var gotFields map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFields = map[string][]string(r.MultipartForm.Value)
		w.Write([]byte("stored"))
	}))
	defer srv.Close()

	c, r := newTestClient(t, nil)

	done := make(chan struct{})
	var gotBody []byte

	_, err = c.Submit(&Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Body:    body,
		Headers: http.Header{"Content-Type": []string{contentType}},
		Timeout: 2 * time.Second,
		OnBody:  func(b []byte) { gotBody = append(gotBody, b...) },
		OnComplete: func(resp *Response, err error) {
			require.NoError(t, err)
			close(done)
		},
	})
	require.NoError(t, err)

	go func() { <-done; r.Stop() }()
	_, err = r.Dispatch()
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, []string{"wscan"}, gotFields["username"])
	assert.Equal(t, []string{"abc123"}, gotFields["payload"])
	assert.Equal(t, "stored", string(gotBody))
}
