package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/yanrbts/wscan/internal/config"
	"github.com/yanrbts/wscan/internal/crawler"
	"github.com/yanrbts/wscan/internal/httpclient"
	"github.com/yanrbts/wscan/internal/linkextract"
	"github.com/yanrbts/wscan/internal/logging"
	"github.com/yanrbts/wscan/internal/reactor"
	"github.com/yanrbts/wscan/internal/tlsglue"
	"github.com/yanrbts/wscan/internal/werr"
)

func run(cfg *config.Config) error {
	log := logging.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.AddStderr(level)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("%w: opening log file: %v", werr.ErrInit, err)
		}
		defer f.Close()
		log.AddSink(f, logrus.TraceLevel)
	}

	if cfg.ExtractScript != "" {
		log.Warnf("extraction script loading is not supported in this build; degrading to built-in extraction")
	}

	jar := loadCookieJar(cfg.CookieFile, log)

	r, err := reactor.New()
	if err != nil {
		return fmt.Errorf("%w: %v", werr.ErrInit, err)
	}
	defer r.Close()

	tlsCtx := tlsglue.NewContext()

	ex, err := linkextract.New()
	if err != nil {
		return fmt.Errorf("%w: %v", werr.ErrInit, err)
	}

	client := httpclient.New(r, log, jar, tlsCtx, cfg.UserAgent)

	cr := crawler.New(r, client, ex, log, crawler.Options{
		Parallelism: cfg.Concurrency,
		MaxDepth:    cfg.MaxDepth,
		MaxPageSize: cfg.MaxPageSize,
		Timeout:     cfg.Timeout,
		OnPage: func(p crawler.Page) {
			log.Infof("200 %s (depth=%d, %d bytes)", p.URL, p.Depth, len(p.Body))
		},
		OnError: func(url string, depth int, err error) {
			log.Warnf("error %s (depth=%d): %v", url, depth, err)
		},
	})

	for _, seed := range cfg.Seeds {
		cr.AddURL(seed, 0)
	}

	cr.Start()

	if _, err := r.Dispatch(); err != nil {
		return fmt.Errorf("%w: %v", werr.ErrInit, err)
	}

	saveCookieJar(cfg.CookieFile, jar, log)

	return nil
}
