package main

import (
	"github.com/yanrbts/wscan/internal/cookiejar"
	"github.com/yanrbts/wscan/internal/logging"
)

func loadCookieJar(path string, log *logging.Logger) *cookiejar.Jar {
	jar := cookiejar.New()
	if path == "" {
		return jar
	}
	if err := cookiejar.LoadNetscapeFile(jar, path); err != nil {
		log.Warnf("loading cookie file %s: %v", path, err)
	}
	return jar
}

func saveCookieJar(path string, jar *cookiejar.Jar, log *logging.Logger) {
	if path == "" {
		return
	}
	if err := cookiejar.SaveNetscapeFile(jar, path); err != nil {
		log.Warnf("saving cookie file %s: %v", path, err)
	}
}
