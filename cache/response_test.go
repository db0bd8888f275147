package cache

import (
	"testing"
	"time"
)

func TestParseResponseStatusLine(t *testing.T) {
	header := []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n")
	res, err := ParseResponse("http://o/x", header, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != 404 {
		t.Fatalf("status code is %d", res.StatusCode)
	}
	if res.StartLine != "HTTP/1.1 404 Not Found" {
		t.Fatalf("start line is %q", res.StartLine)
	}
}

func TestParseResponseMalformedStatusLine(t *testing.T) {
	if _, err := ParseResponse("http://o/x", []byte("garbage\r\n\r\n"), nil, time.Now()); err == nil {
		t.Fatal("no error for malformed status line")
	}
	if _, err := ParseResponse("http://o/x", []byte("HTTP/1.1 abc OK\r\n\r\n"), nil, time.Now()); err == nil {
		t.Fatal("no error for non-numeric status code")
	}
}

func TestExpirationFromMaxAge(t *testing.T) {
	received := time.Now()
	header := []byte("HTTP/1.1 200 OK\r\nCache-Control: max-age=3600\r\n\r\n")
	res, err := ParseResponse("http://o/x", header, nil, received)
	if err != nil {
		t.Fatal(err)
	}
	if want := received.Add(time.Hour); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expires at %v, want %v", res.ExpiresAt, want)
	}
}

func TestExpirationWithoutMaxAge(t *testing.T) {
	received := time.Now()
	header := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\n")
	res, err := ParseResponse("http://o/x", header, nil, received)
	if err != nil {
		t.Fatal(err)
	}
	// no max-age means stale on arrival
	if !res.ExpiresAt.Equal(received) {
		t.Fatalf("expires at %v, want %v", res.ExpiresAt, received)
	}
}

func TestNoStoreNoCache(t *testing.T) {
	tests := []struct {
		cacheControl string
		noStore      bool
		noCache      bool
	}{
		{"no-store", true, false},
		{"no-cache", false, true},
		{"no-cache, no-store", true, true},
		{"max-age=60", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		header := []byte("HTTP/1.1 200 OK\r\nCache-Control: " + tt.cacheControl + "\r\n\r\n")
		res, err := ParseResponse("http://o/x", header, nil, time.Now())
		if err != nil {
			t.Fatal(err)
		}
		if res.NoStore != tt.noStore || res.NoCache != tt.noCache {
			t.Fatalf("%q: no-store=%v no-cache=%v", tt.cacheControl, res.NoStore, res.NoCache)
		}
	}
}

func TestETagAndLastModified(t *testing.T) {
	header := []byte("HTTP/1.1 200 OK\r\n" +
		"ETag: \"v1\"\r\n" +
		"Last-Modified: Sun, 06 Nov 1994 08:49:37 GMT\r\n\r\n")
	res, err := ParseResponse("http://o/x", header, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.ETag != "\"v1\"" {
		t.Fatalf("etag is %q", res.ETag)
	}
	want := time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC)
	if !res.LastModified.Equal(want) {
		t.Fatalf("last modified is %v", res.LastModified)
	}
}

func TestUnparseableLastModified(t *testing.T) {
	header := []byte("HTTP/1.1 200 OK\r\nLast-Modified: next tuesday\r\n\r\n")
	res, err := ParseResponse("http://o/x", header, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !res.LastModified.IsZero() {
		t.Fatalf("last modified is %v, want zero", res.LastModified)
	}
}

func TestDuplicateHeaderLastWins(t *testing.T) {
	header := []byte("HTTP/1.1 200 OK\r\n" +
		"X-Test: first\r\n" +
		"X-Test: second\r\n\r\n")
	res, err := ParseResponse("http://o/x", header, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fields["X-Test"] != "second" {
		t.Fatalf("field is %q", res.Fields["X-Test"])
	}
}

func TestFieldNamesAreCaseInsensitive(t *testing.T) {
	header := []byte("HTTP/1.1 200 OK\r\ncache-control: max-age=5\r\n\r\n")
	res, err := ParseResponse("http://o/x", header, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fields["Cache-Control"] != "max-age=5" {
		t.Fatalf("fields are %v", res.Fields)
	}
}

func TestBodyConcatenatesSegments(t *testing.T) {
	header := []byte("HTTP/1.1 200 OK\r\nContent-Length: 6\r\n\r\n")
	segments := [][]byte{[]byte("abc"), []byte("def")}
	res, err := ParseResponse("http://o/x", header, segments, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Body()) != "abcdef" {
		t.Fatalf("body is %q", res.Body())
	}
}

func TestParseCacheControl(t *testing.T) {
	cc := ParseCacheControl("no-cache, max-age=60,private")
	if _, ok := cc.Get("no-cache"); !ok {
		t.Fatal("no-cache directive missing")
	}
	if val, ok := cc.Get("max-age"); !ok || val != "60" {
		t.Fatalf("max-age is %q", val)
	}
	if _, ok := cc.Get("private"); !ok {
		t.Fatal("private directive missing")
	}
	if _, ok := cc.Get("no-store"); ok {
		t.Fatal("unexpected no-store directive")
	}
}
