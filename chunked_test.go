package forwardcache

import "testing"

func feedAll(t *testing.T, s *chunkScanner, stream string, step int) bool {
	t.Helper()
	done := false
	for i := 0; i < len(stream); i += step {
		end := i + step
		if end > len(stream) {
			end = len(stream)
		}
		var err error
		done, err = s.feed([]byte(stream[i:end]))
		if err != nil {
			t.Fatal(err)
		}
		if done && end < len(stream) {
			t.Fatalf("scanner finished early at byte %d", end)
		}
	}
	return done
}

func TestChunkScannerWholeStream(t *testing.T) {
	stream := "4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	var s chunkScanner
	if !feedAll(t, &s, stream, len(stream)) {
		t.Fatal("scanner did not finish")
	}
}

func TestChunkScannerByteAtATime(t *testing.T) {
	stream := "4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	var s chunkScanner
	if !feedAll(t, &s, stream, 1) {
		t.Fatal("scanner did not finish")
	}
}

// A chunk size that merely starts with '0' must not end the stream.
func TestChunkScannerSizeStartingWithZero(t *testing.T) {
	stream := "0a\r\n0123456789\r\n0\r\n\r\n"
	var s chunkScanner
	if !feedAll(t, &s, stream, 4) {
		t.Fatal("scanner did not finish")
	}
}

func TestChunkScannerChunkExtension(t *testing.T) {
	stream := "3;name=value\r\nabc\r\n0\r\n\r\n"
	var s chunkScanner
	if !feedAll(t, &s, stream, len(stream)) {
		t.Fatal("scanner did not finish")
	}
}

func TestChunkScannerTrailers(t *testing.T) {
	stream := "3\r\nabc\r\n0\r\nExpires: never\r\n\r\n"
	var s chunkScanner
	if !feedAll(t, &s, stream, 2) {
		t.Fatal("scanner did not finish")
	}
}

func TestChunkScannerDataContainingZeroLine(t *testing.T) {
	// body bytes that look like a terminating chunk must be skipped as data
	stream := "7\r\n0\r\n\r\nxy\r\n0\r\n\r\n"
	var s chunkScanner
	if !feedAll(t, &s, stream, 3) {
		t.Fatal("scanner did not finish")
	}
}

func TestChunkScannerBadSizeLine(t *testing.T) {
	var s chunkScanner
	if _, err := s.feed([]byte("zz\r\n")); err == nil {
		t.Fatal("no error for invalid chunk size")
	}
}
