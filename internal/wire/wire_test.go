package wire

import (
	"bytes"
	"testing"
	"time"
)

func mustDecodeEntry(t *testing.T, b []byte) (time.Time, []byte) {
	t.Helper()
	exp, p, err := DecodeEntry(b)
	if err != nil {
		t.Fatalf("DecodeEntry error: %v", err)
	}
	return exp, p
}

func TestEntryRTWithAndWithoutExpiry(t *testing.T) {
	at := time.Unix(1_700_000_000, 123)
	cases := []struct {
		exp     time.Time
		payload []byte
	}{
		{time.Time{}, nil},
		{time.Time{}, []byte("hello")},
		{at, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		enc := EncodeEntry(tc.exp, tc.payload)
		exp, p := mustDecodeEntry(t, enc)
		if !exp.Equal(tc.exp) {
			t.Fatalf("expiry mismatch: got %v want %v", exp, tc.exp)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
	}
}

func TestEntryRejectsTrailingBytes(t *testing.T) {
	enc := EncodeEntry(time.Time{}, []byte("x"))
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, _, err := DecodeEntry(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestEntryCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeEntry(time.Time{}, []byte("abc"))

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := DecodeEntry(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := DecodeEntry(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// wrong kind
	badKind := append([]byte(nil), enc...)
	badKind[5] = kindEntry + 1
	if _, _, err := DecodeEntry(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// truncated payload
	if _, _, err := DecodeEntry(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated payload")
	}

	// legacy value written without a frame
	if _, _, err := DecodeEntry([]byte("plain")); err == nil {
		t.Fatalf("expected error on unframed bytes")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	if Expired(time.Time{}, now) {
		t.Fatalf("zero expiry must never expire")
	}
	if !Expired(now, now) {
		t.Fatalf("entry expiring now must be dead")
	}
	if Expired(now.Add(time.Second), now) {
		t.Fatalf("future expiry must be alive")
	}
}
