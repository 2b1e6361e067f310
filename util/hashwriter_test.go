package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func TestHashWriter(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	goal := xxhash.Sum64String(input)
	var w = new(bytes.Buffer)
	hw := NewHashWriter(w)
	hw.Write([]byte(input[:10]))
	hw.Write([]byte(input[10:]))
	h, ok := hw.Check(goal)
	if !ok {
		t.Fatalf("Got %x, expected %x\n", h, goal)
	}
	if w.String() != input {
		t.Errorf("Got %q, expected %q", w.String(), input)
	}
	if hw.Size() != int64(len(input)) {
		t.Errorf("Got size %d, expected %d", hw.Size(), len(input))
	}
	if _, ok := hw.Check(goal + 1); ok {
		t.Errorf("Check matched a wrong goal")
	}
}

func TestVerifyStreamHash(t *testing.T) {
	var table = []struct {
		input string
		goal  uint64
		ok    bool
	}{
		{"abc", xxhash.Sum64String("abc"), true},
		{"abc", xxhash.Sum64String("abd"), false},
		{"abc", 0, true},
		{"", xxhash.Sum64String(""), true},
	}
	for _, tab := range table {
		ok, err := VerifyStreamHash(strings.NewReader(tab.input), tab.goal)
		if err != nil {
			t.Errorf("%q: %s", tab.input, err)
		}
		if ok != tab.ok {
			t.Errorf("%q: got %v, expected %v", tab.input, ok, tab.ok)
		}
	}
}
