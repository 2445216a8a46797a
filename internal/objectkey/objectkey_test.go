package objectkey

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		key      string
		root     string
		stage    string
		sourceID string
		filename string
	}{
		{"Bronze/Delivered/SRC1/data.json", "Bronze", "Delivered", "SRC1", "data.json"},
		{"DataLakeV1/ArrivalHub/Delivered/Jenji/tx.json", "DataLakeV1/ArrivalHub", "Delivered", "Jenji", "tx.json"},
		{"a//b/c", "a", "", "b", "c"},
		{"/x/y/z", "", "x", "y", "z"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			k, err := Parse(tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if k.RootPrefix != tt.root || k.Stage != tt.stage || k.SourceID != tt.sourceID || k.Filename != tt.filename {
				t.Errorf("Parse(%q) = %+v", tt.key, k)
			}
			rebuilt := k.RootPrefix + "/" + k.Stage + "/" + k.SourceID + "/" + k.Filename
			if rebuilt != tt.key {
				t.Errorf("rebuilt key %q != original %q", rebuilt, tt.key)
			}
		})
	}
}

func TestParse_InvalidPathDepth(t *testing.T) {
	for _, key := range []string{"", "data.json", "A/data.json", "A/B/data.json"} {
		_, err := Parse(key)
		if !errors.Is(err, ErrInvalidPathDepth) {
			t.Errorf("Parse(%q): expected ErrInvalidPathDepth, got %v", key, err)
		}
	}
}

func TestJoin(t *testing.T) {
	if got := Join("Bronze", "Rejected", "", "x_data.json"); got != "Bronze/Rejected/x_data.json" {
		t.Errorf("Join with empty part = %q", got)
	}
	if got := Join("Bronze", "PendingSelection", "SRC1", "data.json"); got != "Bronze/PendingSelection/SRC1/data.json" {
		t.Errorf("Join = %q", got)
	}
}

func fixedNamer() Namer {
	return Namer{
		Now:   func() time.Time { return time.Date(2023, 5, 3, 8, 54, 17, 0, time.UTC) },
		NewID: func() string { return "abcd-1234" },
	}
}

func TestPrefixName(t *testing.T) {
	n := fixedNamer()
	tests := []struct {
		name string
		opts PrefixOptions
		want string
	}{
		{"none", PrefixOptions{}, "name.txt"},
		{"date", PrefixOptions{Date: true}, "20230503_name.txt"},
		{"time", PrefixOptions{Time: true}, "085417_name.txt"},
		{"uuid", PrefixOptions{UUID: true}, "abcd-1234_name.txt"},
		{"all with sep", PrefixOptions{Date: true, Time: true, UUID: true, Sep: "#"}, "20230503#085417#abcd-1234#name.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.PrefixName("name.txt", tt.opts); got != tt.want {
				t.Errorf("PrefixName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrefixName_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	n := Namer{
		Now:   func() time.Time { return time.Date(2023, 5, 3, 1, 0, 0, 0, loc) },
		NewID: func() string { return "" },
	}
	if got := n.PrefixName("f", PrefixOptions{Date: true, Time: true}); got != "20230502_230000_f" {
		t.Errorf("expected UTC conversion, got %q", got)
	}
}

func TestDefaultNamer_RandomIDs(t *testing.T) {
	a := PrefixName("f", PrefixOptions{UUID: true})
	b := PrefixName("f", PrefixOptions{UUID: true})
	if a == b {
		t.Errorf("expected distinct random prefixes, got %q twice", a)
	}
	if !strings.HasSuffix(a, "_f") || len(a) != 36+2 {
		t.Errorf("unexpected uuid-prefixed name %q", a)
	}
}
