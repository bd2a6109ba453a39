package firestore

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLenientFieldDecoding(t *testing.T) {
	stamp := time.Date(2024, 2, 3, 4, 5, 6, 0, time.FixedZone("AST", 3*3600))
	data := map[string]any{
		"displayId": "7",
		"version":   float64(4),
		"price":     int64(250),
		"name":      nil,
		"updatedAt": stamp,
		"features":  []any{"Zigbee", nil, 5},
		"products":  []any{map[string]any{"id": "a"}, "garbage"},
	}

	if got := intField(data, "displayId"); got != 7 {
		t.Fatalf("displayId: got %d", got)
	}
	if got := int64Field(data, "version"); got != 4 {
		t.Fatalf("version: got %d", got)
	}
	if got := stringField(data, "price"); got != "250" {
		t.Fatalf("price: got %q", got)
	}
	if got := stringField(data, "name"); got != "" {
		t.Fatalf("nil name: got %q", got)
	}
	if got := intField(data, "missing"); got != 0 {
		t.Fatalf("missing int: got %d", got)
	}
	if got := timeField(data, "updatedAt"); !got.Equal(stamp) || got.Location() != time.UTC {
		t.Fatalf("updatedAt: got %v", got)
	}
	if diff := cmp.Diff([]string{"Zigbee", "5"}, stringSliceField(data, "features")); diff != "" {
		t.Fatalf("features mismatch (-want +got):\n%s", diff)
	}
	if got := stringSliceField(data, "missing"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if got := mapSliceField(data, "products"); len(got) != 1 || got[0]["id"] != "a" {
		t.Fatalf("products: got %v", got)
	}
}

func TestServiceLinkDocumentIDRoundTrip(t *testing.T) {
	if got := ServiceLinkDocumentID(5); got != "service_5" {
		t.Fatalf("unexpected document id %s", got)
	}
	cases := map[string]struct {
		id int
		ok bool
	}{
		"service_5":  {5, true},
		"service_0":  {0, false},
		"service_x":  {0, false},
		"products_5": {0, false},
	}
	for docID, want := range cases {
		id, ok := ParseServiceLinkDocumentID(docID)
		if id != want.id || ok != want.ok {
			t.Errorf("%s: got (%d, %v) want (%d, %v)", docID, id, ok, want.id, want.ok)
		}
	}
}
