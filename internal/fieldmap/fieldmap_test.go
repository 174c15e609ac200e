package fieldmap

import (
	"reflect"
	"testing"
)

func cols(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func TestMapAliasPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{
			name: "contact namespace beats bare key",
			tags: map[string]string{"contact:phone": "+49 1", "phone": "+49 2", "telephone": "+49 3"},
			want: "+49 1",
		},
		{
			name: "bare key beats legacy spelling",
			tags: map[string]string{"phone": "+49 2", "telephone": "+49 3"},
			want: "+49 2",
		},
		{
			name: "legacy spelling used last",
			tags: map[string]string{"telephone": "+49 3"},
			want: "+49 3",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Map(tt.tags, cols("phone"), "")
			if got["phone"] != tt.want {
				t.Fatalf("Map()[phone] = %q, want %q", got["phone"], tt.want)
			}
		})
	}
}

func TestMapNeverEmitsUnprobedColumns(t *testing.T) {
	t.Parallel()

	tags := map[string]string{
		"name":          "Café X",
		"contact:phone": "+49 1 2",
		"website":       "https://x.test",
		"addr:city":     "München",
		"amenity":       "cafe",
	}
	probed := cols("name", "phone")

	got := Map(tags, probed, "")
	for col := range got {
		if !probed[col] {
			t.Fatalf("Map() emitted unprobed column %q", col)
		}
	}
	want := map[string]string{"name": "Café X", "phone": "+49 1 2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Map() = %#v, want %#v", got, want)
	}
}

func TestMapCityRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{"addr:city preferred", map[string]string{"addr:city": "München", "city": "Munich"}, "München"},
		{"bare city accepted", map[string]string{"city": "Munich"}, "Munich"},
		{"absent leaves city unset", map[string]string{"name": "X"}, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Map(tt.tags, cols("city", "name"), "")
			if got["city"] != tt.want {
				t.Fatalf("Map()[city] = %q, want %q", got["city"], tt.want)
			}
		})
	}
}

func TestMapCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tags map[string]string
		want string
	}{
		{"amenity label", map[string]string{"amenity": "cafe"}, "Food"},
		{"tourism label", map[string]string{"tourism": "hotel"}, "Hotel"},
		{"amenity beats tourism", map[string]string{"amenity": "restaurant", "tourism": "hotel"}, "Food"},
		{"unknown value readable", map[string]string{"amenity": "charging_station"}, "charging station"},
		{"bare yes skipped", map[string]string{"tourism": "yes", "amenity": "bank"}, "Services"},
		{"no category tags", map[string]string{"name": "X"}, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Category(tt.tags); got != tt.want {
				t.Fatalf("Category(%#v) = %q, want %q", tt.tags, got, tt.want)
			}
		})
	}
}

func TestMapOverflow(t *testing.T) {
	t.Parallel()

	raw := `"obscure:key"=>"value"`
	tags := map[string]string{"obscure:key": "value"}

	t.Run("stored when nothing matched and column probed", func(t *testing.T) {
		t.Parallel()
		got := Map(tags, cols("name", "raw_tags"), raw)
		want := map[string]string{"raw_tags": raw}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Map() = %#v, want %#v", got, want)
		}
	})

	t.Run("not stored when a field matched", func(t *testing.T) {
		t.Parallel()
		withName := map[string]string{"obscure:key": "value", "name": "X"}
		got := Map(withName, cols("name", "raw_tags"), raw)
		if _, ok := got["raw_tags"]; ok {
			t.Fatalf("Map() stored overflow despite matched fields: %#v", got)
		}
	})

	t.Run("not stored without overflow column", func(t *testing.T) {
		t.Parallel()
		got := Map(tags, cols("name"), raw)
		if len(got) != 0 {
			t.Fatalf("Map() = %#v, want empty", got)
		}
	})

	t.Run("empty tag map still overflows", func(t *testing.T) {
		t.Parallel()
		got := Map(nil, cols("raw_tags"), raw)
		want := map[string]string{"raw_tags": raw}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Map() = %#v, want %#v", got, want)
		}
	})
}

func TestMapTrimsValues(t *testing.T) {
	t.Parallel()

	got := Map(map[string]string{"name": "  Café X  "}, cols("name"), "")
	if got["name"] != "Café X" {
		t.Fatalf("Map()[name] = %q, want trimmed value", got["name"])
	}
}
