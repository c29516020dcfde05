package services

import "testing"

func TestPartialStringField(t *testing.T) {
	cases := []struct {
		buf, key, want string
	}{
		{`{"title": "Graph Th`, "title", "Graph Th"},
		{`{"title":"Graphs","overview":"A graph\nis`, "overview", "A graph\nis"},
		{`{"title":"Graphs","overview":"ends with \`, "overview", "ends with "},
		{`{"title":"café \u`, "title", "café "},
		{`{"title":"He said \"hi\"", "x":1}`, "title", `He said "hi"`},
		{`{"title":"emoji 😀!"}`, "title", "emoji 😀!"},
		{`{"title":"\ud83d\ude00 ok"}`, "title", "😀 ok"},
		{`{"title":"\u00e9t\u00e9"}`, "title", "été"},
		{`{"title"`, "title", ""},
		{`{"overview":"x"}`, "title", ""},
	}
	for i, tc := range cases {
		if got := partialStringField(tc.buf, tc.key); got != tc.want {
			t.Fatalf("case %d: want=%q got=%q", i, tc.want, got)
		}
	}
}
