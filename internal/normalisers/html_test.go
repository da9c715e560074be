package normalisers

import "testing"

func TestHTMLNormaliser(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "blocks become paragraphs",
			in: `<html><head><title>t</title><style>p{}</style></head><body>
				<h1>Guide</h1>
				<p>First   paragraph &amp; more.</p>
				<script>alert(1)</script>
				<ul><li>one</li><li><p>two</p></li></ul>
			</body></html>`,
			want: "Guide\n\nFirst paragraph & more.\n\none\n\ntwo",
		},
		{
			name: "no block elements",
			in:   `<body><span>just</span> <b>inline</b></body>`,
			want: "just inline",
		},
		{
			name: "empty",
			in:   ``,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLNormaliser{}.Normalise(tt.in, "text/html")
			if err != nil {
				t.Fatalf("normalise: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
