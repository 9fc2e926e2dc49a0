package telegram

import "testing"

func TestStripHTML(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<b>жирный</b> текст", "жирный текст"},
		{"без тегов", "без тегов"},
		{"<i>а</i><b>б</b>", "аб"},
		{"сломанный <b тег", "сломанный "},
		{"", ""},
	}
	for _, c := range cases {
		if got := StripHTML(c.in); got != c.want {
			t.Fatalf("StripHTML(%q): want=%q got=%q", c.in, c.want, got)
		}
	}
}
