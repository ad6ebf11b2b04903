package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "paragraphs are separated by a space",
			input:    ContainerOpen + ParagraphOpen + "Dear Team," + ParagraphClose + ParagraphOpen + "Thanks!" + ParagraphClose + ParagraphOpen + "Best," + LineBreak + "Jane" + ParagraphClose + ContainerClose,
			expected: "Dear Team, Thanks! Best, Jane",
		},
		{
			name:     "inline tags do not split words",
			input:    "<p>Dear <strong>Te</strong>am, <em>thanks</em>!</p>",
			expected: "Dear Team, thanks!",
		},
		{
			name:     "entities are decoded",
			input:    "<p>Tom &amp; Jerry &lt;3</p>",
			expected: "Tom & Jerry <3",
		},
		{
			name:     "decoded tag text stays encoded",
			input:    "<p>Compare a &lt;b&gt; c</p>",
			expected: "Compare a &lt;b> c",
		},
		{
			name:     "decoded entity text stays encoded",
			input:    "<p>Write &amp;amp; for an ampersand, AT&amp;T</p>",
			expected: "Write &amp;amp; for an ampersand, AT&T",
		},
		{
			name:     "script and style content is dropped",
			input:    "<style>p { color: red; }</style><p>Hi</p><script>alert(1)</script>",
			expected: "Hi",
		},
		{
			name:     "comments are dropped",
			input:    "<p>a<!-- hidden -->b</p>",
			expected: "ab",
		},
		{
			name:     "whitespace runs collapse",
			input:    "  one\n\n\ttwo   three \r\n",
			expected: "one two three",
		},
		{
			name:     "lists",
			input:    ListOpen + "<li>first</li><li>second</li>" + ListClose,
			expected: "first second",
		},
		{
			name:     "spacers vanish",
			input:    Spacer + Spacer,
			expected: "",
		},
		{
			name:     "uppercase tags",
			input:    "<P>a</P><BR>b",
			expected: "a b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PlainText(tt.input))
		})
	}
}

func TestPlainText_IdempotentOnPlainStrings(t *testing.T) {
	inputs := []string{
		"Dear Team, Thanks! Best, Jane",
		"  spaced   out\ttext\n",
		"",
		"a > b but c",
		"Tom &lt;b&gt; Jerry",
		"<p>Compare a &lt;b&gt; c</p>",
		"Tom &amp; Jerry &lt;3",
		"AT&T &amp;amp; &ampx &#60;script&#62;",
		"&lt;!-- not a comment --&gt; &lt;/p&gt;",
		"1 < 2 and 3 <4 or x<y",
	}

	for _, input := range inputs {
		once := PlainText(input)
		assert.Equal(t, once, PlainText(once), "input %q", input)
		assert.Equal(t, once, PlainText(PlainText(once)), "input %q", input)
	}
}
