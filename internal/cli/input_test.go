package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	if err != nil || got != "hello world" {
		t.Fatalf("got %q, err=%v", got, err)
	}
	if !strings.Contains(out.String(), "Name?") {
		t.Fatalf("prompt not written: %q", out.String())
	}
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	if err != nil || got != "lastline" {
		t.Fatalf("got %q, err=%v", got, err)
	}

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	if err == nil {
		t.Fatal("expected error on empty input")
	}
}

func TestGetMultiline_DoubleEnter(t *testing.T) {
	var out bytes.Buffer
	got, err := GetMultiline(rdr("a\nb\n\n\n"), "Enter text", &out)
	if err != nil {
		t.Fatal(err)
	}
	want := "a\nb"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := Confirm(rdr(tt.in), "Delete?", &out)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		assert.Contains(t, out.String(), "[y/N]")
	}
}

func TestParseFieldValue(t *testing.T) {
	v, err := parseFieldValue(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, "12", v, "scalars stay strings")

	v, err = parseFieldValue(`["c1","c2"]`)
	require.NoError(t, err)
	assert.Equal(t, []any{"c1", "c2"}, v)

	v, err = parseFieldValue(`[{"id":"s1","name":"Wide"}]`)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": "s1", "name": "Wide"}}, v)

	_, err = parseFieldValue(`[broken`)
	require.Error(t, err)
}

func TestParseSettingValue(t *testing.T) {
	assert.Equal(t, true, parseSettingValue("true"))
	assert.Equal(t, float64(42), parseSettingValue("42"))
	assert.Nil(t, parseSettingValue("null"))
	assert.Equal(t, "plain text", parseSettingValue("plain text"))
}
