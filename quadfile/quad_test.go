package quadfile

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

func TestParseMaster(t *testing.T) {
	data, err := os.ReadFile("../testdata/master.quad")
	require.NoError(t, err)
	f, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []types.ChannelName{"K", "C", "M", "Y", "LC", "LM", "LK", "LLK"}, f.Channels)
	assert.Equal(t, []string{"Printer: P800", "quadGEN modular build"}, f.Comments)
	assert.Equal(t, 52428, f.BaselineEnd["K"])
	assert.Equal(t, 52428, f.Curves["K"][255])
	assert.Equal(t, 0, f.BaselineEnd["C"])
	assert.Equal(t, []types.ChannelName{"K", "LK", "LLK"}, f.InkedChannels())
	assert.Equal(t, f.BaselineEnd, f.Ends())

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))
	if diff := cmp.Diff(string(data), buf.String()); diff != "" {
		t.Fatalf("round trip changed the file (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("0\n1\n"))
	require.ErrorIs(t, err, ErrBadHeader)
	_, err = Parse(strings.NewReader("## QuadToneRIP  , \n"))
	require.ErrorIs(t, err, ErrNoChannels)
	_, err = Parse(strings.NewReader("## QuadToneRIP K,C\n" + strings.Repeat("1\n", 300)))
	require.ErrorIs(t, err, ErrShortData)
	_, err = Parse(strings.NewReader("## QuadToneRIP K\n70000\n"))
	require.ErrorContains(t, err, "70000")
}

func TestWriteClamps(t *testing.T) {
	f := New("k", "lk")
	f.Curves["K"][255] = 70000
	f.Curves["LK"] = types.Curve{1, 2}
	f.Comments = []string{"a", ""}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))
	g, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, types.TOTAL, g.Curves["K"][255])
	assert.False(t, g.Curves["LK"].HasInk())
	assert.Equal(t, []string{"a", ""}, g.Comments)

	c := f.Clone()
	c.Curves["K"][0] = 5
	assert.Equal(t, 0, f.Curves["K"][0])
}
