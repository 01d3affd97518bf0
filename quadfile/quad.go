// Package quadfile reads and writes QuadToneRIP .quad curve files.
//
// A .quad file starts with a header naming the channels,
//
//	## QuadToneRIP K,C,M,Y,LC,LM,LK,LLK
//
// followed by comment lines starting with # and then 256 integer samples
// per channel, one per line, in header order.
package quadfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

const header_prefix = "## QuadToneRIP "

var (
	ErrBadHeader  = errors.New("missing ## QuadToneRIP header")
	ErrNoChannels = errors.New("the QuadToneRIP header names no channels")
	ErrShortData  = errors.New("not enough curve samples")
)

type File struct {
	// Channels in header order
	Channels []types.ChannelName
	Curves   map[types.ChannelName]types.Curve
	// BaselineEnd is the maximum of each channel's curve as loaded.
	BaselineEnd map[types.ChannelName]int
	Comments    []string
}

// New returns a File with the named channels, all zero.
func New(channels ...string) *File {
	f := &File{Channels: types.UniqueChannels(channels...), Curves: map[types.ChannelName]types.Curve{}, BaselineEnd: map[types.ChannelName]int{}}
	for _, ch := range f.Channels {
		f.Curves[ch] = types.NewCurve()
		f.BaselineEnd[ch] = 0
	}
	return f
}

func (f *File) Clone() *File {
	ans := &File{
		Channels:    append([]types.ChannelName(nil), f.Channels...),
		Curves:      make(map[types.ChannelName]types.Curve, len(f.Curves)),
		BaselineEnd: make(map[types.ChannelName]int, len(f.BaselineEnd)),
		Comments:    append([]string(nil), f.Comments...),
	}
	for k, v := range f.Curves {
		ans.Curves[k] = v.Clone()
	}
	for k, v := range f.BaselineEnd {
		ans.BaselineEnd[k] = v
	}
	return ans
}

// Ends returns the current maximum of every channel curve.
func (f *File) Ends() map[types.ChannelName]int {
	ans := make(map[types.ChannelName]int, len(f.Channels))
	for _, ch := range f.Channels {
		ans[ch] = f.Curves[ch].Max()
	}
	return ans
}

// InkedChannels returns the channels whose curve carries ink, in header
// order.
func (f *File) InkedChannels() (ans []types.ChannelName) {
	for _, ch := range f.Channels {
		if f.Curves[ch].HasInk() {
			ans = append(ans, ch)
		}
	}
	return
}

func Parse(r io.Reader) (*File, error) {
	scanner := bufio.NewScanner(r)
	var f *File
	var values []int
	lnum := 0
	for scanner.Scan() {
		lnum++
		line := strings.TrimSpace(scanner.Text())
		if f == nil {
			if strings.HasPrefix(line, header_prefix) {
				var names []string
				for _, n := range strings.Split(line[len(header_prefix):], ",") {
					if n = strings.TrimSpace(n); n != "" {
						names = append(names, n)
					}
				}
				if len(names) == 0 {
					return nil, ErrNoChannels
				}
				f = New(names...)
			}
			continue
		}
		switch {
		case line == "":
		case strings.HasPrefix(line, "#"):
			if len(values) == 0 {
				f.Comments = append(f.Comments, strings.TrimSpace(strings.TrimPrefix(line, "#")))
			}
		default:
			v, err := strconv.Atoi(line)
			if err != nil {
				// stray text in the data section is ignored
				continue
			}
			if v < 0 || v > types.TOTAL {
				return nil, fmt.Errorf("invalid sample value %d at line %d: must be in [0, %d]", v, lnum, types.TOTAL)
			}
			values = append(values, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrBadHeader
	}
	if need := len(f.Channels) * types.CurveResolution; len(values) < need {
		return nil, fmt.Errorf("%w: found %d values, need %d for %d channels", ErrShortData, len(values), need, len(f.Channels))
	}
	for i, ch := range f.Channels {
		c := types.Curve(values[i*types.CurveResolution : (i+1)*types.CurveResolution]).Clone()
		f.Curves[ch] = c
		f.BaselineEnd[ch] = c.Max()
	}
	return f, nil
}

// Write serializes f. Curves are clamped to [0, TOTAL]; missing channels
// are written as zeros.
func Write(w io.Writer, f *File) error {
	bw := bufio.NewWriter(w)
	names := make([]string, len(f.Channels))
	for i, ch := range f.Channels {
		names[i] = string(ch)
	}
	fmt.Fprintf(bw, "%s%s\n", header_prefix, strings.Join(names, ","))
	for _, c := range f.Comments {
		if c == "" {
			bw.WriteString("#\n")
		} else {
			fmt.Fprintf(bw, "# %s\n", c)
		}
	}
	bw.WriteString("\n")
	for _, ch := range f.Channels {
		c := f.Curves[ch]
		if len(c) != types.CurveResolution {
			c = types.NewCurve()
		}
		values, err := c.Clamped().Uint16s()
		if err != nil {
			return fmt.Errorf("%s: %w", ch, err)
		}
		for _, v := range values {
			bw.WriteString(strconv.Itoa(int(v)))
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}
