package quadgen

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/David-Marsh-Photo/quadGEN-sub001/config"
	"github.com/David-Marsh-Photo/quadGEN-sub001/correction"
	"github.com/David-Marsh-Photo/quadGEN-sub001/quadfile"
	"github.com/David-Marsh-Photo/quadGEN-sub001/types"
)

type fileSystem interface {
	Create(string) (io.WriteCloser, error)
	Open(string) (io.ReadCloser, error)
}

type localFS struct{}

func (localFS) Create(name string) (io.WriteCloser, error) { return os.Create(name) }
func (localFS) Open(name string) (io.ReadCloser, error)    { return os.Open(name) }

var fs fileSystem = localFS{}

var ErrUnsupportedFormat = errors.New("unsupported correction format")

// OpenQuad reads a .quad file.
func OpenQuad(filename string) (*quadfile.File, error) {
	file, err := fs.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	ans, err := quadfile.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(filename), err)
	}
	return ans, nil
}

// SaveQuad writes f to filename, recording the generator in its comments.
func SaveQuad(f *quadfile.File, filename string) (err error) {
	out := f.Clone()
	stamp := "quadGEN " + Version.String()
	if !slices.Contains(out.Comments, stamp) {
		out.Comments = append(out.Comments, stamp)
	}
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		cerr := file.Close()
		if err == nil {
			err = cerr
		}
	}()
	return quadfile.Write(file, out)
}

// DecodeCorrection parses a correction, choosing the parser from the
// extension of filename.
func DecodeCorrection(r io.Reader, filename string, cfg config.Configuration) (*correction.Entry, error) {
	switch types.FormatForFilename(filename) {
	case types.CUBE1D:
		return correction.ParseCube1D(r, filename, cfg)
	case types.LAB:
		return correction.ParseLabText(r, filename, cfg)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(filename))
}

// OpenCorrection reads a correction from a .cube or LAB measurement file.
func OpenCorrection(filename string, cfg config.Configuration) (*correction.Entry, error) {
	file, err := fs.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return DecodeCorrection(file, filepath.Base(filename), cfg)
}
