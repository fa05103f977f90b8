package cli

import (
	"io"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
)

// progressWrapper returns a checksum.FileHasher Wrap function that draws a
// progress bar on w for every hashed file.
func progressWrapper(w io.Writer) func(path string, size int64, r io.Reader) io.Reader {
	return func(path string, size int64, r io.Reader) io.Reader {
		bar := pb.New64(size)
		bar.SetTemplate(pb.Full)
		bar.SetWriter(w)
		bar.Set(pb.Bytes, true)
		bar.Set("prefix", filepath.Base(path)+" ")
		bar.Start()

		return &progressReader{r: bar.NewProxyReader(r), bar: bar}
	}
}

// progressReader finishes its bar once the underlying reader is drained.
type progressReader struct {
	r        io.Reader
	bar      *pb.ProgressBar
	finished bool
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if err != nil && !p.finished {
		p.finished = true
		p.bar.Finish()
	}
	return n, err
}
