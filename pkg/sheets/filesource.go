package sheets

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// FileSource reads a literal bearer token from the first line of a file.
type FileSource struct {
	FilePath string `mapstructure:"path" help:"Path to the file with the access token"`
}

func (f *FileSource) GetAccessToken() (string, error) {
	fi, err := os.Open(f.FilePath)
	if err != nil {
		return "", errors.Wrapf(err, "FileSource: %s", f.FilePath)
	}
	defer fi.Close()

	bio := bufio.NewReader(fi)
	token, err := bio.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", errors.Wrapf(err, "FileSource: %s", f.FilePath)
		}
	}

	return strings.TrimSpace(token), nil
}
