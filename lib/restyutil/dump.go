package restyutil

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type Output interface {
	Write(id string, contents string)
}

type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput writes every transcript as a file in dir, which is
// created if it doesn't exist.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func messageId(n uint64, rawUrl string) string {
	host := "unknown"
	u, err := url.Parse(rawUrl)
	if err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return fmt.Sprintf("%05d_%s.txt", n, unsafeFilename.ReplaceAllString(host, "_"))
}

// DumpResponses writes the full request/response transcript of every
// response received by client to output.
func DumpResponses(client *resty.Client, output Output) {
	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := messageId(atomic.AddUint64(&idcounter, 1), res.Request.URL)
		output.Write(id, formatHttpMessage(res))
		return nil
	})
}
