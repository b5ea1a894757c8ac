package pseudobulk

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

// OpenGoogleStorage opens a gs://bucket/path object for sequential reading
// with the given client.
func OpenGoogleStorage(path string, client *storage.Client) (io.ReadCloser, error) {
	if client == nil {
		return nil, fmt.Errorf("%s: no Google Storage client was configured", path)
	}

	// Detect the bucket and the path to the actual file
	pathParts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
	if len(pathParts) != 2 {
		return nil, fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}
	bucketName := pathParts[0]
	pathName := pathParts[1]

	// Open the bucket with default credentials
	handle := client.Bucket(bucketName).Object(pathName)

	rdr, err := handle.NewReader(context.Background())
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %s", path, err))
	}

	return rdr, nil
}
