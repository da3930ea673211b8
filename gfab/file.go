package gfab

import (
	"context"
	"database/sql"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/golang/snappy"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/vlog"
)

// snappyThreshold is the minimum tags_json size, in bytes, worth
// snappy-compressing under the --compress option.
const snappyThreshold = 256

// File is an open .gfab.
type File struct {
	DB       *sql.DB
	Path     string
	ReadOnly bool

	// localPath is where the SQLite file actually lives on disk. It equals
	// Path for local inputs, and a downloaded temp file for http(s) inputs.
	localPath string
	tempFile  bool
}

// isRemote reports whether path names an http(s) resource rather than a
// local file.
func isRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// materializeLocal ensures path is readable as a local SQLite file,
// downloading it first via github.com/grailbio/base/file's HTTP
// range-read virtual file if it's a remote URL. modernc.org/sqlite itself
// needs direct OS file access, so a remote .gfab is staged to a local temp
// file once up front, so remote .gfab sources work without a custom
// SQLite VFS.
func materializeLocal(ctx context.Context, path string) (localPath string, isTemp bool, err error) {
	if !isRemote(path) {
		return path, false, nil
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return "", false, Wrap(KindIO, err, "opening %s", path)
	}
	defer in.Close(ctx)

	tmp, err := ioutil.TempFile("", "gfabase-*.gfab")
	if err != nil {
		return "", false, Wrap(KindIO, err, "creating temp file for %s", path)
	}
	defer tmp.Close()

	vlog.Infof("downloading %s to %s", path, tmp.Name())
	if _, err := io.Copy(tmp, in.Reader(ctx)); err != nil {
		os.Remove(tmp.Name())
		return "", false, Wrap(KindIO, err, "downloading %s", path)
	}
	return tmp.Name(), true, nil
}

// OpenFile opens an existing .gfab for reading (readOnly) or read-write
// access, validating its application id. Exactly one writer may hold a
// .gfab open at a time; readers use SQLite's "?mode=ro" DSN parameter.
func OpenFile(ctx context.Context, path string, readOnly bool) (*File, error) {
	localPath, isTemp, err := materializeLocal(ctx, path)
	if err != nil {
		return nil, err
	}
	dsn := localPath
	if readOnly {
		dsn += "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, Wrap(KindIO, err, "opening %s", path)
	}
	// Every .gfab operation runs single-threaded per invocation, and TEMP
	// TABLEs/ATTACHed databases are scoped to one SQLite connection;
	// pinning the pool to one connection keeps every
	// subsequent db.Exec/db.Query on the connection that created them.
	db.SetMaxOpenConns(1)
	if err := validateApplicationID(db); err != nil {
		db.Close()
		return nil, err
	}
	return &File{DB: db, Path: path, ReadOnly: readOnly, localPath: localPath, tempFile: isTemp}, nil
}

// CreateFile creates a new, empty .gfab at path and bootstraps its schema.
// path must be local: gfabase never writes to a remote destination.
func CreateFile(path string) (*File, error) {
	if isRemote(path) {
		return nil, Errorf(KindUsage, "cannot create a .gfab at a remote URL: %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, Wrap(KindIO, err, "creating %s", path)
	}
	db.SetMaxOpenConns(1)
	if err := bootstrapSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &File{DB: db, Path: path, localPath: path}, nil
}

// Close closes the underlying database connection and removes any
// downloaded temp copy.
func (f *File) Close() error {
	err := f.DB.Close()
	if f.tempFile {
		if rmErr := os.Remove(f.localPath); err == nil {
			err = rmErr
		}
	}
	if err != nil {
		return Wrap(KindIO, err, "closing %s", f.Path)
	}
	return nil
}

// BackgroundContext is the root context used by CLI entrypoints, following
// the grailbio/base/vcontext idiom.
func BackgroundContext() context.Context {
	return vcontext.Background()
}

// maybeCompressTags snappy-compresses blob when it's worth it, prefixing
// the result with a marker byte (0 = stored as-is, 1 = snappy) so that
// tags_json columns remain self-describing.
func maybeCompressTags(blob []byte, compressLevel int) []byte {
	if compressLevel <= 0 || len(blob) < snappyThreshold {
		return append([]byte{0}, blob...)
	}
	return append([]byte{1}, snappy.Encode(nil, blob)...)
}

// decompressTags reverses maybeCompressTags.
func decompressTags(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	marker, payload := blob[0], blob[1:]
	if marker == 0 {
		return payload, nil
	}
	out, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, Wrap(KindIO, err, "decompressing tags_json")
	}
	return out, nil
}
