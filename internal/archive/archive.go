// Package archive bundles a recorded session into a single zip file.
package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/dayflow/dayflow/internal/models"
)

// MethodZstd is the zip compression method ID for Zstandard (APPNOTE 6.3.7).
const MethodZstd uint16 = zstd.ZipMethodWinZip

func init() {
	zip.RegisterCompressor(MethodZstd, zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedBetterCompression)))
	zip.RegisterDecompressor(MethodZstd, zstd.ZipDecompressor())
}

// SessionEntry is the name of the session metadata file inside a bundle.
const SessionEntry = "session.json"

type Options struct {
	IncludeVideo bool
}

// Entry describes one file written to a bundle.
type Entry struct {
	Name   string
	Size   int64
	Method uint16
}

// Manifest lists what a bundle contains.
type Manifest struct {
	SessionID string
	Entries   []Entry
}

// FileName returns the default bundle name for a session.
func FileName(sess *models.Session) string {
	return fmt.Sprintf("dayflow_%s.zip", sess.StartedAt.Local().Format("2006-01-02_15-04-05"))
}

// WriteFile creates path and writes the session bundle to it. A partially
// written file is removed on error.
func WriteFile(path string, sess *models.Session, opts Options) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create bundle directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create bundle: %w", err)
	}

	manifest, err := Write(f, sess, opts)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close bundle: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return manifest, nil
}

// Write streams the session metadata, activity log, report and (optionally)
// video into a zip archive. Text entries are zstd-compressed; the video is
// stored as-is. The activity log is required, the report and video are
// skipped when missing.
func Write(w io.Writer, sess *models.Session, opts Options) (*Manifest, error) {
	if sess == nil {
		return nil, fmt.Errorf("no session to export")
	}

	zw := zip.NewWriter(w)
	manifest := &Manifest{SessionID: sess.ID}

	meta, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	entry, err := addBytes(zw, SessionEntry, meta, time.Now())
	if err != nil {
		return nil, err
	}
	manifest.Entries = append(manifest.Entries, entry)

	if sess.LogPath == "" {
		return nil, fmt.Errorf("session %s has no activity log", sess.ID)
	}
	entry, err = addFile(zw, sess.LogPath, MethodZstd)
	if err != nil {
		return nil, err
	}
	manifest.Entries = append(manifest.Entries, entry)

	optional := []struct {
		path   string
		method uint16
		want   bool
	}{
		{sess.ReportPath, MethodZstd, true},
		{sess.VideoPath, zip.Store, opts.IncludeVideo},
	}
	for _, o := range optional {
		if !o.want || o.path == "" {
			continue
		}
		if _, err := os.Stat(o.path); os.IsNotExist(err) {
			log.Warn().Str("path", o.path).Str("session", sess.ID).Msg("Bundle file missing, skipping")
			continue
		}
		entry, err := addFile(zw, o.path, o.method)
		if err != nil {
			return nil, err
		}
		manifest.Entries = append(manifest.Entries, entry)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish bundle: %w", err)
	}

	log.Info().
		Str("session", sess.ID).
		Int("entries", len(manifest.Entries)).
		Msg("Session bundle written")

	return manifest, nil
}

func addBytes(zw *zip.Writer, name string, data []byte, mod time.Time) (Entry, error) {
	header := &zip.FileHeader{Name: name, Method: MethodZstd}
	header.Modified = mod

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return Entry{}, fmt.Errorf("create zip entry for %s: %w", name, err)
	}
	if _, err := writer.Write(data); err != nil {
		return Entry{}, fmt.Errorf("write zip entry for %s: %w", name, err)
	}
	return Entry{Name: name, Size: int64(len(data)), Method: MethodZstd}, nil
}

func addFile(zw *zip.Writer, path string, method uint16) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Entry{}, fmt.Errorf("stat %s: %w", path, err)
	}

	name := filepath.Base(path)
	header := &zip.FileHeader{Name: name, Method: method}
	header.Modified = info.ModTime()

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return Entry{}, fmt.Errorf("create zip entry for %s: %w", name, err)
	}
	n, err := io.Copy(writer, f)
	if err != nil {
		return Entry{}, fmt.Errorf("write zip entry for %s: %w", name, err)
	}
	return Entry{Name: name, Size: n, Method: method}, nil
}
