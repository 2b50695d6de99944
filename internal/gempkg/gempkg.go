// Package gempkg implements the §4.H gem package reader: opening a .gem
// tar archive, exposing its metadata and a streaming view of its file
// payload, and verifying declared checksums. Extraction to disk is
// deliberately not this package's job — callers stream entries and
// decide where bytes land (internal/geminstall does).
package gempkg

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"gopkg.in/yaml.v3"
)

// ReaderAt is the random-access source a gem is opened from.
type ReaderAt interface {
	io.ReaderAt
}

// UnsupportedFormatError is returned for the pre-2007 gem format, which
// carries a top-level "MD5SUM = ..." member instead of the three
// modern top-level entries. No extraction is attempted for these.
type UnsupportedFormatError struct {
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("gempkg: unsupported gem format: %s", e.Reason)
}

// ChecksumMismatch is returned by Verify for a top-level member whose
// computed digest disagrees with the declared one.
type ChecksumMismatch struct {
	File     string
	Algo     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatch) Error() string {
	return fmt.Sprintf("gempkg: checksum mismatch for %s (%s): expected %s, got %s", e.File, e.Algo, e.Expected, e.Actual)
}

// Entry describes one file inside data.tar.gz, exposed to callers
// alongside a byte stream positioned at its content.
type Entry struct {
	Path string
	Size int64
	Mode int64
	Type byte // tar.TypeReg, tar.TypeDir, tar.TypeSymlink, ...
	Link string
}

// Gem is an opened .gem archive. Its three top-level members
// (metadata.gz, data.tar.gz, checksums.yaml.gz) are located eagerly at
// Open time so format errors surface immediately; metadata is decoded
// lazily on first RawSpecBytes() access.
type Gem struct {
	src ReaderAt

	metadataGz     []byte
	dataTarGzStart int64
	dataTarGzLen   int64
	checksumsGz    []byte

	specBytes []byte
	checksums map[string]map[string]string
}

// member locates one top-level tar entry's byte range within src.
type member struct {
	offset int64
	size   int64
}

// Open reads the top-level tar directory of a gem archive (not
// data.tar.gz's inner directory — that is streamed lazily by Data) and
// classifies it. A pre-2007 gem (whose top level contains a bare
// "MD5SUM = ..." member rather than metadata.gz/data.tar.gz) is
// rejected with UnsupportedFormatError before any bytes are read from
// the payload.
func Open(src ReaderAt, size int64) (*Gem, error) {
	sr := io.NewSectionReader(src, 0, size)
	tr := tar.NewReader(sr)

	members := map[string]member{}
	var sawMD5Sum bool

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gempkg: reading gem tar directory: %w", err)
		}
		// Pre-2007 gems carry a top-level "MD5SUM" member instead of
		// the three modern members; detecting it lets us reject the
		// whole archive before touching metadata.gz/data.tar.gz.
		if hdr.Name == "MD5SUM" {
			sawMD5Sum = true
		}
		cur, _ := sr.Seek(0, io.SeekCurrent)
		members[hdr.Name] = member{offset: cur, size: hdr.Size}
	}

	if sawMD5Sum {
		return nil, &UnsupportedFormatError{Reason: "pre-2007 MD5SUM-only gem format"}
	}

	metaMember, hasMeta := members["metadata.gz"]
	dataMember, hasData := members["data.tar.gz"]
	checksumMember, hasChecksums := members["checksums.yaml.gz"]
	plainMeta, hasPlainMeta := members["metadata"]

	if !hasMeta && !hasPlainMeta {
		return nil, &UnsupportedFormatError{Reason: "missing metadata.gz/metadata member"}
	}
	if !hasData {
		return nil, &UnsupportedFormatError{Reason: "missing data.tar.gz member"}
	}

	g := &Gem{src: src}

	if hasMeta {
		buf := make([]byte, metaMember.size)
		if _, err := src.ReadAt(buf, metaMember.offset); err != nil {
			return nil, fmt.Errorf("gempkg: read metadata.gz: %w", err)
		}
		g.metadataGz = buf
	} else {
		buf := make([]byte, plainMeta.size)
		if _, err := src.ReadAt(buf, plainMeta.offset); err != nil {
			return nil, fmt.Errorf("gempkg: read metadata: %w", err)
		}
		g.specBytes = buf
	}

	g.dataTarGzStart = dataMember.offset
	g.dataTarGzLen = dataMember.size

	if hasChecksums {
		buf := make([]byte, checksumMember.size)
		if _, err := src.ReadAt(buf, checksumMember.offset); err != nil {
			return nil, fmt.Errorf("gempkg: read checksums.yaml.gz: %w", err)
		}
		g.checksumsGz = buf
	}

	return g, nil
}

// RawSpecBytes returns the decompressed YAML bytes of the gem
// specification, decompressing metadata.gz on first call.
func (g *Gem) RawSpecBytes() ([]byte, error) {
	if g.specBytes != nil {
		return g.specBytes, nil
	}
	if g.metadataGz == nil {
		return nil, fmt.Errorf("gempkg: no metadata present")
	}
	gz, err := gzip.NewReader(bytes.NewReader(g.metadataGz))
	if err != nil {
		return nil, fmt.Errorf("gempkg: decompress metadata.gz: %w", err)
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("gempkg: read metadata.gz: %w", err)
	}
	g.specBytes = data
	return data, nil
}

// Checksums returns the parsed checksums.yaml.gz table, if present:
// algo -> filename -> hex digest.
func (g *Gem) Checksums() (map[string]map[string]string, error) {
	if g.checksums != nil {
		return g.checksums, nil
	}
	if g.checksumsGz == nil {
		return nil, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(g.checksumsGz))
	if err != nil {
		return nil, fmt.Errorf("gempkg: decompress checksums.yaml.gz: %w", err)
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}
	var table map[string]map[string]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("gempkg: parse checksums.yaml: %w", err)
	}
	g.checksums = table
	return g.checksums, nil
}

// DataReader returns a reader positioned at the start of data.tar.gz's
// raw (still gzip-compressed) bytes.
func (g *Gem) DataReader() io.Reader {
	return io.NewSectionReader(g.src, g.dataTarGzStart, g.dataTarGzLen)
}

// Data returns a streaming iterator over data.tar.gz's entries. next
// returns io.EOF once exhausted. The returned io.Reader is only valid
// until the following call to next.
func (g *Gem) Data() (next func() (Entry, io.Reader, error), err error) {
	gz, err := gzip.NewReader(g.DataReader())
	if err != nil {
		return nil, fmt.Errorf("gempkg: decompress data.tar.gz: %w", err)
	}
	tr := tar.NewReader(gz)
	return func() (Entry, io.Reader, error) {
		hdr, err := tr.Next()
		if err != nil {
			return Entry{}, nil, err
		}
		return Entry{
			Path: hdr.Name,
			Size: hdr.Size,
			Mode: hdr.Mode,
			Type: hdr.Typeflag,
			Link: hdr.Linkname,
		}, tr, nil
	}, nil
}

// hasherFor returns a fresh hash.Hash for one of the three supported
// checksum algorithms.
func hasherFor(algo string) (hash.Hash, bool) {
	switch algo {
	case "SHA1", "sha1":
		return sha1.New(), true
	case "SHA256", "sha256":
		return sha256.New(), true
	case "SHA512", "sha512":
		return sha512.New(), true
	default:
		return nil, false
	}
}

// Verify hashes each top-level member present in the checksum table
// (metadata.gz and data.tar.gz) and compares against the declared
// digests, across every algorithm the table names.
func (g *Gem) Verify() error {
	table, err := g.Checksums()
	if err != nil {
		return err
	}
	if table == nil {
		return nil
	}

	for algo, files := range table {
		hasher, ok := hasherFor(algo)
		if !ok {
			continue
		}
		for file, expected := range files {
			var r io.Reader
			switch file {
			case "metadata.gz":
				r = bytes.NewReader(g.metadataGz)
			case "data.tar.gz":
				r = g.DataReader()
			default:
				continue
			}
			hasher.Reset()
			if _, err := io.Copy(hasher, r); err != nil {
				return fmt.Errorf("gempkg: hashing %s: %w", file, err)
			}
			actual := hex.EncodeToString(hasher.Sum(nil))
			if actual != expected {
				return &ChecksumMismatch{File: file, Algo: algo, Expected: expected, Actual: actual}
			}
		}
	}
	return nil
}
