// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import (
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	internallog "github.com/saferwall/clrmeta/internal/log"
)

// Options configures how a File is opened and parsed.
type Options struct {
	// Strict, when set, turns recoverable anomalies (an unsorted table
	// encountered outside of the Sorted bitmask, a duplicate stream name)
	// into hard errors instead of warnings logged through Logger.
	Strict bool

	// Logger receives diagnostic messages produced while loading the
	// container and its metadata root. A discarding logger is used if nil.
	Logger internallog.Logger
}

// File is an open PE/CLI image: the PE container headers needed to
// translate RVAs to file offsets, plus the CLI metadata root reached
// through the CLR data directory.
type File struct {
	DOSHeader ImageDOSHeader
	NtHeader  ImageNtHeader
	Sections  []Section
	FileInfo

	// CLR is the parsed CLI metadata root, populated by parseCLRHeaderDirectory.
	// It is nil until Parse succeeds past the PE container stage, and
	// stays nil for a native image with no CLR data directory.
	CLR *Database

	// Header is the raw byte range of the file up to SizeOfHeaders,
	// the fallback GetData looks into when an RVA falls outside every
	// section (the same shape as the teacher's header-only read path).
	Header []byte

	data          []byte
	size          uint32
	overlayOffset int64
	closer        io.Closer
	mm            mmap.MMap
	opts          *Options
	logger        *internallog.Helper
}

// minPESize is the shortest a file can be and still contain a DOS header,
// an NT header and a single data directory entry.
const minPESize = 97

// New opens the file at name and parses its PE container and CLI metadata
// root. The file is memory-mapped read-only; Close unmaps and closes it.
func New(name string, opts *Options) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if st.Size() < minPESize {
		f.Close()
		return nil, ErrInvalidPESize
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	pe := newFile(m, opts)
	pe.closer = f
	pe.mm = m
	return pe, pe.Parse()
}

// NewBytes parses data already resident in memory; Close is then a no-op.
func NewBytes(data []byte, opts *Options) (*File, error) {
	if len(data) < minPESize {
		return nil, ErrInvalidPESize
	}
	pe := newFile(data, opts)
	return pe, pe.Parse()
}

func newFile(data []byte, opts *Options) *File {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = internallog.NewStdLogger(io.Discard)
	}
	return &File{
		data:   data,
		size:   uint32(len(data)),
		opts:   opts,
		logger: internallog.NewHelper(internallog.NewFilter(logger, internallog.FilterLevel(internallog.LevelWarn))),
	}
}

// Close releases the memory mapping and underlying file handle, if any.
func (f *File) Close() error {
	if f.mm != nil {
		if err := f.mm.Unmap(); err != nil {
			return err
		}
	}
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// Parse walks the PE container (DOS header, NT header, sections) and, if
// present, the CLI metadata root reached through the CLR data directory.
// A native image with no CLR directory is not an error: HasCLR stays
// false and CLR stays nil.
func (f *File) Parse() error {
	if err := f.ParseDOSHeader(); err != nil {
		return err
	}
	if err := f.ParseNTHeader(); err != nil {
		return err
	}
	if err := f.ParseSectionHeader(); err != nil {
		return err
	}

	sizeOfHeaders := f.optionalHeaderSizeOfHeaders()
	if sizeOfHeaders > 0 && sizeOfHeaders <= f.size {
		f.Header = f.data[:sizeOfHeaders]
	}

	dir := f.dataDirectory(ImageDirectoryEntryCLR)
	if dir == nil || dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil
	}

	db, err := f.parseCLRHeaderDirectory(dir.VirtualAddress, dir.Size)
	if err != nil {
		return err
	}
	f.CLR = db
	f.HasCLR = true
	return nil
}

func (f *File) optionalHeaderSizeOfHeaders() uint32 {
	if f.Is64 {
		return f.NtHeader.OptionalHeader.(ImageOptionalHeader64).SizeOfHeaders
	}
	return f.NtHeader.OptionalHeader.(ImageOptionalHeader32).SizeOfHeaders
}

func (f *File) dataDirectory(entry ImageDirectoryEntry) *DataDirectory {
	var dirs [16]DataDirectory
	if f.Is64 {
		dirs = f.NtHeader.OptionalHeader.(ImageOptionalHeader64).DataDirectory
	} else {
		dirs = f.NtHeader.OptionalHeader.(ImageOptionalHeader32).DataDirectory
	}
	if int(entry) >= len(dirs) {
		return nil
	}
	d := dirs[entry]
	return &d
}

// String returns the human-readable name of a data directory entry.
func (entry ImageDirectoryEntry) String() string {
	m := map[ImageDirectoryEntry]string{
		ImageDirectoryEntryExport:       "Export Table",
		ImageDirectoryEntryImport:       "Import Table",
		ImageDirectoryEntryResource:     "Resource Table",
		ImageDirectoryEntryException:    "Exception Table",
		ImageDirectoryEntryCertificate:  "Certificate Directory",
		ImageDirectoryEntryBaseReloc:    "Base Relocation Table",
		ImageDirectoryEntryDebug:        "Debug",
		ImageDirectoryEntryArchitecture: "Architecture Specific Data",
		ImageDirectoryEntryGlobalPtr:    "Global Pointer Register Value",
		ImageDirectoryEntryTLS:          "Thread Local Storage Table",
		ImageDirectoryEntryLoadConfig:   "Load Configuration Table",
		ImageDirectoryEntryBoundImport:  "Bound Import Table",
		ImageDirectoryEntryIAT:          "Import Address Table",
		ImageDirectoryEntryDelayImport:  "Delay Import Descriptor",
		ImageDirectoryEntryCLR:          "CLR Runtime Header",
		ImageDirectoryEntryReserved:     "Reserved",
	}
	if val, ok := m[entry]; ok {
		return val
	}
	return "?"
}
