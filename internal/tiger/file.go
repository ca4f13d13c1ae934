package tiger

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/featsource/internal/feature"
)

// CharsetByName resolves the text encoding of alpha fields.
func CharsetByName(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "latin1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "utf-8", "utf8":
		return encoding.Nop, nil
	}
	return nil, eris.Errorf("tiger: unsupported charset %q", name)
}

// RecordFile is an open record type file of one module. Records have a
// fixed length and are addressed by their 0-based position.
type RecordFile struct {
	path     string
	module   string
	f        afero.File
	version  Version
	code     string
	info     *RecordInfo
	charset  encoding.Encoding
	eol      []byte
	stride   int64
	count    int64
	needEOL  bool
	writable bool
	closed   bool

	// layoutErr is set when the records do not match the version's layout.
	layoutErr error
}

type fileOptions struct {
	update         bool
	charset        encoding.Encoding
	defaultVersion Version
}

func openRecordFile(fs afero.Fs, path, module string, opts fileOptions) (*RecordFile, error) {
	flag := os.O_RDONLY
	if opts.update {
		flag = os.O_RDWR
	}
	f, err := fs.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open %s", path)
	}

	rf := &RecordFile{
		path:     path,
		module:   module,
		f:        f,
		charset:  opts.charset,
		writable: opts.update,
	}
	if rf.charset == nil {
		rf.charset = charmap.ISO8859_1
	}
	if err := rf.inspect(opts.defaultVersion); err != nil {
		_ = f.Close()
		return nil, err
	}
	return rf, nil
}

// inspect detects the version code, line terminator and record count.
func (rf *RecordFile) inspect(def Version) error {
	st, err := rf.f.Stat()
	if err != nil {
		return eris.Wrapf(err, "tiger: stat %s", rf.path)
	}
	size := st.Size()

	if size == 0 {
		rf.version = def
		rf.code = def.Code()
		rf.eol = []byte("\n")
		if def != VersionUnknown {
			rf.info = LandmarksInfo(def)
			rf.stride = int64(rf.info.Length + len(rf.eol))
		}
		return nil
	}

	head := make([]byte, 5)
	if _, err := rf.f.ReadAt(head, 0); err != nil && err != io.EOF {
		return eris.Wrapf(err, "tiger: read first record of %s", rf.path)
	}
	rf.code = string(head[1:5])
	if n, err := strconv.Atoi(strings.TrimSpace(rf.code)); err == nil {
		rf.version = ClassifyVersion(n)
	}
	if rf.version == VersionUnknown {
		return nil
	}
	rf.info = LandmarksInfo(rf.version)

	length := int64(rf.info.Length)
	term := make([]byte, 2)
	n, _ := rf.f.ReadAt(term, length)
	switch {
	case n >= 1 && term[0] == '\n':
		rf.eol = []byte("\n")
	case n == 2 && term[0] == '\r' && term[1] == '\n':
		rf.eol = []byte("\r\n")
	case n >= 1 && term[0] == '\r':
		rf.eol = []byte("\r")
	case n == 0:
		// Single unterminated record.
		rf.eol = []byte("\n")
	default:
		rf.layoutErr = feature.Errorf(feature.KindSchema, nil,
			"tiger: %s first record is not %d bytes long", rf.path, length)
		rf.info = nil
		return nil
	}
	rf.stride = length + int64(len(rf.eol))
	rf.count = size / rf.stride
	if size%rf.stride >= length {
		rf.count++
		rf.needEOL = len(rf.eol) > 0
	}
	return nil
}

// Module returns the module name, e.g. TGR06037.
func (rf *RecordFile) Module() string { return rf.module }

// Version returns the detected release family.
func (rf *RecordFile) Version() Version { return rf.version }

// Len returns the number of records.
func (rf *RecordFile) Len() int64 { return rf.count }

// NextFID implements layer.Table.
func (rf *RecordFile) NextFID(_ context.Context, after int64) (int64, bool, error) {
	next := after + 1
	if next < 0 {
		next = 0
	}
	if next >= rf.count {
		return 0, false, nil
	}
	return next, true, nil
}

// Writable implements layer.Writable.
func (rf *RecordFile) Writable() bool { return rf.writable && rf.info != nil }

func (rf *RecordFile) readRecord(fid int64) ([]byte, error) {
	if rf.closed {
		return nil, feature.Errorf(feature.KindState, nil, "tiger: %s is closed", rf.path)
	}
	if fid < 0 || fid >= rf.count {
		return nil, feature.Errorf(feature.KindNotFound, nil, "tiger: %s has no record %d", rf.path, fid)
	}
	buf := make([]byte, rf.info.Length)
	n, err := rf.f.ReadAt(buf, fid*rf.stride)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return nil, feature.Errorf(feature.KindNativeCall, err, "tiger: read record %d of %s", fid, rf.path)
	}
	return buf, nil
}

func (rf *RecordFile) appendRecord(rec []byte) (int64, error) {
	if !rf.Writable() {
		return 0, feature.Errorf(feature.KindUnsupported, nil, "tiger: %s is not open for update", rf.path)
	}
	offset := rf.count * rf.stride
	if rf.needEOL {
		if _, err := rf.f.WriteAt(rf.eol, offset-int64(len(rf.eol))); err != nil {
			return 0, feature.Errorf(feature.KindNativeCall, err, "tiger: terminate last record of %s", rf.path)
		}
		rf.needEOL = false
	}
	line := append(append([]byte{}, rec...), rf.eol...)
	if _, err := rf.f.WriteAt(line, offset); err != nil {
		return 0, feature.Errorf(feature.KindNativeCall, err, "tiger: append record to %s", rf.path)
	}
	rf.count++
	return rf.count - 1, nil
}

// Close implements layer.Table.
func (rf *RecordFile) Close() error {
	if rf.closed {
		return nil
	}
	rf.closed = true
	if err := rf.f.Close(); err != nil {
		return eris.Wrapf(err, "tiger: close %s", rf.path)
	}
	return nil
}
