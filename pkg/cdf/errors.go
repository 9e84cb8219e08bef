package cdf

import "errors"

var (
	ErrBadMagic            = errors.New("cdf: invalid magic number")
	ErrUnsupportedVersion  = errors.New("cdf: unsupported CDF version")
	ErrUnsupportedEncoding = errors.New("cdf: unsupported data encoding")
	ErrUnsupportedCompress = errors.New("cdf: unsupported compression algorithm")
	ErrMultiFormat         = errors.New("cdf: multi-file CDFs are not supported")
	ErrChecksum            = errors.New("cdf: md5 checksum mismatch")
	ErrBadRecord           = errors.New("cdf: malformed internal record")
	ErrCompression         = errors.New("cdf: compression failed")
	ErrNotFound            = errors.New("cdf: no such variable or attribute")
	ErrClosed              = errors.New("cdf: file is closed")
	ErrExists              = errors.New("cdf: name already exists")
	ErrBadSpec             = errors.New("cdf: invalid variable or attribute specification")
	ErrShortBuffer         = errors.New("cdf: insufficient bytes for value")
)
