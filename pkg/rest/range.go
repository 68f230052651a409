// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package rest

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a parsed HTTP byte range. Three forms exist:
//
//	a-b  both offsets set (inclusive)
//	a-   End == -1, from a to the end of the blob
//	-n   Start == -1, the last End bytes of the blob
type Range struct {
	Start int64
	End   int64
}

const bytesRangePrefix = "bytes="

// ParseRange parses a Range header value. Only single byte ranges are
// supported; anything malformed fails with InvalidArgument.
func ParseRange(header string) (*Range, error) {
	if !strings.HasPrefix(header, bytesRangePrefix) {
		return nil, Errorf(InvalidArgument, "invalid range header: %s", header)
	}
	spec := header[len(bytesRangePrefix):]
	if strings.Contains(spec, ",") {
		return nil, Errorf(InvalidArgument, "multiple ranges are not supported: %s", header)
	}
	dash := strings.Index(spec, "-")
	if dash < 0 {
		return nil, Errorf(InvalidArgument, "invalid range header: %s", header)
	}
	startPart, endPart := spec[:dash], spec[dash+1:]

	r := &Range{Start: -1, End: -1}
	if startPart == "" && endPart == "" {
		return nil, Errorf(InvalidArgument, "invalid range header: %s", header)
	}
	if startPart != "" {
		start, err := strconv.ParseInt(startPart, 10, 64)
		if err != nil || start < 0 {
			return nil, Errorf(InvalidArgument, "invalid range start: %s", header)
		}
		r.Start = start
	}
	if endPart != "" {
		end, err := strconv.ParseInt(endPart, 10, 64)
		if err != nil || end < 0 {
			return nil, Errorf(InvalidArgument, "invalid range end: %s", header)
		}
		r.End = end
	}
	if r.Start >= 0 && r.End >= 0 && r.Start > r.End {
		return nil, Errorf(InvalidArgument, "range start after end: %s", header)
	}
	return r, nil
}

// Resolve maps the range onto a blob of the given size, returning the
// byte offset and length to serve. Unsatisfiable ranges fail with
// RangeNotSatisfiable.
func (r Range) Resolve(size int64) (offset, length int64, err error) {
	switch {
	case r.Start < 0: // last End bytes
		offset = size - r.End
		if offset < 0 {
			offset = 0
		}
		length = size - offset
	case r.End < 0: // from Start to the end
		offset = r.Start
		length = size - offset
	default:
		offset = r.Start
		end := r.End
		if end > size-1 {
			end = size - 1
		}
		length = end - offset + 1
	}
	if offset > size-1 || length <= 0 {
		return 0, 0, Errorf(RangeNotSatisfiable, "range %s not satisfiable for size %d", r, size)
	}
	return offset, length, nil
}

func (r Range) String() string {
	switch {
	case r.Start < 0:
		return fmt.Sprintf("bytes=-%d", r.End)
	case r.End < 0:
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// ContentRange renders the Content-Range header for a resolved range.
func ContentRange(offset, length, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, size)
}
