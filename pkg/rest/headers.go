// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Blob store headers. Request header names appear lower-cased in
// Request.Args; response header names keep their canonical form.
const (
	// ServiceIDHeader names the service that uploaded the blob. Required on POST.
	ServiceIDHeader = "x-ambry-service-id"
	// ContentTypeHeader is the content type stored with the blob. Required on POST.
	ContentTypeHeader = "x-ambry-content-type"
	// TTLHeader is the blob time to live in seconds, -1 for infinite.
	TTLHeader = "x-ambry-ttl"
	// PrivateHeader marks the blob private (no shared caching).
	PrivateHeader = "x-ambry-private"
	// OwnerIDHeader identifies the blob owner, defaults to the service id.
	OwnerIDHeader = "x-ambry-owner-id"
	// BlobSizeHeader reports the blob size on GET/HEAD responses.
	BlobSizeHeader = "x-ambry-blob-size"
	// CreationTimeHeader reports the blob creation time on responses.
	CreationTimeHeader = "x-ambry-creation-time"
	// GetOptionHeader selects GET behavior for deleted/expired blobs.
	GetOptionHeader = "x-ambry-get-option"
	// TargetAccountHeader names the account a POST goes to.
	TargetAccountHeader = "x-ambry-target-account"
	// TargetContainerHeader names the container a POST goes to.
	TargetContainerHeader = "x-ambry-target-container"
	// ErrorCodeHeader carries the ErrorCode of a failed request.
	ErrorCodeHeader = "x-ambry-error-code"
	// DeletedHeader is set when GET/HEAD finds the blob deleted.
	DeletedHeader = "x-ambry-deleted"
	// UserMetadataPrefix prefixes the user metadata headers.
	UserMetadataPrefix = "x-ambry-um-"
)

// Internal arg keys written by the pipeline after account/container
// resolution. They must never arrive from the wire.
const (
	TargetAccountKey   = "ambry-internal-key-target-account"
	TargetContainerKey = "ambry-internal-key-target-container"
)

// Standard HTTP headers the frontend reads (lower-case, request side)
// and writes (canonical case, response side).
const (
	RangeHeader           = "range"
	IfModifiedSinceHeader = "if-modified-since"

	DateHeader          = "Date"
	LastModifiedHeader  = "Last-Modified"
	LocationHeader      = "Location"
	ContentLengthHeader = "Content-Length"
	ContentRangeHeader  = "Content-Range"
	HTTPContentType     = "Content-Type"
	AcceptRangesHeader  = "Accept-Ranges"
	CacheControlHeader  = "Cache-Control"
	PragmaHeader        = "Pragma"
	ExpiresHeader       = "Expires"
	AllowHeader         = "Allow"
)

// TTLInfinite is the TTLHeader value for blobs that never expire.
const TTLInfinite = int64(-1)

// FormatDate renders t the way HTTP dates are rendered (RFC 1123, GMT),
// at second granularity.
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// ParseDate parses an HTTP date header value.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(http.TimeFormat, s)
}

// GetHeader returns the string value of the named arg. A missing value is
// an empty string, or a MissingArgs failure when required.
func GetHeader(args map[string]interface{}, name string, required bool) (string, error) {
	value, ok := args[name]
	if !ok || value == nil {
		if required {
			return "", Errorf(MissingArgs, "%s header is missing", name)
		}
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", Errorf(InvalidArgument, "%s header is not a string", name)
	}
	return s, nil
}

// GetBoolHeader parses the named arg as a bool, defaulting to false.
func GetBoolHeader(args map[string]interface{}, name string) (bool, error) {
	s, err := GetHeader(args, name, false)
	if err != nil || s == "" {
		return false, err
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, Errorf(InvalidArgument, "%s header is not a bool: %s", name, s)
	}
	return b, nil
}

// GetLongHeader parses the named arg as an int64. The bool reports
// whether the arg was present.
func GetLongHeader(args map[string]interface{}, name string) (int64, bool, error) {
	s, err := GetHeader(args, name, false)
	if err != nil || s == "" {
		return 0, false, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, true, Errorf(InvalidArgument, "%s header is not a number: %s", name, s)
	}
	return n, true, nil
}

// IsUserMetadataHeader reports whether name is a user metadata header.
func IsUserMetadataHeader(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), UserMetadataPrefix)
}

// GetOption selects how GET treats deleted and expired blobs.
type GetOption int

// Get options, wire-compatible with the x-ambry-get-option header.
const (
	GetOptionNone GetOption = iota
	GetOptionIncludeExpiredBlobs
	GetOptionIncludeDeletedBlobs
	GetOptionIncludeAll
)

// ParseGetOption parses the x-ambry-get-option header value,
// case-insensitively. The empty value means GetOptionNone.
func ParseGetOption(s string) (GetOption, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return GetOptionNone, nil
	case "include_expired_blobs":
		return GetOptionIncludeExpiredBlobs, nil
	case "include_deleted_blobs":
		return GetOptionIncludeDeletedBlobs, nil
	case "include_all":
		return GetOptionIncludeAll, nil
	}
	return GetOptionNone, Errorf(InvalidArgument, "unrecognized get option: %s", s)
}

func (o GetOption) String() string {
	switch o {
	case GetOptionIncludeExpiredBlobs:
		return "Include_Expired_Blobs"
	case GetOptionIncludeDeletedBlobs:
		return "Include_Deleted_Blobs"
	case GetOptionIncludeAll:
		return "Include_All"
	}
	return "None"
}

// IncludesDeleted reports whether deleted blobs should be served.
func (o GetOption) IncludesDeleted() bool {
	return o == GetOptionIncludeDeletedBlobs || o == GetOptionIncludeAll
}

// IncludesExpired reports whether expired blobs should be served.
func (o GetOption) IncludesExpired() bool {
	return o == GetOptionIncludeExpiredBlobs || o == GetOptionIncludeAll
}

// SubResource is the optional trailing path segment of a blob URI that
// selects a view of the blob instead of its bytes.
type SubResource string

// Blob sub-resources. Matching is exact-case.
const (
	SubResourceBlobInfo     SubResource = "BlobInfo"
	SubResourceUserMetadata SubResource = "UserMetadata"
	SubResourceReplicas     SubResource = "Replicas"
)

// ParseSubResource matches the last path segment against the known
// sub-resources.
func ParseSubResource(segment string) (SubResource, bool) {
	switch SubResource(segment) {
	case SubResourceBlobInfo, SubResourceUserMetadata, SubResourceReplicas:
		return SubResource(segment), true
	}
	return "", false
}
