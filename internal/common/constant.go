package common

const (
	// AuthorizationHeaderName carries the bearer token identifying the caller.
	AuthorizationHeaderName = "Authorization"

	// AssetKeyHeaderName carries the hex-encoded symmetric key of an upload.
	// The key is used for the duration of one request and never stored.
	AssetKeyHeaderName = "X-Asset-Key"

	// RequestIDHeaderName is echoed back on every API response.
	RequestIDHeaderName = "X-Request-ID"
)
