package model

import "time"

// UploadRequest is the body of POST /api/v1/uploads.
type UploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// UploadResponse tells the client where to PUT the file and which URL to
// submit for editing once it is there.
type UploadResponse struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ObjectKey string            `json:"object_key"`
	VideoURL  string            `json:"video_url"`
	ExpiresAt time.Time         `json:"expires_at"`
}
