package models

import "time"

// Document is an uploaded file that the answer backend has indexed under ID.
type Document struct {
	ID         string
	Filename   string
	Size       int64
	UploadedAt time.Time
}

// UploadStatus is the display phase of the upload control. It is purely observational.
type UploadStatus string

const (
	UploadStatusIdle            UploadStatus = ""
	UploadStatusUploading       UploadStatus = "Uploading..."
	UploadStatusReady           UploadStatus = "Ready"
	UploadStatusUploadError     UploadStatus = "Upload error"
	UploadStatusConnectionError UploadStatus = "Connection error"
)

// AskRequest is a question addressed to an answer backend. An empty DocID means the question targets
// the global corpus.
type AskRequest struct {
	Question string
	DocID    string
	History  []Message
}
