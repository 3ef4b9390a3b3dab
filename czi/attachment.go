package czi

import (
	"github.com/google/uuid"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

// AttachmentInfo is an attachment directory entry.
type AttachmentInfo struct {
	GUID            uuid.UUID
	Name            string
	ContentFileType string
}

func attachmentInfoFromInterop(in capi.AttachmentInfo) AttachmentInfo {
	return AttachmentInfo{
		GUID:            uuid.UUID(in.GUID),
		Name:            in.Name,
		ContentFileType: in.ContentFileType,
	}
}

// Attachment is a materialized attachment: directory info plus the payload,
// copied into host memory before the native attachment object was released.
// Immutable after construction.
type Attachment struct {
	info AttachmentInfo
	data []byte
}

// Info returns the attachment's directory entry.
func (a *Attachment) Info() AttachmentInfo {
	return a.info
}

// Name returns the attachment name.
func (a *Attachment) Name() string {
	return a.info.Name
}

// RawBytes returns the attachment payload.
func (a *Attachment) RawBytes() []byte {
	return a.data
}
