// Package eventlog implements the tagged ServerEvent union and the
// per-request event log, generalizing the marker-interface idiom used for
// the teacher's AppEvent variants to this domain's server-side events.
package eventlog

import "time"

// ServerEvent is implemented by every concrete event variant. The
// unexported method keeps the set closed to this package's variants,
// mirroring the teacher's AppEvent{ isAppEvent() } shape. Other packages
// build variants through the New* constructors below rather than
// constructing the structs directly.
type ServerEvent interface {
	isServerEvent()
	MessageID() uint32
	At() time.Time
}

// base is embedded by every concrete event to satisfy ServerEvent without
// repeating the bookkeeping fields.
type base struct {
	ID        uint32
	Timestamp time.Time
}

func (base) isServerEvent()      {}
func (b base) MessageID() uint32 { return b.ID }
func (b base) At() time.Time     { return b.Timestamp }

func newBase(id uint32) base { return base{ID: id, Timestamp: time.Now()} }

type ReceivedTextMessage struct {
	base
	Text       string
	RemoteIP   string
	RemotePort uint32
}

func NewReceivedTextMessage(id uint32, text, remoteIP string, remotePort uint32) ServerEvent {
	return ReceivedTextMessage{newBase(id), text, remoteIP, remotePort}
}

type ClientRejectedFileTransfer struct {
	base
	RemoteIP   string
	RemotePort uint32
}

func NewClientRejectedFileTransfer(id uint32, remoteIP string, remotePort uint32) ServerEvent {
	return ClientRejectedFileTransfer{newBase(id), remoteIP, remotePort}
}

type ClientAcceptedFileTransfer struct {
	base
	RemoteIP   string
	RemotePort uint32
}

func NewClientAcceptedFileTransfer(id uint32, remoteIP string, remotePort uint32) ServerEvent {
	return ClientAcceptedFileTransfer{newBase(id), remoteIP, remotePort}
}

type ReceiveFileBytesComplete struct {
	base
	FilePath   string
	TotalBytes int64
}

func NewReceiveFileBytesComplete(id uint32, filePath string, totalBytes int64) ServerEvent {
	return ReceiveFileBytesComplete{newBase(id), filePath, totalBytes}
}

type ReceivedFileBytesFromSocket struct {
	base
	BytesThisRead int
	TotalSoFar    int64
}

func NewReceivedFileBytesFromSocket(id uint32, bytesThisRead int, totalSoFar int64) ServerEvent {
	return ReceivedFileBytesFromSocket{newBase(id), bytesThisRead, totalSoFar}
}

type UpdateFileTransferProgress struct {
	base
	BytesTransferred int64
	FileSize         int64
	PercentComplete  float64
}

func NewUpdateFileTransferProgress(id uint32, bytesTransferred, fileSize int64, percent float64) ServerEvent {
	return UpdateFileTransferProgress{newBase(id), bytesTransferred, fileSize, percent}
}

type FileTransferStalledEvent struct {
	base
	RemoteIP   string
	RemotePort uint32
}

func NewFileTransferStalledEvent(id uint32, remoteIP string, remotePort uint32) ServerEvent {
	return FileTransferStalledEvent{newBase(id), remoteIP, remotePort}
}

type NoFilesAvailableEvent struct {
	base
	Folder string
}

func NewNoFilesAvailableEvent(id uint32, folder string) ServerEvent {
	return NoFilesAvailableEvent{newBase(id), folder}
}

type FolderDoesNotExistEvent struct {
	base
	Folder string
}

func NewFolderDoesNotExistEvent(id uint32, folder string) ServerEvent {
	return FolderDoesNotExistEvent{newBase(id), folder}
}

type ErrorOccurred struct {
	base
	Err error
}

func NewErrorOccurred(id uint32, err error) ServerEvent {
	return ErrorOccurred{newBase(id), err}
}

type ShutdownInitiatedEvent struct {
	base
}

func NewShutdownInitiatedEvent(id uint32) ServerEvent {
	return ShutdownInitiatedEvent{newBase(id)}
}
