// Package wire implements the peer's on-the-wire message format: a
// length-prefixed frame carrying a typed, little-endian-encoded body.
package wire

// MessageType identifies the body layout that follows the type code in a
// frame's payload. The wire values are part of the protocol and must never
// be renumbered once a peer exists that speaks them.
type MessageType uint32

const (
	TextMessage MessageType = iota + 1
	InboundFileTransferRequest
	OutboundFileTransferRequest
	FileTransferAccepted
	FileTransferRejected
	FileTransferStalled
	RetryOutboundFileTransfer
	FileListRequest
	FileListResponse
	NoFilesAvailableForDownload
	RequestedFolderDoesNotExist
	ServerInfoRequest
	ServerInfoResponse
	ShutdownServerCommand
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "TextMessage"
	case InboundFileTransferRequest:
		return "InboundFileTransferRequest"
	case OutboundFileTransferRequest:
		return "OutboundFileTransferRequest"
	case FileTransferAccepted:
		return "FileTransferAccepted"
	case FileTransferRejected:
		return "FileTransferRejected"
	case FileTransferStalled:
		return "FileTransferStalled"
	case RetryOutboundFileTransfer:
		return "RetryOutboundFileTransfer"
	case FileListRequest:
		return "FileListRequest"
	case FileListResponse:
		return "FileListResponse"
	case NoFilesAvailableForDownload:
		return "NoFilesAvailableForDownload"
	case RequestedFolderDoesNotExist:
		return "RequestedFolderDoesNotExist"
	case ServerInfoRequest:
		return "ServerInfoRequest"
	case ServerInfoResponse:
		return "ServerInfoResponse"
	case ShutdownServerCommand:
		return "ShutdownServerCommand"
	default:
		return "Unknown"
	}
}

// IsKnown reports whether t is one of the fourteen wire-stable variants.
func (t MessageType) IsKnown() bool {
	return t >= TextMessage && t <= ShutdownServerCommand
}

// MustProcessImmediately reports whether the pump should dispatch a message
// of this type synchronously rather than defer it to the request queue.
func (t MessageType) MustProcessImmediately() bool {
	switch t {
	case InboundFileTransferRequest,
		OutboundFileTransferRequest,
		FileTransferAccepted,
		FileTransferRejected,
		FileTransferStalled,
		RetryOutboundFileTransfer,
		ShutdownServerCommand,
		ServerInfoResponse,
		FileListResponse,
		NoFilesAvailableForDownload,
		RequestedFolderDoesNotExist:
		return true
	default:
		// TextMessage, FileListRequest, ServerInfoRequest may be queued.
		return false
	}
}

// Endpoint is a sender_ip/sender_port pair carried by nearly every body.
type Endpoint struct {
	IP   string
	Port uint32
}

// Body is implemented by every typed message payload.
type Body interface {
	Type() MessageType
}

type TextMessageBody struct {
	Sender Endpoint
	Text   string
}

func (TextMessageBody) Type() MessageType { return TextMessage }

type InboundFileTransferRequestBody struct {
	LocalFilePath string
	FileSize      int64
	Sender        Endpoint
}

func (InboundFileTransferRequestBody) Type() MessageType { return InboundFileTransferRequest }

type OutboundFileTransferRequestBody struct {
	FilePath     string
	FileSize     int64
	Sender       Endpoint
	RemoteFolder string
}

func (OutboundFileTransferRequestBody) Type() MessageType { return OutboundFileTransferRequest }

type FileTransferAcceptedBody struct{ Sender Endpoint }

func (FileTransferAcceptedBody) Type() MessageType { return FileTransferAccepted }

type FileTransferRejectedBody struct{ Sender Endpoint }

func (FileTransferRejectedBody) Type() MessageType { return FileTransferRejected }

type FileTransferStalledBody struct{ Sender Endpoint }

func (FileTransferStalledBody) Type() MessageType { return FileTransferStalled }

type ServerInfoRequestBody struct{ Sender Endpoint }

func (ServerInfoRequestBody) Type() MessageType { return ServerInfoRequest }

type ShutdownServerCommandBody struct{ Sender Endpoint }

func (ShutdownServerCommandBody) Type() MessageType { return ShutdownServerCommand }

type NoFilesAvailableForDownloadBody struct{ Sender Endpoint }

func (NoFilesAvailableForDownloadBody) Type() MessageType { return NoFilesAvailableForDownload }

type RequestedFolderDoesNotExistBody struct{ Sender Endpoint }

func (RequestedFolderDoesNotExistBody) Type() MessageType { return RequestedFolderDoesNotExist }

type RetryOutboundFileTransferBody struct {
	Sender Endpoint
	Folder string
}

func (RetryOutboundFileTransferBody) Type() MessageType { return RetryOutboundFileTransfer }

type FileListRequestBody struct {
	Sender Endpoint
	Folder string
}

func (FileListRequestBody) Type() MessageType { return FileListRequest }

type FileListResponseBody struct {
	Sender Endpoint
	Folder string
	List   string
}

func (FileListResponseBody) Type() MessageType { return FileListResponse }

type ServerInfoResponseBody struct {
	LocalIP  string
	Port     uint32
	PublicIP string
	Folder   string
}

func (ServerInfoResponseBody) Type() MessageType { return ServerInfoResponse }
