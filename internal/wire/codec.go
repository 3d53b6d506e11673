package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ErrUnknownType is returned by Decode when the leading type code does not
// name one of the fourteen known variants.
type ErrUnknownType struct {
	Code uint32
}

func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("wire: unknown message type code %d", e.Code)
}

// Encode serializes a typed body into a complete frame payload: the 4-byte
// type code followed by the type-specific body. It does not prepend the
// length prefix — that is Frame's job, since the length is a property of
// the whole frame, not of the body.
func Encode(body Body) ([]byte, error) {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(body.Type()))

	switch b := body.(type) {
	case TextMessageBody:
		writeEndpoint(&buf, b.Sender)
		writeStr16(&buf, b.Text)
	case InboundFileTransferRequestBody:
		writeStr16(&buf, b.LocalFilePath)
		writeInt64(&buf, b.FileSize)
		writeEndpoint(&buf, b.Sender)
	case OutboundFileTransferRequestBody:
		writeStr16(&buf, b.FilePath)
		writeInt64(&buf, b.FileSize)
		writeEndpoint(&buf, b.Sender)
		writeStr16(&buf, b.RemoteFolder)
	case FileTransferAcceptedBody:
		writeEndpoint(&buf, b.Sender)
	case FileTransferRejectedBody:
		writeEndpoint(&buf, b.Sender)
	case FileTransferStalledBody:
		writeEndpoint(&buf, b.Sender)
	case ServerInfoRequestBody:
		writeEndpoint(&buf, b.Sender)
	case ShutdownServerCommandBody:
		writeEndpoint(&buf, b.Sender)
	case NoFilesAvailableForDownloadBody:
		writeEndpoint(&buf, b.Sender)
	case RequestedFolderDoesNotExistBody:
		writeEndpoint(&buf, b.Sender)
	case RetryOutboundFileTransferBody:
		writeEndpoint(&buf, b.Sender)
		writeStr16(&buf, b.Folder)
	case FileListRequestBody:
		writeEndpoint(&buf, b.Sender)
		writeStr16(&buf, b.Folder)
	case FileListResponseBody:
		writeEndpoint(&buf, b.Sender)
		writeStr16(&buf, b.Folder)
		writeStr16(&buf, b.List)
	case ServerInfoResponseBody:
		writeStr16(&buf, b.LocalIP)
		writeUint32(&buf, b.Port)
		writeStr16(&buf, b.PublicIP)
		writeStr16(&buf, b.Folder)
	default:
		return nil, fmt.Errorf("wire: unsupported body type %T", body)
	}
	return buf.Bytes(), nil
}

// Decode parses a complete frame payload (type code + body) back into a
// typed Body.
func Decode(payload []byte) (Body, error) {
	r := bytes.NewReader(payload)
	code, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("wire: reading type code: %w", err)
	}
	t := MessageType(code)
	if !t.IsKnown() {
		return nil, ErrUnknownType{Code: code}
	}

	switch t {
	case TextMessage:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		text, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		return TextMessageBody{Sender: sender, Text: text}, nil

	case InboundFileTransferRequest:
		path, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		size, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		return InboundFileTransferRequestBody{LocalFilePath: path, FileSize: size, Sender: sender}, nil

	case OutboundFileTransferRequest:
		path, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		size, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		folder, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		return OutboundFileTransferRequestBody{FilePath: path, FileSize: size, Sender: sender, RemoteFolder: folder}, nil

	case FileTransferAccepted:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		return FileTransferAcceptedBody{Sender: sender}, nil

	case FileTransferRejected:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		return FileTransferRejectedBody{Sender: sender}, nil

	case FileTransferStalled:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		return FileTransferStalledBody{Sender: sender}, nil

	case ServerInfoRequest:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		return ServerInfoRequestBody{Sender: sender}, nil

	case ShutdownServerCommand:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		return ShutdownServerCommandBody{Sender: sender}, nil

	case NoFilesAvailableForDownload:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		return NoFilesAvailableForDownloadBody{Sender: sender}, nil

	case RequestedFolderDoesNotExist:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		return RequestedFolderDoesNotExistBody{Sender: sender}, nil

	case RetryOutboundFileTransfer:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		folder, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		return RetryOutboundFileTransferBody{Sender: sender, Folder: folder}, nil

	case FileListRequest:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		folder, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		return FileListRequestBody{Sender: sender, Folder: folder}, nil

	case FileListResponse:
		sender, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		folder, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		list, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		return FileListResponseBody{Sender: sender, Folder: folder, List: list}, nil

	case ServerInfoResponse:
		localIP, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		port, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		publicIP, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		folder, err := readStr16(r)
		if err != nil {
			return nil, err
		}
		return ServerInfoResponseBody{LocalIP: localIP, Port: port, PublicIP: publicIP, Folder: folder}, nil
	}

	return nil, ErrUnknownType{Code: code}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeStr16(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeEndpoint(buf *bytes.Buffer, e Endpoint) {
	writeStr16(buf, e.IP)
	writeUint32(buf, e.Port)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func readStr16(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readEndpoint(r *bytes.Reader) (Endpoint, error) {
	ip, err := readStr16(r)
	if err != nil {
		return Endpoint{}, err
	}
	port, err := readUint32(r)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{IP: ip, Port: port}, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	return io.ReadFull(r, b)
}
