package frametv

import (
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	uploadTimeout   = 15 * time.Second
	uploadChunkSize = 8192
)

type connInfo struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
	Key  string `json:"key"`
}

type uploadHeader struct {
	Num        int    `json:"num"`
	Total      int    `json:"total"`
	FileLength int    `json:"fileLength"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	SecKey     string `json:"secKey"`
	Version    string `json:"version"`
}

// Upload pushes one JPEG to the TV's art store. The TV answers the
// send_image request with a one-shot socket endpoint; the image bytes go
// over that second connection. Returns the upload id.
func (c *Client) Upload(fileName string, data []byte) (string, error) {
	uploadID := uuid.New().String()
	resp, err := c.request("send_image", map[string]any{
		"file_type": "jpg",
		"id":        uploadID,
		"conn_info": map[string]any{
			"d2d_mode":      "socket",
			"connection_id": time.Now().UnixMilli(),
			"id":            uploadID,
		},
		"image_date":        time.Now().Format("2006:01:02 15:04:05"),
		"matte_id":          "none",
		"portrait_matte_id": "none",
		"file_size":         len(data),
	})
	if err != nil {
		return "", err
	}

	raw, _ := resp["conn_info"].(string)
	var ci connInfo
	if err := json.Unmarshal([]byte(raw), &ci); err != nil {
		return "", fmt.Errorf("failed to parse upload connection info from %s: %w", c.name, err)
	}
	if ci.IP == "" || ci.Port == 0 || ci.Key == "" {
		return "", fmt.Errorf("incomplete upload connection info from %s", c.name)
	}

	if err := c.sendPayload(ci, fileName, data); err != nil {
		return "", err
	}
	c.log.WithField("file", fileName).Debug("uploaded image")
	return uploadID, nil
}

func (c *Client) sendPayload(ci connInfo, fileName string, data []byte) error {
	dialer := &net.Dialer{Timeout: uploadTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp",
		net.JoinHostPort(ci.IP, strconv.Itoa(ci.Port)),
		&tls.Config{InsecureSkipVerify: true})
	if err != nil {
		return fmt.Errorf("failed to open upload socket to %s: %w", c.name, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(uploadTimeout))

	header := uploadHeader{
		Num:        0,
		Total:      1,
		FileLength: len(data),
		FileName:   fileName,
		FileType:   "jpg",
		SecKey:     ci.Key,
		Version:    "0.0.1",
	}
	if err := writeUploadPayload(conn, header, data); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", fileName, c.name, err)
	}
	return nil
}

// writeUploadPayload frames the transfer: a 4-byte big-endian header
// length, the JSON header, then the raw image bytes in chunks.
func writeUploadPayload(w io.Writer, header uploadHeader, data []byte) error {
	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode upload header: %w", err)
	}
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(hdr)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	for off := 0; off < len(data); off += uploadChunkSize {
		end := off + uploadChunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.Write(data[off:end]); err != nil {
			return err
		}
	}
	return nil
}
