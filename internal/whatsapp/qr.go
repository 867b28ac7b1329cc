package whatsapp

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

func qrPNG(payload string) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, 256)
}

// QRPNGBase64 renders a pairing payload as a base64 PNG.
func QRPNGBase64(payload string) (string, error) {
	png, err := qrPNG(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// QRTerminal renders a pairing payload with half-block characters for the log.
func QRTerminal(payload string) string {
	q, err := qrcode.New(payload, qrcode.Low)
	if err != nil {
		return ""
	}
	return q.ToSmallString(false)
}
