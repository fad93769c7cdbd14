package encoding

import (
	"mime"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// BodyToUTF8 converts a server payload to UTF-8 when its Content-Type declares a
// Windows-1252 family charset. Older sync servers still answer in Latin-1.
// Any other charset, or none, is returned as is
func BodyToUTF8(b []byte, contentType string) ([]byte, error) {
	if len(b) == 0 || contentType == "" {
		return b, nil
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return b, nil
	}

	switch strings.ToLower(params["charset"]) {
	case "windows-1252", "cp1252", "iso-8859-1", "latin1":
		return charmap.Windows1252.NewDecoder().Bytes(b)
	default:
		return b, nil
	}
}
