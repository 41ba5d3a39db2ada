package transfer

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// Payload is a multipart body ready to be posted.
type Payload struct {
	Body        []byte
	ContentType string
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// BuildPayload encodes data as multipart/form-data. Files are written after plain values,
// both in the order they appear in data.
func BuildPayload(data FormData) (Payload, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, v := range data.Values {
		if err := writer.WriteField(v.Name, v.Value); err != nil {
			return Payload{}, fmt.Errorf("failed to write field %q: %w", v.Name, err)
		}
	}

	for _, f := range data.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := writer.CreatePart(h)
		if err != nil {
			return Payload{}, fmt.Errorf("failed to create part for %q: %w", f.Filename, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return Payload{}, fmt.Errorf("failed to write %q: %w", f.Filename, err)
		}
	}

	if err := writer.Close(); err != nil {
		return Payload{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return Payload{
		Body:        body.Bytes(),
		ContentType: writer.FormDataContentType(),
	}, nil
}
