package vectorize

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"vectorize-relay/internal/domain/image"
	"vectorize-relay/internal/platform/errors"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// BuildRequest translates an upload into the upstream multipart body. The
// image is written under the "image" field with its original filename and
// content type, followed by each whitelisted option present, verbatim.
func BuildRequest(upload *image.UploadRequest) (*OutboundRequest, error) {
	if upload.Empty() {
		return nil, errors.New(errors.KindValidation, "vectorize.build", "no image payload supplied").
			WithCode(image.CodeMissingImage)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := upload.Filename
	if filename == "" {
		filename = "image"
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		image.FieldImage, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "vectorize.build", "failed to create image part", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "vectorize.build", "failed to write image part", err)
	}

	fields := []string{image.FieldImage}
	var writeErr error
	upload.Options.Each(func(key, value string) {
		if writeErr != nil {
			return
		}
		if err := writer.WriteField(key, value); err != nil {
			writeErr = err
			return
		}
		fields = append(fields, key)
	})
	if writeErr != nil {
		return nil, errors.Wrap(errors.KindInternal, "vectorize.build", "failed to write option field", writeErr)
	}

	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "vectorize.build", "failed to finalise multipart body", err)
	}

	return &OutboundRequest{
		Body:        body.Bytes(),
		ContentType: writer.FormDataContentType(),
		Fields:      fields,
	}, nil
}
