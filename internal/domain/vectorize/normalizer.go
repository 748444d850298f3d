package vectorize

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

// Shape names the body variant detected by Decode.
type Shape string

const (
	ShapeBinary       Shape = "binary"
	ShapeJSONEnvelope Shape = "json_envelope"
)

// Field names probed on JSON envelopes, in precedence order. Upstream has used
// different spellings across API variants; first match wins.
var (
	editorURLFields = []string{"editor_url", "editorUrl", "editor"}
	tokenFields     = []string{"image_token", "imageToken", "token"}
	inlineFields    = []string{"svg", "result"}
	base64Fields    = []string{"image_base64", "base64", "data"}
)

// tokenHeaderSpellings are checked against the raw header map before falling
// back to a case-insensitive scan.
var tokenHeaderSpellings = []string{HeaderImageToken, "x-image-token", "X-IMAGE-TOKEN"}

// UpstreamBody is the decoded upstream body: either *BinaryBody or *JSONEnvelope.
type UpstreamBody interface {
	Shape() Shape
}

// BinaryBody is a raw image payload.
type BinaryBody struct {
	Bytes       []byte
	ContentType string
}

func (*BinaryBody) Shape() Shape { return ShapeBinary }

// JSONEnvelope is a JSON object wrapping the result. Empty strings mean the
// field was absent.
type JSONEnvelope struct {
	EditorURL string
	Token     string
	Inline    string
	Base64    string
	Raw       []byte
}

func (*JSONEnvelope) Shape() Shape { return ShapeJSONEnvelope }

// Decode classifies an upstream response body.
func Decode(resp *UpstreamResponse) UpstreamBody {
	declared := resp.Header.Get("Content-Type")
	mediaType := parseMediaType(declared)

	switch {
	case isJSONMedia(mediaType):
		if env, ok := decodeEnvelope(resp.Body); ok {
			return env
		}
		// Declared JSON that is not an object still goes through the envelope
		// path so the output type is the vector MIME type.
		return &JSONEnvelope{Raw: resp.Body}
	case strings.HasPrefix(mediaType, "image/"):
		return &BinaryBody{Bytes: resp.Body, ContentType: declared}
	case mediaType == "" || mediaType == "text/plain" || mediaType == "application/octet-stream":
		if env, ok := decodeEnvelope(resp.Body); ok {
			return env
		}
	}
	return &BinaryBody{Bytes: resp.Body, ContentType: declared}
}

// Normalize turns an upstream response into the body and headers sent back to
// the client. It never fails: unrecognized bodies are passed through.
func Normalize(resp *UpstreamResponse) *NormalizedResult {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}

	result := &NormalizedResult{Credits: creditHeaders(resp.Header)}

	switch body := Decode(resp).(type) {
	case *JSONEnvelope:
		result.Shape = ShapeJSONEnvelope
		result.ContentType = VectorMIME
		result.EditorURL = body.EditorURL
		result.Token = body.Token
		result.Body = envelopePayload(body)
	case *BinaryBody:
		result.Shape = ShapeBinary
		result.ContentType = body.ContentType
		if result.ContentType == "" {
			result.ContentType = VectorMIME
		}
		result.Body = body.Bytes
	}

	if result.Token == "" {
		result.Token = TokenFromHeader(resp.Header)
	}
	return result
}

// TokenFromHeader finds the image token header regardless of key casing.
func TokenFromHeader(h http.Header) string {
	for _, key := range tokenHeaderSpellings {
		if v := firstNonEmpty(h[key]); v != "" {
			return v
		}
	}
	if v := h.Get(HeaderImageToken); v != "" {
		return v
	}
	for key, values := range h {
		if strings.EqualFold(key, HeaderImageToken) {
			if v := firstNonEmpty(values); v != "" {
				return v
			}
		}
	}
	return ""
}

func envelopePayload(env *JSONEnvelope) []byte {
	if env.Inline != "" {
		return []byte(env.Inline)
	}
	if env.Base64 != "" {
		if decoded, ok := decodeBase64(env.Base64); ok {
			return decoded
		}
	}
	return env.Raw
}

func decodeEnvelope(body []byte) (*JSONEnvelope, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false
	}

	return &JSONEnvelope{
		EditorURL: stringField(fields, editorURLFields),
		Token:     stringField(fields, tokenFields),
		Inline:    stringField(fields, inlineFields),
		Base64:    stringField(fields, base64Fields),
		Raw:       body,
	}, true
}

// stringField returns the first candidate holding a non-empty JSON string.
func stringField(fields map[string]json.RawMessage, candidates []string) string {
	for _, name := range candidates {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ";base64,"); idx >= 0 {
			s = s[idx+len(";base64,"):]
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(s); err == nil {
			return decoded, true
		}
	}
	return nil, false
}

func parseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType
}

func isJSONMedia(mediaType string) bool {
	return mediaType == "application/json" ||
		mediaType == "text/json" ||
		(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"))
}

func creditHeaders(h http.Header) map[string]string {
	var credits map[string]string
	for _, key := range []string{HeaderCreditsCalculated, HeaderCreditsCharged} {
		if v := h.Get(key); v != "" {
			if credits == nil {
				credits = make(map[string]string, 2)
			}
			credits[key] = v
		}
	}
	return credits
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
