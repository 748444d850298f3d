package vectorize

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="2" height="2"><path d="M0 0h2v2H0z"/></svg>`

func headerWith(kv ...string) http.Header {
	h := make(http.Header)
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestDecode_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		resp  *UpstreamResponse
		shape Shape
	}{
		{
			name:  "declared svg",
			resp:  &UpstreamResponse{Header: headerWith("Content-Type", "image/svg+xml"), Body: []byte(sampleSVG)},
			shape: ShapeBinary,
		},
		{
			name:  "declared json",
			resp:  &UpstreamResponse{Header: headerWith("Content-Type", "application/json; charset=utf-8"), Body: []byte(`{"svg":"<svg/>"}`)},
			shape: ShapeJSONEnvelope,
		},
		{
			name:  "vendor json suffix",
			resp:  &UpstreamResponse{Header: headerWith("Content-Type", "application/vnd.vectorizer+json"), Body: []byte(`{}`)},
			shape: ShapeJSONEnvelope,
		},
		{
			name:  "undeclared object body",
			resp:  &UpstreamResponse{Header: http.Header{}, Body: []byte(`  {"image_token":"t"}`)},
			shape: ShapeJSONEnvelope,
		},
		{
			name:  "undeclared non-json body",
			resp:  &UpstreamResponse{Header: http.Header{}, Body: []byte(sampleSVG)},
			shape: ShapeBinary,
		},
		{
			name:  "image type never sniffed",
			resp:  &UpstreamResponse{Header: headerWith("Content-Type", "image/png"), Body: []byte(`{"svg":"x"}`)},
			shape: ShapeBinary,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shape, Decode(tt.resp).Shape())
		})
	}
}

func TestNormalize_JSONEditorURL(t *testing.T) {
	resp := &UpstreamResponse{
		Status: http.StatusOK,
		Header: headerWith("Content-Type", "application/json"),
		Body:   []byte(`{"editor_url":"https://vectorizer.ai/images/abc/edit?secret=xyz","svg":"` + `<svg/>` + `"}`),
	}

	result := Normalize(resp)
	assert.Equal(t, "https://vectorizer.ai/images/abc/edit?secret=xyz", result.EditorURL)
	assert.Equal(t, VectorMIME, result.ContentType)
	assert.Equal(t, "<svg/>", string(result.Body))
	assert.Equal(t, ShapeJSONEnvelope, result.Shape)
	assert.NotContains(t, string(result.Body), "editor_url", "editor url must not be embedded in the body")
}

func TestNormalize_JSONBase64ByteForByte(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xfe, 0xff, '<', 's', 'v', 'g', '>'}
	encoded := base64.StdEncoding.EncodeToString(payload)

	resp := &UpstreamResponse{
		Header: headerWith("Content-Type", "application/json"),
		Body:   []byte(`{"image_base64":"` + encoded + `","image_token":"tok-1"}`),
	}

	result := Normalize(resp)
	assert.Equal(t, payload, result.Body)
	assert.Equal(t, "tok-1", result.Token)
	assert.Equal(t, VectorMIME, result.ContentType)
}

func TestNormalize_JSONFieldPrecedence(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString([]byte("from-base64"))

	tests := []struct {
		name      string
		body      string
		wantBody  string
		wantToken string
		wantURL   string
	}{
		{
			name:      "inline beats base64",
			body:      `{"svg":"inline","image_base64":"` + enc + `","token":"late","imageToken":"early-camel"}`,
			wantBody:  "inline",
			wantToken: "early-camel",
		},
		{
			name:      "first token spelling wins",
			body:      `{"image_token":"first","token":"second","result":"<svg/>"}`,
			wantBody:  "<svg/>",
			wantToken: "first",
		},
		{
			name:     "camel case editor url",
			body:     `{"editorUrl":"https://edit","base64":"` + enc + `"}`,
			wantBody: "from-base64",
			wantURL:  "https://edit",
		},
		{
			name:     "data uri base64",
			body:     `{"data":"data:image/svg+xml;base64,` + enc + `"}`,
			wantBody: "from-base64",
		},
		{
			name:     "non-string candidate skipped",
			body:     `{"svg":{"nested":true},"result":"second-choice"}`,
			wantBody: "second-choice",
		},
		{
			name:     "invalid base64 falls back to raw json",
			body:     `{"image_base64":"%%%not-base64%%%"}`,
			wantBody: `{"image_base64":"%%%not-base64%%%"}`,
		},
		{
			name:     "no payload falls back to raw json",
			body:     `{"status":"processed"}`,
			wantBody: `{"status":"processed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(&UpstreamResponse{
				Header: headerWith("Content-Type", "application/json"),
				Body:   []byte(tt.body),
			})
			assert.Equal(t, tt.wantBody, string(result.Body))
			assert.Equal(t, tt.wantToken, result.Token)
			assert.Equal(t, tt.wantURL, result.EditorURL)
			assert.Equal(t, VectorMIME, result.ContentType)
		})
	}
}

func TestNormalize_DeclaredJSONNotObject(t *testing.T) {
	result := Normalize(&UpstreamResponse{
		Header: headerWith("Content-Type", "application/json"),
		Body:   []byte(`"just a string"`),
	})
	assert.Equal(t, `"just a string"`, string(result.Body))
	assert.Equal(t, VectorMIME, result.ContentType)
}

func TestNormalize_BinaryTokenCasings(t *testing.T) {
	for _, key := range []string{"X-Image-Token", "x-image-token", "X-IMAGE-TOKEN"} {
		t.Run(key, func(t *testing.T) {
			// raw map assignment keeps the exact casing
			h := http.Header{key: []string{"token-123"}, "Content-Type": []string{"image/svg+xml"}}
			result := Normalize(&UpstreamResponse{Header: h, Body: []byte(sampleSVG)})

			assert.Equal(t, "token-123", result.Token)
			assert.Equal(t, "image/svg+xml", result.ContentType)
			assert.Equal(t, sampleSVG, string(result.Body))
		})
	}
}

func TestNormalize_BinaryDefaults(t *testing.T) {
	result := Normalize(&UpstreamResponse{Body: []byte(sampleSVG)})
	assert.Equal(t, VectorMIME, result.ContentType)
	assert.Equal(t, "", result.Token)
	assert.Equal(t, ShapeBinary, result.Shape)

	png := Normalize(&UpstreamResponse{Header: headerWith("Content-Type", "image/png"), Body: []byte{1, 2}})
	assert.Equal(t, "image/png", png.ContentType)
}

func TestNormalize_JSONFallsBackToHeaderToken(t *testing.T) {
	result := Normalize(&UpstreamResponse{
		Header: headerWith("Content-Type", "application/json", "X-Image-Token", "hdr-token"),
		Body:   []byte(`{"svg":"<svg/>"}`),
	})
	assert.Equal(t, "hdr-token", result.Token)
}

func TestNormalize_CreditHeaders(t *testing.T) {
	result := Normalize(&UpstreamResponse{
		Header: headerWith("Content-Type", "image/svg+xml", "X-Credits-Calculated", "1.000", "X-Credits-Charged", "0.000"),
		Body:   []byte(sampleSVG),
	})
	require.NotNil(t, result.Credits)
	assert.Equal(t, "1.000", result.Credits[HeaderCreditsCalculated])
	assert.Equal(t, "0.000", result.Credits[HeaderCreditsCharged])

	none := Normalize(&UpstreamResponse{Body: []byte(sampleSVG)})
	assert.Nil(t, none.Credits)
}

func TestTokenFromHeader_MixedCaseScan(t *testing.T) {
	h := http.Header{"x-Image-TOKEN": []string{"", "scanned"}}
	assert.Equal(t, "scanned", TokenFromHeader(h))
	assert.Equal(t, "", TokenFromHeader(http.Header{}))
}

func TestNormalize_Idempotent(t *testing.T) {
	newResp := func() *UpstreamResponse {
		return &UpstreamResponse{
			Header: headerWith("Content-Type", "application/json"),
			Body:   []byte(`{"editor_url":"https://e","image_token":"t","svg":"<svg/>"}`),
		}
	}
	assert.Equal(t, Normalize(newResp()), Normalize(newResp()))
}
