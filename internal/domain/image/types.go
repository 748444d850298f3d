package image

// FieldImage is the multipart field carrying the image, both inbound and upstream.
const FieldImage = "image"

// Client facing error codes produced while reading an upload.
const (
	CodeMissingImage = "MissingImage"
	CodeFileTooLarge = "FileTooLarge"
)

// OptionKeys is the whitelist of optional processing directives forwarded
// upstream, in the order they are written to the outbound form.
var OptionKeys = []string{
	"mode",
	"processing.max_colors",
	"output.group_by_color",
	"output.illustrator_compatibility",
	"policy.retention_days",
}

// ProcessingOptions maps whitelisted keys to opaque string values. Keys the
// client did not send are absent; there are no defaults.
type ProcessingOptions map[string]string

// OptionsFrom picks the whitelisted keys present according to lookup.
func OptionsFrom(lookup func(key string) (string, bool)) ProcessingOptions {
	opts := make(ProcessingOptions)
	if lookup == nil {
		return opts
	}
	for _, key := range OptionKeys {
		if v, ok := lookup(key); ok {
			opts[key] = v
		}
	}
	return opts
}

// Each calls fn for every present option in whitelist order.
func (o ProcessingOptions) Each(fn func(key, value string)) {
	for _, key := range OptionKeys {
		if v, ok := o[key]; ok {
			fn(key, v)
		}
	}
}

// UploadRequest is one inbound image plus its processing directives. It lives
// for the duration of a single request.
type UploadRequest struct {
	Data        []byte
	Filename    string
	ContentType string
	Options     ProcessingOptions
}

// Empty reports whether no image payload was supplied.
func (u *UploadRequest) Empty() bool {
	return u == nil || len(u.Data) == 0
}
