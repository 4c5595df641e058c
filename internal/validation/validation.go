package validation

// Pure predicates classifying a candidate upload by declared media type
// and byte size. Rejection messaging is a caller concern.

const (
	// MaxFileSize is the upload ceiling in bytes (10 MiB).
	MaxFileSize = 10 << 20

	PDFType = "application/pdf"
)

// AcceptedImageTypes lists the image media types the extraction service
// understands. "image/jpg" is not a registered type but browsers emit it.
var AcceptedImageTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
}

// AcceptedTypes is the full allow list: images plus PDF.
var AcceptedTypes = append(append([]string(nil), AcceptedImageTypes...), PDFType)

// IsAcceptedType reports whether the declared media type is allowed.
func IsAcceptedType(mediaType string) bool {
	for _, t := range AcceptedTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

// IsWithinSizeLimit reports whether the byte size is at or under the cap.
func IsWithinSizeLimit(size int64) bool {
	return size <= MaxFileSize
}

// IsImageKind reports whether the media type is one of the accepted image
// types. PDF is accepted for upload but is not an image kind, so it never
// gets a preview.
func IsImageKind(mediaType string) bool {
	for _, t := range AcceptedImageTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

// IsPDFKind reports whether the media type is the accepted PDF type.
func IsPDFKind(mediaType string) bool {
	return mediaType == PDFType
}
