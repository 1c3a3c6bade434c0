package docsign

// Compositor embeds a signature image into a document's bytes and returns
// the re-serialized document. Implementations exist per DocumentKind.
//
// Failures caused by the signature image are reported as *CompositingError,
// failures caused by the document as *DocumentError, and a page outside the
// document as a *ValidationError on the placement field.
type Compositor interface {
	Composite(doc []byte, sig []byte, placement Placement, caption string) ([]byte, error)

	// Check reports whether doc can later be signed. It returns a
	// *DocumentError when it cannot.
	Check(doc []byte) error
}

// CompositorSet selects the compositor for a document kind.
type CompositorSet interface {
	ForKind(kind DocumentKind) (Compositor, error)
}
