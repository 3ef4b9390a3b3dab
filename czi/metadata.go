package czi

// Metadata holds the document XML metadata, copied out of native memory when
// it was retrieved. Read-once and immutable: the native metadata segment is
// already released by the time a Metadata exists.
type Metadata struct {
	xml []byte
}

// XML returns the metadata document as a string.
func (m *Metadata) XML() string {
	return string(m.xml)
}

// Bytes returns the raw UTF-8 metadata document.
func (m *Metadata) Bytes() []byte {
	return m.xml
}
